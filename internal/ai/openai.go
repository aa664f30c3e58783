// Package ai はテキスト生成による補充記事の作成を提供する。
package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// fallbackSummaryLimit はTitle/Summary形式で返らなかった場合に要約として使う先頭文字数。
const fallbackSummaryLimit = 200

// generateTimeout は呼び出し元が期限を設定していない場合のタイムアウト。
const generateTimeout = 60 * time.Second

// defaultModel はモデル未指定時に使うモデル名。
const defaultModel = "gpt-4o-mini"

const systemPrompt = "You are a fitness journalist for a daily newsletter called FitPress."

// replyPattern は "Title: ... Summary: ..." 形式の返答を分解する。
var replyPattern = regexp.MustCompile(`(?s)Title:\s*(.*?)\s*Summary:\s*(.*)`)

// ErrEmptyReply はモデルが空の返答を返したことを示す。
var ErrEmptyReply = errors.New("empty completion reply")

// Generator はカテゴリ向けの補充記事を生成するインターフェース。
type Generator interface {
	GenerateArticle(ctx context.Context, category string) (title, summary string, err error)
}

// Config はOpenAIクライアントの設定。
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // 省略可
}

// OpenAIGenerator はOpenAI Chat Completions APIを使ったGeneratorの実装。
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator はOpenAIGeneratorを生成する。Modelが空の場合はgpt-4o-miniを使う。
func NewOpenAIGenerator(cfg Config) *OpenAIGenerator {
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cc), model: model}
}

// GenerateArticle はカテゴリ向けの短い記事を生成し、タイトルと要約に分解して返す。
func (g *OpenAIGenerator) GenerateArticle(ctx context.Context, category string) (string, string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, generateTimeout)
		defer cancel()
	}

	user := fmt.Sprintf(`Generate a short, original article (about 150 words) with a catchy headline and a few actionable insights for readers interested in %s. Format it as: "Title: ... Summary: ...".`, category)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", "", ErrEmptyReply
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", "", ErrEmptyReply
	}

	title, summary := ParseReply(text, category)
	return title, summary, nil
}

// ParseReply は "Title: ... Summary: ..." 形式の返答を分解する。
// 形式に合わない場合のタイトルは "AI Spotlight: <category>"、要約は返答の先頭200文字。
func ParseReply(text, category string) (string, string) {
	var title, summary string
	if m := replyPattern.FindStringSubmatch(text); m != nil {
		title = strings.TrimSpace(m[1])
		summary = strings.TrimSpace(m[2])
	}

	if title == "" {
		title = "AI Spotlight: " + category
	}
	if summary == "" {
		summary = truncateRunes(text, fallbackSummaryLimit)
	}
	return title, summary
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

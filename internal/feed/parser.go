package feed

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/fitpress/internal/model"
	"github.com/hitoshi/fitpress/internal/security"
)

// encodedSummaryLimit はcontent:encodedを要約に流用する際の最大文字数。
// タグ除去の前に切り詰める。
const encodedSummaryLimit = 200

// ErrUnknownDialect はRSSでもAtomでもない文書であることを示す。
var ErrUnknownDialect = errors.New("document is neither RSS nor Atom")

// Parser はフィード文書を方言に依存しない正規化済み記事一覧に変換する。
type Parser struct {
	stripper security.TextStripper
	dialects map[gofeed.FeedType]dialect
}

// NewParser はParserの新しいインスタンスを生成する。
func NewParser(stripper security.TextStripper) *Parser {
	return &Parser{
		stripper: stripper,
		dialects: map[gofeed.FeedType]dialect{
			gofeed.FeedTypeRSS:  rssDialect{},
			gofeed.FeedTypeAtom: atomDialect{},
		},
	}
}

// Parse は文書を解析して正規化済み記事を文書内の順序で返す。
// 各記事のFeedPositionには除外前の位置が入る。
// 方言を判別できない場合や解析に失敗した場合は、空の一覧とその理由を返す。
// エラーは記録用であり、呼び出し元はそのソースを0件として処理を続行する。
// nowは公開日時を持たない記事の代用時刻に使われる。
func (p *Parser) Parse(body []byte, now time.Time) ([]model.NormalizedItem, error) {
	d, ok := p.dialects[gofeed.DetectFeedType(bytes.NewReader(body))]
	if !ok {
		return nil, ErrUnknownDialect
	}

	raws, err := d.items(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%sの解析に失敗: %w", d.name(), err)
	}

	items := make([]model.NormalizedItem, 0, len(raws))
	for i, raw := range raws {
		item, ok := p.normalize(raw, now)
		if !ok {
			slog.Debug("キーを導出できない記事を除外しました",
				slog.String("dialect", d.name()),
				slog.Int("position", i+1),
			)
			continue
		}
		item.FeedPosition = i + 1
		items = append(items, item)
	}
	return items, nil
}

// normalize は1件の記事を正規化する。タイトルもURLもない記事はfalseを返す。
func (p *Parser) normalize(raw rawItem, now time.Time) (model.NormalizedItem, bool) {
	title := strings.TrimSpace(raw.title)

	// href属性 > linkテキスト > タイトル の順にキーを決める
	key := firstNonEmpty(raw.linkHref, raw.link, title)
	if key == "" {
		return model.NormalizedItem{}, false
	}

	item := model.NormalizedItem{
		Title:        title,
		CanonicalURL: key,
		SummaryText:  p.summaryText(raw),
	}

	switch {
	case raw.published != nil:
		item.PublishedAt = raw.published.UTC()
	case raw.updated != nil:
		item.PublishedAt = raw.updated.UTC()
	default:
		item.PublishedAt = now.UTC()
		item.DateEstimated = true
	}

	return item, true
}

func (p *Parser) summaryText(raw rawItem) string {
	src := firstNonEmpty(raw.description, truncateRunes(raw.encoded, encodedSummaryLimit))
	if src == "" {
		return ""
	}
	return p.stripper.StripTags(src)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// truncateRunes は文字列を先頭からn文字（rune）に切り詰める。
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

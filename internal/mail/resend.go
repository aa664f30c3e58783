// Package mail はダイジェストメールの送信を提供する。
package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/hitoshi/fitpress/internal/model"
)

const (
	// DefaultBaseURL はResend APIのベースURL。
	DefaultBaseURL = "https://api.resend.com/"
	// maxErrorBody はエラー時にログへ残すレスポンスボディの最大バイト数。
	maxErrorBody = 1024
)

// Sender はメール送信のインターフェース。
type Sender interface {
	Send(ctx context.Context, email model.Email) error
}

// ResendConfig はResendClientの設定。
type ResendConfig struct {
	APIKey  string
	From    string
	BaseURL string // 空の場合はDefaultBaseURL
}

// ResendClient はResend SDKを使用したSenderの実装。
type ResendClient struct {
	client *resend.Client
	from   string
	logger *slog.Logger
}

// NewResendClient はResendClientの新しいインスタンスを生成する。
// httpClientのTransportはエラーレスポンスを記録するためにラップされる。
func NewResendClient(httpClient *http.Client, logger *slog.Logger, cfg ResendConfig) (*ResendClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	// "emails" を相対解決するため末尾のスラッシュを揃える
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid Resend base URL %q: %w", cfg.BaseURL, err)
	}

	hc := &http.Client{}
	if httpClient != nil {
		*hc = *httpClient
	}
	hc.Transport = &errorLoggingTransport{base: hc.Transport, logger: logger}

	client := resend.NewCustomClient(hc, cfg.APIKey)
	client.BaseURL = base

	return &ResendClient{client: client, from: cfg.From, logger: logger}, nil
}

// Send はメールを1通送信する。2xx以外のレスポンスはエラーとして返す。
func (c *ResendClient) Send(ctx context.Context, email model.Email) error {
	resp, err := c.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
	})
	if err != nil {
		return fmt.Errorf("メール送信APIの呼び出しに失敗しました: %w", err)
	}

	c.logger.Debug("メールを送信しました",
		slog.String("message_id", resp.Id),
	)
	return nil
}

// errorLoggingTransport は2xx以外のレスポンスのステータスとボディをログに残す。
// 読み取ったボディは後続のデコードのために差し戻す。
type errorLoggingTransport struct {
	base   http.RoundTripper
	logger *slog.Logger
}

func (t *errorLoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return resp, err
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	attrs := []any{
		slog.Int("http_status", resp.StatusCode),
		slog.String("response", string(body)),
	}
	if readErr != nil {
		attrs = append(attrs, slog.String("read_error", readErr.Error()))
	}
	t.logger.Error("メール送信APIがエラーステータスを返しました", attrs...)

	return resp, nil
}

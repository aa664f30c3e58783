// Package security はフィード取り込み時の安全対策を提供する。
//
// TextStripper はフィード記事の要約からHTMLを取り除き、
// ダイジェストに載せるプレーンテキストに変換する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextStripper はHTMLからプレーンテキストを取り出す機能のインターフェース。
type TextStripper interface {
	// StripTags は全てのタグを除去し、実体参照を復元し、連続する空白を1つに圧縮する。
	// script, styleの中身は出力に含めない。空文字列には空文字列を返す。
	StripTags(raw string) string
}

// textStripper はbluemondayのStrictPolicyによるTextStripperの実装。
// ポリシーはスレッドセーフで、複数のgoroutineから共有できる。
type textStripper struct {
	policy *bluemonday.Policy
}

// NewTextStripper はTextStripperの新しいインスタンスを生成する。
func NewTextStripper() *textStripper {
	return &textStripper{
		policy: bluemonday.StrictPolicy(),
	}
}

// StripTags はHTMLをプレーンテキストに変換する。
func (s *textStripper) StripTags(raw string) string {
	if raw == "" {
		return ""
	}
	// bluemondayは出力テキストをエスケープするため、最後に実体参照を戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	return CollapseWhitespace(text)
}

// CollapseWhitespace は改行・タブを含む連続する空白を1つの空白にし、前後を切り詰める。
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

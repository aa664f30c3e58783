package model

import "strings"

// Subscriber はダイジェストの購読者を表す。本システムからは読み取り専用。
type Subscriber struct {
	Email     string
	Interests []string
}

// HasInterests は購読者が関心カテゴリを明示しているかを返す。
func (s Subscriber) HasInterests() bool {
	return len(s.Interests) > 0
}

// DisplayName はメールアドレスのローカル部を返す。
func (s Subscriber) DisplayName() string {
	name, _, _ := strings.Cut(s.Email, "@")
	return name
}

// DigestSection はダイジェストの1カテゴリ分の記事一覧。
type DigestSection struct {
	Category string
	Articles []Article
}

// DigestPayload は購読者1人分のダイジェスト内容。永続化されない。
type DigestPayload struct {
	Recipient string
	Sections  []DigestSection
}

// ArticleCount はダイジェストに含まれる記事の総数を返す。
func (p DigestPayload) ArticleCount() int {
	n := 0
	for _, s := range p.Sections {
		n += len(s.Articles)
	}
	return n
}

// Email はメール送信に渡すメッセージ。
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Package feed はRSS/Atomフィードの解析・正規化と、カテゴリ単位の記事選定を提供する。
package feed

import (
	"io"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
)

// rawItem は方言ごとの記事を共通の形に写したもの。正規化前の値を保持する。
type rawItem struct {
	title       string
	linkHref    string // <link href="..."> 属性
	link        string // <link> 要素のテキスト
	description string // RSSのdescription、Atomのsummary
	encoded     string // RSSのcontent:encoded、Atomのcontent
	published   *time.Time
	updated     *time.Time
}

// dialect はフィード方言ごとの解析戦略。
type dialect interface {
	name() string
	items(r io.Reader) ([]rawItem, error)
}

// rssDialect は channel.item を読み取る。
type rssDialect struct{}

func (rssDialect) name() string { return "rss" }

func (rssDialect) items(r io.Reader) ([]rawItem, error) {
	parser := &rss.Parser{}
	f, err := parser.Parse(r)
	if err != nil {
		return nil, err
	}

	out := make([]rawItem, 0, len(f.Items))
	for _, it := range f.Items {
		if it == nil {
			continue
		}
		ri := rawItem{
			title:       it.Title,
			link:        it.Link,
			description: it.Description,
			encoded:     it.Content,
			published:   it.PubDateParsed,
		}
		// RSSには更新日時の要素がないため dc:date を更新日時として扱う
		if it.DublinCoreExt != nil && len(it.DublinCoreExt.Date) > 0 {
			ri.updated = parseDate(it.DublinCoreExt.Date[0])
		}
		out = append(out, ri)
	}
	return out, nil
}

// atomDialect は feed.entry を読み取る。
type atomDialect struct{}

func (atomDialect) name() string { return "atom" }

func (atomDialect) items(r io.Reader) ([]rawItem, error) {
	parser := &atom.Parser{}
	f, err := parser.Parse(r)
	if err != nil {
		return nil, err
	}

	out := make([]rawItem, 0, len(f.Entries))
	for _, e := range f.Entries {
		if e == nil {
			continue
		}
		ri := rawItem{
			title:       e.Title,
			linkHref:    atomLinkHref(e.Links),
			description: e.Summary,
			published:   e.PublishedParsed,
			updated:     e.UpdatedParsed,
		}
		if e.Content != nil {
			ri.encoded = e.Content.Value
		}
		out = append(out, ri)
	}
	return out, nil
}

// atomLinkHref は記事本体を指すリンクのhrefを返す。
// rel未指定またはalternateを優先し、なければhrefを持つ最初のリンクを使う。
func atomLinkHref(links []*atom.Link) string {
	var fallback string
	for _, l := range links {
		if l == nil || strings.TrimSpace(l.Href) == "" {
			continue
		}
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
		if fallback == "" {
			fallback = l.Href
		}
	}
	return fallback
}

var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// Package digest は購読者ごとのダイジェスト内容の組み立てと描画を提供する。
package digest

import (
	"github.com/samber/lo"

	"github.com/hitoshi/fitpress/internal/model"
)

// 1カテゴリあたりの掲載記事数。
const (
	// InterestArticleLimit は関心カテゴリを明示した購読者向けの件数。
	InterestArticleLimit = 3
	// DefaultArticleLimit は関心カテゴリ未設定の購読者向けの件数。
	DefaultArticleLimit = 2
)

// Composer は記事一覧と購読者からダイジェスト内容を組み立てる。送信は行わない。
type Composer struct {
	interestLimit int
	defaultLimit  int
}

// NewComposer はComposerの新しいインスタンスを生成する。
func NewComposer() *Composer {
	return &Composer{
		interestLimit: InterestArticleLimit,
		defaultLimit:  DefaultArticleLimit,
	}
}

// grouping はカテゴリ別の記事一覧と、カテゴリの初出順を保持する。
type grouping struct {
	order      []string
	byCategory map[string][]model.Article
}

// group は公開日時の降順で並んだ記事をカテゴリ別にまとめる。各カテゴリ内の順序は維持される。
func group(articles []model.Article) grouping {
	g := grouping{byCategory: make(map[string][]model.Article)}
	for _, a := range articles {
		cat := a.Category
		if cat == "" {
			cat = model.UncategorizedCategory
		}
		if _, ok := g.byCategory[cat]; !ok {
			g.order = append(g.order, cat)
		}
		g.byCategory[cat] = append(g.byCategory[cat], a)
	}
	return g
}

// Compose は購読者1人分のダイジェストを組み立てる。
// articlesは公開日時の降順で渡すこと。掲載記事が1件もない場合はokにfalseを返す。
func (c *Composer) Compose(articles []model.Article, sub model.Subscriber) (model.DigestPayload, bool) {
	return c.compose(group(articles), sub)
}

// ComposeAll は全購読者分のダイジェストを入力順に組み立て、掲載記事のない購読者を除外する。
func (c *Composer) ComposeAll(articles []model.Article, subs []model.Subscriber) []model.DigestPayload {
	g := group(articles)
	payloads := make([]model.DigestPayload, 0, len(subs))
	for _, sub := range subs {
		if p, ok := c.compose(g, sub); ok {
			payloads = append(payloads, p)
		}
	}
	return payloads
}

func (c *Composer) compose(g grouping, sub model.Subscriber) (model.DigestPayload, bool) {
	selected := g.order
	limit := c.defaultLimit
	if sub.HasInterests() {
		// 同じカテゴリを重複して登録していても1セクションにまとめる
		selected = lo.Uniq(sub.Interests)
		limit = c.interestLimit
	}

	payload := model.DigestPayload{Recipient: sub.Email}
	for _, cat := range selected {
		items := g.byCategory[cat]
		if len(items) == 0 {
			continue
		}
		if len(items) > limit {
			items = items[:limit]
		}
		section := model.DigestSection{
			Category: cat,
			Articles: make([]model.Article, len(items)),
		}
		copy(section.Articles, items)
		payload.Sections = append(payload.Sections, section)
	}

	return payload, len(payload.Sections) > 0
}

package feed

import (
	"github.com/samber/lo"

	"github.com/hitoshi/fitpress/internal/model"
)

// SourceItems は1ソース分の正規化済み記事。Itemsはフィード内の順序を保つ。
type SourceItems struct {
	Source model.FeedSource
	Items  []model.NormalizedItem
}

// Selector はカテゴリ内の記事をソース上限 → 重複排除 → カテゴリ上限 の順で選定する。
type Selector struct {
	perSourceLimit int // Source.PerSourceLimitが0の場合に使う
	categoryLimit  int
}

// NewSelector はSelectorを生成する。
// 0以下の値はそれぞれ3件、5件として扱う。
func NewSelector(perSourceLimit, categoryLimit int) *Selector {
	if perSourceLimit <= 0 {
		perSourceLimit = 3
	}
	if categoryLimit <= 0 {
		categoryLimit = 5
	}
	return &Selector{
		perSourceLimit: perSourceLimit,
		categoryLimit:  categoryLimit,
	}
}

// Select は1カテゴリ分のソース一覧から登録対象の記事を選ぶ。
// batchesの並びが到着順となり、重複時は先に到着したものを残す。
// 公開日時による並び替えは行わない。
func (s *Selector) Select(batches []SourceItems) []model.NormalizedItem {
	var pooled []model.NormalizedItem
	for _, b := range batches {
		limit := b.Source.PerSourceLimit
		if limit <= 0 {
			limit = s.perSourceLimit
		}
		pooled = append(pooled, capSource(b.Items, limit)...)
	}

	// 既出URLの集合はこの呼び出しの中だけで保持される
	unique := lo.UniqBy(pooled, func(it model.NormalizedItem) string {
		return it.CanonicalURL
	})

	return capItems(unique, s.categoryLimit)
}

// capSource はフィード先頭からn件以内の位置にある記事だけを残す。
// キーがなく除外された記事も位置を消費するため、後続の記事が繰り上がることはない。
func capSource(items []model.NormalizedItem, n int) []model.NormalizedItem {
	out := make([]model.NormalizedItem, 0, min(len(items), n))
	for i, it := range items {
		pos := it.FeedPosition
		if pos == 0 {
			pos = i + 1
		}
		if pos > n {
			break
		}
		out = append(out, it)
	}
	return out
}

func capItems(items []model.NormalizedItem, n int) []model.NormalizedItem {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

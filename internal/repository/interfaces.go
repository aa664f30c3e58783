// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/fitpress/internal/model"
)

// ArticleRepository は記事データの永続化インターフェース。
type ArticleRepository interface {
	// Upsert はurlをキーに記事を作成または更新する。
	// 既存の記事はtitle/summary/published_atを上書きし、fetched_atを必ず更新する。idは維持される。
	// 実行後のarticle.IDには永続化されたidが設定される。
	Upsert(ctx context.Context, article *model.Article) error

	// List は条件に合う記事一覧を取得する。
	List(ctx context.Context, q model.ArticleQuery) ([]model.Article, error)

	// DeleteOlderThan はfetched_atが指定時刻より古い記事を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// SubscriberRepository は購読者データの読み取りインターフェース。
type SubscriberRepository interface {
	// List は認証済みの購読者一覧を登録順に取得する。
	List(ctx context.Context) ([]model.Subscriber, error)
}

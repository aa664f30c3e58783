package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"github.com/hitoshi/fitpress/internal/model"
)

// articleColumns は記事一覧で取得するカラム。Scan順と一致させること。
var articleColumns = []string{
	"id", "category", "title", "url", "summary", "source_type", "published_at", "fetched_at",
}

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// Upsert はINSERT ON CONFLICT (url)で記事を作成または更新する。
// 競合時はEXCLUDEDの値で上書きし、RETURNINGで既存のidを受け取る。
func (r *PostgresArticleRepo) Upsert(ctx context.Context, a *model.Article) error {
	sourceType := a.SourceType
	if sourceType == "" {
		sourceType = model.SourceTypeRSS
	}

	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO articles (id, category, title, url, summary, source_type, published_at, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (url) DO UPDATE SET
		     category = EXCLUDED.category,
		     title = EXCLUDED.title,
		     summary = EXCLUDED.summary,
		     source_type = EXCLUDED.source_type,
		     published_at = EXCLUDED.published_at,
		     fetched_at = EXCLUDED.fetched_at
		 RETURNING id`,
		a.ID, a.Category, a.Title, a.URL, a.Summary, sourceType, a.PublishedAt, a.FetchedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("記事のUPSERTに失敗しました: %w", err)
	}

	a.ID = id
	a.SourceType = sourceType
	return nil
}

// List は条件に合う記事一覧を取得する。
func (r *PostgresArticleRepo) List(ctx context.Context, q model.ArticleQuery) ([]model.Article, error) {
	query, args := buildArticleListQuery(q)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		var a model.Article
		if err := rows.Scan(
			&a.ID, &a.Category, &a.Title, &a.URL, &a.Summary,
			&a.SourceType, &a.PublishedAt, &a.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("記事のスキャンに失敗しました: %w", err)
		}
		articles = append(articles, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の読み取りに失敗しました: %w", err)
	}

	return articles, nil
}

// DeleteOlderThan はfetched_atがbeforeより古い記事を削除する。
func (r *PostgresArticleRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM articles WHERE fetched_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("古い記事の削除に失敗しました: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// buildArticleListQuery はArticleQueryからSELECT文を組み立てる。
// OrderByが未指定または不明な値の場合はpublished_atで並べる。
func buildArticleListQuery(q model.ArticleQuery) (string, []interface{}) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(articleColumns...).From("articles")

	if q.Category != "" {
		sb.Where(sb.Equal("category", q.Category))
	}
	if !q.Since.IsZero() {
		sb.Where(sb.GreaterEqualThan("published_at", q.Since))
	}

	orderBy := model.OrderByPublishedAt
	if q.OrderBy == model.OrderByFetchedAt {
		orderBy = model.OrderByFetchedAt
	}
	sb.OrderBy(orderBy)
	if q.Descending {
		sb.Desc()
	} else {
		sb.Asc()
	}

	if q.Limit > 0 {
		sb.Limit(q.Limit)
	}

	return sb.BuildWithFlavor(sqlbuilder.PostgreSQL)
}

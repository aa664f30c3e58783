package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/fitpress/internal/model"
)

// PostgresSubscriberRepo はPostgreSQLを使用した購読者リポジトリ。
type PostgresSubscriberRepo struct {
	db *sql.DB
}

// NewPostgresSubscriberRepo はPostgresSubscriberRepoを生成する。
func NewPostgresSubscriberRepo(db *sql.DB) *PostgresSubscriberRepo {
	return &PostgresSubscriberRepo{db: db}
}

// List は認証済みの購読者一覧を取得する。
func (r *PostgresSubscriberRepo) List(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT email, interests FROM subscriptions
		 WHERE verified = true
		 ORDER BY created_at ASC, email ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("購読者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscriber
	for rows.Next() {
		var s model.Subscriber
		var interests pq.StringArray
		if err := rows.Scan(&s.Email, &interests); err != nil {
			return nil, fmt.Errorf("購読者のスキャンに失敗しました: %w", err)
		}
		s.Interests = compactInterests(interests)
		subs = append(subs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読者一覧の読み取りに失敗しました: %w", err)
	}

	return subs, nil
}

// compactInterests は空文字の関心カテゴリを除外する。
// すべて空の場合はnilを返し、関心未設定として扱う。
func compactInterests(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Package article は正規化済み記事の永続化を提供する。
package article

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/fitpress/internal/model"
	"github.com/hitoshi/fitpress/internal/repository"
)

// UpsertResult はカテゴリ1件分のUPSERT結果。
type UpsertResult struct {
	Category  string
	Succeeded int
	Failed    int
}

// UpsertService は記事をurlキーでUPSERTする。
// 1件ごとに独立してUPSERTし、失敗はログに記録して残りの処理を継続する。
type UpsertService struct {
	repo   repository.ArticleRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewUpsertService はUpsertServiceの新しいインスタンスを生成する。
func NewUpsertService(repo repository.ArticleRepository, logger *slog.Logger) *UpsertService {
	return &UpsertService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// UpsertCategory はカテゴリの選択済み記事をRSS由来の記事としてUPSERTする。
// 成功件数が0の場合は警告ログを出すが、エラーにはしない。
func (s *UpsertService) UpsertCategory(ctx context.Context, category string, items []model.NormalizedItem) UpsertResult {
	result := UpsertResult{Category: category}
	if len(items) == 0 {
		return result
	}

	fetchedAt := s.now().UTC()
	for _, item := range items {
		a := newArticle(category, item, model.SourceTypeRSS, fetchedAt)
		if err := s.repo.Upsert(ctx, a); err != nil {
			result.Failed++
			s.logger.Error("記事のUPSERTに失敗しました",
				slog.String("category", category),
				slog.String("url", item.CanonicalURL),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Succeeded++
	}

	if result.Succeeded == 0 {
		s.logger.Warn("カテゴリの記事を1件も保存できませんでした",
			slog.String("category", category),
			slog.Int("failed", result.Failed),
		)
		return result
	}

	s.logger.Info("記事UPSERT完了",
		slog.String("category", category),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
	)
	return result
}

// UpsertGenerated はテキスト生成で補充した記事を1件UPSERTする。
func (s *UpsertService) UpsertGenerated(ctx context.Context, category string, item model.NormalizedItem) (*model.Article, error) {
	a := newArticle(category, item, model.SourceTypeAI, s.now().UTC())
	if err := s.repo.Upsert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// newArticle はUPSERT用の記事を生成する。
// idは新規作成時のみ使われ、既存の記事では永続化済みのidに置き換わる。
func newArticle(category string, item model.NormalizedItem, sourceType string, fetchedAt time.Time) *model.Article {
	return &model.Article{
		ID:          uuid.New().String(),
		Category:    category,
		Title:       item.Title,
		URL:         item.CanonicalURL,
		Summary:     item.SummaryText,
		SourceType:  sourceType,
		PublishedAt: item.PublishedAt,
		FetchedAt:   fetchedAt,
	}
}

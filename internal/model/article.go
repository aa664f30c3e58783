// Package model はドメインモデルを定義する。
package model

import "time"

// 記事の取得元種別。
const (
	// SourceTypeRSS はRSS/Atomフィードから取り込んだ記事を表す。
	SourceTypeRSS = "rss"
	// SourceTypeAI はテキスト生成で補充した記事を表す。
	SourceTypeAI = "ai"
)

// UncategorizedCategory はカテゴリ未設定の記事をまとめるカテゴリ名。
const UncategorizedCategory = "Uncategorized"

// FeedSource はカテゴリに属するフィードの取得先を表す。
// プロセス起動時に読み込まれ、実行中は変更されない。
type FeedSource struct {
	Category string
	Endpoint string
	// PerSourceLimit はこのソースから採用する先頭記事数。0の場合は選定時のデフォルト（PER_SOURCE_LIMIT）を使用する。
	PerSourceLimit int
}

// NormalizedItem はRSS/Atomの方言差を吸収した正規化済みの記事データを表す。
// CanonicalURLは空にならず、重複排除とUPSERTのキーとして使用される。
type NormalizedItem struct {
	Title        string
	CanonicalURL string
	SummaryText  string // プレーンテキスト、空白は1つに圧縮済み
	PublishedAt  time.Time
	// DateEstimated は公開日時がフィードになく取り込み時刻で代用したことを示す。
	DateEstimated bool
	// FeedPosition は除外前のフィード内での1始まりの位置。0は不明。
	// ソース上限はキーのない記事も含めたこの位置で判定する。
	FeedPosition int
}

// Article は永続化された記事を表す。URLで一意。
type Article struct {
	ID          string
	Category    string
	Title       string
	URL         string
	Summary     string
	SourceType  string
	PublishedAt time.Time
	FetchedAt   time.Time
}

// ArticleQuery は記事一覧取得の条件。
// ゼロ値のフィールドは条件に含めない。
type ArticleQuery struct {
	Category   string
	Since      time.Time
	OrderBy    string // published_at または fetched_at
	Descending bool
	Limit      int
}

// 記事一覧の並び替えキー。
const (
	OrderByPublishedAt = "published_at"
	OrderByFetchedAt   = "fetched_at"
)

// Category はカテゴリの表示用メタデータ。
type Category struct {
	Key         string
	Name        string
	Description string
}

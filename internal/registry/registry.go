// Package registry はカテゴリとフィード取得先の静的な対応表を提供する。
// プロセス起動時に1回読み込まれ、実行中は変更されない。
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/fitpress/internal/model"
)

//go:embed feeds.yaml
var embeddedFeeds []byte

type fileCategory struct {
	Key            string   `yaml:"key"`
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	PerSourceLimit int      `yaml:"per_source_limit"`
	Feeds          []string `yaml:"feeds"`
}

type file struct {
	PerSourceLimit int            `yaml:"per_source_limit"`
	Categories     []fileCategory `yaml:"categories"`
}

// Registry はカテゴリ → フィード取得先一覧の対応表。
type Registry struct {
	order      []string
	categories map[string]model.Category
	sources    map[string][]model.FeedSource
}

// Default は埋め込みのfeeds.yamlからRegistryを構築する。
func Default() (*Registry, error) {
	return Parse(embeddedFeeds)
}

// Load はpathが空の場合は埋め込みのレジストリを、そうでなければ指定ファイルを読み込む。
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed registry %s: %w", path, err)
	}
	return Parse(data)
}

// Parse はYAMLからRegistryを構築する。
// カテゴリ名の空・重複、フィードURLの空、フィードを持たないカテゴリはエラーとする。
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidRegistry, err)
	}

	// 0のままのソースはPER_SOURCE_LIMITに従う
	defaultLimit := f.PerSourceLimit

	r := &Registry{
		categories: make(map[string]model.Category, len(f.Categories)),
		sources:    make(map[string][]model.FeedSource, len(f.Categories)),
	}

	for i, c := range f.Categories {
		key := strings.TrimSpace(c.Key)
		if key == "" {
			return nil, fmt.Errorf("%w: category #%d has no key", model.ErrInvalidRegistry, i+1)
		}
		if _, dup := r.categories[key]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", model.ErrInvalidRegistry, key)
		}
		if len(c.Feeds) == 0 {
			return nil, fmt.Errorf("%w: category %q has no feeds", model.ErrInvalidRegistry, key)
		}

		limit := c.PerSourceLimit
		if limit <= 0 {
			limit = defaultLimit
		}

		sources := make([]model.FeedSource, 0, len(c.Feeds))
		for _, endpoint := range c.Feeds {
			endpoint = strings.TrimSpace(endpoint)
			if endpoint == "" {
				return nil, fmt.Errorf("%w: category %q has an empty feed URL", model.ErrInvalidRegistry, key)
			}
			sources = append(sources, model.FeedSource{
				Category:       key,
				Endpoint:       endpoint,
				PerSourceLimit: limit,
			})
		}

		name := c.Name
		if name == "" {
			name = key
		}
		r.order = append(r.order, key)
		r.categories[key] = model.Category{Key: key, Name: name, Description: c.Description}
		r.sources[key] = sources
	}

	if len(r.order) == 0 {
		return nil, fmt.Errorf("%w: no categories", model.ErrInvalidRegistry)
	}

	return r, nil
}

// Categories はカテゴリ名をファイル記載順で返す。
func (r *Registry) Categories() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Sources は指定カテゴリのフィード取得先を返す。未知のカテゴリにはnilを返す。
func (r *Registry) Sources(category string) []model.FeedSource {
	src := r.sources[category]
	out := make([]model.FeedSource, len(src))
	copy(out, src)
	return out
}

// Category は表示用メタデータを返す。未知のカテゴリはキーをそのまま名前とする。
func (r *Registry) Category(key string) model.Category {
	if c, ok := r.categories[key]; ok {
		return c
	}
	return model.Category{Key: key, Name: key}
}

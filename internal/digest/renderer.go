package digest

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/hitoshi/fitpress/internal/model"
)

//go:embed templates/digest.html.tmpl
var templatesFS embed.FS

var compiled = template.Must(template.ParseFS(templatesFS, "templates/digest.html.tmpl"))

// CategoryCatalog はカテゴリの表示用メタデータを引くインターフェース。
type CategoryCatalog interface {
	Category(key string) model.Category
}

// RendererConfig はメール描画の設定。
type RendererConfig struct {
	Subject string
	SiteURL string
}

// Renderer はDigestPayloadをHTMLメールに描画する。
type Renderer struct {
	catalog CategoryCatalog
	cfg     RendererConfig
}

type articleView struct {
	Title   string
	Summary string
	Link    string // http(s)以外のURLは空にしてリンクを出さない
}

type sectionView struct {
	Title       string
	Description string
	Articles    []articleView
}

type pageView struct {
	Name     string
	Sections []sectionView
	SiteURL  string
	SiteHost string
}

// NewRenderer はRendererの新しいインスタンスを生成する。
func NewRenderer(catalog CategoryCatalog, cfg RendererConfig) *Renderer {
	return &Renderer{catalog: catalog, cfg: cfg}
}

// Render はダイジェストを宛先付きのメールに描画する。
func (r *Renderer) Render(p model.DigestPayload) (model.Email, error) {
	view := pageView{
		Name:     model.Subscriber{Email: p.Recipient}.DisplayName(),
		SiteURL:  r.cfg.SiteURL,
		SiteHost: siteHost(r.cfg.SiteURL),
		Sections: make([]sectionView, 0, len(p.Sections)),
	}

	for _, s := range p.Sections {
		meta := r.catalog.Category(s.Category)
		sv := sectionView{
			Title:       meta.Name,
			Description: meta.Description,
			Articles:    make([]articleView, 0, len(s.Articles)),
		}
		if sv.Title == "" {
			sv.Title = s.Category
		}
		for _, a := range s.Articles {
			sv.Articles = append(sv.Articles, articleView{
				Title:   a.Title,
				Summary: a.Summary,
				Link:    webLink(a.URL),
			})
		}
		view.Sections = append(view.Sections, sv)
	}

	var buf bytes.Buffer
	if err := compiled.Execute(&buf, view); err != nil {
		return model.Email{}, fmt.Errorf("ダイジェストの描画に失敗しました: %w", err)
	}

	return model.Email{
		To:      p.Recipient,
		Subject: r.cfg.Subject,
		HTML:    buf.String(),
	}, nil
}

// webLink はhttp(s)のURLのみを返す。
func webLink(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return raw
}

// siteHost はフッター表示用にスキームを除いたホスト名を返す。
func siteHost(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return strings.TrimPrefix(strings.TrimPrefix(siteURL, "https://"), "http://")
	}
	return u.Host
}

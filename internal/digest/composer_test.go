package digest

import (
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/fitpress/internal/model"
)

// articlesDesc はカテゴリごとにn件ずつ、公開日時の降順に並んだ記事を作る。
func articlesDesc(perCategory map[string]int, order []string) []model.Article {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var out []model.Article
	i := 0
	for round := 0; ; round++ {
		added := false
		for _, cat := range order {
			if round >= perCategory[cat] {
				continue
			}
			out = append(out, model.Article{
				ID:          fmt.Sprintf("%s-%d", cat, round),
				Category:    cat,
				Title:       fmt.Sprintf("%s #%d", cat, round),
				URL:         fmt.Sprintf("https://example.com/%s/%d", cat, round),
				PublishedAt: base.Add(-time.Duration(i) * time.Hour),
			})
			i++
			added = true
		}
		if !added {
			return out
		}
	}
}

func TestCompose_ExplicitInterest_UpToThreeInRecencyOrder(t *testing.T) {
	articles := articlesDesc(map[string]int{"Running": 5, "Yoga": 5}, []string{"Running", "Yoga"})
	c := NewComposer()

	p, ok := c.Compose(articles, model.Subscriber{Email: "a@example.com", Interests: []string{"Running"}})

	if !ok {
		t.Fatal("expected ok")
	}
	if len(p.Sections) != 1 || p.Sections[0].Category != "Running" {
		t.Fatalf("sections = %+v, want only Running", p.Sections)
	}
	got := p.Sections[0].Articles
	if len(got) != 3 {
		t.Fatalf("articles = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].PublishedAt.After(got[i-1].PublishedAt) {
			t.Errorf("articles not in recency order at %d", i)
		}
	}
	if got[0].ID != "Running-0" {
		t.Errorf("first article = %s, want the most recent Running-0", got[0].ID)
	}
}

func TestCompose_NoInterests_EveryCategoryUpToTwo(t *testing.T) {
	order := []string{"Running", "Yoga", "CrossFit"}
	articles := articlesDesc(map[string]int{"Running": 4, "Yoga": 1, "CrossFit": 3}, order)
	c := NewComposer()

	p, ok := c.Compose(articles, model.Subscriber{Email: "b@example.com"})

	if !ok {
		t.Fatal("expected ok")
	}
	if len(p.Sections) != 3 {
		t.Fatalf("sections = %d, want 3", len(p.Sections))
	}
	want := map[string]int{"Running": 2, "Yoga": 1, "CrossFit": 2}
	for i, s := range p.Sections {
		if s.Category != order[i] {
			t.Errorf("section[%d] = %s, want %s (first appearance order)", i, s.Category, order[i])
		}
		if len(s.Articles) != want[s.Category] {
			t.Errorf("%s articles = %d, want %d", s.Category, len(s.Articles), want[s.Category])
		}
	}
}

func TestCompose_AllSelectedEmpty_Skipped(t *testing.T) {
	articles := articlesDesc(map[string]int{"Running": 2}, []string{"Running"})
	c := NewComposer()

	_, ok := c.Compose(articles, model.Subscriber{Email: "c@example.com", Interests: []string{"Pilates", "Yoga"}})
	if ok {
		t.Error("subscriber whose interests have no articles should be skipped")
	}
}

func TestCompose_NoArticles_Skipped(t *testing.T) {
	c := NewComposer()
	if _, ok := c.Compose(nil, model.Subscriber{Email: "d@example.com"}); ok {
		t.Error("no articles should produce no digest")
	}
}

func TestCompose_EmptyInterestCategoryOmitted(t *testing.T) {
	articles := articlesDesc(map[string]int{"Running": 2}, []string{"Running"})
	c := NewComposer()

	p, ok := c.Compose(articles, model.Subscriber{Email: "e@example.com", Interests: []string{"Yoga", "Running"}})

	if !ok {
		t.Fatal("expected ok")
	}
	if len(p.Sections) != 1 || p.Sections[0].Category != "Running" {
		t.Errorf("sections = %+v, want only Running", p.Sections)
	}
}

func TestCompose_MissingCategoryGroupedAsUncategorized(t *testing.T) {
	articles := []model.Article{{ID: "x", Title: "No category", URL: "https://example.com/x"}}
	c := NewComposer()

	p, ok := c.Compose(articles, model.Subscriber{Email: "f@example.com"})

	if !ok || p.Sections[0].Category != model.UncategorizedCategory {
		t.Errorf("sections = %+v, want Uncategorized", p.Sections)
	}
}

func TestCompose_DuplicateInterestsProduceOneSection(t *testing.T) {
	articles := articlesDesc(map[string]int{"Running": 3}, []string{"Running"})
	c := NewComposer()

	p, _ := c.Compose(articles, model.Subscriber{Email: "g@example.com", Interests: []string{"Running", "Running"}})

	if len(p.Sections) != 1 {
		t.Errorf("sections = %d, want 1", len(p.Sections))
	}
}

func TestCompose_DoesNotAliasInput(t *testing.T) {
	articles := articlesDesc(map[string]int{"Running": 3}, []string{"Running"})
	c := NewComposer()

	p, _ := c.Compose(articles, model.Subscriber{Email: "h@example.com", Interests: []string{"Running"}})
	p.Sections[0].Articles[0].Title = "mutated"

	if articles[0].Title == "mutated" {
		t.Error("payload must not share backing storage with the input")
	}
}

func TestComposeAll_InputOrderAndSkips(t *testing.T) {
	articles := articlesDesc(map[string]int{"Running": 2, "Yoga": 2}, []string{"Running", "Yoga"})
	subs := []model.Subscriber{
		{Email: "1@example.com", Interests: []string{"Yoga"}},
		{Email: "2@example.com", Interests: []string{"Pilates"}},
		{Email: "3@example.com"},
	}
	c := NewComposer()

	payloads := c.ComposeAll(articles, subs)

	if len(payloads) != 2 {
		t.Fatalf("payloads = %d, want 2", len(payloads))
	}
	if payloads[0].Recipient != "1@example.com" || payloads[1].Recipient != "3@example.com" {
		t.Errorf("recipients = %s, %s", payloads[0].Recipient, payloads[1].Recipient)
	}
	if payloads[1].ArticleCount() != 4 {
		t.Errorf("no-interest article count = %d, want 4", payloads[1].ArticleCount())
	}
}

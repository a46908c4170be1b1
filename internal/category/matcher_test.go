package category

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/flyspark015/nexacat/internal/domain"
	"go.uber.org/zap"
)

type staticSource struct {
	categories []domain.Category
	err        error
	panics     bool
}

func (s staticSource) ListCategories(context.Context) ([]domain.Category, error) {
	if s.panics {
		panic("corrupt category document")
	}
	return s.categories, s.err
}

var catalog = []domain.Category{
	{ID: "c1", Name: "Electronics"},
	{ID: "c2", Name: "Kitchen Appliances"},
	{ID: "c3", Name: "Furniture"},
}

func TestSuggestEmptyCatalog(t *testing.T) {
	m := NewMatcher(staticSource{}, zap.NewNop())
	got := m.Suggest(context.Background(), Summary{Title: "Oak Chair", SuggestedCategory: "Chairs"}, 0.7)

	if !got.ShouldCreate || got.Confidence != 0.5 || got.SuggestedName != "Chairs" {
		t.Errorf("unexpected suggestion %+v", got)
	}
	if got.Alternatives == nil || len(got.Alternatives) != 0 {
		t.Errorf("alternatives = %#v, want empty slice", got.Alternatives)
	}
}

func TestSuggestDegradesOnErrors(t *testing.T) {
	sources := map[string]Source{
		"load error": staticSource{err: errors.New("connection refused")},
		"panic":      staticSource{panics: true},
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			got := NewMatcher(src, zap.NewNop()).Suggest(context.Background(), Summary{Title: "Kettle"}, 0.7)
			if got.SuggestedName != "General Products" || got.Confidence != 0.3 || !got.ShouldCreate {
				t.Errorf("unexpected fallback %+v", got)
			}
		})
	}
}

func TestSuggestReusesStrongMatch(t *testing.T) {
	m := NewMatcher(staticSource{categories: catalog}, zap.NewNop())
	got := m.Suggest(context.Background(), Summary{
		Title:             "Kettle",
		Tags:              []string{"kitchen", "appliances"},
		SuggestedCategory: "Kettles",
	}, 0.7)

	if got.ShouldCreate || got.CategoryID != "c2" || got.SuggestedName != "Kitchen Appliances" {
		t.Fatalf("unexpected suggestion %+v", got)
	}
	// base 2/3 plus boost (2/3)*0.3
	if want := 2.0/3 + 0.2; math.Abs(got.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", got.Confidence, want)
	}
	if len(got.Alternatives) != 2 {
		t.Errorf("alternatives = %+v", got.Alternatives)
	}
}

func TestSuggestCreatesBelowThreshold(t *testing.T) {
	m := NewMatcher(staticSource{categories: catalog}, zap.NewNop())

	got := m.Suggest(context.Background(), Summary{Title: "Oak Chair", SuggestedCategory: "Chairs"}, 0.7)
	if !got.ShouldCreate || got.SuggestedName != "Chairs" || got.CategoryID != "" {
		t.Fatalf("unexpected suggestion %+v", got)
	}
	if len(got.Alternatives) != 1 {
		t.Errorf("expected the best existing category as an alternative, got %+v", got.Alternatives)
	}

	got = m.Suggest(context.Background(), Summary{Title: "Kettle", Tags: []string{"kitchen", "appliances"}}, 0.95)
	if !got.ShouldCreate || got.SuggestedName != "General Products" {
		t.Fatalf("unexpected suggestion %+v", got)
	}
	if len(got.Alternatives) != 1 || got.Alternatives[0].ID != "c2" {
		t.Errorf("alternatives = %+v", got.Alternatives)
	}
	if !strings.Contains(got.Reasoning, "Kitchen Appliances") {
		t.Errorf("reasoning = %q", got.Reasoning)
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords(Summary{
		Title:          "The Big Red TV Stand",
		Tags:           []string{"Living Room", "tv"},
		Specifications: map[string]string{"Weight": "500", "Material": "Solid oak"},
	})
	want := "the,big,red,stand,living room,material,solid,oak,weight"
	if strings.Join(got, ",") != want {
		t.Errorf("Keywords = %v, want %s", got, want)
	}
}

func TestScoreBounds(t *testing.T) {
	keywordSets := [][]string{
		nil,
		{"kitchen"},
		{"kitchen", "kitchenware", "appliances", "app"},
		{"a", "b"},
		{"electronics", "electronic", "electro", "tron"},
	}
	names := []string{"", "Kitchen", "Kitchen Appliances", "Electronics", "Home & Garden"}
	for _, kw := range keywordSets {
		for _, name := range names {
			s := Score(kw, name)
			if s < 0 || s > 1 {
				t.Errorf("Score(%v, %q) = %v out of range", kw, name, s)
			}
		}
	}
	if s := Score([]string{"electronics", "electronic", "electro", "tron"}, "Electronics"); s != 1 {
		t.Errorf("Score should clamp at 1, got %v", s)
	}
}

// Package category matches an extracted product against the existing
// catalog categories and decides whether to reuse one or create a new one.
package category

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/flyspark015/nexacat/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultThreshold = 0.7
	fallbackName     = "General Products"
	maxAlternatives  = 3
)

// Source lists the existing categories.
type Source interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// Summary is the part of an extraction result the matcher looks at.
type Summary struct {
	Title             string
	Tags              []string
	Specifications    map[string]string
	SuggestedCategory string
}

type Matcher struct {
	source Source
	logger *zap.Logger
}

func NewMatcher(source Source, logger *zap.Logger) *Matcher {
	return &Matcher{source: source, logger: logger}
}

// Suggest never fails: load errors and panics degrade to a low confidence
// suggestion to create a generic category.
func (m *Matcher) Suggest(ctx context.Context, s Summary, threshold float64) (out domain.CategorySuggestion) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("category matching panicked", zap.Any("panic", r))
			out = fallback(fmt.Sprint(r))
		}
	}()

	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	categories, err := m.source.ListCategories(ctx)
	if err != nil {
		m.logger.Warn("failed to load categories", zap.Error(err))
		return fallback(err.Error())
	}
	return suggest(categories, s, threshold)
}

func fallback(reason string) domain.CategorySuggestion {
	return domain.CategorySuggestion{
		SuggestedName: fallbackName,
		Confidence:    0.3,
		ShouldCreate:  true,
		Reasoning:     "Category matching failed (" + reason + "); review the category manually.",
		Alternatives:  []domain.CategoryAlternative{},
	}
}

func suggest(categories []domain.Category, s Summary, threshold float64) domain.CategorySuggestion {
	guess := strings.TrimSpace(s.SuggestedCategory)
	if guess == "" {
		guess = fallbackName
	}
	if len(categories) == 0 {
		return domain.CategorySuggestion{
			SuggestedName: guess,
			Confidence:    0.5,
			ShouldCreate:  true,
			Reasoning:     "No categories exist yet; suggesting the extracted category.",
			Alternatives:  []domain.CategoryAlternative{},
		}
	}

	keywords := Keywords(s)
	ranked := make([]domain.CategoryAlternative, 0, len(categories))
	for _, c := range categories {
		ranked = append(ranked, domain.CategoryAlternative{ID: c.ID, Name: c.Name, Score: Score(keywords, c.Name)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	best := ranked[0]
	if best.Score >= threshold {
		return domain.CategorySuggestion{
			SuggestedName: best.Name,
			CategoryID:    best.ID,
			Confidence:    best.Score,
			ShouldCreate:  false,
			Reasoning:     fmt.Sprintf("Matched existing category %q with score %.2f.", best.Name, best.Score),
			Alternatives:  limit(ranked[1:], maxAlternatives),
		}
	}

	alts := []domain.CategoryAlternative{}
	for _, r := range ranked {
		if r.Score > 0 && len(alts) < maxAlternatives {
			alts = append(alts, r)
		}
	}
	if len(alts) == 0 {
		alts = append(alts, best)
	}
	return domain.CategorySuggestion{
		SuggestedName: guess,
		Confidence:    0.6,
		ShouldCreate:  true,
		Reasoning: fmt.Sprintf("Best existing match %q scored %.2f, below the %.2f threshold; suggesting a new category.",
			best.Name, best.Score, threshold),
		Alternatives: alts,
	}
}

func limit(alts []domain.CategoryAlternative, n int) []domain.CategoryAlternative {
	if len(alts) > n {
		alts = alts[:n]
	}
	return append([]domain.CategoryAlternative{}, alts...)
}

// Keywords builds the product keyword set: title words longer than two
// characters, whole tags, and words from specification keys and values.
// Numeric-only tokens are dropped.
func Keywords(s Summary) []string {
	seen := map[string]bool{}
	var out []string
	add := func(w string) {
		w = strings.ToLower(strings.TrimSpace(w))
		if len(w) <= 2 || numeric(w) || seen[w] {
			return
		}
		seen[w] = true
		out = append(out, w)
	}
	for _, w := range words(s.Title) {
		add(w)
	}
	for _, t := range s.Tags {
		add(t)
	}
	keys := make([]string, 0, len(s.Specifications))
	for k := range s.Specifications {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, w := range words(k + " " + s.Specifications[k]) {
			add(w)
		}
	}
	return out
}

// Score rates how well keywords describe the category name, in [0, 1].
// A match is any keyword/name-word pair where one contains the other; the
// boost counts keywords found verbatim in the name.
func Score(keywords []string, name string) float64 {
	nameWords := words(strings.ToLower(name))
	if len(keywords) == 0 || len(nameWords) == 0 {
		return 0
	}
	lowerName := strings.ToLower(name)

	matches, exact := 0, 0
	for _, kw := range keywords {
		for _, cw := range nameWords {
			if strings.Contains(kw, cw) || strings.Contains(cw, kw) {
				matches++
			}
		}
		if strings.Contains(lowerName, kw) {
			exact++
		}
	}

	base := float64(matches) / float64(max(len(keywords), len(nameWords)))
	boost := float64(exact) / float64(len(keywords)) * 0.3
	return min(base+boost, 1.0)
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func numeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return false
		}
	}
	return true
}

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/flyspark015/nexacat/pkg/utils"
)

const defaultCategory = "General"

var errNotJSON = errors.New("model response is not a JSON object")

// flexString accepts strings, numbers and booleans; anything else decodes as empty.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	*f = flexString(scalar(v))
	return nil
}

// flexList accepts an array of scalars or {url}/{name} objects, or a single string.
type flexList []string

func (f *flexList) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			*f = flexList{s}
		}
	case []any:
		out := make(flexList, 0, len(t))
		for _, item := range t {
			s := scalar(item)
			if m, ok := item.(map[string]any); ok {
				s = firstScalar(m, "url", "src", "name", "value")
			}
			if s != "" {
				out = append(out, s)
			}
		}
		*f = out
	}
	return nil
}

// flexMap accepts an object of scalars or an array of {name|key|label, value} pairs.
type flexMap map[string]string

func (f *flexMap) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	out := flexMap{}
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			out[k] = scalar(val)
		}
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out[firstScalar(m, "name", "key", "label")] = firstScalar(m, "value", "val")
			}
		}
	}
	*f = out
	return nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := scalar(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func firstScalar(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalar(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// rawProduct is the model's reply as sent, including common alternate keys.
type rawProduct struct {
	Title             flexString `json:"title"`
	Name              flexString `json:"name"`
	Description       flexString `json:"description"`
	ShortDescription  flexString `json:"shortDescription"`
	Specifications    flexMap    `json:"specifications"`
	Specs             flexMap    `json:"specs"`
	Tags              flexList   `json:"tags"`
	SuggestedCategory flexString `json:"suggestedCategory"`
	Category          flexString `json:"category"`
	ImageURLs         flexList   `json:"imageUrls"`
	Images            flexList   `json:"images"`
	VideoURL          flexString `json:"videoUrl"`
	StockStatus       flexString `json:"stockStatus"`
	Price             flexString `json:"price"`
	Currency          flexString `json:"currency"`
}

// parseProduct decodes and validates a model reply. Only a reply that is
// not a JSON object at all is an error; missing fields get defaults.
func parseProduct(content string) (*domain.ProductExtractionResult, error) {
	body := stripFences(content)
	if body == "" {
		return nil, errNotJSON
	}
	var raw rawProduct
	if err := decodeObject(body, &raw); err != nil {
		i, j := strings.Index(body, "{"), strings.LastIndex(body, "}")
		if i < 0 || j <= i || decodeObject(body[i:j+1], &raw) != nil {
			return nil, fmt.Errorf("%w: %v", errNotJSON, err)
		}
	}
	return normalize(raw), nil
}

func decodeObject(s string, raw *rawProduct) error {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return errNotJSON
	}
	return json.NewDecoder(strings.NewReader(s)).Decode(raw)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func normalize(raw rawProduct) *domain.ProductExtractionResult {
	res := &domain.ProductExtractionResult{
		Title:             firstNonEmpty(string(raw.Title), string(raw.Name)),
		Description:       toMarkdown(string(raw.Description)),
		ShortDescription:  string(raw.ShortDescription),
		Specifications:    map[string]string{},
		Tags:              dedupeTags(raw.Tags),
		SuggestedCategory: firstNonEmpty(string(raw.SuggestedCategory), string(raw.Category), defaultCategory),
		ImageURLs:         []string{},
		StockStatus:       normalizeStock(string(raw.StockStatus)),
		PriceText:         string(raw.Price),
		Currency:          strings.ToUpper(string(raw.Currency)),
		Warnings:          []string{},
	}

	for _, specs := range []flexMap{raw.Specs, raw.Specifications} {
		for k, v := range specs {
			k = strings.TrimSpace(k)
			if k != "" && v != "" {
				res.Specifications[k] = v
			}
		}
	}

	images := raw.ImageURLs
	if len(images) == 0 {
		images = raw.Images
	}
	seen := map[string]bool{}
	for _, u := range images {
		if !seen[u] {
			seen[u] = true
			res.ImageURLs = append(res.ImageURLs, u)
		}
	}

	if v := string(raw.VideoURL); utils.IsAbsoluteHTTP(v) {
		res.VideoURL = &v
	}
	return res
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// toMarkdown converts HTML descriptions to Markdown and leaves plain text alone.
func toMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "<") || !strings.Contains(s, ">") {
		return s
	}
	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(md)
}

// dedupeTags lowercases tags, splits comma lists and drops duplicates.
// The result is sorted and never nil.
func dedupeTags(tags []string) []string {
	set := map[string]bool{}
	for _, t := range tags {
		for _, part := range strings.Split(t, ",") {
			if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
				set[p] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func normalizeStock(s string) domain.StockStatus {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(s))
	switch {
	case s == "":
		return domain.InStock
	case strings.Contains(s, "pre order"), strings.Contains(s, "preorder"), strings.Contains(s, "backorder"):
		return domain.Preorder
	case s == "out", strings.Contains(s, "out of stock"), strings.Contains(s, "outofstock"),
		strings.Contains(s, "sold out"), strings.Contains(s, "unavailable"), strings.Contains(s, "discontinued"):
		return domain.OutOfStock
	default:
		return domain.InStock
	}
}

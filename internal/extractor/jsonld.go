package extractor

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// findProduct returns the first JSON-LD object typed as a Product. Blocks that
// fail to parse are skipped.
func findProduct(doc *goquery.Document) map[string]any {
	var product map[string]any
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &v); err != nil {
			return true
		}
		product = searchProduct(v)
		return product == nil
	})
	return product
}

func searchProduct(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if p := searchProduct(item); p != nil {
				return p
			}
		}
	case map[string]any:
		if isProduct(t["@type"]) {
			return t
		}
		for _, key := range []string{"@graph", "mainEntity"} {
			if nested, ok := t[key]; ok {
				if p := searchProduct(nested); p != nil {
					return p
				}
			}
		}
	}
	return nil
}

func isProduct(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.Contains(v, "Product")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.Contains(s, "Product") {
				return true
			}
		}
	}
	return false
}

// text renders a scalar JSON-LD value as a string.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		return text(t["name"])
	case []any:
		if len(t) > 0 {
			return text(t[0])
		}
	}
	return ""
}

func firstOffer(product map[string]any) map[string]any {
	switch o := product["offers"].(type) {
	case map[string]any:
		return o
	case []any:
		for _, item := range o {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

// imageRefs lists the image URLs of a JSON-LD image field, which may be a
// string, an ImageObject or an array of either.
func imageRefs(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case map[string]any:
		for _, key := range []string{"url", "contentUrl"} {
			if s, ok := t[key].(string); ok && s != "" {
				return []string{s}
			}
		}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, imageRefs(item)...)
		}
		return out
	}
	return nil
}

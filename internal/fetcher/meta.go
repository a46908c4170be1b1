package fetcher

import (
	"html"
	"regexp"
	"strings"

	"github.com/flyspark015/nexacat/internal/domain"
)

// These run on the raw response so basic metadata survives even if the
// full parse downstream fails.
var (
	titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

	descriptionRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<meta[^>]+name\s*=\s*["']description["'][^>]*content\s*=\s*["']([^"']*)["']`),
		regexp.MustCompile(`(?is)<meta[^>]+content\s*=\s*["']([^"']*)["'][^>]*name\s*=\s*["']description["']`),
	}
	ogImageRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<meta[^>]+property\s*=\s*["']og:image["'][^>]*content\s*=\s*["']([^"']*)["']`),
		regexp.MustCompile(`(?is)<meta[^>]+content\s*=\s*["']([^"']*)["'][^>]*property\s*=\s*["']og:image["']`),
	}
	canonicalRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<link[^>]+rel\s*=\s*["']canonical["'][^>]*href\s*=\s*["']([^"']*)["']`),
		regexp.MustCompile(`(?is)<link[^>]+href\s*=\s*["']([^"']*)["'][^>]*rel\s*=\s*["']canonical["']`),
	}
)

// ExtractMeta pulls title, description, og:image and canonical URL from raw HTML.
func ExtractMeta(raw string) domain.PageMeta {
	var m domain.PageMeta
	if match := titleRe.FindStringSubmatch(raw); match != nil {
		m.Title = clean(match[1])
	}
	m.Description = firstMatch(raw, descriptionRes)
	m.OGImage = firstMatch(raw, ogImageRes)
	m.CanonicalURL = firstMatch(raw, canonicalRes)
	return m
}

func firstMatch(raw string, res []*regexp.Regexp) string {
	for _, re := range res {
		if match := re.FindStringSubmatch(raw); match != nil {
			if v := clean(match[1]); v != "" {
				return v
			}
		}
	}
	return ""
}

func clean(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

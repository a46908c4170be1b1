package extractor

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	galleryRe = regexp.MustCompile(`gallery|slider|carousel|swiper|slick|product[-_]?(image|img|photo|media|detail|main)|pdp|zoom`)

	// deniedRe matches markup that is never a product photo. "review" must
	// not match "preview", which only lowers quality.
	deniedRe = regexp.MustCompile(`logo|banner|tracking|related|(^|[^p])review|social|payment|footer|header|sprite`)

	highQualityRe = regexp.MustCompile(`original|large|hd|zoom`)
	lowQualityRe  = regexp.MustCompile(`thumb|small|preview|icon`)

	dimensionRe = regexp.MustCompile(`(\d{1,4})x(\d{1,4})`)
)

var (
	positiveContext = []string{"product", "gallery", "main", "primary", "hero", "detail", "zoom", "pdp", "featured"}
	negativeContext = []string{"recommend", "similar", "also-", "cross-sell", "crosssell", "upsell", "sidebar", "widget", "promo", "sponsor", "cart"}
	// Matched as whole tokens so "ad" does not hit "header" or "badge".
	deniedTokens = []string{"ad", "ads", "nav"}
)

func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func hasToken(s string, words ...string) bool {
	for _, t := range tokens(strings.ToLower(s)) {
		for _, w := range words {
			if t == w {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// denied reports whether an image with this source, alt and context is
// site chrome rather than product imagery.
func denied(src, alt, context string, width, height int) bool {
	if u, err := url.Parse(src); err == nil {
		src = u.Path
	}
	src = strings.ToLower(src)
	alt = strings.ToLower(alt)
	haystack := src + " " + context + " " + alt
	if deniedRe.MatchString(haystack) || hasToken(haystack, deniedTokens...) {
		return true
	}
	if (width > 0 && width < 100) || (height > 0 && height < 100) {
		return true
	}
	name := src
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	for _, m := range dimensionRe.FindAllStringSubmatch(name, -1) {
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		if w < 100 || h < 100 {
			return true
		}
	}
	if strings.HasSuffix(name, ".svg") && !strings.Contains(alt, "product") {
		return true
	}
	return false
}

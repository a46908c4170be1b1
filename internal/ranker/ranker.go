// Package ranker scores image elements of a page to separate the main
// product photos from thumbnails, site chrome and unrelated products.
package ranker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flyspark015/nexacat/internal/htmldoc"
)

type Type string

const (
	MainProduct Type = "main-product"
	Gallery     Type = "gallery"
	Thumbnail   Type = "thumbnail"
	UIElement   Type = "ui-element"
	Unknown     Type = "unknown"
)

// Result is the score of one image with the reasons behind it.
type Result struct {
	Score     int      `json:"score"`
	Type      Type     `json:"type"`
	Reasoning []string `json:"reasoning"`
}

// Scored pairs an element with its result.
type Scored struct {
	Element htmldoc.ImageElement `json:"element"`
	Result
}

var (
	galleryWords   = []string{"gallery", "slider", "carousel", "swiper", "product-image", "product-photo", "product-media", "pdp", "main-image"}
	zoomWords      = []string{"zoom", "enlarge", "detail"}
	altWords       = []string{"product", "item", "main", "primary", "featured"}
	thumbWords     = []string{"thumb", "thumbnail", "mini", "swatch"}
	uiWords        = []string{"logo", "icon", "badge", "nav", "banner", "footer", "header"}
	relatedWords   = []string{"related", "recommend", "cross-sell", "crosssell", "upsell", "also-bought", "similar"}
	advertWords    = []string{"advert", "sponsor", "ad", "ads", "doubleclick"}
	shortWordLimit = 3
)

// matches reports whether any word occurs in s. Words of three letters or
// fewer must match a whole token.
func matches(s string, words []string) (string, bool) {
	toks := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, w := range words {
		if len(w) > shortWordLimit {
			if strings.Contains(s, w) {
				return w, true
			}
			continue
		}
		for _, t := range toks {
			if t == w {
				return w, true
			}
		}
	}
	return "", false
}

// Score rates one image. The score is never negative.
func Score(el htmldoc.ImageElement) Result {
	var (
		score  int
		forced Type
		reason []string
	)
	add := func(points int, why string) {
		score += points
		reason = append(reason, fmt.Sprintf("%+d %s", points, why))
	}

	context := strings.ToLower(el.Context)
	src := strings.ToLower(el.Src)
	haystack := context + " " + src

	if el.InProductSchema {
		add(50, "inside schema.org Product markup")
		forced = MainProduct
	}
	if w, ok := matches(context, galleryWords); ok {
		add(40, "gallery container ("+w+")")
	}
	switch {
	case el.NaturalWidth >= 800 && el.NaturalHeight >= 800:
		add(30, "high resolution")
	case el.NaturalWidth >= 400 && el.NaturalHeight >= 400:
		add(15, "medium resolution")
	}
	if w, ok := matches(haystack, zoomWords); ok {
		add(25, "zoomable ("+w+")")
		forced = MainProduct
	}
	if el.Rect != nil {
		if el.Rect.Top < 800 {
			add(10, "above the fold")
		}
		switch area := el.Rect.Width * el.Rect.Height; {
		case area > 200000:
			add(20, "large display area")
		case area > 100000:
			add(10, "medium display area")
		}
	}
	if w, ok := matches(strings.ToLower(el.Alt), altWords); ok {
		add(15, "descriptive alt text ("+w+")")
	}
	if w, ok := matches(haystack, thumbWords); ok {
		add(-30, "thumbnail ("+w+")")
		forced = Thumbnail
	}
	if w, ok := matches(haystack, uiWords); ok {
		add(-50, "interface element ("+w+")")
		forced = UIElement
	}
	if w, ok := matches(haystack, relatedWords); ok {
		add(-35, "related product ("+w+")")
		forced = Thumbnail
	}
	if w, ok := matches(haystack, advertWords); ok {
		add(-60, "advertisement ("+w+")")
		forced = UIElement
	}
	if (el.NaturalWidth > 0 && el.NaturalWidth < 200) || (el.NaturalHeight > 0 && el.NaturalHeight < 200) {
		add(-20, "small natural size")
	}

	typ := forced
	if typ == "" {
		switch {
		case score >= 60:
			typ = MainProduct
		case score >= 30:
			typ = Gallery
		case score < 0:
			typ = UIElement
		default:
			typ = Unknown
		}
	}
	if score < 0 {
		score = 0
	}
	if reason == nil {
		reason = []string{}
	}
	return Result{Score: score, Type: typ, Reasoning: reason}
}

// Rank scores, groups and sorts elements, best first.
func Rank(elements []htmldoc.ImageElement) []Scored {
	scored := make([]Scored, 0, len(elements))
	for _, el := range elements {
		scored = append(scored, Scored{Element: el, Result: Score(el)})
	}
	out := Group(scored)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Package htmldoc exposes a parsed page as a list of image elements with the
// features the ranker scores. Static HTML is parsed with goquery; rendered
// pages come from the browser package and implement the same interface.
package htmldoc

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/flyspark015/nexacat/pkg/utils"
)

// ContextDepth is how many ancestors contribute to an element's context.
const ContextDepth = 5

// Rect is an element's bounding box in CSS pixels relative to the page.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ImageElement is one <img> on a page.
type ImageElement struct {
	Src     string `json:"src"`
	Alt     string `json:"alt"`
	Context string `json:"context"` // lowercase class and id names of the element and its ancestors
	// Natural size in pixels; zero when unknown.
	NaturalWidth    int   `json:"naturalWidth"`
	NaturalHeight   int   `json:"naturalHeight"`
	Rect            *Rect `json:"rect,omitempty"` // nil without a layout engine
	InProductSchema bool  `json:"inProductSchema"`
}

// Document is a parse-once view of a page.
type Document interface {
	HTML() string
	Images() []ImageElement
}

// Static is a Document backed by goquery, without layout information.
type Static struct {
	html   string
	images []ImageElement
}

// Parse builds a Static document. Image sources are resolved against
// baseURL; images without a usable http(s) source are skipped.
func Parse(html, baseURL string) (*Static, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(baseURL)

	d := &Static{html: html}
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := FirstAttr(s, "src", "data-src")
		abs, err := utils.ToAbsoluteURL(base, src)
		if err != nil {
			return
		}
		alt, _ := s.Attr("alt")
		d.images = append(d.images, ImageElement{
			Src:             abs,
			Alt:             strings.TrimSpace(alt),
			Context:         Context(s, ContextDepth),
			NaturalWidth:    Dimension(s, "width"),
			NaturalHeight:   Dimension(s, "height"),
			InProductSchema: InProductSchema(s),
		})
	})
	return d, nil
}

func (d *Static) HTML() string { return d.html }

func (d *Static) Images() []ImageElement { return d.images }

// Context joins the lowercased class and id values of s and up to depth ancestors.
func Context(s *goquery.Selection, depth int) string {
	var parts []string
	add := func(sel *goquery.Selection) {
		if c, ok := sel.Attr("class"); ok && strings.TrimSpace(c) != "" {
			parts = append(parts, strings.TrimSpace(c))
		}
		if id, ok := sel.Attr("id"); ok && strings.TrimSpace(id) != "" {
			parts = append(parts, strings.TrimSpace(id))
		}
	}
	add(s)
	s.Parents().Each(func(i int, p *goquery.Selection) {
		if i < depth {
			add(p)
		}
	})
	return strings.ToLower(strings.Join(parts, " "))
}

// InProductSchema reports whether s sits inside schema.org Product microdata.
func InProductSchema(s *goquery.Selection) bool {
	found := false
	s.Parents().EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if t, ok := p.Attr("itemtype"); ok && strings.Contains(strings.ToLower(t), "schema.org/product") {
			found = true
			return false
		}
		return true
	})
	return found
}

// FirstAttr returns the first non-blank value among names.
func FirstAttr(s *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v, ok := s.Attr(n); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Dimension parses a declared width/height attribute such as "600" or "600px".
func Dimension(s *goquery.Selection, name string) int {
	v, ok := s.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

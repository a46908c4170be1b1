// Package extractor turns raw product page HTML into cleaned markup,
// product metadata and an ordered list of candidate product images.
package extractor

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/flyspark015/nexacat/internal/htmldoc"
	"github.com/flyspark015/nexacat/pkg/utils"
	"golang.org/x/net/html"
)

// MinCleanedLength is the cleaned HTML length below which a page is too
// sparse to extract from.
const MinCleanedLength = 100

// Process extracts everything the prompt needs from a page. It never fails:
// malformed input yields empty fields.
func Process(rawHTML, sourceURL string) *domain.ProcessedHTML {
	out := &domain.ProcessedHTML{ProductImages: []domain.ExtractedImage{}}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return out
	}

	base, _ := url.Parse(sourceURL)
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if abs, err := utils.ToAbsoluteURL(base, href); err == nil {
			base, _ = url.Parse(abs)
		}
	}

	product := findProduct(doc)
	if product != nil {
		if raw, err := json.Marshal(product); err == nil {
			out.StructuredData = raw
		}
	}
	out.Metadata = metadata(doc, product)

	c := &collector{base: base, seen: map[string]bool{}, handled: map[*html.Node]bool{}}
	c.structured(product)
	c.openGraph(doc)
	c.galleries(doc)
	c.plainImages(doc)
	c.sourceSets(doc)
	out.ProductImages = c.result()

	out.CleanedHTML = CleanHTML(rawHTML)
	return out
}

func metadata(doc *goquery.Document, product map[string]any) domain.ProductMeta {
	meta := func(selectors ...string) string {
		for _, sel := range selectors {
			if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	var m domain.ProductMeta
	if product != nil {
		m.Title = text(product["name"])
		m.Description = text(product["description"])
		m.Brand = text(product["brand"])
		if offer := firstOffer(product); offer != nil {
			m.Price = text(offer["price"])
			if m.Price == "" {
				m.Price = text(offer["lowPrice"])
			}
			m.Currency = text(offer["priceCurrency"])
			m.Availability = availability(text(offer["availability"]))
		}
	}

	if m.Title == "" {
		m.Title = strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
	}
	if m.Description == "" {
		m.Description = meta(`meta[name="description"]`)
	}
	if m.Price == "" {
		m.Price = meta(`meta[property="og:price:amount"]`, `meta[property="product:price:amount"]`)
	}
	if m.Currency == "" {
		m.Currency = meta(`meta[property="og:price:currency"]`, `meta[property="product:price:currency"]`)
	}
	if m.Brand == "" {
		m.Brand = meta(`meta[property="product:brand"]`)
	}
	if m.Availability == "" {
		m.Availability = availability(meta(`meta[property="product:availability"]`, `meta[property="og:availability"]`))
	}
	return m
}

// availability strips the schema.org prefix from an ItemAvailability value.
func availability(v string) string {
	for _, prefix := range []string{"https://schema.org/", "http://schema.org/"} {
		v = strings.TrimPrefix(v, prefix)
	}
	return v
}

type collector struct {
	base    *url.URL
	seen    map[string]bool
	handled map[*html.Node]bool
	images  []domain.ExtractedImage
}

// add resolves ref and appends img unless the URL was already collected.
func (c *collector) add(ref string, img domain.ExtractedImage) bool {
	abs, err := utils.ToAbsoluteURL(c.base, ref)
	if err != nil || c.seen[abs] {
		return false
	}
	c.seen[abs] = true
	img.URL = abs
	c.images = append(c.images, img)
	return true
}

func (c *collector) structured(product map[string]any) {
	if product == nil {
		return
	}
	alt := text(product["name"])
	for _, ref := range imageRefs(product["image"]) {
		c.add(ref, domain.ExtractedImage{Alt: alt, Type: domain.ImageMain, Quality: domain.QualityHigh, Source: domain.SourceJSONLD})
	}
}

func (c *collector) openGraph(doc *goquery.Document) {
	doc.Find(`meta[property="og:image"], meta[name="og:image"]`).Each(func(_ int, s *goquery.Selection) {
		ref, _ := s.Attr("content")
		c.add(ref, domain.ExtractedImage{Type: domain.ImageOG, Quality: domain.QualityHigh, Source: domain.SourceOG})
	})
}

func (c *collector) galleries(doc *goquery.Document) {
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		context := htmldoc.Context(s, htmldoc.ContextDepth)
		if !galleryRe.MatchString(context) || containsAny(context, negativeContext) {
			return
		}
		alt, _ := s.Attr("alt")
		src := htmldoc.FirstAttr(s, "src", "data-src")
		if deniedRe.MatchString(context) || hasToken(context, deniedTokens...) || denied(src, alt, "", 0, 0) {
			return
		}
		c.handled[s.Get(0)] = true

		ref := htmldoc.FirstAttr(s, "data-zoom-image", "data-zoom", "data-large-image")
		if ref == "" {
			ref, _ = bestCandidate(htmldoc.FirstAttr(s, "srcset", "data-srcset"))
		}
		if ref == "" {
			ref = htmldoc.FirstAttr(s, "data-src", "src")
		}
		c.add(ref, domain.ExtractedImage{
			Alt:     strings.TrimSpace(alt),
			Width:   htmldoc.Dimension(s, "width"),
			Height:  htmldoc.Dimension(s, "height"),
			Type:    domain.ImageGallery,
			Quality: domain.QualityHigh,
			Source:  domain.SourceImg,
		})
	})
}

func (c *collector) plainImages(doc *goquery.Document) {
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if c.handled[s.Get(0)] {
			return
		}
		src := htmldoc.FirstAttr(s, "src", "data-src")
		if src == "" {
			return
		}
		alt, _ := s.Attr("alt")
		width, height := htmldoc.Dimension(s, "width"), htmldoc.Dimension(s, "height")
		context := htmldoc.Context(s, htmldoc.ContextDepth)
		if denied(src, alt, context, width, height) || s.Closest("nav, header, footer").Length() > 0 {
			return
		}

		typ := domain.ImageUnknown
		if ctx := context + " " + strings.ToLower(alt); containsAny(ctx, positiveContext) && !containsAny(ctx, negativeContext) {
			typ = domain.ImageGallery
		}
		c.add(src, domain.ExtractedImage{
			Alt:     strings.TrimSpace(alt),
			Width:   width,
			Height:  height,
			Type:    typ,
			Quality: assessQuality(src, width, height),
			Source:  domain.SourceImg,
		})
	})
}

type candidate struct {
	ref     string
	quality domain.ImageQuality
}

func (c *collector) sourceSets(doc *goquery.Document) {
	doc.Find("[srcset], [data-image], [data-large-image]").Each(func(_ int, s *goquery.Selection) {
		if c.handled[s.Get(0)] {
			return
		}
		alt, _ := s.Attr("alt")
		context := htmldoc.Context(s, htmldoc.ContextDepth)
		typ := domain.ImageUnknown
		if galleryRe.MatchString(context) || containsAny(context+" "+strings.ToLower(alt), positiveContext) {
			typ = domain.ImageGallery
		}
		if containsAny(context, negativeContext) {
			typ = domain.ImageUnknown
		}

		var candidates []candidate
		if ref, q := bestCandidate(htmldoc.FirstAttr(s, "srcset")); ref != "" {
			candidates = append(candidates, candidate{ref, q})
		}
		if ref := htmldoc.FirstAttr(s, "data-large-image"); ref != "" {
			candidates = append(candidates, candidate{ref, domain.QualityHigh})
		}
		if ref := htmldoc.FirstAttr(s, "data-image"); ref != "" {
			candidates = append(candidates, candidate{ref, domain.QualityMedium})
		}
		for _, cand := range candidates {
			if denied(cand.ref, alt, context, 0, 0) {
				continue
			}
			c.add(cand.ref, domain.ExtractedImage{
				Alt:     strings.TrimSpace(alt),
				Type:    typ,
				Quality: cand.quality,
				Source:  domain.SourceImg,
			})
		}
	})
}

// result drops low quality images of unknown role and sorts by type, then quality.
func (c *collector) result() []domain.ExtractedImage {
	out := make([]domain.ExtractedImage, 0, len(c.images))
	for _, img := range c.images {
		trusted := img.Source == domain.SourceJSONLD || img.Source == domain.SourceOG || img.Type == domain.ImageMain
		if img.Type == domain.ImageUnknown && img.Quality == domain.QualityLow && !trusted {
			continue
		}
		out = append(out, img)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if ti, tj := out[i].Type.Rank(), out[j].Type.Rank(); ti != tj {
			return ti < tj
		}
		return out[i].Quality.Rank() < out[j].Quality.Rank()
	})
	return out
}

func assessQuality(src string, width, height int) domain.ImageQuality {
	lower := strings.ToLower(src)
	switch {
	case highQualityRe.MatchString(lower):
		return domain.QualityHigh
	case lowQualityRe.MatchString(lower):
		return domain.QualityLow
	case width >= 800 || height >= 800:
		return domain.QualityHigh
	case width > 0 && height > 0 && width < 300 && height < 300:
		return domain.QualityLow
	default:
		return domain.QualityMedium
	}
}

// bestCandidate picks the srcset entry with the largest width or density descriptor.
func bestCandidate(srcset string) (string, domain.ImageQuality) {
	var (
		best      string
		bestScore = -1.0
		isWidth   bool
	)
	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		score, width := 1.0, false
		if len(fields) > 1 {
			d := fields[len(fields)-1]
			switch {
			case strings.HasSuffix(d, "w"):
				if v, err := strconv.ParseFloat(strings.TrimSuffix(d, "w"), 64); err == nil {
					score, width = v, true
				}
			case strings.HasSuffix(d, "x"):
				if v, err := strconv.ParseFloat(strings.TrimSuffix(d, "x"), 64); err == nil {
					score = v
				}
			}
		}
		if score > bestScore {
			best, bestScore, isWidth = fields[0], score, width
		}
	}
	if best == "" {
		return "", ""
	}
	if (isWidth && bestScore >= 800) || (!isWidth && bestScore >= 2) {
		return best, domain.QualityHigh
	}
	return best, domain.QualityMedium
}

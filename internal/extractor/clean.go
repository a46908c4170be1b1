package extractor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	noiseRe      = regexp.MustCompile(`advert|tracking|banner|popup`)
)

// CleanHTML strips scripts, styles, comments, frames and ad-like elements,
// then collapses whitespace. Applying it twice gives the same result.
func CleanHTML(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return strings.TrimSpace(whitespaceRe.ReplaceAllString(rawHTML, " "))
	}

	doc.Find("script, style, iframe, noscript").Remove()
	doc.Find("[class], [id]").Not("html, head, body, main").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		names := strings.ToLower(class + " " + id)
		return noiseRe.MatchString(names) || hasToken(names, "ad", "ads")
	}).Remove()
	for _, n := range doc.Nodes {
		removeComments(n)
	}

	out, err := doc.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(out, " "))
}

func removeComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			removeComments(c)
		}
		c = next
	}
}

package ranker

import (
	"math"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// sizeSuffixRe matches CDN size variants at the end of a file name.
var sizeSuffixRe = regexp.MustCompile(`([_-]\d{2,4}x\d{2,4}|[_-](large|medium|small|thumb|thumbnail|zoom|big|xl|lg|md|sm)|@\dx)$`)

// NormalizeURL strips the query and size suffixes so CDN variants of one
// photo compare equal.
func NormalizeURL(raw string) string {
	p := raw
	host := ""
	if u, err := url.Parse(raw); err == nil {
		p, host = u.Path, u.Host
	}
	p = strings.ToLower(p)
	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	for {
		trimmed := sizeSuffixRe.ReplaceAllString(stem, "")
		if trimmed == stem {
			break
		}
		stem = trimmed
	}
	return strings.ToLower(host) + stem + ext
}

// AltSimilarity is the Jaccard index of the whitespace-separated words of two alt texts.
func AltSimilarity(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	return float64(inter) / float64(len(wa)+len(wb)-inter)
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

func sameImage(a, b Scored) bool {
	if NormalizeURL(a.Element.Src) == NormalizeURL(b.Element.Src) {
		return true
	}
	if AltSimilarity(a.Element.Alt, b.Element.Alt) > 0.8 {
		return true
	}
	ra, rb := a.Element.Rect, b.Element.Rect
	if ra == nil || rb == nil {
		return false
	}
	aa, ab := aspect(a), aspect(b)
	if aa == 0 || ab == 0 {
		return false
	}
	return math.Abs(aa-ab) <= 0.1 &&
		math.Abs(ra.Top-rb.Top) <= 100 &&
		math.Abs(ra.Left-rb.Left) <= 100
}

func aspect(s Scored) float64 {
	if s.Element.NaturalWidth > 0 && s.Element.NaturalHeight > 0 {
		return float64(s.Element.NaturalWidth) / float64(s.Element.NaturalHeight)
	}
	if r := s.Element.Rect; r != nil && r.Height > 0 {
		return r.Width / r.Height
	}
	return 0
}

// Group collapses variants of the same photo, keeping the one with the
// largest natural resolution. Order of first appearance is preserved.
func Group(images []Scored) []Scored {
	parent := make([]int, len(images))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range images {
		for j := i + 1; j < len(images); j++ {
			if sameImage(images[i], images[j]) {
				if ri, rj := find(i), find(j); ri != rj {
					if ri < rj {
						parent[rj] = ri
					} else {
						parent[ri] = rj
					}
				}
			}
		}
	}

	best := map[int]int{}
	var roots []int
	for i := range images {
		r := find(i)
		cur, ok := best[r]
		if !ok {
			roots = append(roots, r)
			best[r] = i
			continue
		}
		if area(images[i]) > area(images[cur]) {
			best[r] = i
		}
	}
	out := make([]Scored, 0, len(roots))
	for _, r := range roots {
		out = append(out, images[best[r]])
	}
	return out
}

func area(s Scored) int {
	return s.Element.NaturalWidth * s.Element.NaturalHeight
}

package ranker

import (
	"testing"

	"github.com/flyspark015/nexacat/internal/htmldoc"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		el    htmldoc.ImageElement
		score int
		typ   Type
	}{
		{
			name: "schema product photo",
			el: htmldoc.ImageElement{
				Src: "https://x/p/chair.jpg", Alt: "Main product view",
				Context: "product-gallery", NaturalWidth: 1200, NaturalHeight: 1200,
				Rect: &htmldoc.Rect{Top: 120, Width: 600, Height: 600}, InProductSchema: true,
			},
			// 50 schema + 40 gallery + 30 resolution + 10 fold + 20 area + 15 alt
			score: 165,
			typ:   MainProduct,
		},
		{
			name:  "gallery without schema",
			el:    htmldoc.ImageElement{Src: "https://x/a.jpg", Context: "swiper-slide", NaturalWidth: 500, NaturalHeight: 500},
			score: 55,
			typ:   Gallery,
		},
		{
			name:  "plain image",
			el:    htmldoc.ImageElement{Src: "https://x/a.jpg", NaturalWidth: 300, NaturalHeight: 300},
			score: 0,
			typ:   Unknown,
		},
		{
			name:  "logo clamps to zero",
			el:    htmldoc.ImageElement{Src: "https://x/logo.png", Context: "site-header", NaturalWidth: 120, NaturalHeight: 40},
			score: 0,
			typ:   UIElement,
		},
		{
			name:  "related product in gallery",
			el:    htmldoc.ImageElement{Src: "https://x/b.jpg", Context: "related-products carousel", NaturalWidth: 400, NaturalHeight: 400},
			score: 20,
			typ:   Thumbnail,
		},
		{
			name:  "zoom forces main product",
			el:    htmldoc.ImageElement{Src: "https://x/zoom/c.jpg"},
			score: 25,
			typ:   MainProduct,
		},
		{
			name:  "advertisement overrides schema",
			el:    htmldoc.ImageElement{Src: "https://x/d.jpg", Context: "ad slot", InProductSchema: true},
			score: 0,
			typ:   UIElement,
		},
		{
			name:  "ad inside a word is ignored",
			el:    htmldoc.ImageElement{Src: "https://x/e.jpg", Context: "shadow"},
			score: 0,
			typ:   Unknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.el)
			if got.Score != tt.score || got.Type != tt.typ {
				t.Errorf("Score = %d/%s, want %d/%s (%v)", got.Score, got.Type, tt.score, tt.typ, got.Reasoning)
			}
			if got.Score < 0 {
				t.Errorf("negative score %d", got.Score)
			}
		})
	}
}

func TestScoreNeverNegative(t *testing.T) {
	contexts := []string{"", "ad", "logo nav footer", "thumb related", "sponsor banner icon"}
	sizes := []int{0, 10, 150, 450, 900}
	for _, c := range contexts {
		for _, s := range sizes {
			r := Score(htmldoc.ImageElement{Src: "https://x/i.jpg", Context: c, NaturalWidth: s, NaturalHeight: s})
			if r.Score < 0 {
				t.Fatalf("context %q size %d scored %d", c, s, r.Score)
			}
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	want := "cdn.test/img/chair.jpg"
	for _, in := range []string{
		"https://cdn.test/img/chair.jpg",
		"https://cdn.test/img/chair_800x800.jpg",
		"https://cdn.test/img/chair-large.jpg?v=3",
		"https://cdn.test/img/Chair@2x.jpg",
		"https://cdn.test/img/chair_800x800-large.jpg",
	} {
		if got := NormalizeURL(in); got != want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAltSimilarity(t *testing.T) {
	if s := AltSimilarity("red oak chair", "Red Oak Chair"); s != 1 {
		t.Errorf("identical alt similarity = %v", s)
	}
	if s := AltSimilarity("red oak chair", "blue table"); s != 0 {
		t.Errorf("disjoint alt similarity = %v", s)
	}
	if s := AltSimilarity("", ""); s != 0 {
		t.Errorf("empty alt similarity = %v", s)
	}
}

func TestGroupKeepsLargestVariant(t *testing.T) {
	in := []Scored{
		{Element: htmldoc.ImageElement{Src: "https://x/chair_400x400.jpg", NaturalWidth: 400, NaturalHeight: 400}},
		{Element: htmldoc.ImageElement{Src: "https://x/table.jpg", Alt: "oak table", NaturalWidth: 500, NaturalHeight: 500}},
		{Element: htmldoc.ImageElement{Src: "https://x/chair_1200x1200.jpg", NaturalWidth: 1200, NaturalHeight: 1200}},
		{Element: htmldoc.ImageElement{Src: "https://y/other.jpg", Alt: "oak table", NaturalWidth: 900, NaturalHeight: 900}},
		{Element: htmldoc.ImageElement{Src: "https://x/p1.jpg", NaturalWidth: 300, NaturalHeight: 200, Rect: &htmldoc.Rect{Top: 10, Left: 10}}},
		{Element: htmldoc.ImageElement{Src: "https://x/p2.jpg", NaturalWidth: 600, NaturalHeight: 400, Rect: &htmldoc.Rect{Top: 60, Left: 90}}},
		{Element: htmldoc.ImageElement{Src: "https://x/p3.jpg", NaturalWidth: 600, NaturalHeight: 400, Rect: &htmldoc.Rect{Top: 500, Left: 90}}},
	}
	got := Group(in)
	want := []string{"https://x/chair_1200x1200.jpg", "https://y/other.jpg", "https://x/p2.jpg", "https://x/p3.jpg"}
	if len(got) != len(want) {
		t.Fatalf("expected %d groups, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].Element.Src != w {
			t.Errorf("group %d = %q, want %q", i, got[i].Element.Src, w)
		}
	}
}

func TestRankOrdersByScore(t *testing.T) {
	got := Rank([]htmldoc.ImageElement{
		{Src: "https://x/logo.png", Context: "header"},
		{Src: "https://x/main.jpg", Context: "product-gallery", NaturalWidth: 1000, NaturalHeight: 1000},
		{Src: "https://x/other.jpg", NaturalWidth: 500, NaturalHeight: 500},
	})
	if len(got) != 3 || got[0].Element.Src != "https://x/main.jpg" {
		t.Fatalf("unexpected ranking %+v", got)
	}
	if got[0].Type != MainProduct {
		t.Errorf("top image type = %s", got[0].Type)
	}
}

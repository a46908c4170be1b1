package draft

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flyspark015/nexacat/internal/category"
	"github.com/flyspark015/nexacat/internal/currency"
	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/flyspark015/nexacat/internal/htmldoc"
	"github.com/flyspark015/nexacat/internal/llm"
	"github.com/flyspark015/nexacat/internal/storage"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	page *domain.FetchedPage
	err  error
}

func (f fakeFetcher) Fetch(context.Context, string) (*domain.FetchedPage, error) {
	return f.page, f.err
}

type fakeExtractor struct {
	res  *domain.ProductExtractionResult
	err  error
	reqs []llm.Request
}

func (f *fakeExtractor) Extract(_ context.Context, req llm.Request) (*domain.ProductExtractionResult, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	return &res, nil
}

type fakeRenderer struct {
	images []htmldoc.ImageElement
	err    error
}

func (f fakeRenderer) Render(context.Context, string) (htmldoc.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return renderedPage(f.images), nil
}

type renderedPage []htmldoc.ImageElement

func (renderedPage) HTML() string                     { return "<html></html>" }
func (p renderedPage) Images() []htmldoc.ImageElement { return p }

type failingDrafts struct {
	*storage.Catalog
}

func (failingDrafts) CreateDraft(context.Context, *domain.ProductDraft) error {
	return errors.New("database is read-only")
}

func chairResult() *domain.ProductExtractionResult {
	return &domain.ProductExtractionResult{
		Title:             "Oak Chair",
		Description:       "A sturdy oak chair with a woven seat, made by hand in small batches.",
		Specifications:    map[string]string{"Material": "Oak", "Height": "90 cm", "Seat": "Woven"},
		Tags:              []string{"chair", "oak"},
		SuggestedCategory: "Chairs",
		ImageURLs:         []string{"https://shop.test/img/chair.jpg"},
		StockStatus:       domain.InStock,
		PriceText:         "$19.99",
		Currency:          "USD",
		Warnings:          []string{"model warning"},
		TokensUsed:        1500,
		Cost:              0.01,
		Model:             "gpt-4o",
		Method:            domain.MethodHTML,
	}
}

func newAssembler(f Fetcher, x Extractor, store Store, opts Options) *Assembler {
	opts.Converter = currency.New(83.5, "INR")
	opts.Persist = true
	catalog := storage.NewCatalog(storage.NewMemoryStore())
	return NewAssembler(f, x, category.NewMatcher(catalog, zap.NewNop()), store, opts, zap.NewNop())
}

func TestAssembleFromURL(t *testing.T) {
	catalog := storage.NewCatalog(storage.NewMemoryStore())
	page := &domain.FetchedPage{HTML: "<html></html>", FinalURL: "https://shop.test/chair"}
	x := &fakeExtractor{res: chairResult()}
	a := newAssembler(fakeFetcher{page: page}, x, catalog, Options{Defaults: domain.AISettings{Model: "gpt-4o", MaxTokens: 3000}})

	var phases []domain.Phase
	d, err := a.Assemble(context.Background(), Input{URL: " https://shop.test/chair ", AdminID: "admin-1"}, func(p domain.Progress) {
		phases = append(phases, p.Phase)
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	want := []domain.Phase{domain.PhaseFetching, domain.PhaseExtracting, domain.PhaseImageSelection, domain.PhaseCategorizing, domain.PhaseDrafted}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}

	if x.reqs[0].Page != page || x.reqs[0].URL != "https://shop.test/chair" || x.reqs[0].MaxTokens != 3000 {
		t.Errorf("extract request = %+v", x.reqs[0])
	}
	if d.Status != domain.DraftReviewRequired || d.AdminID != "admin-1" || d.Version != 1 {
		t.Errorf("draft = %+v", d)
	}
	if d.Product.Price != nil {
		t.Errorf("price must stay unset, got %v", *d.Product.Price)
	}
	if d.Product.Currency != "INR" {
		t.Errorf("currency = %q", d.Product.Currency)
	}
	dp := d.AIMetadata.DetectedPrice
	if dp == nil || dp.TargetPrice == nil || *dp.TargetPrice != 1669 || dp.OriginalCurrency != "USD" {
		t.Errorf("detected price = %+v", dp)
	}
	if d.AIMetadata.QualityScore != 1 {
		t.Errorf("quality = %v", d.AIMetadata.QualityScore)
	}
	warnings := d.AIMetadata.Warnings
	if len(warnings) != 2 || warnings[0] != "model warning" || !strings.Contains(warnings[1], "confirm the price") {
		t.Errorf("warnings = %v", warnings)
	}
	if !d.SuggestedCategory.ShouldCreate || d.SuggestedCategory.Confidence != 0.5 {
		t.Errorf("category = %+v", d.SuggestedCategory)
	}
	if !strings.Contains(d.TaskID, "-") || len(d.TaskID) != 21 {
		t.Errorf("task id = %q", d.TaskID)
	}

	stored, err := catalog.GetDraft(context.Background(), d.ID)
	if err != nil || stored.Product.Name != "Oak Chair" {
		t.Errorf("stored draft = %+v, %v", stored, err)
	}
}

func TestAssembleFetchFailure(t *testing.T) {
	fetchErr := &domain.FetchError{Reason: domain.FetchBlocked, URL: "https://shop.test/chair"}

	t.Run("without fallback", func(t *testing.T) {
		x := &fakeExtractor{res: chairResult()}
		a := newAssembler(fakeFetcher{err: fetchErr}, x, storage.NewCatalog(storage.NewMemoryStore()), Options{})

		_, err := a.Assemble(context.Background(), Input{URL: "https://shop.test/chair"}, nil)
		var pe *domain.PhaseError
		if !errors.As(err, &pe) || pe.Phase != domain.PhaseFetching {
			t.Fatalf("error = %v, want fetching PhaseError", err)
		}
		if !strings.Contains(pe.Hint(), "Upload product images") {
			t.Errorf("hint = %q", pe.Hint())
		}
		if len(x.reqs) != 0 {
			t.Error("extractor called after a fatal fetch error")
		}
	})

	t.Run("with uploaded images", func(t *testing.T) {
		x := &fakeExtractor{res: chairResult()}
		a := newAssembler(fakeFetcher{err: fetchErr}, x, storage.NewCatalog(storage.NewMemoryStore()), Options{})

		d, err := a.Assemble(context.Background(), Input{URL: "https://shop.test/chair", ImageURLs: []string{"https://cdn.test/1.jpg"}}, nil)
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		if !x.reqs[0].SkipHTML || x.reqs[0].Page != nil {
			t.Errorf("request = %+v", x.reqs[0])
		}
		if !strings.Contains(d.AIMetadata.Warnings[0], "Could not fetch the page") {
			t.Errorf("warnings = %v", d.AIMetadata.Warnings)
		}
	})
}

func TestAssembleExtractionFailure(t *testing.T) {
	x := &fakeExtractor{err: &domain.ExtractionError{Reason: "model request failed"}}
	a := newAssembler(nil, x, storage.NewCatalog(storage.NewMemoryStore()), Options{})

	_, err := a.Assemble(context.Background(), Input{Text: "Oak chair"}, nil)
	var pe *domain.PhaseError
	if !errors.As(err, &pe) || pe.Phase != domain.PhaseExtracting {
		t.Fatalf("error = %v, want extracting PhaseError", err)
	}
	var xe *domain.ExtractionError
	if !errors.As(err, &xe) {
		t.Error("underlying ExtractionError lost")
	}
}

func TestAssembleStoreFailure(t *testing.T) {
	x := &fakeExtractor{res: chairResult()}
	store := failingDrafts{storage.NewCatalog(storage.NewMemoryStore())}
	a := newAssembler(nil, x, store, Options{})

	_, err := a.Assemble(context.Background(), Input{Text: "Oak chair"}, nil)
	var pe *domain.PhaseError
	if !errors.As(err, &pe) || pe.Phase != domain.PhaseDrafted {
		t.Fatalf("error = %v, want drafted PhaseError", err)
	}
}

func TestAssembleNoInput(t *testing.T) {
	a := newAssembler(nil, &fakeExtractor{}, storage.NewCatalog(storage.NewMemoryStore()), Options{})
	if _, err := a.Assemble(context.Background(), Input{Text: "   "}, nil); !errors.Is(err, ErrNoInput) {
		t.Errorf("error = %v", err)
	}
}

func TestAssembleImageSelection(t *testing.T) {
	page := &domain.FetchedPage{HTML: "<html></html>"}
	images := []htmldoc.ImageElement{
		{Src: "https://shop.test/img/logo.png", Context: "site-header", NaturalWidth: 120, NaturalHeight: 40},
		{Src: "https://shop.test/img/chair.jpg?w=200", Context: "swiper-slide", NaturalWidth: 200, NaturalHeight: 200},
		{Src: "https://shop.test/g/back.jpg", Context: "swiper-slide", NaturalWidth: 500, NaturalHeight: 500},
		{
			Src: "https://shop.test/p/chair-side.jpg", Alt: "Main product view", Context: "product-gallery",
			NaturalWidth: 1200, NaturalHeight: 1200, Rect: &htmldoc.Rect{Top: 120, Width: 600, Height: 600}, InProductSchema: true,
		},
	}

	t.Run("appends ranked images", func(t *testing.T) {
		x := &fakeExtractor{res: chairResult()}
		a := newAssembler(fakeFetcher{page: page}, x, storage.NewCatalog(storage.NewMemoryStore()),
			Options{Renderer: fakeRenderer{images: images}})

		var phases []domain.Phase
		d, err := a.Assemble(context.Background(), Input{URL: "https://shop.test/chair"}, func(p domain.Progress) {
			phases = append(phases, p.Phase)
		})
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		want := "https://shop.test/img/chair.jpg,https://shop.test/p/chair-side.jpg,https://shop.test/g/back.jpg"
		if got := strings.Join(d.Product.Images, ","); got != want {
			t.Errorf("images = %s, want %s", got, want)
		}
		if len(phases) != 5 || phases[2] != domain.PhaseImageSelection {
			t.Errorf("phases = %v", phases)
		}
	})

	t.Run("fetched HTML without a browser", func(t *testing.T) {
		static := &domain.FetchedPage{FinalURL: "https://shop.test/p/chair", HTML: `<html><body>
<div class="site-header"><img src="/img/logo.png" width="120" height="40"></div>
<div class="product-gallery"><img src="side.jpg" alt="Oak chair side" width="500" height="500">
<img src="/img/chair.jpg" width="500" height="500"></div></body></html>`}
		x := &fakeExtractor{res: chairResult()}
		a := newAssembler(fakeFetcher{page: static}, x, storage.NewCatalog(storage.NewMemoryStore()), Options{})

		var phases []domain.Phase
		d, err := a.Assemble(context.Background(), Input{URL: "https://shop.test/chair"}, func(p domain.Progress) {
			phases = append(phases, p.Phase)
		})
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		want := "https://shop.test/img/chair.jpg,https://shop.test/p/side.jpg"
		if got := strings.Join(d.Product.Images, ","); got != want {
			t.Errorf("images = %s, want %s", got, want)
		}
		if len(phases) != 5 || phases[2] != domain.PhaseImageSelection {
			t.Errorf("phases = %v", phases)
		}
	})

	t.Run("render failure is a warning", func(t *testing.T) {
		x := &fakeExtractor{res: chairResult()}
		a := newAssembler(fakeFetcher{page: page}, x, storage.NewCatalog(storage.NewMemoryStore()),
			Options{Renderer: fakeRenderer{err: errors.New("chrome not found")}})

		d, err := a.Assemble(context.Background(), Input{URL: "https://shop.test/chair"}, nil)
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		if len(d.Product.Images) != 1 || !strings.Contains(strings.Join(d.AIMetadata.Warnings, "\n"), "Image selection failed") {
			t.Errorf("draft = %+v", d)
		}
	})
}

func TestAssembleSettingsPrecedence(t *testing.T) {
	ctx := context.Background()
	catalog := storage.NewCatalog(storage.NewMemoryStore())
	if err := catalog.SaveSettings(ctx, &domain.AISettings{Model: "gpt-4o-mini", CustomInstructions: "Use British spelling"}); err != nil {
		t.Fatal(err)
	}
	x := &fakeExtractor{res: chairResult()}
	a := newAssembler(nil, x, catalog, Options{Defaults: domain.AISettings{Model: "gpt-4o", MaxTokens: 4000}})

	if _, err := a.Assemble(ctx, Input{Text: "Oak chair"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Assemble(ctx, Input{Text: "Oak chair", Model: "gpt-4-turbo"}, nil); err != nil {
		t.Fatal(err)
	}
	first, second := x.reqs[0], x.reqs[1]
	if first.Model != "gpt-4o-mini" || first.MaxTokens != 4000 || first.Instructions != "Use British spelling" {
		t.Errorf("stored settings not applied: %+v", first)
	}
	if second.Model != "gpt-4-turbo" {
		t.Errorf("request model not applied: %+v", second)
	}
}

func TestQualityScore(t *testing.T) {
	tests := []struct {
		title, desc string
		images      []string
		specs       map[string]string
		want        float64
	}{
		{"", "", nil, nil, 0},
		{"Chair", "", nil, nil, 0.4},
		{"Chair", strings.Repeat("x", 50), []string{"a"}, nil, 0.8},
		{"", "", []string{"a"}, map[string]string{"a": "1", "b": "2", "c": "3"}, 0.4},
	}
	for _, tt := range tests {
		if got := QualityScore(tt.title, tt.desc, tt.images, tt.specs); got != tt.want {
			t.Errorf("QualityScore(%q) = %v, want %v", tt.title, got, tt.want)
		}
	}
}

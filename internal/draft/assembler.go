// Package draft turns an extraction request into a reviewable product draft
// and implements the admin review operations on it.
package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flyspark015/nexacat/internal/category"
	"github.com/flyspark015/nexacat/internal/currency"
	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/flyspark015/nexacat/internal/htmldoc"
	"github.com/flyspark015/nexacat/internal/llm"
	"github.com/flyspark015/nexacat/internal/monitoring"
	"github.com/flyspark015/nexacat/internal/ranker"
	"github.com/flyspark015/nexacat/internal/storage"
	"github.com/flyspark015/nexacat/pkg/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxImages bounds the images on a draft after image selection.
const MaxImages = 10

type (
	Fetcher interface {
		Fetch(ctx context.Context, rawURL string) (*domain.FetchedPage, error)
	}
	Extractor interface {
		Extract(ctx context.Context, req llm.Request) (*domain.ProductExtractionResult, error)
	}
	Renderer interface {
		Render(ctx context.Context, url string) (htmldoc.Document, error)
	}
	CategoryMatcher interface {
		Suggest(ctx context.Context, s category.Summary, threshold float64) domain.CategorySuggestion
	}
)

// Store persists drafts and the records a review touches.
type Store interface {
	CreateDraft(ctx context.Context, d *domain.ProductDraft) error
	GetDraft(ctx context.Context, id string) (*domain.ProductDraft, error)
	UpdateDraft(ctx context.Context, d *domain.ProductDraft) error
	EnsureCategory(ctx context.Context, name string) (domain.Category, error)
	GetCategory(ctx context.Context, id string) (domain.Category, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
	Settings(ctx context.Context) (*domain.AISettings, error)
}

// Input is one extraction request. At least one of URL, ImageURLs and Text
// must be set. Non-zero settings override the stored ones.
type Input struct {
	URL          string   `json:"url"`
	ImageURLs    []string `json:"imageUrls"`
	Text         string   `json:"text"`
	Instructions string   `json:"instructions"`
	Model        string   `json:"model"`
	MaxTokens    int      `json:"maxTokens"`
	AdminID      string   `json:"-"`
}

// ProgressFunc receives a checkpoint at every phase boundary.
type ProgressFunc func(domain.Progress)

type Options struct {
	Renderer  Renderer
	Converter currency.Converter
	// Defaults apply when no settings are stored.
	Defaults domain.AISettings
	// Persist false skips the store and returns the draft only.
	Persist bool
	Metrics *monitoring.Metrics
}

type Assembler struct {
	fetcher    Fetcher
	extractor  Extractor
	categories CategoryMatcher
	store      Store
	renderer   Renderer
	converter  currency.Converter
	defaults   domain.AISettings
	persist    bool
	metrics    *monitoring.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewAssembler(f Fetcher, x Extractor, c CategoryMatcher, s Store, opts Options, logger *zap.Logger) *Assembler {
	if opts.Converter.Rate <= 0 || opts.Converter.Target == "" {
		opts.Converter = currency.New(opts.Converter.Rate, opts.Converter.Target)
	}
	return &Assembler{
		fetcher:    f,
		extractor:  x,
		categories: c,
		store:      s,
		renderer:   opts.Renderer,
		converter:  opts.Converter,
		defaults:   opts.Defaults,
		persist:    opts.Persist,
		metrics:    opts.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

var ErrNoInput = errors.New("provide a product URL, images or text")

// run carries the state of one Assemble call between phases.
type run struct {
	a        *Assembler
	progress ProgressFunc
	phase    domain.Phase
	started  time.Time
	warnings []string
}

func (r *run) enter(phase domain.Phase, msg string) {
	r.finish()
	r.phase = phase
	r.started = r.a.now()
	if r.progress != nil {
		r.progress(domain.Progress{Phase: phase, Message: msg, At: r.started.UTC()})
	}
}

func (r *run) finish() {
	if r.phase != "" {
		r.a.metrics.ObservePhase(string(r.phase), r.a.now().Sub(r.started).Seconds())
	}
}

func (r *run) fail(err error) error {
	r.finish()
	r.a.metrics.IncExtraction("failed_" + string(r.phase))
	r.a.logger.Error("draft pipeline failed", zap.String("phase", string(r.phase)), zap.Error(err))
	return &domain.PhaseError{Phase: r.phase, Err: err}
}

func (r *run) warn(msgs ...string) {
	r.warnings = append(r.warnings, msgs...)
}

// Assemble runs the pipeline and returns a draft in review. Any hard
// failure is a *domain.PhaseError.
func (a *Assembler) Assemble(ctx context.Context, in Input, progress ProgressFunc) (*domain.ProductDraft, error) {
	in.URL = strings.TrimSpace(in.URL)
	in.Text = strings.TrimSpace(in.Text)
	if in.URL == "" && len(in.ImageURLs) == 0 && in.Text == "" {
		return nil, ErrNoInput
	}
	r := &run{a: a, progress: progress}
	settings := a.settings(ctx, in, r)
	hasFallback := len(in.ImageURLs) > 0 || in.Text != ""

	req := llm.Request{
		URL:          in.URL,
		ImageURLs:    in.ImageURLs,
		Text:         in.Text,
		Instructions: settings.CustomInstructions,
		Model:        settings.Model,
		MaxTokens:    settings.MaxTokens,
	}

	if in.URL != "" {
		r.enter(domain.PhaseFetching, "Fetching "+in.URL)
		page, err := a.fetcher.Fetch(ctx, in.URL)
		switch {
		case err == nil:
			req.Page = page
		case ctx.Err() != nil || !hasFallback:
			return nil, r.fail(err)
		default:
			r.warn(fmt.Sprintf("Could not fetch the page (%v); continuing with the uploaded images and text.", err))
			req.SkipHTML = true
		}
	}

	r.enter(domain.PhaseExtracting, "Extracting product data")
	res, err := a.extractor.Extract(ctx, req)
	if err != nil {
		return nil, r.fail(err)
	}
	r.warn(res.Warnings...)

	images := res.ImageURLs
	if req.Page != nil {
		r.enter(domain.PhaseImageSelection, "Selecting product images")
		doc, err := a.document(ctx, in.URL, req.Page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, r.fail(ctx.Err())
			}
			r.warn(fmt.Sprintf("Image selection failed (%v); review the images manually.", err))
		} else {
			images = selectImages(doc, images)
		}
	}

	r.enter(domain.PhaseCategorizing, "Matching a category")
	suggestion := a.categories.Suggest(ctx, category.Summary{
		Title:             res.Title,
		Tags:              res.Tags,
		Specifications:    res.Specifications,
		SuggestedCategory: res.SuggestedCategory,
	}, settings.ConfidenceThreshold)
	if suggestion.Confidence <= 0.3 && suggestion.ShouldCreate {
		r.warn("Category matching failed; choose a category manually.")
	}

	var detected *domain.PriceConversion
	if res.PriceText != "" {
		conv := a.converter.Convert(res.PriceText, res.Currency)
		detected = &conv
		if conv.TargetPrice != nil {
			r.warn(fmt.Sprintf("Detected price %s (about %.0f %s); confirm the price before publishing.",
				res.PriceText, *conv.TargetPrice, conv.TargetCurrency))
		}
	}

	r.enter(domain.PhaseDrafted, "Saving the draft")
	d := a.build(in, res, images, suggestion, detected, r.warnings)
	if a.persist {
		if err := a.store.CreateDraft(ctx, d); err != nil {
			return nil, r.fail(err)
		}
	}
	r.finish()
	a.metrics.IncExtraction("drafted")
	a.logger.Info("draft created",
		zap.String("draft_id", d.ID),
		zap.String("task_id", d.TaskID),
		zap.String("method", string(res.Method)),
		zap.Int("warnings", len(d.AIMetadata.Warnings)))
	return d, nil
}

// settings merges config defaults, stored settings and the request.
func (a *Assembler) settings(ctx context.Context, in Input, r *run) domain.AISettings {
	s := a.defaults
	if a.store != nil {
		stored, err := a.store.Settings(ctx)
		switch {
		case err == nil:
			overlay(&s, *stored)
		case !errors.Is(err, storage.ErrNotFound):
			a.logger.Warn("failed to load AI settings", zap.Error(err))
			r.warn("Saved AI settings could not be loaded; using defaults.")
		}
	}
	overlay(&s, domain.AISettings{Model: in.Model, MaxTokens: in.MaxTokens, CustomInstructions: in.Instructions})
	if s.ConfidenceThreshold <= 0 {
		s.ConfidenceThreshold = category.DefaultThreshold
	}
	return s
}

func overlay(dst *domain.AISettings, src domain.AISettings) {
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.MaxTokens > 0 {
		dst.MaxTokens = src.MaxTokens
	}
	if strings.TrimSpace(src.CustomInstructions) != "" {
		dst.CustomInstructions = src.CustomInstructions
	}
	if src.ConfidenceThreshold > 0 {
		dst.ConfidenceThreshold = src.ConfidenceThreshold
	}
}

// document renders the page when a browser is configured and otherwise
// parses the fetched HTML, which has no layout information.
func (a *Assembler) document(ctx context.Context, pageURL string, page *domain.FetchedPage) (htmldoc.Document, error) {
	if a.renderer != nil {
		return a.renderer.Render(ctx, pageURL)
	}
	base := page.FinalURL
	if base == "" {
		base = pageURL
	}
	return htmldoc.Parse(page.HTML, base)
}

// selectImages appends the page's best main and gallery images that the
// model did not already pick.
func selectImages(doc htmldoc.Document, current []string) []string {
	out := append([]string{}, current...)
	seen := map[string]bool{}
	for _, u := range out {
		seen[ranker.NormalizeURL(u)] = true
	}
	for _, s := range ranker.Rank(doc.Images()) {
		if len(out) >= MaxImages {
			break
		}
		if s.Type != ranker.MainProduct && s.Type != ranker.Gallery {
			continue
		}
		key := ranker.NormalizeURL(s.Element.Src)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s.Element.Src)
	}
	return out
}

func (a *Assembler) build(in Input, res *domain.ProductExtractionResult, images []string, suggestion domain.CategorySuggestion,
	detected *domain.PriceConversion, warnings []string) *domain.ProductDraft {
	now := a.now().UTC()
	source := in.URL
	if source == "" {
		source = "upload:" + in.Text
	}
	if warnings == nil {
		warnings = []string{}
	}
	return &domain.ProductDraft{
		ID:      uuid.NewString(),
		AdminID: in.AdminID,
		TaskID:  utils.HashURL(source)[:12] + "-" + uuid.NewString()[:8],
		Status:  domain.DraftReviewRequired,
		Product: domain.DraftProduct{
			Name:             res.Title,
			Description:      res.Description,
			ShortDescription: res.ShortDescription,
			Images:           nonNil(images),
			Specs:            res.Specifications,
			Tags:             nonNil(res.Tags),
			Price:            nil,
			Currency:         a.converter.Target,
			StockStatus:      res.StockStatus,
			ProductType:      "simple",
			VideoURL:         res.VideoURL,
		},
		SuggestedCategory: suggestion,
		AIMetadata: domain.AIMetadata{
			SourceURL:        in.URL,
			Model:            res.Model,
			ExtractionMethod: res.Method,
			QualityScore:     QualityScore(res.Title, res.Description, images, res.Specifications),
			Warnings:         warnings,
			TokensUsed:       res.TokensUsed,
			Cost:             res.Cost,
			DetectedPrice:    detected,
		},
		AdminChanges: []domain.AdminChange{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// QualityScore rates how complete an extraction is, from 0 to 1.
func QualityScore(title, description string, images []string, specs map[string]string) float64 {
	points := 0
	if strings.TrimSpace(title) != "" {
		points += 4
	}
	if len(strings.TrimSpace(description)) >= 50 {
		points += 2
	}
	if len(images) > 0 {
		points += 2
	}
	if len(specs) >= 3 {
		points += 2
	}
	return float64(points) / 10
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package domain

import (
	"encoding/json"
	"time"
)

// ImageType classifies an extracted image by its role on the page.
type ImageType string

const (
	ImageMain      ImageType = "main"
	ImageGallery   ImageType = "gallery"
	ImageOG        ImageType = "og"
	ImageThumbnail ImageType = "thumbnail"
	ImageUnknown   ImageType = "unknown"
)

// Rank orders types for sorting; lower sorts first.
func (t ImageType) Rank() int {
	switch t {
	case ImageMain:
		return 0
	case ImageGallery:
		return 1
	case ImageOG:
		return 2
	case ImageThumbnail:
		return 3
	default:
		return 4
	}
}

type ImageQuality string

const (
	QualityHigh   ImageQuality = "high"
	QualityMedium ImageQuality = "medium"
	QualityLow    ImageQuality = "low"
)

func (q ImageQuality) Rank() int {
	switch q {
	case QualityHigh:
		return 0
	case QualityMedium:
		return 1
	default:
		return 2
	}
}

// ImageSource records which extraction pass found an image.
type ImageSource string

const (
	SourceImg    ImageSource = "img"
	SourceJSONLD ImageSource = "jsonld"
	SourceOG     ImageSource = "og"
	SourceMeta   ImageSource = "meta"
)

type StockStatus string

const (
	InStock    StockStatus = "in-stock"
	OutOfStock StockStatus = "out-of-stock"
	Preorder   StockStatus = "preorder"
)

type DraftStatus string

const (
	DraftReviewRequired DraftStatus = "review_required"
	DraftPublished      DraftStatus = "published"
	DraftDiscarded      DraftStatus = "discarded"
)

type ExtractionMethod string

const (
	MethodHTML   ExtractionMethod = "html"
	MethodVision ExtractionMethod = "vision"
	MethodText   ExtractionMethod = "text"
)

// PageMeta is the lightweight metadata pulled from raw HTML by regex.
type PageMeta struct {
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	OGImage      string `json:"ogImage,omitempty"`
	CanonicalURL string `json:"canonicalUrl,omitempty"`
}

// FetchAttempt is one try of one fetch strategy.
type FetchAttempt struct {
	Strategy   string        `json:"strategy"`
	StatusCode int           `json:"statusCode,omitempty"`
	Bytes      int           `json:"bytes,omitempty"`
	Duration   time.Duration `json:"duration"`
	TimedOut   bool          `json:"timedOut,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// FetchedPage holds the raw HTML of a product page.
type FetchedPage struct {
	HTML        string         `json:"html"`
	FinalURL    string         `json:"finalUrl"`
	StatusCode  int            `json:"statusCode"`
	ContentType string         `json:"contentType"`
	Metadata    PageMeta       `json:"metadata"`
	Attempts    []FetchAttempt `json:"attempts,omitempty"`
}

// ExtractedImage is a candidate product image. URL is always absolute.
type ExtractedImage struct {
	URL     string       `json:"url"`
	Alt     string       `json:"alt,omitempty"`
	Width   int          `json:"width,omitempty"`
	Height  int          `json:"height,omitempty"`
	Type    ImageType    `json:"type"`
	Quality ImageQuality `json:"quality"`
	Source  ImageSource  `json:"source"`
}

// ProductMeta is the page-level product metadata derived from structured data and meta tags.
type ProductMeta struct {
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	Price        string `json:"price,omitempty"`
	Currency     string `json:"currency,omitempty"`
	Brand        string `json:"brand,omitempty"`
	Availability string `json:"availability,omitempty"`
}

// ProcessedHTML is the extractor's view of one fetched page.
type ProcessedHTML struct {
	CleanedHTML    string           `json:"cleanedHtml"`
	ProductImages  []ExtractedImage `json:"productImages"`
	StructuredData json.RawMessage  `json:"structuredData,omitempty"`
	Metadata       ProductMeta      `json:"metadata"`
}

// ProductExtractionResult is the validated model output.
type ProductExtractionResult struct {
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	ShortDescription  string            `json:"shortDescription"`
	Specifications    map[string]string `json:"specifications"`
	Tags              []string          `json:"tags"`
	SuggestedCategory string            `json:"suggestedCategory"`
	ImageURLs         []string          `json:"imageUrls"`
	VideoURL          *string           `json:"videoUrl,omitempty"`
	StockStatus       StockStatus       `json:"stockStatus"`
	PriceText         string            `json:"priceText,omitempty"`
	Currency          string            `json:"currency,omitempty"`
	Warnings          []string          `json:"warnings"`
	TokensUsed        int               `json:"tokensUsed"`
	PromptTokens      int               `json:"promptTokens"`
	CompletionTokens  int               `json:"completionTokens"`
	Cost              float64           `json:"cost"`
	Model             string            `json:"model"`
	Method            ExtractionMethod  `json:"method"`
}

type CategoryAlternative struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type CategorySuggestion struct {
	SuggestedName string                `json:"suggestedName"`
	CategoryID    string                `json:"categoryId,omitempty"`
	Confidence    float64               `json:"confidence"`
	ShouldCreate  bool                  `json:"shouldCreate"`
	Reasoning     string                `json:"reasoning"`
	Alternatives  []CategoryAlternative `json:"alternatives"`
}

// PriceConversion is the result of normalizing a free-text price.
type PriceConversion struct {
	OriginalPrice    *float64 `json:"originalPrice"`
	OriginalCurrency string   `json:"originalCurrency"`
	TargetPrice      *float64 `json:"targetPrice"`
	TargetCurrency   string   `json:"targetCurrency"`
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}

// DraftProduct is the editable product body of a draft.
type DraftProduct struct {
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	ShortDescription string            `json:"shortDescription"`
	Images           []string          `json:"images"`
	Specs            map[string]string `json:"specs"`
	Tags             []string          `json:"tags"`
	Price            *float64          `json:"price"`
	Currency         string            `json:"currency"`
	StockStatus      StockStatus       `json:"stockStatus"`
	ProductType      string            `json:"productType"`
	VideoURL         *string           `json:"videoUrl,omitempty"`
}

type AIMetadata struct {
	SourceURL        string           `json:"sourceUrl,omitempty"`
	Model            string           `json:"model"`
	ExtractionMethod ExtractionMethod `json:"extractionMethod"`
	QualityScore     float64          `json:"qualityScore"`
	Warnings         []string         `json:"warnings"`
	TokensUsed       int              `json:"tokensUsed"`
	Cost             float64          `json:"cost"`
	DetectedPrice    *PriceConversion `json:"detectedPrice,omitempty"`
}

// AdminChange records one field edit made during review.
type AdminChange struct {
	Field    string    `json:"field"`
	OldValue any       `json:"oldValue"`
	NewValue any       `json:"newValue"`
	AdminID  string    `json:"adminId"`
	At       time.Time `json:"at"`
}

// ProductDraft is the durable, reviewable result of one extraction.
type ProductDraft struct {
	ID                string             `json:"id"`
	AdminID           string             `json:"adminId"`
	TaskID            string             `json:"taskId"`
	Status            DraftStatus        `json:"status"`
	Product           DraftProduct       `json:"product"`
	SuggestedCategory CategorySuggestion `json:"suggestedCategory"`
	AIMetadata        AIMetadata         `json:"aiMetadata"`
	AdminChanges      []AdminChange      `json:"adminChanges"`
	Version           int                `json:"version"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
	PublishedAt       *time.Time         `json:"publishedAt,omitempty"`
	ProductID         string             `json:"productId,omitempty"`
}

// Product is a live catalog entry created from a published draft.
type Product struct {
	ID               string            `json:"id"`
	DraftID          string            `json:"draftId"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	ShortDescription string            `json:"shortDescription"`
	Images           []string          `json:"images"`
	Specs            map[string]string `json:"specs"`
	Tags             []string          `json:"tags"`
	Price            float64           `json:"price"`
	Currency         string            `json:"currency"`
	StockStatus      StockStatus       `json:"stockStatus"`
	ProductType      string            `json:"productType"`
	VideoURL         *string           `json:"videoUrl,omitempty"`
	CategoryID       string            `json:"categoryId"`
	SourceURL        string            `json:"sourceUrl,omitempty"`
	CreatedBy        string            `json:"createdBy"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// AISettings are the admin-tunable extraction settings.
type AISettings struct {
	Model               string    `json:"model"`
	MaxTokens           int       `json:"maxTokens"`
	CustomInstructions  string    `json:"customInstructions"`
	ConfidenceThreshold float64   `json:"confidenceThreshold"`
	UpdatedBy           string    `json:"updatedBy,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Conversation is a logged model exchange.
type Conversation struct {
	ID               string           `json:"id"`
	SourceURL        string           `json:"sourceUrl,omitempty"`
	Model            string           `json:"model"`
	Method           ExtractionMethod `json:"method"`
	SystemPrompt     string           `json:"systemPrompt"`
	UserPrompt       string           `json:"userPrompt"`
	Response         string           `json:"response"`
	PromptTokens     int              `json:"promptTokens"`
	CompletionTokens int              `json:"completionTokens"`
	Cost             float64          `json:"cost"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// Phase names a step of the draft pipeline.
type Phase string

const (
	PhaseFetching       Phase = "fetching"
	PhaseExtracting     Phase = "extracting"
	PhaseImageSelection Phase = "image-selection"
	PhaseCategorizing   Phase = "categorizing"
	PhaseDrafted        Phase = "drafted"
)

// Progress is a human-readable checkpoint emitted at a phase boundary.
type Progress struct {
	Phase   Phase     `json:"phase"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

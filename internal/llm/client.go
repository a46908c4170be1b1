// Package llm calls an OpenAI-compatible chat model to turn a product page,
// or uploaded images and text, into structured product data.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/flyspark015/nexacat/internal/extractor"
	"github.com/flyspark015/nexacat/internal/monitoring"
	"github.com/flyspark015/nexacat/internal/prompt"
	"github.com/flyspark015/nexacat/internal/retry"
	"github.com/flyspark015/nexacat/pkg/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxTokens = 4000
	// MaxVisionImages bounds the images attached to one vision request.
	MaxVisionImages = 4
)

// PageFetcher retrieves product pages for the HTML path.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*domain.FetchedPage, error)
}

// ConversationLog records model exchanges.
type ConversationLog interface {
	LogConversation(ctx context.Context, c domain.Conversation) error
}

type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Retry      *retry.Policy
	// RatePerSec limits model calls; zero disables limiting.
	RatePerSec    float64
	Conversations ConversationLog
	Metrics       *monitoring.Metrics
}

// Request describes one extraction. URL selects the HTML path; Page, when
// set, is used instead of fetching URL. SkipHTML forces the image/text path.
type Request struct {
	URL          string
	Page         *domain.FetchedPage
	SkipHTML     bool
	ImageURLs    []string
	Text         string
	Instructions string
	Model        string
	MaxTokens    int
}

type Client struct {
	pages      PageFetcher
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      retry.Policy
	limiter    *rate.Limiter
	convos     ConversationLog
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

func New(pages PageFetcher, opts Options, logger *zap.Logger) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	policy := retry.Default
	if opts.Retry != nil {
		policy = *opts.Retry
	}
	if policy.NonRetryable == nil {
		policy.NonRetryable = func(err error) bool { return !retryable(err) || errors.Is(err, errEmptyResponse) }
	}
	c := &Client{
		pages:      pages,
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: opts.HTTPClient,
		retry:      policy,
		convos:     opts.Conversations,
		metrics:    opts.Metrics,
		logger:     logger,
	}
	if opts.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	return c
}

// Extract runs the HTML path when a URL is given and falls back to the
// image/text path when it fails or no URL is given. Only a failed model
// call or an unparsable reply is an error.
func (c *Client) Extract(ctx context.Context, req Request) (*domain.ProductExtractionResult, error) {
	model, warning := ResolveModel(req.Model)
	var warnings []string
	if warning != "" {
		warnings = append(warnings, warning)
		c.logger.Warn("substituted deprecated model", zap.String("requested", req.Model), zap.String("model", model))
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}

	if req.URL != "" && !req.SkipHTML {
		res, err := c.extractHTML(ctx, req, model)
		if err == nil {
			res.Warnings = append(append([]string{}, warnings...), res.Warnings...)
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if len(req.ImageURLs) == 0 && req.Text == "" {
			return nil, err
		}
		c.logger.Warn("html extraction failed, falling back to images and text", zap.String("url", req.URL), zap.Error(err))
		warnings = append(warnings, fmt.Sprintf("Page extraction failed (%v); used the supplied images and text instead.", err))
	}

	res, err := c.extractVision(ctx, req, model)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(append([]string{}, warnings...), res.Warnings...)
	return res, nil
}

func (c *Client) extractHTML(ctx context.Context, req Request, model string) (*domain.ProductExtractionResult, error) {
	page := req.Page
	if page == nil {
		if c.pages == nil {
			return nil, errors.New("no page fetcher configured")
		}
		var err error
		if page, err = c.pages.Fetch(ctx, req.URL); err != nil {
			return nil, err
		}
	}
	source := req.URL
	if page.FinalURL != "" {
		source = page.FinalURL
	}

	processed := extractor.Process(page.HTML, source)
	if n := len(processed.CleanedHTML); n < extractor.MinCleanedLength {
		return nil, &domain.SparseContentError{URL: source, Length: n}
	}

	p := prompt.Build(prompt.Content{
		URL:            source,
		CleanedHTML:    processed.CleanedHTML,
		StructuredData: processed.StructuredData,
		Metadata:       processed.Metadata,
		Images:         processed.ProductImages,
	}, req.Instructions)

	messages := []chatMessage{textMessage("system", p.System), textMessage("user", p.User)}
	res, err := c.complete(ctx, model, req.MaxTokens, messages, p, source, domain.MethodHTML)
	if err != nil {
		return nil, err
	}

	res.ImageURLs = absoluteImages(res.ImageURLs, source)
	if len(res.ImageURLs) == 0 {
		for _, img := range processed.ProductImages {
			if img.Type == domain.ImageMain {
				res.ImageURLs = append(res.ImageURLs, img.URL)
			}
		}
		if len(res.ImageURLs) > 0 {
			res.Warnings = append(res.Warnings, "The model selected no images; using the images declared in the page's structured data.")
		}
	}
	if res.PriceText == "" {
		res.PriceText = processed.Metadata.Price
	}
	if res.Currency == "" {
		res.Currency = processed.Metadata.Currency
	}
	if res.Title == "" {
		res.Title = processed.Metadata.Title
	}
	if len(res.ImageURLs) == 0 {
		res.Warnings = append(res.Warnings, "No product images were found; upload images manually.")
	}
	return res, nil
}

func (c *Client) extractVision(ctx context.Context, req Request, model string) (*domain.ProductExtractionResult, error) {
	images := absoluteImages(req.ImageURLs, "")
	if len(images) == 0 && req.Text == "" {
		return nil, &domain.ExtractionError{Reason: "nothing to extract from: no page, images or text"}
	}

	var warnings []string
	attached := images
	if len(attached) > MaxVisionImages {
		attached = attached[:MaxVisionImages]
		warnings = append(warnings, fmt.Sprintf("Only the first %d of %d images were analysed.", MaxVisionImages, len(images)))
	}

	p := prompt.BuildVision(req.Text, len(attached), req.Instructions)
	user := textMessage("user", p.User)
	for _, u := range attached {
		user.Content = append(user.Content, contentPart{Type: "image_url", ImageURL: &imageURL{URL: u, Detail: "high"}})
	}

	method := domain.MethodText
	if len(attached) > 0 {
		method = domain.MethodVision
	}
	res, err := c.complete(ctx, model, req.MaxTokens, []chatMessage{textMessage("system", p.System), user}, p, req.URL, method)
	if err != nil {
		return nil, err
	}

	if len(images) > 0 {
		res.ImageURLs = images
	} else {
		res.ImageURLs = absoluteImages(res.ImageURLs, req.URL)
	}
	res.Warnings = append(append([]string{}, warnings...), res.Warnings...)
	if len(res.ImageURLs) == 0 {
		res.Warnings = append(res.Warnings, "No product images were found; upload images manually.")
	}
	return res, nil
}

// complete sends messages through the limiter and retry policy and parses the reply.
func (c *Client) complete(ctx context.Context, model string, maxTokens int, messages []chatMessage, p prompt.Prompt, source string, method domain.ExtractionMethod) (*domain.ProductExtractionResult, error) {
	body, err := json.Marshal(chatRequest{
		Model:          model,
		Messages:       messages,
		MaxTokens:      maxTokens,
		Temperature:    0.1,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, &domain.ExtractionError{Reason: "could not encode request", Err: err}
	}

	var (
		content string
		used    usage
	)
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var callErr error
		content, used, callErr = c.post(ctx, body)
		return callErr
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &domain.ExtractionError{Reason: "model request failed", Err: err}
	}

	cost := Cost(model, used.PromptTokens, used.CompletionTokens)
	c.metrics.AddLLMUsage(model, used.PromptTokens, used.CompletionTokens, cost)
	c.logConversation(ctx, domain.Conversation{
		ID:               uuid.NewString(),
		SourceURL:        source,
		Model:            model,
		Method:           method,
		SystemPrompt:     p.System,
		UserPrompt:       p.User,
		Response:         content,
		PromptTokens:     used.PromptTokens,
		CompletionTokens: used.CompletionTokens,
		Cost:             cost,
		CreatedAt:        time.Now().UTC(),
	})

	res, err := parseProduct(content)
	if err != nil {
		return nil, &domain.ExtractionError{Reason: "model reply could not be parsed", Err: err}
	}
	res.Model = model
	res.Method = method
	res.PromptTokens = used.PromptTokens
	res.CompletionTokens = used.CompletionTokens
	res.TokensUsed = used.PromptTokens + used.CompletionTokens
	res.Cost = cost
	return res, nil
}

func (c *Client) logConversation(ctx context.Context, conv domain.Conversation) {
	if c.convos == nil {
		return
	}
	if err := c.convos.LogConversation(ctx, conv); err != nil {
		c.logger.Warn("failed to log conversation", zap.String("id", conv.ID), zap.Error(err))
	}
}

// absoluteImages resolves refs against base, dropping duplicates and
// anything that is not an http(s) URL.
func absoluteImages(refs []string, base string) []string {
	baseURL, _ := url.Parse(base)
	out := []string{}
	seen := map[string]bool{}
	for _, ref := range refs {
		abs, err := utils.ToAbsoluteURL(baseURL, ref)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	return out
}

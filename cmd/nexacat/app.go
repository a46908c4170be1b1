package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/flyspark015/nexacat/internal/browser"
	"github.com/flyspark015/nexacat/internal/category"
	"github.com/flyspark015/nexacat/internal/config"
	"github.com/flyspark015/nexacat/internal/currency"
	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/flyspark015/nexacat/internal/draft"
	"github.com/flyspark015/nexacat/internal/fetcher"
	"github.com/flyspark015/nexacat/internal/llm"
	"github.com/flyspark015/nexacat/internal/monitoring"
	"github.com/flyspark015/nexacat/internal/proxy"
	"github.com/flyspark015/nexacat/internal/retry"
	"github.com/flyspark015/nexacat/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// app is the wired component graph shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	catalog   *storage.Catalog
	cache     *storage.PageCache
	files     *storage.FileStore
	assembler *draft.Assembler
	reviewer  *draft.Reviewer
	closers   []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, persist bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: monitoring.NewMetrics(prometheus.DefaultRegisterer)}

	// Initialize Storage Layer
	var docs storage.DocumentStore
	if cfg.PostgresURL != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
		docs = pg
	} else {
		logger.Warn("POSTGRES_URL not set, drafts are kept in memory only")
		docs = storage.NewMemoryStore()
	}
	a.catalog = storage.NewCatalog(docs)

	fetchOpts := fetcher.Options{Timeout: cfg.FetchTimeout, Metrics: a.metrics}
	if cfg.RedisAddr != "" {
		a.cache = storage.NewPageCache(cfg.RedisAddr, cfg.PageCacheTTL)
		a.closers = append(a.closers, func() { a.cache.Close() })
		fetchOpts.Cache = a.cache
	}

	files, err := storage.NewFileStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.files = files

	// Initialize the pipeline
	proxies := proxy.NewManager(cfg.ProxyTemplates(), cfg.UserAgentList())
	pages := fetcher.New(proxies, fetchOpts, logger)
	extractor := llm.New(pages, llm.Options{
		BaseURL:       cfg.LLMBaseURL,
		APIKey:        cfg.OpenAIAPIKey,
		RatePerSec:    cfg.LLMRatePerSec,
		Conversations: a.catalog,
		Metrics:       a.metrics,
	}, logger)

	opts := draft.Options{
		Converter: currency.New(cfg.FallbackExchangeRate, cfg.TargetCurrency),
		Defaults: domain.AISettings{
			Model:               cfg.LLMModel,
			MaxTokens:           cfg.LLMMaxTokens,
			CustomInstructions:  cfg.CustomInstructions,
			ConfidenceThreshold: cfg.CategoryConfidenceThreshold,
		},
		Persist: persist,
		Metrics: a.metrics,
	}
	if cfg.BrowserEnabled {
		renderer := browser.NewRenderer(cfg.BrowserTimeout, proxies.GetUserAgent(), logger)
		a.closers = append(a.closers, renderer.Close)
		opts.Renderer = renderer
	}
	a.assembler = draft.NewAssembler(pages, extractor, category.NewMatcher(a.catalog, logger), a.catalog, opts, logger)

	mirror := storage.NewMirror(files, &http.Client{Timeout: 30 * time.Second}, retry.Default, logger)
	a.reviewer = draft.NewReviewer(a.catalog, mirror, cfg.MediaBaseURL, logger)
	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Package fetcher retrieves product page HTML through an ordered list of
// proxy strategies, falling back to a direct request.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/flyspark015/nexacat/internal/monitoring"
	"github.com/flyspark015/nexacat/internal/proxy"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 15 * time.Second
	minBodyBytes   = 100
	maxBodyBytes   = 10 << 20
)

var ErrInvalidURL = errors.New("invalid page url")

// Cache stores fetched pages between extractions. Load returns (nil, nil) on a miss.
type Cache interface {
	Load(ctx context.Context, rawURL string) (*domain.FetchedPage, error)
	Store(ctx context.Context, rawURL string, page *domain.FetchedPage) error
}

type Options struct {
	Timeout time.Duration
	Client  *http.Client
	Cache   Cache
	Metrics *monitoring.Metrics
}

// Fetcher tries each strategy exactly once, in order.
type Fetcher struct {
	proxies *proxy.Manager
	client  *http.Client
	timeout time.Duration
	cache   Cache
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

func New(pm *proxy.Manager, opts Options, logger *zap.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	return &Fetcher{
		proxies: pm,
		client:  opts.Client,
		timeout: opts.Timeout,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Fetch returns the first usable response for rawURL. When every strategy
// fails it returns a *domain.FetchError carrying the attempt log.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*domain.FetchedPage, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	if f.cache != nil {
		if page, err := f.cache.Load(ctx, rawURL); err != nil {
			f.logger.Warn("page cache lookup failed", zap.String("url", rawURL), zap.Error(err))
		} else if page != nil {
			page.Attempts = append(page.Attempts, domain.FetchAttempt{Strategy: "cache"})
			return page, nil
		}
	}

	var attempts []domain.FetchAttempt
	for _, s := range f.proxies.Strategies() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, attempt := f.try(ctx, s, rawURL)
		attempts = append(attempts, attempt)
		if page == nil {
			f.metrics.IncFetchAttempt(s.Name, "failed")
			f.logger.Debug("fetch strategy failed",
				zap.String("url", rawURL),
				zap.String("strategy", s.Name),
				zap.Int("status", attempt.StatusCode),
				zap.String("error", attempt.Error))
			continue
		}

		f.metrics.IncFetchAttempt(s.Name, "ok")
		page.Attempts = attempts
		if f.cache != nil {
			if err := f.cache.Store(ctx, rawURL, page); err != nil {
				f.logger.Warn("page cache store failed", zap.String("url", rawURL), zap.Error(err))
			}
		}
		return page, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, &domain.FetchError{Reason: classify(attempts), URL: rawURL, Attempts: attempts}
}

func (f *Fetcher) try(ctx context.Context, s proxy.Strategy, rawURL string) (*domain.FetchedPage, domain.FetchAttempt) {
	attempt := domain.FetchAttempt{Strategy: s.Name}
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.Target(rawURL), nil)
	if err != nil {
		attempt.Error = err.Error()
		attempt.Duration = time.Since(start)
		return nil, attempt
	}
	req.Header.Set("Accept", "text/html")
	if ua := f.proxies.GetUserAgent(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		attempt.Error = err.Error()
		attempt.TimedOut = isTimeout(err)
		attempt.Duration = time.Since(start)
		return nil, attempt
	}
	defer resp.Body.Close()

	attempt.StatusCode = resp.StatusCode
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	attempt.Bytes = len(body)
	attempt.Duration = time.Since(start)
	switch {
	case err != nil:
		attempt.Error = err.Error()
		attempt.TimedOut = isTimeout(err)
		return nil, attempt
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		attempt.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return nil, attempt
	case len(body) < minBodyBytes:
		attempt.Error = fmt.Sprintf("response too short (%d bytes)", len(body))
		return nil, attempt
	}

	finalURL := rawURL
	if s.Direct() && resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	html := string(body)
	return &domain.FetchedPage{
		HTML:        html,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Metadata:    ExtractMeta(html),
	}, attempt
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func classify(attempts []domain.FetchAttempt) domain.FetchReason {
	allTimedOut := len(attempts) > 0
	for _, a := range attempts {
		switch a.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests, http.StatusUnavailableForLegalReasons:
			return domain.FetchBlocked
		}
		if !a.TimedOut {
			allTimedOut = false
		}
	}
	if allTimedOut {
		return domain.FetchTimeout
	}
	return domain.FetchInvalidResponse
}

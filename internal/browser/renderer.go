// Package browser renders product pages in headless Chrome so the image
// ranker can use layout information.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/flyspark015/nexacat/internal/htmldoc"
	"github.com/flyspark015/nexacat/pkg/utils"
	"go.uber.org/zap"
)

// imagesJS collects every <img> with its rendered box and natural size.
// The context walk matches htmldoc.Context.
var imagesJS = fmt.Sprintf(`(() => {
  const depth = %d;
  const context = (el) => {
    const parts = [];
    for (let n = el, i = 0; n && n.nodeType === 1 && i <= depth; n = n.parentElement, i++) {
      const cls = (n.getAttribute('class') || '').trim();
      const id = (n.getAttribute('id') || '').trim();
      if (cls) parts.push(cls);
      if (id) parts.push(id);
    }
    return parts.join(' ').toLowerCase();
  };
  return Array.from(document.images).map((img) => {
    const r = img.getBoundingClientRect();
    return {
      src: img.currentSrc || img.src || '',
      alt: (img.alt || '').trim(),
      context: context(img),
      naturalWidth: img.naturalWidth || 0,
      naturalHeight: img.naturalHeight || 0,
      rect: {top: r.top + window.scrollY, left: r.left + window.scrollX, width: r.width, height: r.height},
      inProductSchema: !!(img.parentElement && img.parentElement.closest('[itemtype*="schema.org/product" i]')),
    };
  });
})()`, htmldoc.ContextDepth)

// Renderer owns one Chrome process, started on first use; each Render
// opens a new tab in it.
type Renderer struct {
	browserCtx context.Context
	cancel     context.CancelFunc
	timeout    time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	started bool
}

func NewRenderer(timeout time.Duration, userAgent string, logger *zap.Logger) *Renderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}
	return &Renderer{browserCtx: browserCtx, cancel: cancel, timeout: timeout, logger: logger}
}

// start launches the browser on the root context. A browser started from a
// tab context dies with that tab.
func (r *Renderer) start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if err := chromedp.Run(r.browserCtx); err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	r.started = true
	r.logger.Info("browser started")
	return nil
}

// Render loads url and returns the rendered document.
func (r *Renderer) Render(ctx context.Context, url string) (htmldoc.Document, error) {
	if err := r.start(); err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(r.browserCtx)
	defer cancel()
	taskCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var (
		html   string
		images []htmldoc.ImageElement
	)
	start := time.Now()
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(imagesJS, &images),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("rendering %s: %w", url, err)
	}
	r.logger.Debug("rendered page", zap.String("url", url), zap.Int("images", len(images)), zap.Duration("took", time.Since(start)))
	return newRendered(html, images), nil
}

// Close shuts down the browser and its tabs.
func (r *Renderer) Close() {
	r.cancel()
}

// Rendered is a Document produced by a browser.
type Rendered struct {
	html   string
	images []htmldoc.ImageElement
}

func newRendered(html string, images []htmldoc.ImageElement) *Rendered {
	kept := make([]htmldoc.ImageElement, 0, len(images))
	for _, img := range images {
		img.Src = strings.TrimSpace(img.Src)
		if !utils.IsAbsoluteHTTP(img.Src) {
			continue
		}
		kept = append(kept, img)
	}
	return &Rendered{html: html, images: kept}
}

func (d *Rendered) HTML() string                   { return d.html }
func (d *Rendered) Images() []htmldoc.ImageElement { return d.images }

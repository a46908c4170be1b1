package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/flyspark015/nexacat/internal/category"
	"github.com/flyspark015/nexacat/internal/config"
	"github.com/flyspark015/nexacat/internal/currency"
	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/flyspark015/nexacat/internal/draft"
	"github.com/flyspark015/nexacat/internal/llm"
	"github.com/flyspark015/nexacat/internal/monitoring"
	"github.com/flyspark015/nexacat/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

const png = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89"

type stubExtractor struct {
	err error
}

func (s stubExtractor) Extract(_ context.Context, req llm.Request) (*domain.ProductExtractionResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ProductExtractionResult{
		Title:             "Oak Chair",
		Description:       "A sturdy oak chair.",
		Specifications:    map[string]string{},
		Tags:              []string{"chair"},
		SuggestedCategory: "Chairs",
		ImageURLs:         append([]string{}, req.ImageURLs...),
		StockStatus:       domain.InStock,
		Warnings:          []string{},
		Model:             "gpt-4o",
		Method:            domain.MethodText,
	}, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, rawURL string) (*domain.FetchedPage, error) {
	return &domain.FetchedPage{HTML: "<html></html>", FinalURL: rawURL}, nil
}

type stubCache struct {
	forgotten []string
	pingErr   error
}

func (c *stubCache) Ping(context.Context) error { return c.pingErr }

func (c *stubCache) Forget(_ context.Context, u string) error {
	c.forgotten = append(c.forgotten, u)
	return nil
}

type harness struct {
	srv     *httptest.Server
	handler http.Handler
	catalog *storage.Catalog
	metrics *monitoring.Metrics
	cache   *stubCache
	media   string
}

func newHarness(t *testing.T, x draft.Extractor) *harness {
	t.Helper()
	cfg := &config.Config{
		LLMModel:                    "gpt-4o",
		LLMMaxTokens:                4000,
		CategoryConfidenceThreshold: 0.7,
	}
	catalog := storage.NewCatalog(storage.NewMemoryStore())
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	logger := zap.NewNop()

	h := &harness{catalog: catalog, metrics: metrics, cache: &stubCache{}, media: t.TempDir()}
	h.srv = httptest.NewUnstartedServer(nil)
	baseURL := "http://" + h.srv.Listener.Addr().String() + "/media"
	files, err := storage.NewFileStore(h.media, baseURL)
	if err != nil {
		t.Fatal(err)
	}

	assembler := draft.NewAssembler(stubFetcher{}, x, category.NewMatcher(catalog, logger), catalog, draft.Options{
		Converter: currency.New(83.5, "INR"),
		Defaults:  domain.AISettings{Model: cfg.LLMModel, MaxTokens: cfg.LLMMaxTokens},
		Persist:   true,
		Metrics:   metrics,
	}, logger)
	s := NewServer(cfg, Deps{
		Assembler: assembler,
		Reviewer:  draft.NewReviewer(catalog, nil, baseURL, logger),
		Catalog:   catalog,
		Cache:     h.cache,
		Media:     files,
		MediaDir:  h.media,
		Metrics:   metrics,
		Gatherer:  reg,
	}, logger)
	h.handler = s.Handler()
	h.srv.Config.Handler = h.handler
	h.srv.Start()
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-ID", "admin-7")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decoding %s: %v", data, err)
	}
	return v
}

func (h *harness) extract(t *testing.T) *domain.ProductDraft {
	t.Helper()
	resp, body := h.do(t, http.MethodPost, "/api/extract", map[string]any{"text": "Oak chair, solid wood"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("extract status = %d: %s", resp.StatusCode, body)
	}
	return decode[extractResponse](t, body).Draft
}

func TestExtract(t *testing.T) {
	h := newHarness(t, stubExtractor{})

	resp, body := h.do(t, http.MethodPost, "/api/extract", map[string]any{
		"url":     "https://shop.test/chair",
		"refresh": true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	out := decode[extractResponse](t, body)
	if out.Draft == nil || out.Draft.AdminID != "admin-7" || out.Draft.Status != domain.DraftReviewRequired {
		t.Errorf("draft = %+v", out.Draft)
	}
	if len(out.Progress) != 5 || out.Progress[0].Phase != domain.PhaseFetching || out.Progress[2].Phase != domain.PhaseImageSelection {
		t.Errorf("progress = %+v", out.Progress)
	}
	if len(out.Notices) != 1 || out.Notices[0].Key != "missing-api-key" {
		t.Errorf("notices = %+v", out.Notices)
	}
	if len(h.cache.forgotten) != 1 || h.cache.forgotten[0] != "https://shop.test/chair" {
		t.Errorf("forgotten = %v", h.cache.forgotten)
	}
}

func TestExtractRejectsBadInput(t *testing.T) {
	h := newHarness(t, stubExtractor{})

	tests := []struct {
		name string
		body any
	}{
		{"not json", "chair"},
		{"bad scheme", map[string]any{"url": "ftp://shop.test/chair"}},
		{"empty", map[string]any{"text": " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.do(t, http.MethodPost, "/api/extract", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d: %s", resp.StatusCode, body)
			}
		})
	}
}

func TestExtractPermissionFailure(t *testing.T) {
	denied := &domain.ExtractionError{Reason: "model request failed", Err: &llm.APIError{StatusCode: http.StatusUnauthorized, Message: "bad key"}}
	h := newHarness(t, stubExtractor{err: denied})

	resp, body := h.do(t, http.MethodPost, "/api/extract", map[string]any{"text": "Oak chair"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	out := decode[extractResponse](t, body)
	if out.Phase != domain.PhaseExtracting || !strings.Contains(out.Hint, "API key") || out.Draft != nil {
		t.Errorf("response = %+v", out)
	}
	keys := []string{}
	for _, n := range out.Notices {
		keys = append(keys, n.Key)
	}
	if strings.Join(keys, ",") != "missing-api-key,model-permission" {
		t.Errorf("notices = %v", keys)
	}
}

func TestReviewFlow(t *testing.T) {
	h := newHarness(t, stubExtractor{})
	d := h.extract(t)
	path := "/api/drafts/" + d.ID

	resp, body := h.do(t, http.MethodPost, path+"/publish", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("publish without price status = %d: %s", resp.StatusCode, body)
	}

	resp, body = h.do(t, http.MethodPatch, path, map[string]any{"price": -5})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative price status = %d: %s", resp.StatusCode, body)
	}

	resp, body = h.do(t, http.MethodPatch, path, map[string]any{"price": 1499, "version": d.Version})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("edit status = %d: %s", resp.StatusCode, body)
	}
	edited := decode[domain.ProductDraft](t, body)
	if edited.Version != d.Version+1 || edited.AdminChanges[0].AdminID != "admin-7" {
		t.Errorf("edited = %+v", edited)
	}

	resp, body = h.do(t, http.MethodPatch, path, map[string]any{"name": "Stale", "version": d.Version})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("stale edit status = %d: %s", resp.StatusCode, body)
	}

	resp, body = h.do(t, http.MethodPost, path+"/publish", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("publish status = %d: %s", resp.StatusCode, body)
	}
	product := decode[domain.Product](t, body)
	if product.Price != 1499 || product.DraftID != d.ID || product.CreatedBy != "admin-7" {
		t.Errorf("product = %+v", product)
	}

	resp, _ = h.do(t, http.MethodPost, path+"/publish", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second publish status = %d", resp.StatusCode)
	}

	resp, body = h.do(t, http.MethodGet, "/api/drafts?status=published", nil)
	drafts := decode[[]domain.ProductDraft](t, body)
	if resp.StatusCode != http.StatusOK || len(drafts) != 1 || drafts[0].ProductID != product.ID {
		t.Errorf("published drafts = %+v", drafts)
	}

	resp, body = h.do(t, http.MethodGet, "/api/categories", nil)
	cats := decode[[]domain.Category](t, body)
	if resp.StatusCode != http.StatusOK || len(cats) != 1 || cats[0].Name != "Chairs" {
		t.Errorf("categories = %+v", cats)
	}
}

func TestDraftEndpoints(t *testing.T) {
	h := newHarness(t, stubExtractor{})
	first := h.extract(t)
	second := h.extract(t)

	resp, body := h.do(t, http.MethodPost, "/api/drafts/"+first.ID+"/discard", nil)
	if resp.StatusCode != http.StatusOK || decode[domain.ProductDraft](t, body).Status != domain.DraftDiscarded {
		t.Fatalf("discard status = %d: %s", resp.StatusCode, body)
	}

	resp, body = h.do(t, http.MethodGet, "/api/drafts/"+second.ID, nil)
	if resp.StatusCode != http.StatusOK || decode[domain.ProductDraft](t, body).ID != second.ID {
		t.Errorf("get status = %d: %s", resp.StatusCode, body)
	}

	resp, body = h.do(t, http.MethodGet, "/api/drafts?limit=1", nil)
	drafts := decode[[]domain.ProductDraft](t, body)
	if resp.StatusCode != http.StatusOK || len(drafts) != 1 || drafts[0].ID != first.ID {
		t.Errorf("newest draft = %+v", drafts)
	}

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/drafts/missing", http.StatusNotFound},
		{http.MethodPost, "/api/drafts/missing/publish", http.StatusNotFound},
		{http.MethodGet, "/api/drafts?status=maybe", http.StatusBadRequest},
		{http.MethodGet, "/api/drafts?limit=-1", http.StatusBadRequest},
		{http.MethodPost, "/api/drafts/" + first.ID + "/discard", http.StatusConflict},
	}
	for _, tt := range tests {
		if resp, body := h.do(t, tt.method, tt.path, nil); resp.StatusCode != tt.want {
			t.Errorf("%s %s = %d, want %d: %s", tt.method, tt.path, resp.StatusCode, tt.want, body)
		}
	}
}

func upload(t *testing.T, h *harness, name string, data []byte) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("images", name)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	resp, err := http.Post(h.srv.URL+"/api/uploads", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestUpload(t *testing.T) {
	h := newHarness(t, stubExtractor{})

	resp, body := upload(t, h, "front.PNG", []byte(png))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	urls := decode[map[string][]string](t, body)["urls"]
	if len(urls) != 1 || !strings.HasPrefix(urls[0], h.srv.URL+"/media/uploads/") || !strings.HasSuffix(urls[0], ".png") {
		t.Fatalf("urls = %v", urls)
	}

	u, err := url.Parse(urls[0])
	if err != nil {
		t.Fatal(err)
	}
	resp, body = h.do(t, http.MethodGet, u.Path, nil)
	if resp.StatusCode != http.StatusOK || string(body) != png {
		t.Errorf("served file status = %d, %d bytes", resp.StatusCode, len(body))
	}

	if resp, body := upload(t, h, "notes.txt", []byte("just some text")); resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("text upload status = %d: %s", resp.StatusCode, body)
	}
}

func TestSettings(t *testing.T) {
	h := newHarness(t, stubExtractor{})

	resp, body := h.do(t, http.MethodGet, "/api/settings", nil)
	got := decode[domain.AISettings](t, body)
	if resp.StatusCode != http.StatusOK || got.Model != "gpt-4o" || got.ConfidenceThreshold != 0.7 {
		t.Errorf("defaults = %+v", got)
	}

	resp, body = h.do(t, http.MethodPut, "/api/settings", map[string]any{"model": "gpt-4o-mini", "confidenceThreshold": 0.8})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d: %s", resp.StatusCode, body)
	}

	stored, err := h.catalog.Settings(context.Background())
	if err != nil || stored.Model != "gpt-4o-mini" || stored.UpdatedBy != "admin-7" {
		t.Errorf("stored = %+v, %v", stored, err)
	}

	resp, body = h.do(t, http.MethodPut, "/api/settings", map[string]any{"confidenceThreshold": 1.5})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid threshold status = %d: %s", resp.StatusCode, body)
	}
}

func TestHealthCheck(t *testing.T) {
	h := newHarness(t, stubExtractor{})

	// Served in-process so the metrics middleware has finished before the assertion.
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	status := decode[map[string]string](t, rec.Body.Bytes())
	if rec.Code != http.StatusOK || status["store"] != "healthy" || status["cache"] != "healthy" {
		t.Errorf("status = %d %v", rec.Code, status)
	}
	if n := testutil.ToFloat64(h.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/health", "200")); n != 1 {
		t.Errorf("recorded %v health requests", n)
	}

	h.cache.pingErr = errors.New("connection refused")
	resp, body := h.do(t, http.MethodGet, "/api/health", nil)
	if resp.StatusCode != http.StatusServiceUnavailable || decode[map[string]string](t, body)["cache"] != "unhealthy" {
		t.Errorf("status = %d: %s", resp.StatusCode, body)
	}

	resp, body = h.do(t, http.MethodGet, "/metrics", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `http_requests_total{method="GET",path="/api/health",status="200"} 1`) {
		t.Errorf("metrics = %s", body)
	}
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/flyspark015/nexacat/internal/config"
	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/flyspark015/nexacat/internal/draft"
	"github.com/flyspark015/nexacat/internal/monitoring"
	"github.com/flyspark015/nexacat/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// requestTimeout covers a full extraction including model retries.
const requestTimeout = 3 * time.Minute

// Catalog is the read side of the store used by the API.
type Catalog interface {
	Ping(ctx context.Context) error
	GetDraft(ctx context.Context, id string) (*domain.ProductDraft, error)
	ListDrafts(ctx context.Context, status domain.DraftStatus, limit int) ([]domain.ProductDraft, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	Settings(ctx context.Context) (*domain.AISettings, error)
	SaveSettings(ctx context.Context, s *domain.AISettings) error
}

// PageCache is the optional fetch cache.
type PageCache interface {
	Ping(ctx context.Context) error
	Forget(ctx context.Context, rawURL string) error
}

// Deps are the components behind the API. Cache, Media and Gatherer are optional.
type Deps struct {
	Assembler *draft.Assembler
	Reviewer  *draft.Reviewer
	Catalog   Catalog
	Cache     PageCache
	Media     storage.ObjectStore
	// MediaDir is served under /media/ when set.
	MediaDir string
	Metrics  *monitoring.Metrics
	Gatherer prometheus.Gatherer
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	deps       Deps
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

func NewServer(cfg *config.Config, deps Deps, l *zap.Logger) *Server {
	s := &Server{
		config:  cfg,
		deps:    deps,
		metrics: deps.Metrics,
		logger:  l,
	}
	s.router = s.setupRouter()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      requestTimeout + 10*time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

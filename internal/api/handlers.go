package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/flyspark015/nexacat/internal/draft"
	"github.com/flyspark015/nexacat/internal/llm"
	"github.com/flyspark015/nexacat/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxUploadFiles   = 10
	adminHeader      = "X-Admin-ID"
)

type extractRequest struct {
	draft.Input
	// Refresh drops the cached page before fetching.
	Refresh bool `json:"refresh"`
}

type extractResponse struct {
	Draft    *domain.ProductDraft `json:"draft,omitempty"`
	Progress []domain.Progress    `json:"progress"`
	Notices  []domain.Notice      `json:"notices"`
	Error    string               `json:"error,omitempty"`
	Phase    domain.Phase         `json:"phase,omitempty"`
	Hint     string               `json:"hint,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if u := strings.TrimSpace(req.URL); u != "" {
		if parsed, err := url.ParseRequestURI(u); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			s.respondWithError(w, http.StatusBadRequest, "Invalid URL: "+u)
			return
		}
	}
	req.AdminID = adminID(r)

	var notices domain.Notices
	if s.config.OpenAIAPIKey == "" {
		notices.Add(domain.Notice{
			Key:     "missing-api-key",
			Level:   "warning",
			Message: "OPENAI_API_KEY is not set; extraction will fail until it is configured.",
		})
	}
	if req.Refresh && req.URL != "" && s.deps.Cache != nil {
		if err := s.deps.Cache.Forget(r.Context(), strings.TrimSpace(req.URL)); err != nil {
			s.logger.Warn("failed to drop cached page", zap.String("url", req.URL), zap.Error(err))
		}
	}

	resp := extractResponse{Progress: []domain.Progress{}}
	d, err := s.deps.Assembler.Assemble(r.Context(), req.Input, func(p domain.Progress) {
		resp.Progress = append(resp.Progress, p)
	})
	if err != nil {
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			notices.Add(domain.Notice{
				Key:     "model-permission",
				Level:   "error",
				Message: "The model API rejected the configured API key; check its permissions and billing.",
			})
		}
		code, msg := s.errorStatus(err)
		resp.Error = msg
		var pe *domain.PhaseError
		if errors.As(err, &pe) {
			resp.Phase = pe.Phase
			resp.Hint = pe.Hint()
		}
		resp.Notices = notices.List()
		s.respondWithJSON(w, code, resp)
		return
	}
	resp.Draft = d
	resp.Notices = notices.List()
	s.respondWithJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	status := domain.DraftStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.DraftReviewRequired, domain.DraftPublished, domain.DraftDiscarded:
	default:
		s.respondWithError(w, http.StatusBadRequest, "Unknown status: "+string(status))
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	drafts, err := s.deps.Catalog.ListDrafts(r.Context(), status, limit)
	if err != nil {
		s.respondWithFailure(w, err)
		return
	}
	if drafts == nil {
		drafts = []domain.ProductDraft{}
	}
	s.respondWithJSON(w, http.StatusOK, drafts)
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Catalog.GetDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondWithFailure(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, d)
}

func (s *Server) handleEditDraft(w http.ResponseWriter, r *http.Request) {
	var e draft.Edit
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	d, err := s.deps.Reviewer.Edit(r.Context(), chi.URLParam(r, "id"), adminID(r), e)
	if err != nil {
		s.respondWithFailure(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, d)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Reviewer.Publish(r.Context(), chi.URLParam(r, "id"), adminID(r))
	if err != nil {
		s.respondWithFailure(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Reviewer.Discard(r.Context(), chi.URLParam(r, "id"), adminID(r))
	if err != nil {
		s.respondWithFailure(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, d)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.deps.Catalog.ListCategories(r.Context())
	if err != nil {
		s.respondWithFailure(w, err)
		return
	}
	if cats == nil {
		cats = []domain.Category{}
	}
	s.respondWithJSON(w, http.StatusOK, cats)
}

// handleUpload stores the "images" parts of a multipart form and returns
// their public URLs in upload order.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Media == nil {
		s.respondWithError(w, http.StatusServiceUnavailable, "Uploads are not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadFiles*storage.MaxMediaBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	files := r.MultipartForm.File["images"]
	switch {
	case len(files) == 0:
		s.respondWithError(w, http.StatusBadRequest, "No images uploaded")
		return
	case len(files) > maxUploadFiles:
		s.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("At most %d images per upload", maxUploadFiles))
		return
	}

	urls := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			s.respondWithError(w, http.StatusBadRequest, "Could not read "+fh.Filename)
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, storage.MaxMediaBytes+1))
		f.Close()
		if err != nil {
			s.respondWithError(w, http.StatusBadRequest, "Could not read "+fh.Filename)
			return
		}
		if len(data) > storage.MaxMediaBytes {
			s.respondWithError(w, http.StatusRequestEntityTooLarge, fh.Filename+" is too large")
			return
		}
		contentType := http.DetectContentType(data)
		if !strings.HasPrefix(contentType, "image/") {
			s.respondWithError(w, http.StatusUnsupportedMediaType, fh.Filename+" is not an image")
			return
		}
		u, err := s.deps.Media.Put(r.Context(), "uploads/"+uuid.NewString()+uploadExt(fh.Filename, contentType), data, contentType)
		if err != nil {
			s.respondWithFailure(w, err)
			return
		}
		urls = append(urls, u)
	}
	s.respondWithJSON(w, http.StatusCreated, map[string][]string{"urls": urls})
}

func uploadExt(filename, contentType string) string {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && len(ext) <= 5 {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	return ".img"
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Catalog.Settings(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		settings, err = s.defaultSettings(), nil
	}
	if err != nil {
		s.respondWithFailure(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var in domain.AISettings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	switch {
	case in.MaxTokens < 0:
		s.respondWithError(w, http.StatusBadRequest, "maxTokens must not be negative")
		return
	case in.ConfidenceThreshold < 0 || in.ConfidenceThreshold > 1:
		s.respondWithError(w, http.StatusBadRequest, "confidenceThreshold must be between 0 and 1")
		return
	}
	if in.Model != "" {
		in.Model, _ = llm.ResolveModel(in.Model)
	}
	in.UpdatedBy = adminID(r)
	if err := s.deps.Catalog.SaveSettings(r.Context(), &in); err != nil {
		s.respondWithFailure(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, in)
}

func (s *Server) defaultSettings() *domain.AISettings {
	return &domain.AISettings{
		Model:               s.config.LLMModel,
		MaxTokens:           s.config.LLMMaxTokens,
		CustomInstructions:  s.config.CustomInstructions,
		ConfidenceThreshold: s.config.CategoryConfidenceThreshold,
	}
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)
	healthy := true

	if err := s.deps.Catalog.Ping(ctx); err != nil {
		healthStatus["store"] = "unhealthy"
		healthy = false
		s.logger.Error("health check failed for store", zap.Error(err))
	} else {
		healthStatus["store"] = "healthy"
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.Ping(ctx); err != nil {
			healthStatus["cache"] = "unhealthy"
			healthy = false
			s.logger.Error("health check failed for cache", zap.Error(err))
		} else {
			healthStatus["cache"] = "healthy"
		}
	}

	if !healthy {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func adminID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(adminHeader)); id != "" {
		return id
	}
	return "anonymous"
}

// errorStatus maps an error to a status code and a message safe to show.
func (s *Server) errorStatus(err error) (int, string) {
	var pe *domain.PhaseError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrNotReviewable), errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrPriceRequired):
		return http.StatusUnprocessableEntity, err.Error()
	case draft.IsValidation(err), errors.Is(err, draft.ErrNoInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "The request timed out"
	case errors.As(err, &pe):
		return http.StatusBadGateway, pe.Error()
	}
	s.logger.Error("request failed", zap.Error(err))
	return http.StatusInternalServerError, "Internal server error"
}

func (s *Server) respondWithFailure(w http.ResponseWriter, err error) {
	code, msg := s.errorStatus(err)
	s.respondWithError(w, code, msg)
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		code, response = http.StatusInternalServerError, []byte(`{"error":"Internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

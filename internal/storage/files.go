package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/flyspark015/nexacat/internal/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxMediaBytes bounds one stored or mirrored file.
const MaxMediaBytes = 20 << 20

// ObjectStore stores media files and returns their public URL.
type ObjectStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// FileStore is an ObjectStore on the local filesystem, served by the API
// under baseURL.
type FileStore struct {
	dir     string
	baseURL string
}

func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media dir: %w", err)
	}
	return &FileStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) > MaxMediaBytes {
		return "", fmt.Errorf("file %s is larger than %d bytes", name, MaxMediaBytes)
	}
	clean := path.Clean("/" + filepath.ToSlash(name))[1:]
	if clean == "" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	full := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", clean, err)
	}
	return s.baseURL + "/" + clean, nil
}

// StatusError is a non-200 answer from an image host.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// finalDownload reports whether repeating a failed download is pointless:
// client errors other than timeouts and rate limits.
func finalDownload(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500
}

// Mirror copies remote images into an ObjectStore.
type Mirror struct {
	store  ObjectStore
	client *http.Client
	retry  retry.Policy
	logger *zap.Logger
}

func NewMirror(store ObjectStore, client *http.Client, policy retry.Policy, logger *zap.Logger) *Mirror {
	if client == nil {
		client = http.DefaultClient
	}
	if policy.NonRetryable == nil {
		policy.NonRetryable = finalDownload
	}
	return &Mirror{store: store, client: client, retry: policy, logger: logger}
}

// Copy downloads src and stores it under prefix, returning the new URL.
func (m *Mirror) Copy(ctx context.Context, prefix, src string) (string, error) {
	var (
		data        []byte
		contentType string
	)
	err := m.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		data, contentType, err = m.download(ctx, src)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", src, err)
	}
	name := path.Join(prefix, uuid.NewString()+extension(src, contentType))
	u, err := m.store.Put(ctx, name, data, contentType)
	if err != nil {
		return "", err
	}
	m.logger.Debug("mirrored image", zap.String("src", src), zap.String("url", u))
	return u, nil
}

func (m *Mirror) download(ctx context.Context, src string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", &StatusError{StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > MaxMediaBytes {
		return nil, "", fmt.Errorf("image larger than %d bytes", MaxMediaBytes)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func extension(src, contentType string) string {
	if ext := strings.ToLower(path.Ext(strings.SplitN(src, "?", 2)[0])); len(ext) > 1 && len(ext) <= 5 {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(strings.Split(contentType, ";")[0]); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flyspark015/nexacat/internal/domain"
)

// MemoryStore is an in-process DocumentStore used by the CLI and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]Document
	now  func() time.Time
	seq  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]Document), now: time.Now}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Get(_ context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *MemoryStore) Set(_ context.Context, collection, id string, doc any) (int, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(collection, id, data), nil
}

func (s *MemoryStore) Update(_ context.Context, collection, id string, expected int, doc any) (int, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.docs[collection][id]
	if !ok {
		return 0, ErrNotFound
	}
	if current.Version != expected {
		return 0, domain.ErrVersionConflict
	}
	return s.put(collection, id, data), nil
}

// put must be called with mu held.
func (s *MemoryStore) put(collection, id string, data []byte) int {
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]Document)
	}
	// seq keeps ordering stable when writes share a timestamp.
	s.seq++
	d := Document{
		ID:        id,
		Version:   s.docs[collection][id].Version + 1,
		Data:      data,
		UpdatedAt: s.now().Add(time.Duration(s.seq)),
	}
	s.docs[collection][id] = d
	return d.Version
}

func (s *MemoryStore) Query(_ context.Context, collection, field, value string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, d := range s.docs[collection] {
		var fields map[string]any
		if err := json.Unmarshal(d.Data, &fields); err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", collection, d.ID, err)
		}
		v, ok := fields[field]
		if !ok || v == nil {
			continue
		}
		if str, isString := v.(string); (isString && str == value) || (!isString && fmt.Sprint(v) == value) {
			out = append(out, d)
		}
	}
	newestFirst(out)
	return out, nil
}

func (s *MemoryStore) List(_ context.Context, collection string, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(s.docs[collection]))
	for _, d := range s.docs[collection] {
		out = append(out, d)
	}
	newestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newestFirst(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].UpdatedAt.After(docs[j].UpdatedAt) })
}

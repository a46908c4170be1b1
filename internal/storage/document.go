package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("document not found")

// Document is one stored JSON document. Version starts at 1 and grows by
// one on every write.
type Document struct {
	ID        string
	Version   int
	Data      json.RawMessage
	UpdatedAt time.Time
}

// DocumentStore keeps JSON documents in named collections.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Set writes doc unconditionally and returns the new version.
	Set(ctx context.Context, collection, id string, doc any) (int, error)
	// Update writes doc only if the stored version equals expected. It
	// returns domain.ErrVersionConflict on a mismatch.
	Update(ctx context.Context, collection, id string, expected int, doc any) (int, error)
	// Query returns documents whose top-level field equals value, newest first.
	Query(ctx context.Context, collection, field, value string) ([]Document, error)
	// List returns up to limit documents, newest first. limit <= 0 means all.
	List(ctx context.Context, collection string, limit int) ([]Document, error)
	Ping(ctx context.Context) error
}

const (
	CollectionCategories    = "categories"
	CollectionDrafts        = "productDrafts"
	CollectionSettings      = "aiSettings"
	CollectionConversations = "aiConversations"
	CollectionProducts      = "products"
)

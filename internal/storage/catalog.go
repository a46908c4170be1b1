package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/google/uuid"
)

const settingsID = "default"

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a category name into its URL-safe identifier.
func Slug(name string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// Catalog maps the domain records onto a DocumentStore.
type Catalog struct {
	docs DocumentStore
	now  func() time.Time
}

func NewCatalog(docs DocumentStore) *Catalog {
	return &Catalog{docs: docs, now: time.Now}
}

func (c *Catalog) Ping(ctx context.Context) error {
	return c.docs.Ping(ctx)
}

func (c *Catalog) ListCategories(ctx context.Context) ([]domain.Category, error) {
	docs, err := c.docs.List(ctx, CollectionCategories, 0)
	if err != nil {
		return nil, err
	}
	return decodeAll[domain.Category](docs)
}

// EnsureCategory returns the category with name's slug, creating it when missing.
func (c *Catalog) EnsureCategory(ctx context.Context, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	slug := Slug(name)
	if slug == "" {
		return domain.Category{}, fmt.Errorf("category name %q is empty", name)
	}
	docs, err := c.docs.Query(ctx, CollectionCategories, "slug", slug)
	if err != nil {
		return domain.Category{}, err
	}
	if len(docs) > 0 {
		var existing domain.Category
		err := json.Unmarshal(docs[0].Data, &existing)
		return existing, err
	}

	cat := domain.Category{ID: uuid.NewString(), Name: name, Slug: slug, CreatedAt: c.now().UTC()}
	if _, err := c.docs.Set(ctx, CollectionCategories, cat.ID, cat); err != nil {
		return domain.Category{}, err
	}
	return cat, nil
}

func (c *Catalog) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	var cat domain.Category
	_, err := c.get(ctx, CollectionCategories, id, &cat)
	return cat, err
}

func (c *Catalog) GetDraft(ctx context.Context, id string) (*domain.ProductDraft, error) {
	var d domain.ProductDraft
	version, err := c.get(ctx, CollectionDrafts, id, &d)
	if err != nil {
		return nil, err
	}
	d.Version = version
	return &d, nil
}

// CreateDraft stores a new draft and sets its Version.
func (c *Catalog) CreateDraft(ctx context.Context, d *domain.ProductDraft) error {
	version, err := c.docs.Set(ctx, CollectionDrafts, d.ID, d)
	if err != nil {
		return err
	}
	d.Version = version
	return nil
}

// UpdateDraft writes d if nobody else has since d.Version was read.
func (c *Catalog) UpdateDraft(ctx context.Context, d *domain.ProductDraft) error {
	version, err := c.docs.Update(ctx, CollectionDrafts, d.ID, d.Version, d)
	if err != nil {
		return err
	}
	d.Version = version
	return nil
}

// ListDrafts returns drafts newest first, filtered by status when set.
func (c *Catalog) ListDrafts(ctx context.Context, status domain.DraftStatus, limit int) ([]domain.ProductDraft, error) {
	var (
		docs []Document
		err  error
	)
	if status != "" {
		docs, err = c.docs.Query(ctx, CollectionDrafts, "status", string(status))
		if limit > 0 && len(docs) > limit {
			docs = docs[:limit]
		}
	} else {
		docs, err = c.docs.List(ctx, CollectionDrafts, limit)
	}
	if err != nil {
		return nil, err
	}
	drafts, err := decodeAll[domain.ProductDraft](docs)
	if err != nil {
		return nil, err
	}
	for i := range drafts {
		drafts[i].Version = docs[i].Version
	}
	return drafts, nil
}

func (c *Catalog) CreateProduct(ctx context.Context, p *domain.Product) error {
	_, err := c.docs.Set(ctx, CollectionProducts, p.ID, p)
	return err
}

func (c *Catalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if _, err := c.get(ctx, CollectionProducts, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Settings returns the stored settings, or ErrNotFound if none were saved.
func (c *Catalog) Settings(ctx context.Context) (*domain.AISettings, error) {
	var s domain.AISettings
	if _, err := c.get(ctx, CollectionSettings, settingsID, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Catalog) SaveSettings(ctx context.Context, s *domain.AISettings) error {
	s.UpdatedAt = c.now().UTC()
	_, err := c.docs.Set(ctx, CollectionSettings, settingsID, s)
	return err
}

func (c *Catalog) LogConversation(ctx context.Context, conv domain.Conversation) error {
	_, err := c.docs.Set(ctx, CollectionConversations, conv.ID, conv)
	return err
}

func (c *Catalog) get(ctx context.Context, collection, id string, dst any) (int, error) {
	doc, err := c.docs.Get(ctx, collection, id)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(doc.Data, dst); err != nil {
		return 0, fmt.Errorf("decoding %s/%s: %w", collection, id, err)
	}
	return doc.Version, nil
}

func decodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	var errs []error
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d.Data, &v); err != nil {
			errs = append(errs, fmt.Errorf("decoding %s: %w", d.ID, err))
			continue
		}
		out = append(out, v)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

package draft

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// mirrorConcurrency bounds parallel image copies during publish.
const mirrorConcurrency = 4

// Mirror copies a remote image into the media store.
type Mirror interface {
	Copy(ctx context.Context, prefix, src string) (string, error)
}

// Edit lists the fields an admin changes. Nil fields are left alone.
type Edit struct {
	Name             *string             `json:"name,omitempty"`
	Description      *string             `json:"description,omitempty"`
	ShortDescription *string             `json:"shortDescription,omitempty"`
	Images           []string            `json:"images,omitempty"`
	Specs            map[string]string   `json:"specs,omitempty"`
	Tags             []string            `json:"tags,omitempty"`
	Price            *float64            `json:"price,omitempty"`
	Currency         *string             `json:"currency,omitempty"`
	StockStatus      *domain.StockStatus `json:"stockStatus,omitempty"`
	VideoURL         *string             `json:"videoUrl,omitempty"`
	CategoryID       *string             `json:"categoryId,omitempty"`
	CategoryName     *string             `json:"categoryName,omitempty"`
	// Version, when set, must match the draft's current version.
	Version int `json:"version,omitempty"`
}

// ValidationError is an edit the draft cannot accept.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Reviewer implements the admin decisions on a draft. They are the only
// operations that change a draft's status.
type Reviewer struct {
	store Store
	// mirror may be nil, in which case images keep their source URLs.
	mirror Mirror
	// localPrefix marks images that already live in the media store.
	localPrefix string
	logger      *zap.Logger
	now         func() time.Time
}

func NewReviewer(store Store, mirror Mirror, localPrefix string, logger *zap.Logger) *Reviewer {
	return &Reviewer{store: store, mirror: mirror, localPrefix: localPrefix, logger: logger, now: time.Now}
}

func (rv *Reviewer) load(ctx context.Context, id string) (*domain.ProductDraft, error) {
	d, err := rv.store.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != domain.DraftReviewRequired {
		return nil, domain.ErrNotReviewable
	}
	return d, nil
}

// Edit applies e to the draft and records every changed field.
func (rv *Reviewer) Edit(ctx context.Context, id, adminID string, e Edit) (*domain.ProductDraft, error) {
	d, err := rv.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Version != 0 && e.Version != d.Version {
		return nil, domain.ErrVersionConflict
	}

	now := rv.now().UTC()
	changed := false
	record := func(field string, oldValue, newValue any) {
		d.AdminChanges = append(d.AdminChanges, domain.AdminChange{
			Field: field, OldValue: oldValue, NewValue: newValue, AdminID: adminID, At: now,
		})
		changed = true
	}
	p := &d.Product

	if e.Name != nil && *e.Name != p.Name {
		if strings.TrimSpace(*e.Name) == "" {
			return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
		}
		record("name", p.Name, *e.Name)
		p.Name = *e.Name
	}
	if e.Description != nil && *e.Description != p.Description {
		record("description", p.Description, *e.Description)
		p.Description = *e.Description
	}
	if e.ShortDescription != nil && *e.ShortDescription != p.ShortDescription {
		record("shortDescription", p.ShortDescription, *e.ShortDescription)
		p.ShortDescription = *e.ShortDescription
	}
	if e.Images != nil && !slices.Equal(e.Images, p.Images) {
		record("images", p.Images, e.Images)
		p.Images = e.Images
	}
	if e.Specs != nil && !maps.Equal(e.Specs, p.Specs) {
		record("specs", p.Specs, e.Specs)
		p.Specs = e.Specs
	}
	if e.Tags != nil && !slices.Equal(e.Tags, p.Tags) {
		record("tags", p.Tags, e.Tags)
		p.Tags = e.Tags
	}
	if e.Price != nil && (p.Price == nil || *p.Price != *e.Price) {
		if *e.Price < 0 {
			return nil, &ValidationError{Field: "price", Reason: "must not be negative"}
		}
		price := *e.Price
		record("price", p.Price, price)
		p.Price = &price
	}
	if e.Currency != nil && !strings.EqualFold(*e.Currency, p.Currency) {
		record("currency", p.Currency, strings.ToUpper(*e.Currency))
		p.Currency = strings.ToUpper(*e.Currency)
	}
	if e.StockStatus != nil && *e.StockStatus != p.StockStatus {
		switch *e.StockStatus {
		case domain.InStock, domain.OutOfStock, domain.Preorder:
		default:
			return nil, &ValidationError{Field: "stockStatus", Reason: fmt.Sprintf("unknown status %q", *e.StockStatus)}
		}
		record("stockStatus", p.StockStatus, *e.StockStatus)
		p.StockStatus = *e.StockStatus
	}
	if e.VideoURL != nil {
		oldVideo := ""
		if p.VideoURL != nil {
			oldVideo = *p.VideoURL
		}
		if *e.VideoURL != oldVideo {
			record("videoUrl", oldVideo, *e.VideoURL)
			p.VideoURL = nil
			if *e.VideoURL != "" {
				v := *e.VideoURL
				p.VideoURL = &v
			}
		}
	}
	if err := rv.applyCategory(ctx, d, e, record); err != nil {
		return nil, err
	}

	if !changed {
		return d, nil
	}
	d.UpdatedAt = now
	if err := rv.store.UpdateDraft(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (rv *Reviewer) applyCategory(ctx context.Context, d *domain.ProductDraft, e Edit, record func(string, any, any)) error {
	s := &d.SuggestedCategory
	switch {
	case e.CategoryID != nil && *e.CategoryID != s.CategoryID:
		cat, err := rv.store.GetCategory(ctx, *e.CategoryID)
		if err != nil {
			return fmt.Errorf("loading category %s: %w", *e.CategoryID, err)
		}
		record("category", s.SuggestedName, cat.Name)
		s.SuggestedName, s.CategoryID, s.ShouldCreate = cat.Name, cat.ID, false
	case e.CategoryID == nil && e.CategoryName != nil && *e.CategoryName != s.SuggestedName:
		name := strings.TrimSpace(*e.CategoryName)
		if name == "" {
			return &ValidationError{Field: "categoryName", Reason: "must not be empty"}
		}
		record("category", s.SuggestedName, name)
		s.SuggestedName, s.CategoryID, s.ShouldCreate = name, "", true
	default:
		return nil
	}
	s.Confidence = 1
	s.Reasoning = "Chosen by an admin."
	return nil
}

// Publish turns the draft into a live product. The price must have been
// confirmed, a new category is created when the draft asks for one and
// remote images are copied into the media store.
func (rv *Reviewer) Publish(ctx context.Context, id, adminID string) (*domain.Product, error) {
	d, err := rv.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Product.Price == nil {
		return nil, domain.ErrPriceRequired
	}

	cat, err := rv.category(ctx, d.SuggestedCategory)
	if err != nil {
		return nil, err
	}

	productID := uuid.NewString()
	images, warnings := rv.mirrorImages(ctx, productID, d.Product.Images)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := rv.now().UTC()
	d.AIMetadata.Warnings = append(d.AIMetadata.Warnings, warnings...)
	d.AdminChanges = append(d.AdminChanges, domain.AdminChange{
		Field: "status", OldValue: d.Status, NewValue: domain.DraftPublished, AdminID: adminID, At: now,
	})
	d.Product.Images = images
	d.Status = domain.DraftPublished
	d.PublishedAt = &now
	d.UpdatedAt = now
	d.ProductID = productID
	d.SuggestedCategory.CategoryID = cat.ID
	d.SuggestedCategory.SuggestedName = cat.Name
	d.SuggestedCategory.ShouldCreate = false
	if err := rv.store.UpdateDraft(ctx, d); err != nil {
		return nil, err
	}

	p := &domain.Product{
		ID:               productID,
		DraftID:          d.ID,
		Name:             d.Product.Name,
		Description:      d.Product.Description,
		ShortDescription: d.Product.ShortDescription,
		Images:           images,
		Specs:            d.Product.Specs,
		Tags:             d.Product.Tags,
		Price:            *d.Product.Price,
		Currency:         d.Product.Currency,
		StockStatus:      d.Product.StockStatus,
		ProductType:      d.Product.ProductType,
		VideoURL:         d.Product.VideoURL,
		CategoryID:       cat.ID,
		SourceURL:        d.AIMetadata.SourceURL,
		CreatedBy:        adminID,
		CreatedAt:        now,
	}
	if err := rv.store.CreateProduct(ctx, p); err != nil {
		rv.revertPublish(context.WithoutCancel(ctx), d)
		return nil, fmt.Errorf("creating product: %w", err)
	}
	rv.logger.Info("draft published", zap.String("draft_id", d.ID), zap.String("product_id", p.ID), zap.String("admin_id", adminID))
	return p, nil
}

func (rv *Reviewer) category(ctx context.Context, s domain.CategorySuggestion) (domain.Category, error) {
	if !s.ShouldCreate && s.CategoryID != "" {
		cat, err := rv.store.GetCategory(ctx, s.CategoryID)
		if err != nil {
			return domain.Category{}, fmt.Errorf("loading category %s: %w", s.CategoryID, err)
		}
		return cat, nil
	}
	cat, err := rv.store.EnsureCategory(ctx, s.SuggestedName)
	if err != nil {
		return domain.Category{}, fmt.Errorf("creating category %q: %w", s.SuggestedName, err)
	}
	return cat, nil
}

// mirrorImages copies remote images concurrently. A failed copy keeps the
// source URL and adds a warning.
func (rv *Reviewer) mirrorImages(ctx context.Context, productID string, images []string) ([]string, []string) {
	out := slices.Clone(images)
	if rv.mirror == nil || len(images) == 0 {
		return out, nil
	}
	failed := make([]error, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mirrorConcurrency)
	for i, src := range images {
		if rv.localPrefix != "" && strings.HasPrefix(src, rv.localPrefix) {
			continue
		}
		g.Go(func() error {
			u, err := rv.mirror.Copy(gctx, "products/"+productID, src)
			if err != nil {
				failed[i] = err
				return nil
			}
			out[i] = u
			return nil
		})
	}
	_ = g.Wait()

	var warnings []string
	for i, err := range failed {
		if err != nil {
			rv.logger.Warn("failed to mirror image", zap.String("src", images[i]), zap.Error(err))
			warnings = append(warnings, fmt.Sprintf("Image %s could not be copied and still points at the source site.", images[i]))
		}
	}
	return out, warnings
}

// revertPublish must run on a context that outlives the request, or a
// cancelled publish leaves the draft pointing at a product that was never stored.
func (rv *Reviewer) revertPublish(ctx context.Context, d *domain.ProductDraft) {
	d.Status = domain.DraftReviewRequired
	d.PublishedAt = nil
	d.ProductID = ""
	d.AdminChanges = d.AdminChanges[:len(d.AdminChanges)-1]
	if err := rv.store.UpdateDraft(ctx, d); err != nil {
		rv.logger.Error("failed to revert draft after product creation failed", zap.String("draft_id", d.ID), zap.Error(err))
	}
}

// Discard closes the draft without publishing it.
func (rv *Reviewer) Discard(ctx context.Context, id, adminID string) (*domain.ProductDraft, error) {
	d, err := rv.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := rv.now().UTC()
	d.AdminChanges = append(d.AdminChanges, domain.AdminChange{
		Field: "status", OldValue: d.Status, NewValue: domain.DraftDiscarded, AdminID: adminID, At: now,
	})
	d.Status = domain.DraftDiscarded
	d.UpdatedAt = now
	if err := rv.store.UpdateDraft(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// IsValidation reports whether err is a rejected edit.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

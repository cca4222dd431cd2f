package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/repositories"
)

const meterName = "github.com/muse-store/miniapp/internal/services"

var errResolverCatalogRequired = errors.New("target resolver: catalog repository is required")

// TargetResolverDeps wires the catalog and optional media offload collaborators.
type TargetResolverDeps struct {
	Catalog   repositories.CatalogRepository
	Store     MediaStore
	Publisher MediaEventPublisher
	SessionID string
	Clock     func() time.Time
	Logger    Logger
	Meter     metric.Meter
}

// TargetResolver maps an EditTarget onto the catalog slot it addresses and owns the single
// live-target slot of a session.
type TargetResolver struct {
	catalog   repositories.CatalogRepository
	store     MediaStore
	publisher MediaEventPublisher
	sessionID string
	now       func() time.Time
	logger    Logger
	committed metric.Int64Counter

	mu   sync.Mutex
	live *domain.EditTarget
}

// NewTargetResolver constructs a resolver enforcing dependency validation.
func NewTargetResolver(deps TargetResolverDeps) (*TargetResolver, error) {
	if deps.Catalog == nil {
		return nil, errResolverCatalogRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	committed, err := meter.Int64Counter("media_edits.committed",
		metric.WithDescription("Catalog image slots replaced by admin media edits"))
	if err != nil {
		logger(context.Background(), "target_resolver.metric_failed", map[string]any{"error": err.Error()})
	}
	return &TargetResolver{
		catalog:   deps.Catalog,
		store:     deps.Store,
		publisher: deps.Publisher,
		sessionID: deps.SessionID,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
		committed: committed,
	}, nil
}

// Acquire makes target the live target, discarding any prior unconsumed target.
func (r *TargetResolver) Acquire(target domain.EditTarget) error {
	if !target.Valid() {
		return fmt.Errorf("%w: %s", ErrEditTargetInvalid, target)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t := target
	r.live = &t
	return nil
}

// Live returns the live target, if any.
func (r *TargetResolver) Live() (domain.EditTarget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live == nil {
		return domain.EditTarget{}, false
	}
	return *r.live, true
}

// Release discards the live target without committing.
func (r *TargetResolver) Release() {
	r.mu.Lock()
	r.live = nil
	r.mu.Unlock()
}

// Resolve returns the current image of the addressed slot. ok is false when the slot does not
// exist: a hero index equal to the slide count (create case) or a vanished product/collection.
func (r *TargetResolver) Resolve(ctx context.Context, target domain.EditTarget) (string, bool, error) {
	if !target.Valid() {
		return "", false, fmt.Errorf("%w: %s", ErrEditTargetInvalid, target)
	}

	switch target.Kind {
	case domain.EditKindHero:
		count, err := r.catalog.HeroCount(ctx)
		if err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
		if target.Index == count {
			return "", false, nil
		}
		if target.Index > count {
			return "", false, fmt.Errorf("%w: hero index %d beyond %d slides", ErrEditTargetInvalid, target.Index, count)
		}
		image, err := r.catalog.HeroImage(ctx, target.Index)
		return r.resolved(image, err)
	case domain.EditKindProduct:
		product, err := r.catalog.FindProduct(ctx, target.ID)
		return r.resolved(product.Image, err)
	default:
		collection, err := r.catalog.FindCollection(ctx, target.ID)
		return r.resolved(collection.Image, err)
	}
}

func (r *TargetResolver) resolved(image string, err error) (string, bool, error) {
	if err != nil {
		if isRepoNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return image, true, nil
}

// Commit offloads image, writes it into the slot addressed by target and publishes the change.
// The pipeline runs the three steps separately so that only the write happens under its lock.
func (r *TargetResolver) Commit(ctx context.Context, target domain.EditTarget, image string) error {
	stored := r.Offload(ctx, target, image)
	written, err := r.Write(ctx, target, stored)
	if err != nil || !written {
		return err
	}
	r.Announce(ctx, target, stored)
	return nil
}

// Write stores image in the slot addressed by target and clears the live slot. It is the single
// consumption point of a target: a write for anything other than the live target is dropped, as
// is a write whose catalog entry has vanished. written reports whether the catalog changed.
func (r *TargetResolver) Write(ctx context.Context, target domain.EditTarget, image string) (written bool, err error) {
	r.mu.Lock()
	live := r.live
	r.live = nil
	r.mu.Unlock()

	if live == nil || *live != target {
		r.logger(ctx, "media_edit.commit.stale_target", map[string]any{"target": target.String()})
		return false, nil
	}
	if strings.TrimSpace(image) == "" {
		return false, fmt.Errorf("%w: empty image", ErrValidationGuard)
	}

	switch target.Kind {
	case domain.EditKindHero:
		err = r.catalog.ReplaceHeroImage(ctx, target.Index, image)
		if errors.Is(err, repositories.ErrHeroIndexOutOfRange) {
			err = repositories.NewNotFoundError("hero slide", target.Index)
		}
	case domain.EditKindProduct:
		err = r.catalog.ReplaceProductImage(ctx, target.ID, image)
	default:
		err = r.catalog.ReplaceCollectionImage(ctx, target.ID, image)
	}
	if err != nil {
		if isRepoNotFound(err) {
			r.logger(ctx, "media_edit.commit.stale_target", map[string]any{"target": target.String()})
			return false, nil
		}
		r.logger(ctx, "media_edit.commit.failed", map[string]any{"target": target.String(), "error": err.Error()})
		return false, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	if r.committed != nil {
		r.committed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(target.Kind))))
	}
	r.logger(ctx, "media_edit.committed", map[string]any{"target": target.String()})
	return true, nil
}

// Offload moves a data URI for the live target into the media store and returns its URL. Other
// images, and any image when the store is absent or fails, are returned unchanged.
func (r *TargetResolver) Offload(ctx context.Context, target domain.EditTarget, image string) string {
	if r.store == nil || !strings.HasPrefix(image, "data:") {
		return image
	}
	if live, ok := r.Live(); !ok || live != target {
		return image
	}
	url, err := r.store.Offload(ctx, target, image)
	if err != nil {
		r.logger(ctx, "media_edit.offload.failed", map[string]any{"target": target.String(), "error": err.Error()})
		return image
	}
	return url
}

// Announce publishes a committed event for target. Inline payloads are left out of the event.
func (r *TargetResolver) Announce(ctx context.Context, target domain.EditTarget, image string) {
	if r.publisher == nil {
		return
	}
	event := MediaCommittedEvent{Target: target, SessionID: r.sessionID, CommittedAt: r.now()}
	if !strings.HasPrefix(image, "data:") {
		event.Image = image
	}
	if err := r.publisher.PublishMediaCommitted(ctx, event); err != nil {
		r.logger(ctx, "media_edit.publish.failed", map[string]any{"target": target.String(), "error": err.Error()})
	}
}

package repositories

import (
	"context"

	domain "github.com/muse-store/miniapp/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogRepository exposes the externally owned catalog: hero slides, products and collections.
// Implementations only support reads and targeted image replacement.
type CatalogRepository interface {
	Snapshot(ctx context.Context) (domain.Catalog, error)
	FindProduct(ctx context.Context, productID int) (domain.Product, error)
	FindCollection(ctx context.Context, collectionID int) (domain.Collection, error)

	HeroImage(ctx context.Context, index int) (string, error)
	HeroCount(ctx context.Context) (int, error)
	// ReplaceHeroImage replaces the slide at index. An index equal to the current slide count
	// appends a new slide.
	ReplaceHeroImage(ctx context.Context, index int, image string) error
	ReplaceProductImage(ctx context.Context, productID int, image string) error
	ReplaceCollectionImage(ctx context.Context, collectionID int, image string) error
}

// ReviewRepository stores product reviews.
type ReviewRepository interface {
	ListByProduct(ctx context.Context, productID int) ([]domain.Review, error)
	Insert(ctx context.Context, review domain.Review) error
}

// HealthRepository exposes status of downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

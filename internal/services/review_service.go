package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/repositories"
)

const (
	reviewIDPrefix      = "rev_"
	reviewAuthor        = "You"
	reviewJustNow       = "Just now"
	maxReviewTextLength = 1000
	reviewEventCreated  = "review.created"
)

// ReviewSummary is a product's review list with its average rating.
type ReviewSummary struct {
	ProductID     int
	Reviews       []domain.Review
	AverageRating float64
}

// ReviewServiceDeps bundles collaborators required to construct a ReviewService.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Catalog     repositories.CatalogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

// ReviewService lists and records product reviews.
type ReviewService struct {
	reviews repositories.ReviewRepository
	catalog repositories.CatalogRepository
	now     func() time.Time
	newID   func() string
	logger  Logger
}

// NewReviewService wires dependencies into a ReviewService.
func NewReviewService(deps ReviewServiceDeps) (*ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("review service: catalog repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return reviewIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &ReviewService{
		reviews: deps.Reviews,
		catalog: deps.Catalog,
		now:     func() time.Time { return clock().UTC() },
		newID:   idGen,
		logger:  logger,
	}, nil
}

// List returns the product's reviews newest first with their average rating.
func (s *ReviewService) List(ctx context.Context, productID int) (ReviewSummary, error) {
	if productID <= 0 {
		return ReviewSummary{}, ErrReviewInvalidInput
	}
	reviews, err := s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return ReviewSummary{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return ReviewSummary{ProductID: productID, Reviews: reviews, AverageRating: averageRating(reviews)}, nil
}

// Add records a review authored by the current shopper.
func (s *ReviewService) Add(ctx context.Context, productID, rating int, text string) (domain.Review, error) {
	text = sanitizeText(text)
	if productID <= 0 || rating < 1 || rating > 5 || text == "" || len([]rune(text)) > maxReviewTextLength {
		return domain.Review{}, ErrReviewInvalidInput
	}
	if _, err := s.catalog.FindProduct(ctx, productID); err != nil {
		if isRepoNotFound(err) {
			return domain.Review{}, ErrProductNotFound
		}
		return domain.Review{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	review := domain.Review{
		ID:        s.newID(),
		ProductID: productID,
		Author:    reviewAuthor,
		Rating:    rating,
		Text:      text,
		Date:      reviewJustNow,
		CreatedAt: s.now(),
	}
	if err := s.reviews.Insert(ctx, review); err != nil {
		return domain.Review{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	s.logger(ctx, reviewEventCreated, map[string]any{"productId": productID, "reviewId": review.ID})
	return review, nil
}

func averageRating(reviews []domain.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	total := 0
	for _, r := range reviews {
		total += r.Rating
	}
	return math.Round(float64(total)/float64(len(reviews))*10) / 10
}

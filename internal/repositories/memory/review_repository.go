package memory

import (
	"context"
	"errors"
	"sync"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/repositories"
)

// ReviewRepository stores reviews newest first.
type ReviewRepository struct {
	mu      sync.RWMutex
	reviews []domain.Review
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)

// NewReviewRepository seeds the repository with the supplied reviews in display order.
func NewReviewRepository(seed []domain.Review) *ReviewRepository {
	return &ReviewRepository{reviews: append([]domain.Review(nil), seed...)}
}

func (r *ReviewRepository) ListByProduct(_ context.Context, productID int) ([]domain.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Review
	for _, review := range r.reviews {
		if review.ProductID == productID {
			out = append(out, review)
		}
	}
	return out, nil
}

func (r *ReviewRepository) Insert(_ context.Context, review domain.Review) error {
	if review.ID == "" {
		return errors.New("review repository: review id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reviews = append([]domain.Review{review}, r.reviews...)
	return nil
}

package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/muse-store/miniapp/internal/domain"
	pfirestore "github.com/muse-store/miniapp/internal/platform/firestore"
	"github.com/muse-store/miniapp/internal/repositories"
)

const reviewCollection = "reviews"

type reviewDocument struct {
	ProductID int       `firestore:"productId"`
	Author    string    `firestore:"author"`
	Rating    int       `firestore:"rating"`
	Text      string    `firestore:"text"`
	Date      string    `firestore:"date"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// ReviewRepository stores reviews under products/{productID}/reviews.
type ReviewRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	return &ReviewRepository{provider: provider}, nil
}

func (r *ReviewRepository) ListByProduct(ctx context.Context, productID int) ([]domain.Review, error) {
	reviews := pfirestore.NewCollection[reviewDocument](r.provider, r.path(productID), nil)
	docs, err := reviews.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.Review{
			ID:        doc.ID,
			ProductID: doc.Data.ProductID,
			Author:    doc.Data.Author,
			Rating:    doc.Data.Rating,
			Text:      doc.Data.Text,
			Date:      doc.Data.Date,
			CreatedAt: doc.Data.CreatedAt,
		})
	}
	return out, nil
}

func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) error {
	if strings.TrimSpace(review.ID) == "" {
		return errors.New("review repository: review id is required")
	}
	reviews := pfirestore.NewCollection[reviewDocument](r.provider, r.path(review.ProductID), nil)
	ref, err := reviews.DocumentRef(ctx, review.ID)
	if err != nil {
		return err
	}
	createdAt := review.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = ref.Create(ctx, reviewDocument{
		ProductID: review.ProductID,
		Author:    review.Author,
		Rating:    review.Rating,
		Text:      review.Text,
		Date:      review.Date,
		CreatedAt: createdAt.UTC(),
	})
	return pfirestore.WrapError("reviews.create", err)
}

func (r *ReviewRepository) path(productID int) string {
	return productCollection + "/" + docID(productID) + "/" + reviewCollection
}

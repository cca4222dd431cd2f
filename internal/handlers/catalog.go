package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/platform/auth"
	"github.com/muse-store/miniapp/internal/platform/httpx"
	"github.com/muse-store/miniapp/internal/services"
)

// ReviewLister lists and records product reviews.
type ReviewLister interface {
	List(ctx context.Context, productID int) (services.ReviewSummary, error)
	Add(ctx context.Context, productID, rating int, text string) (domain.Review, error)
}

// CatalogHandlers serve the session-filtered catalog and product reviews.
type CatalogHandlers struct {
	parser   auth.TokenParser
	sessions SessionStore
	reviews  ReviewLister
	present  *presenter
}

// NewCatalogHandlers constructs the catalog handlers. The catalog is filtered by the caller's
// session search, so both groups require a session token.
func NewCatalogHandlers(parser auth.TokenParser, sessions SessionStore, reviews ReviewLister, currency string) *CatalogHandlers {
	return &CatalogHandlers{
		parser:   parser,
		sessions: sessions,
		reviews:  reviews,
		present:  newPresenter(currency),
	}
}

// Routes wires /catalog and /products/{productID}/reviews.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		g.Use(auth.RequireSession(h.parser))
		g.Get("/catalog", h.getCatalog)
		g.Get("/products/{productID}/reviews", h.listReviews)
		g.Post("/products/{productID}/reviews", h.addReview)
	})
}

func (h *CatalogHandlers) getCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	session, err := h.sessions.Get(identity.SessionID)
	if err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	view, err := session.Catalog(ctx)
	if err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.present.catalog(view))
}

type reviewListResponse struct {
	ProductID     int             `json:"productId"`
	AverageRating float64         `json:"averageRating"`
	Reviews       []reviewPayload `json:"reviews"`
}

func (h *CatalogHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "reviews are unavailable", http.StatusServiceUnavailable))
		return
	}
	productID, ok := pathInt(w, r, "productID")
	if !ok {
		return
	}
	summary, err := h.reviews.List(ctx, productID)
	if err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	resp := reviewListResponse{
		ProductID:     summary.ProductID,
		AverageRating: summary.AverageRating,
		Reviews:       make([]reviewPayload, 0, len(summary.Reviews)),
	}
	for _, review := range summary.Reviews {
		resp.Reviews = append(resp.Reviews, buildReviewPayload(review))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

type addReviewRequest struct {
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

func (h *CatalogHandlers) addReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "reviews are unavailable", http.StatusServiceUnavailable))
		return
	}
	productID, ok := pathInt(w, r, "productID")
	if !ok {
		return
	}
	var req addReviewRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	review, err := h.reviews.Add(ctx, productID, req.Rating, req.Text)
	if err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"review": buildReviewPayload(review)})
}

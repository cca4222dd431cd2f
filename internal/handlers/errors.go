package handlers

import (
	"context"
	"errors"
	"net/http"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/media"
	"github.com/muse-store/miniapp/internal/platform/httpx"
	"github.com/muse-store/miniapp/internal/repositories"
	"github.com/muse-store/miniapp/internal/services"
)

// writeStorefrontError maps service sentinels onto the JSON error envelope.
func writeStorefrontError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "session expired or unknown", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCollectionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("collection_not_found", "collection not found", http.StatusNotFound))
	case errors.Is(err, services.ErrValidationGuard),
		errors.Is(err, services.ErrCartInvalidInput),
		errors.Is(err, services.ErrReviewInvalidInput),
		errors.Is(err, services.ErrEditTargetInvalid),
		errors.Is(err, domain.ErrUnknownEditKind):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAdminRequired), errors.Is(err, services.ErrAdminNotPermitted):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrIllegalTransition):
		httpx.WriteError(ctx, w, httpx.NewError("illegal_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPipelineBusy),
		errors.Is(err, services.ErrChatBusy),
		errors.Is(err, services.ErrCheckoutInProgress):
		httpx.WriteError(ctx, w, httpx.NewError("busy", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrEditCancelled):
		httpx.WriteError(ctx, w, httpx.NewError("edit_cancelled", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment could not be completed", http.StatusPaymentRequired))
	case errors.Is(err, media.ErrTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "image exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, services.ErrUploadDecodeFailed), errors.Is(err, media.ErrNotImage), errors.Is(err, media.ErrEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("upload_invalid", "file could not be read as an image", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrRemoteImageUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("remote_image_unavailable", services.RemoteImageUnavailableMessage, http.StatusBadGateway))
	case errors.Is(err, services.ErrGenerationFailed):
		message := services.GenerationFailedMessage
		var genErr *services.GenerationError
		if errors.As(err, &genErr) {
			message = genErr.Message
		}
		httpx.WriteError(ctx, w, httpx.NewError("generation_failed", message, http.StatusBadGateway))
	case errors.Is(err, services.ErrGenerationUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("generation_unavailable", "image generation is not configured", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrChatUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("chat_unavailable", "concierge is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "failed to process request", http.StatusInternalServerError))
	}
}

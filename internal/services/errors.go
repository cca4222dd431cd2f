package services

import (
	"errors"
	"strings"

	"github.com/muse-store/miniapp/internal/repositories"
)

var (
	// ErrValidationGuard indicates a precondition the UI should have prevented, such as a blank prompt.
	ErrValidationGuard = errors.New("storefront: validation guard")
	// ErrIllegalTransition indicates a navigation or pipeline transition the state machine forbids.
	ErrIllegalTransition = errors.New("storefront: illegal transition")
	// ErrEditTargetInvalid indicates a malformed edit target.
	ErrEditTargetInvalid = errors.New("media edit: invalid target")
	// ErrPipelineBusy indicates an asynchronous media request is still outstanding.
	ErrPipelineBusy = errors.New("media edit: request in flight")
	// ErrEditCancelled indicates a late result that arrived after cancel or re-targeting.
	ErrEditCancelled = errors.New("media edit: edit cancelled")
	// ErrUploadDecodeFailed indicates the uploaded file could not be read as an image.
	ErrUploadDecodeFailed = errors.New("media edit: upload could not be decoded")
	// ErrRemoteImageUnavailable indicates the working image could not be fetched for generation.
	ErrRemoteImageUnavailable = errors.New("media edit: remote image unavailable")
	// ErrGenerationFailed indicates the image-generation collaborator failed.
	ErrGenerationFailed = errors.New("media edit: generation failed")
	// ErrGenerationUnavailable indicates no image-generation collaborator is configured.
	ErrGenerationUnavailable = errors.New("media edit: generation unavailable")

	// ErrCartInvalidInput indicates the caller supplied invalid cart input.
	ErrCartInvalidInput = errors.New("cart ledger: invalid input")

	// ErrCheckoutEmptyCart indicates checkout was requested with an empty cart.
	ErrCheckoutEmptyCart = errors.New("checkout: cart is empty")
	// ErrCheckoutInProgress indicates a checkout is already being processed.
	ErrCheckoutInProgress = errors.New("checkout: already in progress")
	// ErrCheckoutFailed indicates the payment processor rejected the checkout.
	ErrCheckoutFailed = errors.New("checkout: payment failed")

	// ErrChatBusy indicates a concierge message is still awaiting its reply.
	ErrChatBusy = errors.New("chat: reply pending")
	// ErrChatUnavailable indicates the chat collaborator failed or is not configured.
	ErrChatUnavailable = errors.New("chat: unavailable")

	// ErrReviewInvalidInput indicates a malformed review.
	ErrReviewInvalidInput = errors.New("review service: invalid input")

	// ErrProductNotFound indicates the product does not exist in the catalog.
	ErrProductNotFound = errors.New("storefront: product not found")
	// ErrCollectionNotFound indicates the collection does not exist in the catalog.
	ErrCollectionNotFound = errors.New("storefront: collection not found")
	// ErrCatalogUnavailable indicates the catalog backend failed.
	ErrCatalogUnavailable = errors.New("storefront: catalog unavailable")

	// ErrAdminRequired indicates an admin-only operation outside admin mode.
	ErrAdminRequired = errors.New("storefront: admin mode required")
	// ErrAdminNotPermitted indicates the user may not enable admin mode.
	ErrAdminNotPermitted = errors.New("storefront: admin mode not permitted")

	// ErrSessionNotFound indicates the session id is unknown or expired.
	ErrSessionNotFound = errors.New("session registry: session not found")
)

// RemoteImageUnavailableMessage is shown to the admin when ErrRemoteImageUnavailable occurs.
const RemoteImageUnavailableMessage = "Could not access the remote image directly. Please try uploading a file instead."

// GenerationFailedMessage is shown when the image editor fails without a message of its own.
const GenerationFailedMessage = "Failed to generate image."

// GenerationError carries the image editor's failure message unchanged so it can be shown as is.
// It matches ErrGenerationFailed.
type GenerationError struct {
	Message string
}

func newGenerationError(err error) *GenerationError {
	msg := ""
	if err != nil {
		msg = strings.TrimSpace(err.Error())
	}
	if msg == "" {
		msg = GenerationFailedMessage
	}
	return &GenerationError{Message: msg}
}

func (e *GenerationError) Error() string { return e.Message }

// Is reports whether target is ErrGenerationFailed.
func (e *GenerationError) Is(target error) bool { return target == ErrGenerationFailed }

func isRepoNotFound(err error) bool {
	return repositories.IsNotFound(err)
}

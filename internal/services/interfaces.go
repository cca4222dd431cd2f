package services

import (
	"context"
	"io"
	"time"

	domain "github.com/muse-store/miniapp/internal/domain"
)

// Logger is the structured event hook shared by services.
type Logger func(ctx context.Context, event string, fields map[string]any)

func noopLogger(context.Context, string, map[string]any) {}

// ChatModel is the remote concierge chat collaborator. History excludes message.
type ChatModel interface {
	Send(ctx context.Context, history []domain.ChatMessage, message string) (string, error)
}

// ImageEditor is the remote image-generation collaborator. Both payloads are data URIs.
type ImageEditor interface {
	Edit(ctx context.Context, imageDataURI, prompt string) (string, error)
}

// ImageFetcher downloads a remote image and converts it to a data URI.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// ImageDecoder reads a local upload and converts it to a displayable data URI.
type ImageDecoder interface {
	Decode(r io.Reader) (string, error)
}

// HapticSink accepts best-effort tactile feedback. Implementations must not block.
type HapticSink interface {
	Notify(event domain.HapticEvent)
}

// ControlSurface receives the desired state of the host's native controls. Implementations
// unbind previous click handlers before binding new ones.
type ControlSurface interface {
	SetDescriptor(descriptor domain.ControlDescriptor)
}

// MediaStore persists committed media payloads and returns the URL to store in the catalog.
type MediaStore interface {
	Offload(ctx context.Context, target domain.EditTarget, dataURI string) (string, error)
}

// MediaCommittedEvent is emitted after a catalog image slot changes.
type MediaCommittedEvent struct {
	Target      domain.EditTarget
	Image       string
	SessionID   string
	CommittedAt time.Time
}

// MediaEventPublisher fans committed media edits out to downstream consumers.
type MediaEventPublisher interface {
	PublishMediaCommitted(ctx context.Context, event MediaCommittedEvent) error
}

// PaymentProcessor settles a checkout. The shipped implementation only simulates latency.
type PaymentProcessor interface {
	Charge(ctx context.Context, sessionID string, amount int64) error
}

type hapticFunc func(domain.HapticEvent)

func (f hapticFunc) Notify(event domain.HapticEvent) { f(event) }

var noopHaptics HapticSink = hapticFunc(func(domain.HapticEvent) {})

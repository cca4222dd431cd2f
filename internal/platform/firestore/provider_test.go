package firestore

import (
	"context"
	"errors"
	"testing"

	"github.com/muse-store/miniapp/internal/platform/config"
)

func TestProviderRequiresProjectID(t *testing.T) {
	t.Setenv(envGoogleProjectID, "")
	provider := NewProvider(config.FirestoreConfig{})
	if _, err := provider.Client(context.Background()); err == nil {
		t.Fatal("expected error without project id")
	}
}

func TestProviderClosedRejectsClient(t *testing.T) {
	provider := NewProvider(config.FirestoreConfig{ProjectID: "p"})
	if err := provider.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := provider.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := provider.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}

func TestProviderEmulatorHostPrefersConfig(t *testing.T) {
	t.Setenv(envEmulatorHost, "env:1")
	provider := NewProvider(config.FirestoreConfig{EmulatorHost: " cfg:2 "})
	if got := provider.emulatorHost(); got != "cfg:2" {
		t.Fatalf("expected cfg:2, got %q", got)
	}
	provider = NewProvider(config.FirestoreConfig{})
	if got := provider.emulatorHost(); got != "env:1" {
		t.Fatalf("expected env:1, got %q", got)
	}
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/host"
)

func newTestRegistry(t *testing.T, now *time.Time, admins []int64) *SessionRegistry {
	t.Helper()
	n := 0
	registry, err := NewSessionRegistry(SessionRegistryDeps{
		Template: StorefrontDeps{
			Catalog:  newSeedCatalog(t),
			Decoder:  stubDecoder{},
			Payments: stubPayments{},
		},
		Hosts:        func() SessionHost { return host.NewMemory() },
		AdminUserIDs: admins,
		IdleTTL:      time.Hour,
		Clock:        func() time.Time { return *now },
		IDGenerator: func() string {
			n++
			return "SESSION" + string(rune('A'+n))
		},
	})
	if err != nil {
		t.Fatalf("NewSessionRegistry: %v", err)
	}
	return registry
}

func TestSessionRegistryCreateAndGet(t *testing.T) {
	now := testNow
	registry := newTestRegistry(t, &now, []int64{7})

	shopper, err := registry.Create(context.Background(), domain.UserProfile{ID: 42})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	admin, err := registry.Create(context.Background(), domain.UserProfile{ID: 7})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if shopper.ID() != "sessionb" || admin.ID() != "sessionc" {
		t.Fatalf("unexpected ids %q %q", shopper.ID(), admin.ID())
	}
	if shopper.Snapshot().AdminEligible || !admin.Snapshot().AdminEligible {
		t.Fatal("admin eligibility must follow the configured user ids")
	}

	got, err := registry.Get(shopper.ID())
	if err != nil || got != shopper {
		t.Fatalf("Get returned %v, %v", got, err)
	}
	if _, err := registry.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := registry.Create(context.Background(), domain.UserProfile{}); err == nil {
		t.Fatal("expected anonymous users to be rejected")
	}
}

func TestSessionRegistryExpiresIdleSessions(t *testing.T) {
	now := testNow
	registry := newTestRegistry(t, &now, nil)
	ctx := context.Background()

	idle, _ := registry.Create(ctx, domain.UserProfile{ID: 1})
	active, _ := registry.Create(ctx, domain.UserProfile{ID: 2})

	now = now.Add(50 * time.Minute)
	active.Home()
	now = now.Add(20 * time.Minute)

	if removed := registry.Sweep(ctx); removed != 1 {
		t.Fatalf("expected one session swept, got %d", removed)
	}
	if _, err := registry.Get(idle.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected idle session to be gone, got %v", err)
	}
	if _, err := registry.Get(active.ID()); err != nil {
		t.Fatalf("expected active session to survive, got %v", err)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", registry.Len())
	}
}

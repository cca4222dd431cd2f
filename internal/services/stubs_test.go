package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/host"
	"github.com/muse-store/miniapp/internal/repositories/memory"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type stubDecoder struct {
	decodeFunc func(r io.Reader) (string, error)
}

func (s stubDecoder) Decode(r io.Reader) (string, error) {
	if s.decodeFunc != nil {
		return s.decodeFunc(r)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", errors.New("empty upload")
	}
	return "data:image/png;base64," + string(raw), nil
}

type stubEditor struct {
	mu       sync.Mutex
	calls    int
	editFunc func(ctx context.Context, image, prompt string) (string, error)
}

func (s *stubEditor) Edit(ctx context.Context, image, prompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	fn := s.editFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, image, prompt)
	}
	return "data:image/png;base64,EDITED", nil
}

func (s *stubEditor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubFetcher struct {
	fetchFunc func(ctx context.Context, url string) (string, error)
}

func (s stubFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if s.fetchFunc != nil {
		return s.fetchFunc(ctx, url)
	}
	return "data:image/jpeg;base64,FETCHED", nil
}

type stubChatModel struct {
	sendFunc func(ctx context.Context, history []domain.ChatMessage, message string) (string, error)
}

func (s stubChatModel) Send(ctx context.Context, history []domain.ChatMessage, message string) (string, error) {
	return s.sendFunc(ctx, history, message)
}

type stubPayments struct {
	chargeFunc func(ctx context.Context, sessionID string, amount int64) error
}

func (s stubPayments) Charge(ctx context.Context, sessionID string, amount int64) error {
	if s.chargeFunc != nil {
		return s.chargeFunc(ctx, sessionID, amount)
	}
	return nil
}

type stubMediaStore struct {
	offloadFunc func(ctx context.Context, target domain.EditTarget, dataURI string) (string, error)
}

func (s stubMediaStore) Offload(ctx context.Context, target domain.EditTarget, dataURI string) (string, error) {
	return s.offloadFunc(ctx, target, dataURI)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []MediaCommittedEvent
}

func (p *recordingPublisher) PublishMediaCommitted(_ context.Context, event MediaCommittedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []MediaCommittedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]MediaCommittedEvent(nil), p.events...)
}

type recordingHaptics struct {
	mu     sync.Mutex
	events []domain.HapticEvent
}

func (h *recordingHaptics) Notify(event domain.HapticEvent) {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
}

func (h *recordingHaptics) last() domain.HapticEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) == 0 {
		return domain.HapticEvent{}
	}
	return h.events[len(h.events)-1]
}

func newSeedCatalog(t *testing.T) *memory.CatalogRepository {
	t.Helper()
	repo, err := memory.NewSeedCatalogRepository()
	if err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	return repo
}

type storefrontFixture struct {
	store   *Storefront
	host    *host.Memory
	catalog *memory.CatalogRepository
	editor  *stubEditor
}

func newStorefrontFixture(t *testing.T, mutate func(*StorefrontDeps)) storefrontFixture {
	t.Helper()
	catalog := newSeedCatalog(t)
	mem := host.NewMemory()
	editor := &stubEditor{}
	deps := StorefrontDeps{
		SessionID:     "sess-1",
		User:          domain.UserProfile{ID: 42, FirstName: "Ada"},
		AdminEligible: true,
		Catalog:       catalog,
		Host:          mem,
		Decoder:       stubDecoder{},
		Fetcher:       stubFetcher{},
		Editor:        editor,
		Payments:      stubPayments{},
		Clock:         fixedClock,
	}
	if mutate != nil {
		mutate(&deps)
	}
	store, err := NewStorefront(deps)
	if err != nil {
		t.Fatalf("NewStorefront: %v", err)
	}
	return storefrontFixture{store: store, host: mem, catalog: catalog, editor: editor}
}

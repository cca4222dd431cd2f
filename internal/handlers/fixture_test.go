package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/muse-store/miniapp/internal/host"
	"github.com/muse-store/miniapp/internal/media"
	"github.com/muse-store/miniapp/internal/platform/auth"
	"github.com/muse-store/miniapp/internal/platform/idempotency"
	"github.com/muse-store/miniapp/internal/repositories/memory"
	"github.com/muse-store/miniapp/internal/services"
)

const (
	testBotToken   = "123456:TEST-TOKEN"
	testSigningKey = "test-signing-key"
	testAdminID    = int64(42)
	testShopperID  = int64(7)
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type apiFixture struct {
	router   chi.Router
	verifier *auth.InitDataVerifier
	registry *services.SessionRegistry
	catalog  *memory.CatalogRepository
}

type fixtureOptions struct {
	hosts               services.HostFactory
	generationPerMinute int
	replays             idempotency.Store
	editor              services.ImageEditor
}

type editorFunc func(ctx context.Context, image, prompt string) (string, error)

func (f editorFunc) Edit(ctx context.Context, image, prompt string) (string, error) {
	return f(ctx, image, prompt)
}

func newAPIFixture(t *testing.T, mutate func(*fixtureOptions)) *apiFixture {
	t.Helper()
	opts := fixtureOptions{
		hosts: func() services.SessionHost { return host.NewMemory() },
	}
	if mutate != nil {
		mutate(&opts)
	}

	seed, reviews, err := memory.Seed()
	if err != nil {
		t.Fatalf("memory.Seed: %v", err)
	}
	catalog := memory.NewCatalogRepository(seed)

	registry, err := services.NewSessionRegistry(services.SessionRegistryDeps{
		Template: services.StorefrontDeps{
			Catalog:     catalog,
			Decoder:     media.NewDecoder(0),
			Editor:      opts.editor,
			Payments:    services.SimulatedPaymentProcessor{},
			ShippingFee: 25,
			Currency:    "$",
			Clock:       fixedClock,
		},
		Hosts:        opts.hosts,
		AdminUserIDs: []int64{testAdminID},
		Clock:        fixedClock,
	})
	if err != nil {
		t.Fatalf("NewSessionRegistry: %v", err)
	}
	reviewService, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews: memory.NewReviewRepository(reviews),
		Catalog: catalog,
		Clock:   fixedClock,
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}

	tokens, err := auth.NewSessionTokens(testSigningKey, time.Hour)
	if err != nil {
		t.Fatalf("NewSessionTokens: %v", err)
	}
	tokens = tokens.WithClock(fixedClock)
	verifier := auth.NewInitDataVerifier(testBotToken, auth.WithInitDataClock(fixedClock))

	sessions := NewSessionHandlers(SessionHandlerDeps{
		Verifier:            verifier,
		Tokens:              tokens,
		Parser:              tokens,
		Sessions:            registry,
		Currency:            "$",
		GenerationPerMinute: opts.generationPerMinute,
		Replays:             opts.replays,
		Clock:               fixedClock,
	})
	catalogHandlers := NewCatalogHandlers(tokens, registry, reviewService, "$")

	return &apiFixture{
		router:   NewRouter(WithSessionRoutes(sessions.Routes), WithCatalogRoutes(catalogHandlers.Routes)),
		verifier: verifier,
		registry: registry,
		catalog:  catalog,
	}
}

func (f *apiFixture) initData(userID int64) string {
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(testNow.Add(-time.Minute).Unix(), 10))
	values.Set("query_id", "AAHdF6IQAAAAAN0XohDhrOrc")
	values.Set("user", fmt.Sprintf(`{"id":%d,"first_name":"Ada","last_name":"Muse","username":"ada","language_code":"ru-RU"}`, userID))
	values.Set("hash", f.verifier.Sign(values))
	return values.Encode()
}

// login opens a session for userID and returns its bearer token.
func (f *apiFixture) login(t *testing.T, userID int64) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"initData": f.initData(userID)})
	rr := f.do(t, http.MethodPost, "/api/v1/sessions", "", bytes.NewReader(body), "application/json")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating session, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp createSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected session token")
	}
	return resp.Token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *apiFixture) doJSON(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	return f.do(t, method, path, token, reader, "application/json")
}

func decodeSession(t *testing.T, rr *httptest.ResponseRecorder) sessionPayload {
	t.Helper()
	var payload sessionPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode session payload: %v (%s)", err, rr.Body.String())
	}
	return payload
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	code, _ := payload["error"].(string)
	return code
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muse-store/miniapp/internal/platform/requestctx"
)

func TestSessionTokensRoundTrip(t *testing.T) {
	tokens, err := NewSessionTokens("signing-key", time.Hour)
	require.NoError(t, err)

	signed, expiresAt, err := tokens.Issue(Identity{UserID: 42, SessionID: "01HSESSION", AdminEligible: true})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	identity, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, int64(42), identity.UserID)
	assert.Equal(t, "01HSESSION", identity.SessionID)
	assert.True(t, identity.AdminEligible)
}

func TestSessionTokensRejectExpiredAndForeign(t *testing.T) {
	issuedAt := time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC)
	tokens, err := NewSessionTokens("signing-key", time.Hour)
	require.NoError(t, err)

	signed, _, err := tokens.WithClock(func() time.Time { return issuedAt }).Issue(Identity{UserID: 1, SessionID: "s"})
	require.NoError(t, err)

	_, err = tokens.WithClock(func() time.Time { return issuedAt.Add(2 * time.Hour) }).Parse(signed)
	require.ErrorIs(t, err, ErrSessionTokenExpired)

	other, err := NewSessionTokens("other-key", time.Hour)
	require.NoError(t, err)
	_, err = other.WithClock(func() time.Time { return issuedAt }).Parse(signed)
	require.ErrorIs(t, err, ErrSessionTokenInvalid)
}

func TestNewSessionTokensRequiresKey(t *testing.T) {
	_, err := NewSessionTokens(" ", time.Hour)
	require.Error(t, err)
}

func TestRequireSessionMiddleware(t *testing.T) {
	tokens, err := NewSessionTokens("signing-key", time.Hour)
	require.NoError(t, err)
	signed, _, err := tokens.Issue(Identity{UserID: 9, SessionID: "sess"})
	require.NoError(t, err)

	var seen *Identity
	var seenSession string
	handler := RequireSession(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		seenSession = requestctx.SessionID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "sess", seen.SessionID)
	assert.Equal(t, "sess", seenSession)

	wsReq := httptest.NewRequest(http.MethodGet, "/api/v1/session/ws?token="+signed, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, wsReq)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	bad.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

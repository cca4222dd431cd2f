package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muse-store/miniapp/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "trace-1"})
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("remote_image_unavailable", "could not\nfetch", http.StatusBadGateway).
		WithDetails(map[string]any{"state": "awaiting_generation"}))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "remote_image_unavailable", body["error"])
	assert.Equal(t, "could not fetch", body["message"])
	assert.Equal(t, "trace-1", body["trace_id"])
	assert.Equal(t, "awaiting_generation", body["state"])
	assert.EqualValues(t, http.StatusBadGateway, body["status"])
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	err := NewError("boom", "boom", 0)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}

func TestDetailsCannotOverrideEnvelopeKeys(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), rec, NewError("rate_limited", "slow down", http.StatusTooManyRequests).
		WithDetails(map[string]any{"error": "spoofed", "scope": "chat"}))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["error"])
	assert.Equal(t, "chat", body["scope"])
	assert.NotContains(t, body, "request_id")
}

func TestErrorImplementsError(t *testing.T) {
	var err error = NewError("cart_empty", "cart is empty", http.StatusConflict)
	assert.Equal(t, "cart_empty: cart is empty", err.Error())
}

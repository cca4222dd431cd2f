package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/muse-store/miniapp/internal/services"
)

func pngUpload(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(uploadFormField, "pixel.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write(pngPixel)
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestGenerationFailureMessageIsShownVerbatim(t *testing.T) {
	const quota = "Quota exceeded for image model"
	f := newAPIFixture(t, func(o *fixtureOptions) {
		o.editor = editorFunc(func(context.Context, string, string) (string, error) {
			return "", errors.New(quota)
		})
	})
	token := f.login(t, testAdminID)
	f.doJSON(t, http.MethodPost, "/api/v1/session/admin:toggle", token, "")
	f.doJSON(t, http.MethodPost, "/api/v1/session/media-edits", token, `{"kind":"hero","index":0}`)
	rr := f.doJSON(t, http.MethodPost, "/api/v1/session/media-edits:generate-mode", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("generate mode: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body, contentType := pngUpload(t)
	rr = f.do(t, http.MethodPut, "/api/v1/session/media-edits/working-image", token, body, contentType)
	if rr.Code != http.StatusOK {
		t.Fatalf("working image: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = f.doJSON(t, http.MethodPost, "/api/v1/session/media-edits:generate", token, `{"prompt":"golden hour"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["error"] != "generation_failed" || payload["message"] != quota {
		t.Fatalf("expected the editor message verbatim, got %v", payload)
	}

	rr = f.doJSON(t, http.MethodGet, "/api/v1/session", token, "")
	if snap := decodeSession(t, rr); snap.Pipeline.LastError != quota {
		t.Fatalf("expected last error %q, got %q", quota, snap.Pipeline.LastError)
	}
}

func TestStandaloneStudioGeneratesWithoutTarget(t *testing.T) {
	f := newAPIFixture(t, func(o *fixtureOptions) {
		o.editor = editorFunc(func(context.Context, string, string) (string, error) {
			return "data:image/png;base64,EDITED", nil
		})
	})
	token := f.login(t, testShopperID)

	rr := f.doJSON(t, http.MethodPost, "/api/v1/session/navigate", token, `{"view":"ai-studio"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("open studio: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	snap := decodeSession(t, rr)
	if snap.Pipeline.State != string(services.PipelineAwaitingGeneration) || snap.Pipeline.Target != nil {
		t.Fatalf("expected a target-less generation pipeline, got %+v", snap.Pipeline)
	}

	rr = f.doJSON(t, http.MethodPost, "/api/v1/session/media-edits:generate", token, `{"prompt":"golden hour"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 before a working image is set, got %d", rr.Code)
	}

	body, contentType := pngUpload(t)
	rr = f.do(t, http.MethodPut, "/api/v1/session/media-edits/working-image", token, body, contentType)
	if rr.Code != http.StatusOK {
		t.Fatalf("working image: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = f.doJSON(t, http.MethodPost, "/api/v1/session/media-edits:generate", token, `{"prompt":"golden hour"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	snap = decodeSession(t, rr)
	if snap.Pipeline.Staged != "data:image/png;base64,EDITED" || snap.Pipeline.Savable {
		t.Fatalf("expected a download-only staged result, got %+v", snap.Pipeline)
	}

	rr = f.doJSON(t, http.MethodPost, "/api/v1/session/media-edits:save", token, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 saving outside admin mode, got %d", rr.Code)
	}

	rr = f.doJSON(t, http.MethodPost, "/api/v1/session/media-edits:retry", token, "")
	if snap = decodeSession(t, rr); rr.Code != http.StatusOK || snap.Pipeline.Staged != "" {
		t.Fatalf("retry: expected staged result cleared, got %d %+v", rr.Code, snap.Pipeline)
	}

	rr = f.doJSON(t, http.MethodPost, "/api/v1/session/controls/back:activate", token, "")
	if snap = decodeSession(t, rr); snap.Pipeline.State != string(services.PipelineIdle) {
		t.Fatalf("expected leaving the studio to reset the pipeline, got %+v", snap.Pipeline)
	}
}

func TestStandaloneResultCannotBeSavedByAdmin(t *testing.T) {
	f := newAPIFixture(t, func(o *fixtureOptions) {
		o.editor = editorFunc(func(context.Context, string, string) (string, error) {
			return "data:image/png;base64,EDITED", nil
		})
	})
	token := f.login(t, testAdminID)
	f.doJSON(t, http.MethodPost, "/api/v1/session/admin:toggle", token, "")
	f.doJSON(t, http.MethodPost, "/api/v1/session/navigate", token, `{"view":"ai-studio"}`)
	body, contentType := pngUpload(t)
	f.do(t, http.MethodPut, "/api/v1/session/media-edits/working-image", token, body, contentType)
	rr := f.doJSON(t, http.MethodPost, "/api/v1/session/media-edits:generate", token, `{"prompt":"golden hour"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = f.doJSON(t, http.MethodPost, "/api/v1/session/media-edits:save", token, "")
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "illegal_transition" {
		t.Fatalf("expected 409 illegal_transition, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateCartItemRejectsOutOfRangeDelta(t *testing.T) {
	f := newAPIFixture(t, nil)
	token := f.login(t, testShopperID)
	f.doJSON(t, http.MethodPost, "/api/v1/session/cart/items", token, `{"productId":2}`)

	rr := f.doJSON(t, http.MethodPatch, "/api/v1/session/cart/items/2", token, `{"delta":9223372036854775807}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = f.doJSON(t, http.MethodGet, "/api/v1/session", token, "")
	if snap := decodeSession(t, rr); snap.Cart.ItemCount != 1 {
		t.Fatalf("expected the cart untouched, got %+v", snap.Cart)
	}
}

func TestOpenUploadRemovesSpilledFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)

	body, contentType := pngUpload(t)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/session/media-edits/working-image", body)
	req.Header.Set("Content-Type", contentType)
	// A one-byte memory budget forces the file part onto disk.
	if err := req.ParseMultipartForm(1); err != nil {
		t.Fatalf("ParseMultipartForm: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) == 0 {
		t.Fatal("expected the upload to be spilled to a temp file")
	}

	_, closeFile, ok := openUpload(httptest.NewRecorder(), req)
	if !ok {
		t.Fatal("expected the file field to be found")
	}
	closeFile()

	entries, _ = os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected spilled files removed, found %d", len(entries))
	}
}

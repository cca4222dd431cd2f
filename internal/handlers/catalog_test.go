package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestCatalogFollowsSessionSearch(t *testing.T) {
	f := newAPIFixture(t, nil)
	token := f.login(t, testShopperID)

	rr := f.doJSON(t, http.MethodGet, "/api/v1/catalog", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var catalog catalogPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &catalog); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(catalog.HeroImages) != 4 || len(catalog.Collections) != 4 || len(catalog.Products) != 5 {
		t.Fatalf("unexpected catalog sizes %d/%d/%d", len(catalog.HeroImages), len(catalog.Collections), len(catalog.Products))
	}

	f.doJSON(t, http.MethodPost, "/api/v1/session/navigate", token, `{"view":"collections"}`)
	rr = f.doJSON(t, http.MethodPost, "/api/v1/session/collections/2:select", token, "")
	if snap := decodeSession(t, rr); snap.Search != "Office Essentials" || snap.View.View != "home" {
		t.Fatalf("expected collection filter applied at home, got %+v", snap)
	}

	rr = f.doJSON(t, http.MethodGet, "/api/v1/catalog", token, "")
	catalog = catalogPayload{}
	if err := json.Unmarshal(rr.Body.Bytes(), &catalog); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(catalog.Products) != 1 || catalog.Products[0].Name != "The Muse Tote" {
		t.Fatalf("expected filtered products, got %+v", catalog.Products)
	}

	rr = f.doJSON(t, http.MethodPut, "/api/v1/session/search", token, `{"query":"VELVET"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr = f.doJSON(t, http.MethodGet, "/api/v1/catalog", token, "")
	catalog = catalogPayload{}
	_ = json.Unmarshal(rr.Body.Bytes(), &catalog)
	if len(catalog.Products) != 1 || catalog.Products[0].ID != 2 {
		t.Fatalf("expected case-insensitive match, got %+v", catalog.Products)
	}
}

func TestCollectionSelectOutsideCollectionsScreen(t *testing.T) {
	f := newAPIFixture(t, nil)
	token := f.login(t, testShopperID)

	rr := f.doJSON(t, http.MethodPost, "/api/v1/session/collections/2:select", token, "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	rr = f.doJSON(t, http.MethodPost, "/api/v1/session/collections/42:select", token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestReviewsListAndAdd(t *testing.T) {
	f := newAPIFixture(t, nil)
	token := f.login(t, testShopperID)

	rr := f.doJSON(t, http.MethodGet, "/api/v1/products/1/reviews", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list reviewListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Reviews) != 2 || list.AverageRating != 4.5 {
		t.Fatalf("unexpected reviews %+v", list)
	}

	rr = f.doJSON(t, http.MethodPost, "/api/v1/products/1/reviews", token, `{"rating":6,"text":"too good"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for rating out of range, got %d", rr.Code)
	}
	rr = f.doJSON(t, http.MethodPost, "/api/v1/products/99/reviews", token, `{"rating":5,"text":"lovely"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", rr.Code)
	}

	rr = f.doJSON(t, http.MethodPost, "/api/v1/products/2/reviews", token, `{"rating":4,"text":"<b>Soft</b> velvet"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Review reviewPayload `json:"review"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Review.Rating != 4 || created.Review.Text != "Soft velvet" {
		t.Fatalf("unexpected review %+v", created.Review)
	}
}

func TestCatalogRequiresSession(t *testing.T) {
	f := newAPIFixture(t, nil)
	rr := f.doJSON(t, http.MethodGet, "/api/v1/catalog", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

package services

import (
	"errors"
	"testing"

	domain "github.com/muse-store/miniapp/internal/domain"
)

func TestNavigatorIsDepthOneFromHome(t *testing.T) {
	nav := NewNavigator()

	tr, err := nav.Open(domain.ViewCart)
	if err != nil {
		t.Fatalf("Open cart: %v", err)
	}
	if !tr.Entered(domain.ViewCart) || !tr.Changed() {
		t.Fatalf("unexpected transition %+v", tr)
	}
	if _, err := nav.Open(domain.ViewCollections); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition from cart, got %v", err)
	}
	if _, err := nav.Open(domain.ViewCart); err != nil {
		t.Fatalf("re-opening the current view should be a no-op, got %v", err)
	}

	tr = nav.Home()
	if !tr.Left(domain.ViewCart) || nav.Current().View != domain.ViewHome {
		t.Fatalf("expected to return home, got %+v", nav.Current())
	}
}

func TestNavigatorProductRequiresSelection(t *testing.T) {
	nav := NewNavigator()
	if _, err := nav.Open(domain.ViewProduct); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if _, err := nav.SelectProduct(0); !errors.Is(err, ErrValidationGuard) {
		t.Fatalf("expected validation guard, got %v", err)
	}
	if _, err := nav.SelectProduct(3); err != nil {
		t.Fatalf("SelectProduct: %v", err)
	}
	state := nav.Current()
	if state.View != domain.ViewProduct || state.SelectedProductID != 3 {
		t.Fatalf("unexpected state %+v", state)
	}

	nav.Home()
	if nav.Current().HasSelection() {
		t.Fatal("home must clear the product selection")
	}
}

func TestNavigatorAttachTargetCopies(t *testing.T) {
	nav := NewNavigator()
	target := domain.HeroTarget(2)
	nav.AttachTarget(&target)
	target.Index = 9

	got := nav.Current().EditTarget
	if got == nil || got.Index != 2 {
		t.Fatalf("expected attached hero[2], got %+v", got)
	}
	nav.AttachTarget(nil)
	if nav.Current().EditTarget != nil {
		t.Fatal("expected target to be cleared")
	}
}

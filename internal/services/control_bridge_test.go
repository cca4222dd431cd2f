package services

import (
	"testing"

	domain "github.com/muse-store/miniapp/internal/domain"
)

type recordingSurface struct {
	descriptors []domain.ControlDescriptor
}

func (s *recordingSurface) SetDescriptor(d domain.ControlDescriptor) {
	s.descriptors = append(s.descriptors, d)
}

func TestDescribeControlsTable(t *testing.T) {
	tote := &domain.Product{ID: 1, Name: "The Muse Tote", Price: 320}
	filled := domain.CartSummary{ItemCount: 3, Subtotal: 640, Shipping: 25, Total: 665}

	cases := []struct {
		name    string
		state   domain.ViewState
		cart    domain.CartSummary
		product *domain.Product
		want    domain.ControlDescriptor
	}{
		{
			name:  "home with empty cart hides everything",
			state: domain.ViewState{View: domain.ViewHome},
		},
		{
			name:  "home with items shows bag",
			state: domain.ViewState{View: domain.ViewHome},
			cart:  filled,
			want: domain.ControlDescriptor{
				Primary: domain.PrimaryControl{Visible: true, Label: "VIEW BAG (3)", Action: domain.ActionOpenCart},
			},
		},
		{
			name:  "cart with items offers payment",
			state: domain.ViewState{View: domain.ViewCart},
			cart:  filled,
			want: domain.ControlDescriptor{
				Primary: domain.PrimaryControl{Visible: true, Label: "PAY $665", Action: domain.ActionCheckout},
				Back:    domain.BackControl{Visible: true, Action: domain.ActionGoHome},
			},
		},
		{
			name:  "empty cart only goes back",
			state: domain.ViewState{View: domain.ViewCart},
			want: domain.ControlDescriptor{
				Back: domain.BackControl{Visible: true, Action: domain.ActionGoHome},
			},
		},
		{
			name:    "product offers add to bag",
			state:   domain.ViewState{View: domain.ViewProduct, SelectedProductID: 1},
			product: tote,
			want: domain.ControlDescriptor{
				Primary: domain.PrimaryControl{Visible: true, Label: "ADD TO BAG - $320", Action: domain.ActionAddToBag},
				Back:    domain.BackControl{Visible: true, Action: domain.ActionLeaveProduct},
			},
		},
		{
			name:  "product without selection only goes back",
			state: domain.ViewState{View: domain.ViewProduct},
			want: domain.ControlDescriptor{
				Back: domain.BackControl{Visible: true, Action: domain.ActionLeaveProduct},
			},
		},
		{
			name:  "studio closes the flow",
			state: domain.ViewState{View: domain.ViewAIStudio},
			cart:  filled,
			want: domain.ControlDescriptor{
				Back: domain.BackControl{Visible: true, Action: domain.ActionCloseFlow},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DescribeControls(tc.state, tc.cart, tc.product)
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestDescribeControlsIsTotal(t *testing.T) {
	carts := []domain.CartSummary{{}, {ItemCount: 1, Subtotal: 150, Shipping: 25, Total: 175}}
	products := []*domain.Product{nil, {ID: 4, Price: 150}}
	for _, view := range domain.Views {
		for _, cart := range carts {
			for _, product := range products {
				d := DescribeControls(domain.ViewState{View: view}, cart, product)
				if d.Primary.Visible != (d.Primary.Action != domain.ActionNone) {
					t.Fatalf("%s: primary visibility and action disagree: %+v", view, d.Primary)
				}
				if d.Back.Visible != (d.Back.Action != domain.ActionNone) {
					t.Fatalf("%s: back visibility and action disagree: %+v", view, d.Back)
				}
				if view == domain.ViewHome && d.Back.Visible {
					t.Fatalf("home must not show back: %+v", d)
				}
				if view != domain.ViewHome && !d.Back.Visible {
					t.Fatalf("%s must show back: %+v", view, d)
				}
			}
		}
	}
}

func TestControlBridgeSyncAppliesProgressOnlyToVisiblePrimary(t *testing.T) {
	surface := &recordingSurface{}
	bridge := NewControlBridge(surface, "€")
	cart := domain.CartSummary{ItemCount: 1, Subtotal: 100, Shipping: 25, Total: 125}

	d := bridge.Sync(domain.ViewState{View: domain.ViewCart}, cart, nil, true)
	if !d.Primary.Progress || d.Primary.Label != "PAY €125" {
		t.Fatalf("unexpected descriptor %+v", d)
	}

	d = bridge.Sync(domain.ViewState{View: domain.ViewHome}, domain.CartSummary{}, nil, true)
	if d.Primary.Progress {
		t.Fatalf("hidden primary must not show progress: %+v", d)
	}
	if len(surface.descriptors) != 2 || bridge.Current() != d {
		t.Fatalf("expected two pushes ending in %+v, got %+v", d, surface.descriptors)
	}
}

package services

import (
	"fmt"
	"sync"

	domain "github.com/muse-store/miniapp/internal/domain"
)

// ControlTable derives native control descriptors. Currency prefixes every amount label.
type ControlTable struct {
	Currency string
}

// DescribeControls applies the default table with a dollar sign.
func DescribeControls(state domain.ViewState, cart domain.CartSummary, product *domain.Product) domain.ControlDescriptor {
	return ControlTable{Currency: "$"}.Describe(state, cart, product)
}

// Describe maps the view state, cart aggregate and selected product onto the desired state of
// both host controls. It is total over every view and cart combination.
func (t ControlTable) Describe(state domain.ViewState, cart domain.CartSummary, product *domain.Product) domain.ControlDescriptor {
	var d domain.ControlDescriptor
	switch state.View {
	case domain.ViewHome:
		if !cart.Empty() {
			d.Primary = domain.PrimaryControl{
				Visible: true,
				Label:   fmt.Sprintf("VIEW BAG (%d)", cart.ItemCount),
				Action:  domain.ActionOpenCart,
			}
		}
	case domain.ViewCart:
		if !cart.Empty() {
			d.Primary = domain.PrimaryControl{
				Visible: true,
				Label:   fmt.Sprintf("PAY %s%d", t.Currency, cart.Total),
				Action:  domain.ActionCheckout,
			}
		}
		d.Back = domain.BackControl{Visible: true, Action: domain.ActionGoHome}
	case domain.ViewProduct:
		if product != nil {
			d.Primary = domain.PrimaryControl{
				Visible: true,
				Label:   fmt.Sprintf("ADD TO BAG - %s%d", t.Currency, product.Price),
				Action:  domain.ActionAddToBag,
			}
		}
		d.Back = domain.BackControl{Visible: true, Action: domain.ActionLeaveProduct}
	default:
		d.Back = domain.BackControl{Visible: true, Action: domain.ActionCloseFlow}
	}
	return d
}

// ControlBridge recomputes the control descriptor after every state change and pushes it onto
// the host surface.
type ControlBridge struct {
	table   ControlTable
	surface ControlSurface

	mu      sync.Mutex
	current domain.ControlDescriptor
}

// NewControlBridge binds the bridge to surface. A nil surface records descriptors only.
func NewControlBridge(surface ControlSurface, currency string) *ControlBridge {
	if currency == "" {
		currency = "$"
	}
	return &ControlBridge{table: ControlTable{Currency: currency}, surface: surface}
}

// Sync recomputes and applies the descriptor. progress overlays the host's busy indicator on a
// visible primary control.
func (b *ControlBridge) Sync(state domain.ViewState, cart domain.CartSummary, product *domain.Product, progress bool) domain.ControlDescriptor {
	d := b.table.Describe(state, cart, product)
	d.Primary.Progress = progress && d.Primary.Visible

	b.mu.Lock()
	b.current = d
	b.mu.Unlock()

	if b.surface != nil {
		b.surface.SetDescriptor(d)
	}
	return d
}

// Current returns the last applied descriptor.
func (b *ControlBridge) Current() domain.ControlDescriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

package services

import (
	"fmt"

	domain "github.com/muse-store/miniapp/internal/domain"
)

// Transition records a navigator state change so the caller can run side effects.
type Transition struct {
	From domain.ViewState
	To   domain.ViewState
}

// Changed reports whether the view or selection changed.
func (t Transition) Changed() bool {
	return t.From.View != t.To.View || t.From.SelectedProductID != t.To.SelectedProductID
}

// Left reports whether the transition leaves view.
func (t Transition) Left(view domain.View) bool {
	return t.From.View == view && t.To.View != view
}

// Entered reports whether the transition enters view.
func (t Transition) Entered(view domain.View) bool {
	return t.From.View != view && t.To.View == view
}

// Navigator is a depth-1 state machine over the storefront screens rooted at home. Every
// non-home screen returns only to home. It is not safe for concurrent use.
type Navigator struct {
	state domain.ViewState
}

// NewNavigator starts on home.
func NewNavigator() *Navigator {
	return &Navigator{state: domain.ViewState{View: domain.ViewHome}}
}

// Current returns a copy of the view state.
func (n *Navigator) Current() domain.ViewState {
	state := n.state
	if state.EditTarget != nil {
		t := *state.EditTarget
		state.EditTarget = &t
	}
	return state
}

// Open moves from home to view. Product screens are entered through SelectProduct, and home
// is reachable from anywhere through Home.
func (n *Navigator) Open(view domain.View) (Transition, error) {
	switch view {
	case domain.ViewHome:
		return n.Home(), nil
	case domain.ViewProduct:
		return Transition{}, fmt.Errorf("%w: select a product to open its screen", ErrIllegalTransition)
	}
	if n.state.View == view {
		return Transition{From: n.Current(), To: n.Current()}, nil
	}
	if n.state.View != domain.ViewHome {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, n.state.View, view)
	}
	from := n.Current()
	n.state.View = view
	return Transition{From: from, To: n.Current()}, nil
}

// SelectProduct moves from home to the product screen.
func (n *Navigator) SelectProduct(productID int) (Transition, error) {
	if productID <= 0 {
		return Transition{}, fmt.Errorf("%w: product id", ErrValidationGuard)
	}
	if n.state.View != domain.ViewHome {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, n.state.View, domain.ViewProduct)
	}
	from := n.Current()
	n.state.View = domain.ViewProduct
	n.state.SelectedProductID = productID
	return Transition{From: from, To: n.Current()}, nil
}

// Home returns to home from anywhere, clearing the product selection and any edit target.
func (n *Navigator) Home() Transition {
	from := n.Current()
	n.state = domain.ViewState{View: domain.ViewHome}
	return Transition{From: from, To: n.Current()}
}

// AttachTarget mirrors the live edit target onto the view state.
func (n *Navigator) AttachTarget(target *domain.EditTarget) {
	if target == nil {
		n.state.EditTarget = nil
		return
	}
	t := *target
	n.state.EditTarget = &t
}

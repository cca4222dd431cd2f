// Package host adapts the mini-app host's imperative native controls onto the control
// descriptor contract used by the storefront.
package host

import (
	"sync"

	domain "github.com/muse-store/miniapp/internal/domain"
)

// Button is a host control with a single replaceable click handler slot.
type Button interface {
	Show()
	Hide()
	SetText(text string)
	ShowProgress()
	HideProgress()
	OnClick(handler func())
	OffClick()
}

// Surface applies control descriptors to a primary and a back button.
type Surface struct {
	primary Button
	back    Button

	mu       sync.RWMutex
	dispatch func(domain.Action)
}

// NewSurface binds the two host buttons.
func NewSurface(primary, back Button) *Surface {
	return &Surface{primary: primary, back: back}
}

// Dispatch sets the function invoked when a bound control is clicked.
func (s *Surface) Dispatch(fn func(domain.Action)) {
	s.mu.Lock()
	s.dispatch = fn
	s.mu.Unlock()
}

// SetDescriptor unbinds both handlers, then shows, labels and rebinds the visible controls.
func (s *Surface) SetDescriptor(d domain.ControlDescriptor) {
	s.primary.OffClick()
	s.back.OffClick()

	if d.Primary.Visible {
		s.primary.SetText(d.Primary.Label)
		s.primary.Show()
		if d.Primary.Progress {
			s.primary.ShowProgress()
		} else {
			s.primary.HideProgress()
		}
		s.primary.OnClick(s.handler(d.Primary.Action))
	} else {
		s.primary.HideProgress()
		s.primary.Hide()
	}

	if d.Back.Visible {
		s.back.Show()
		s.back.OnClick(s.handler(d.Back.Action))
	} else {
		s.back.Hide()
	}
}

func (s *Surface) handler(action domain.Action) func() {
	return func() {
		s.mu.RLock()
		dispatch := s.dispatch
		s.mu.RUnlock()
		if dispatch != nil && action != domain.ActionNone {
			dispatch(action)
		}
	}
}

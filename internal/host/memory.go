package host

import (
	"sync"

	domain "github.com/muse-store/miniapp/internal/domain"
)

// MemoryButton is an in-process Button that records every call.
type MemoryButton struct {
	mu       sync.Mutex
	visible  bool
	text     string
	progress bool
	handler  func()
	calls    []string
}

var _ Button = (*MemoryButton)(nil)

func (b *MemoryButton) Show()         { b.record("show", func() { b.visible = true }) }
func (b *MemoryButton) Hide()         { b.record("hide", func() { b.visible = false }) }
func (b *MemoryButton) ShowProgress() { b.record("showProgress", func() { b.progress = true }) }
func (b *MemoryButton) HideProgress() { b.record("hideProgress", func() { b.progress = false }) }
func (b *MemoryButton) OffClick()     { b.record("offClick", func() { b.handler = nil }) }

func (b *MemoryButton) SetText(text string) {
	b.record("setText", func() { b.text = text })
}

// OnClick replaces the handler. Binding over a live handler is recorded as "onClick!" so tests
// can detect a missing unbind.
func (b *MemoryButton) OnClick(handler func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handler != nil {
		b.calls = append(b.calls, "onClick!")
	} else {
		b.calls = append(b.calls, "onClick")
	}
	b.handler = handler
}

// Click invokes the bound handler when the button is visible. It reports whether a handler ran.
func (b *MemoryButton) Click() bool {
	b.mu.Lock()
	handler := b.handler
	visible := b.visible
	b.mu.Unlock()
	if handler == nil || !visible {
		return false
	}
	handler()
	return true
}

// Visible reports the current visibility.
func (b *MemoryButton) Visible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visible
}

// Text returns the current label.
func (b *MemoryButton) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Progress reports whether the busy indicator is shown.
func (b *MemoryButton) Progress() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progress
}

// Bound reports whether a click handler is bound.
func (b *MemoryButton) Bound() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handler != nil
}

// Calls returns the recorded call names.
func (b *MemoryButton) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *MemoryButton) record(name string, apply func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, name)
	apply()
}

// MemoryHaptics records haptic events.
type MemoryHaptics struct {
	mu     sync.Mutex
	events []domain.HapticEvent
}

func (h *MemoryHaptics) Notify(event domain.HapticEvent) {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
}

// Events returns the recorded events in order.
func (h *MemoryHaptics) Events() []domain.HapticEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.HapticEvent(nil), h.events...)
}

// Memory bundles a surface over two memory buttons plus a haptic recorder.
type Memory struct {
	Primary *MemoryButton
	Back    *MemoryButton
	Haptics *MemoryHaptics
	*Surface
}

// Notify records the haptic event.
func (m *Memory) Notify(event domain.HapticEvent) {
	m.Haptics.Notify(event)
}

// Click presses the named button. It reports false when the button is hidden or unbound.
func (m *Memory) Click(kind domain.ButtonKind) bool {
	switch kind {
	case domain.ButtonPrimary:
		return m.Primary.Click()
	case domain.ButtonBack:
		return m.Back.Click()
	default:
		return false
	}
}

// NewMemory builds an in-process host.
func NewMemory() *Memory {
	primary, back := &MemoryButton{}, &MemoryButton{}
	return &Memory{
		Primary: primary,
		Back:    back,
		Haptics: &MemoryHaptics{},
		Surface: NewSurface(primary, back),
	}
}

package services

import (
	"fmt"

	domain "github.com/muse-store/miniapp/internal/domain"
)

// DefaultShippingFee is the flat fee added to every cart total.
const DefaultShippingFee int64 = 25

// MaxLineQuantity caps the quantity of a single cart line.
const MaxLineQuantity = 999

// CartLedgerDeps configures the ledger.
type CartLedgerDeps struct {
	ShippingFee int64
	Haptics     HapticSink
}

// CartLedger keeps quantity-keyed cart lines in insertion order. A line never persists with a
// quantity of zero or less. The ledger is not safe for concurrent use; Storefront serializes
// access.
type CartLedger struct {
	lines       []domain.CartLine
	shippingFee int64
	haptics     HapticSink
}

// NewCartLedger constructs an empty ledger. A fee of zero or less falls back to DefaultShippingFee.
func NewCartLedger(deps CartLedgerDeps) *CartLedger {
	fee := deps.ShippingFee
	if fee <= 0 {
		fee = DefaultShippingFee
	}
	haptics := deps.Haptics
	if haptics == nil {
		haptics = noopHaptics
	}
	return &CartLedger{shippingFee: fee, haptics: haptics}
}

// Add increments the line for productID, creating it with quantity 1 when absent. A line
// already at MaxLineQuantity is left unchanged.
func (l *CartLedger) Add(productID int, name string, unitPrice int64) error {
	if productID <= 0 || unitPrice < 0 {
		return ErrCartInvalidInput
	}
	if i := l.index(productID); i >= 0 {
		if l.lines[i].Quantity >= MaxLineQuantity {
			return fmt.Errorf("%w: at most %d of one item", ErrCartInvalidInput, MaxLineQuantity)
		}
		l.lines[i].Quantity++
	} else {
		l.lines = append(l.lines, domain.CartLine{ProductID: productID, Name: name, UnitPrice: unitPrice, Quantity: 1})
	}
	l.haptics.Notify(domain.HapticImpactMedium)
	return nil
}

// UpdateQuantity applies delta, pruning the line when it reaches zero and clamping it at
// MaxLineQuantity. Deltas beyond MaxLineQuantity in either direction are rejected. Unknown
// products are ignored.
func (l *CartLedger) UpdateQuantity(productID int, delta int) error {
	if delta < -MaxLineQuantity || delta > MaxLineQuantity {
		return fmt.Errorf("%w: quantity change %d out of range", ErrCartInvalidInput, delta)
	}
	i := l.index(productID)
	if i < 0 {
		return nil
	}
	next := l.lines[i].Quantity + delta
	switch {
	case next <= 0:
		l.lines = append(l.lines[:i], l.lines[i+1:]...)
	case next > MaxLineQuantity:
		l.lines[i].Quantity = MaxLineQuantity
	default:
		l.lines[i].Quantity = next
	}
	l.haptics.Notify(domain.HapticSelected)
	return nil
}

// Subtotal sums unit price times quantity.
func (l *CartLedger) Subtotal() int64 {
	var total int64
	for _, line := range l.lines {
		total += line.LineTotal()
	}
	return total
}

// Total is the subtotal plus the shipping fee.
func (l *CartLedger) Total() int64 {
	return l.Subtotal() + l.shippingFee
}

// ShippingFee returns the configured flat fee.
func (l *CartLedger) ShippingFee() int64 {
	return l.shippingFee
}

// ItemCount sums quantities across lines.
func (l *CartLedger) ItemCount() int {
	count := 0
	for _, line := range l.lines {
		count += line.Quantity
	}
	return count
}

// Lines returns a copy of the lines in insertion order.
func (l *CartLedger) Lines() []domain.CartLine {
	return append([]domain.CartLine(nil), l.lines...)
}

// Summary aggregates the ledger for the control bridge.
func (l *CartLedger) Summary() domain.CartSummary {
	return domain.CartSummary{
		ItemCount: l.ItemCount(),
		Subtotal:  l.Subtotal(),
		Shipping:  l.shippingFee,
		Total:     l.Total(),
	}
}

// Clear removes every line.
func (l *CartLedger) Clear() {
	l.lines = nil
}

func (l *CartLedger) index(productID int) int {
	for i, line := range l.lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

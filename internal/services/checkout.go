package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/muse-store/miniapp/internal/domain"
)

const (
	orderDateLayout   = "Jan 02, 2006"
	firstOrderNumber  = 9103
	defaultPayLatency = 1500 * time.Millisecond
)

// SimulatedPaymentProcessor approves every positive charge after a fixed delay.
type SimulatedPaymentProcessor struct {
	Delay time.Duration
}

// Charge waits for the configured delay or until ctx ends.
func (p SimulatedPaymentProcessor) Charge(ctx context.Context, sessionID string, amount int64) error {
	if amount <= 0 {
		return errors.New("payment: amount must be positive")
	}
	delay := p.Delay
	if delay < 0 {
		delay = defaultPayLatency
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OrderBook holds a session's order history, newest first. It is not safe for concurrent use.
type OrderBook struct {
	orders []domain.Order
	next   int
}

// NewOrderBook seeds the history with the sample orders shown to every shopper.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		orders: []domain.Order{
			{ID: "#MUS-9102", Date: "Nov 01, 2024", Items: []string{"Mini Crossbody", "Leather Care Kit"}, Total: 185, Status: domain.OrderStatusProcessing},
			{ID: "#MUS-8821", Date: "Oct 12, 2024", Items: []string{"Canvas Weekender"}, Total: 245, Status: domain.OrderStatusDelivered},
		},
		next: firstOrderNumber,
	}
}

// Record appends a processing order for the supplied lines.
func (b *OrderBook) Record(lines []domain.CartLine, total int64, at time.Time) domain.Order {
	items := make([]string, 0, len(lines))
	for _, line := range lines {
		name := line.Name
		if line.Quantity > 1 {
			name = fmt.Sprintf("%s x%d", line.Name, line.Quantity)
		}
		items = append(items, name)
	}
	order := domain.Order{
		ID:     fmt.Sprintf("#MUS-%d", b.next),
		Date:   at.Format(orderDateLayout),
		Items:  items,
		Total:  total,
		Status: domain.OrderStatusProcessing,
	}
	b.next++
	b.orders = append([]domain.Order{order}, b.orders...)
	return order
}

// List returns the orders newest first.
func (b *OrderBook) List() []domain.Order {
	out := make([]domain.Order, len(b.orders))
	for i, o := range b.orders {
		o.Items = append([]string(nil), o.Items...)
		out[i] = o
	}
	return out
}

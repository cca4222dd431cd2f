package domain

import "time"

// Product is a catalog entry offered in the storefront.
type Product struct {
	ID           int
	Name         string
	Price        int64
	Description  string
	Image        string
	Badge        string
	CollectionID int
}

// Collection groups products under a curated cover image.
type Collection struct {
	ID           int
	Title        string
	Image        string
	ProductCount int
}

// Catalog is a point-in-time copy of the externally owned catalog collections.
type Catalog struct {
	HeroImages  []string
	Products    []Product
	Collections []Collection
}

// CartLine stores a single product entry within the cart ledger. Quantity is always positive.
type CartLine struct {
	ProductID int
	Name      string
	UnitPrice int64
	Quantity  int
}

// LineTotal returns UnitPrice multiplied by Quantity.
func (l CartLine) LineTotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// CartSummary is the aggregate view of the ledger consumed by the control bridge.
type CartSummary struct {
	ItemCount int
	Subtotal  int64
	Shipping  int64
	Total     int64
}

// Empty reports whether the cart holds no lines.
func (s CartSummary) Empty() bool {
	return s.ItemCount == 0
}

// ChatRole identifies the author of a concierge chat message.
type ChatRole string

const (
	// ChatRoleUser marks messages typed by the shopper.
	ChatRoleUser ChatRole = "user"
	// ChatRoleModel marks replies produced by the chat collaborator.
	ChatRoleModel ChatRole = "model"
)

// ChatMessage is a single entry of the concierge chat log.
type ChatMessage struct {
	ID        string
	Role      ChatRole
	Text      string
	CreatedAt time.Time
}

// Review is a shopper review attached to a product.
type Review struct {
	ID        string
	ProductID int
	Author    string
	Rating    int
	Text      string
	Date      string
	CreatedAt time.Time
}

// OrderStatus enumerates order lifecycle labels shown on the user settings screen.
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
)

// Order is a completed checkout recorded for the session.
type Order struct {
	ID     string
	Date   string
	Items  []string
	Total  int64
	Status OrderStatus
}

// UserProfile captures the host-provided user identity.
type UserProfile struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	PhotoURL  string
	Language  string
	IsPremium bool
}

// DisplayName joins the first and last name.
func (p UserProfile) DisplayName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	if p.FirstName == "" {
		return p.LastName
	}
	return p.FirstName + " " + p.LastName
}

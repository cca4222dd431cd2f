package domain

import (
	"fmt"
	"strings"
)

// View enumerates the mutually exclusive storefront screens.
type View string

const (
	ViewHome         View = "home"
	ViewCart         View = "cart"
	ViewProduct      View = "product"
	ViewCollections  View = "collections"
	ViewUserSettings View = "user-settings"
	ViewAIStudio     View = "ai-studio"
)

// Views lists every screen in declaration order.
var Views = []View{ViewHome, ViewCart, ViewProduct, ViewCollections, ViewUserSettings, ViewAIStudio}

// ParseView normalises a raw screen name.
func ParseView(raw string) (View, error) {
	candidate := View(strings.ToLower(strings.TrimSpace(raw)))
	for _, v := range Views {
		if v == candidate {
			return v, nil
		}
	}
	return "", fmt.Errorf("domain: unknown view %q", raw)
}

// ViewState is the single source of truth for which screen is rendered.
type ViewState struct {
	View              View
	SelectedProductID int
	EditTarget        *EditTarget
}

// HasSelection reports whether a product is selected.
func (s ViewState) HasSelection() bool {
	return s.SelectedProductID > 0
}

package handlers

import (
	"bytes"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"golang.org/x/text/language"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/services"
)

var supportedLanguages = language.NewMatcher([]language.Tag{
	language.English,
	language.Russian,
	language.German,
	language.Spanish,
	language.French,
})

// normalizeLanguage maps the host's language code onto the closest supported base language.
func normalizeLanguage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return language.English.String()
	}
	tag, _, _ := supportedLanguages.Match(language.Make(raw))
	base, _ := tag.Base()
	return base.String()
}

// presenter shapes service snapshots into response payloads. Product descriptions are authored
// as markdown and sanitised after rendering.
type presenter struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
	currency string
}

func newPresenter(currency string) *presenter {
	return &presenter{
		markdown: goldmark.New(),
		policy:   bluemonday.UGCPolicy(),
		currency: currency,
	}
}

func (p *presenter) descriptionHTML(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := p.markdown.Convert([]byte(markdown), &buf); err != nil {
		return p.policy.Sanitize(markdown)
	}
	return strings.TrimSpace(p.policy.Sanitize(buf.String()))
}

type userPayload struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
	Language    string `json:"language"`
	IsPremium   bool   `json:"isPremium"`
}

type targetPayload struct {
	Kind  string `json:"kind"`
	Index *int   `json:"index,omitempty"`
	ID    *int   `json:"id,omitempty"`
	Label string `json:"label"`
}

type viewPayload struct {
	View              string         `json:"view"`
	SelectedProductID int            `json:"selectedProductId,omitempty"`
	EditTarget        *targetPayload `json:"editTarget,omitempty"`
}

type primaryControlPayload struct {
	Visible  bool   `json:"visible"`
	Label    string `json:"label,omitempty"`
	Action   string `json:"action,omitempty"`
	Progress bool   `json:"progress"`
}

type backControlPayload struct {
	Visible bool   `json:"visible"`
	Action  string `json:"action,omitempty"`
}

type controlsPayload struct {
	Primary primaryControlPayload `json:"primary"`
	Back    backControlPayload    `json:"back"`
}

type cartLinePayload struct {
	ProductID int    `json:"productId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"lineTotal"`
}

type cartPayload struct {
	Lines     []cartLinePayload `json:"lines"`
	ItemCount int               `json:"itemCount"`
	Subtotal  int64             `json:"subtotal"`
	Shipping  int64             `json:"shipping"`
	Total     int64             `json:"total"`
	Currency  string            `json:"currency"`
}

type productPayload struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Price           int64  `json:"price"`
	Description     string `json:"description"`
	DescriptionHTML string `json:"descriptionHtml,omitempty"`
	Image           string `json:"image"`
	Badge           string `json:"badge,omitempty"`
	CollectionID    int    `json:"collectionId,omitempty"`
}

type collectionPayload struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	Image        string `json:"image"`
	ProductCount int    `json:"productCount"`
}

type pipelinePayload struct {
	State        string         `json:"state"`
	Target       *targetPayload `json:"target,omitempty"`
	Title        string         `json:"title,omitempty"`
	WorkingImage string         `json:"workingImage,omitempty"`
	Creating     bool           `json:"creating"`
	Staged       string         `json:"staged,omitempty"`
	Savable      bool           `json:"savable"`
	Busy         bool           `json:"busy"`
	LastError    string         `json:"lastError,omitempty"`
}

type sessionPayload struct {
	ID              string          `json:"id"`
	User            userPayload     `json:"user"`
	Admin           bool            `json:"admin"`
	AdminEligible   bool            `json:"adminEligible"`
	View            viewPayload     `json:"view"`
	Controls        controlsPayload `json:"controls"`
	Cart            cartPayload     `json:"cart"`
	SelectedProduct *productPayload `json:"selectedProduct,omitempty"`
	Search          string          `json:"search"`
	Pipeline        pipelinePayload `json:"pipeline"`
	CheckingOut     bool            `json:"checkingOut"`
	ChatBusy        bool            `json:"chatBusy"`
}

type catalogPayload struct {
	HeroImages  []string            `json:"heroImages"`
	Collections []collectionPayload `json:"collections"`
	Products    []productPayload    `json:"products"`
	Search      string              `json:"search"`
}

type orderPayload struct {
	ID     string   `json:"id"`
	Date   string   `json:"date"`
	Items  []string `json:"items"`
	Total  int64    `json:"total"`
	Status string   `json:"status"`
}

type chatMessagePayload struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

type reviewPayload struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Rating    int    `json:"rating"`
	Text      string `json:"text"`
	Date      string `json:"date"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func (p *presenter) session(snap services.SessionSnapshot) sessionPayload {
	payload := sessionPayload{
		ID:            snap.SessionID,
		User:          buildUserPayload(snap.User),
		Admin:         snap.Admin,
		AdminEligible: snap.AdminEligible,
		View: viewPayload{
			View:              string(snap.View.View),
			SelectedProductID: snap.View.SelectedProductID,
			EditTarget:        buildTargetPayload(snap.View.EditTarget),
		},
		Controls: controlsPayload{
			Primary: primaryControlPayload{
				Visible:  snap.Controls.Primary.Visible,
				Label:    snap.Controls.Primary.Label,
				Action:   string(snap.Controls.Primary.Action),
				Progress: snap.Controls.Primary.Progress,
			},
			Back: backControlPayload{
				Visible: snap.Controls.Back.Visible,
				Action:  string(snap.Controls.Back.Action),
			},
		},
		Cart:        p.cart(snap.Cart),
		Search:      snap.Search,
		Pipeline:    buildPipelinePayload(snap.Pipeline),
		CheckingOut: snap.CheckingOut,
		ChatBusy:    snap.ChatBusy,
	}
	if snap.SelectedProduct != nil {
		product := p.product(*snap.SelectedProduct)
		payload.SelectedProduct = &product
	}
	return payload
}

func (p *presenter) cart(cart services.CartSnapshot) cartPayload {
	lines := make([]cartLinePayload, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		lines = append(lines, cartLinePayload{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal(),
		})
	}
	return cartPayload{
		Lines:     lines,
		ItemCount: cart.Summary.ItemCount,
		Subtotal:  cart.Summary.Subtotal,
		Shipping:  cart.Summary.Shipping,
		Total:     cart.Summary.Total,
		Currency:  p.currency,
	}
}

func (p *presenter) product(product domain.Product) productPayload {
	return productPayload{
		ID:              product.ID,
		Name:            product.Name,
		Price:           product.Price,
		Description:     product.Description,
		DescriptionHTML: p.descriptionHTML(product.Description),
		Image:           product.Image,
		Badge:           product.Badge,
		CollectionID:    product.CollectionID,
	}
}

func (p *presenter) catalog(view services.CatalogView) catalogPayload {
	payload := catalogPayload{
		HeroImages:  append([]string{}, view.HeroImages...),
		Collections: make([]collectionPayload, 0, len(view.Collections)),
		Products:    make([]productPayload, 0, len(view.Products)),
		Search:      view.Search,
	}
	for _, c := range view.Collections {
		payload.Collections = append(payload.Collections, collectionPayload{
			ID:           c.ID,
			Title:        c.Title,
			Image:        c.Image,
			ProductCount: c.ProductCount,
		})
	}
	for _, product := range view.Products {
		payload.Products = append(payload.Products, p.product(product))
	}
	return payload
}

func buildUserPayload(user domain.UserProfile) userPayload {
	return userPayload{
		ID:          user.ID,
		DisplayName: user.DisplayName(),
		Username:    user.Username,
		PhotoURL:    user.PhotoURL,
		Language:    normalizeLanguage(user.Language),
		IsPremium:   user.IsPremium,
	}
}

func buildTargetPayload(target *domain.EditTarget) *targetPayload {
	if target == nil {
		return nil
	}
	payload := &targetPayload{Kind: string(target.Kind), Label: target.String()}
	if target.Kind == domain.EditKindHero {
		index := target.Index
		payload.Index = &index
	} else {
		id := target.ID
		payload.ID = &id
	}
	return payload
}

func buildPipelinePayload(snap services.PipelineSnapshot) pipelinePayload {
	return pipelinePayload{
		State:        string(snap.State),
		Target:       buildTargetPayload(snap.Target),
		Title:        snap.Title,
		WorkingImage: snap.WorkingImage,
		Creating:     snap.Creating,
		Staged:       snap.Staged,
		Savable:      snap.Savable,
		Busy:         snap.Busy,
		LastError:    snap.LastError,
	}
}

func buildOrderPayloads(orders []domain.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderPayload{
			ID:     o.ID,
			Date:   o.Date,
			Items:  append([]string{}, o.Items...),
			Total:  o.Total,
			Status: string(o.Status),
		})
	}
	return out
}

func buildChatPayload(msg domain.ChatMessage) chatMessagePayload {
	return chatMessagePayload{
		ID:        msg.ID,
		Role:      string(msg.Role),
		Text:      msg.Text,
		CreatedAt: formatTime(msg.CreatedAt),
	}
}

func buildReviewPayload(review domain.Review) reviewPayload {
	return reviewPayload{
		ID:        review.ID,
		Author:    review.Author,
		Rating:    review.Rating,
		Text:      review.Text,
		Date:      review.Date,
		CreatedAt: formatTime(review.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

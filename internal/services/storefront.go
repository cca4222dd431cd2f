package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/repositories"
)

const maxSearchLength = 120

// SessionHost is a session's native control host: the surface and haptic sink the storefront
// drives, plus the channel that delivers control clicks back.
type SessionHost interface {
	ControlSurface
	HapticSink
	Dispatch(fn func(domain.Action))
}

// CartSnapshot is the ledger content with its aggregate.
type CartSnapshot struct {
	Lines   []domain.CartLine
	Summary domain.CartSummary
}

// SessionSnapshot is a consistent read of one storefront session.
type SessionSnapshot struct {
	SessionID       string
	User            domain.UserProfile
	Admin           bool
	AdminEligible   bool
	View            domain.ViewState
	Controls        domain.ControlDescriptor
	Cart            CartSnapshot
	SelectedProduct *domain.Product
	Search          string
	Pipeline        PipelineSnapshot
	CheckingOut     bool
	ChatBusy        bool
}

// CatalogView is the catalog as the home screen shows it.
type CatalogView struct {
	HeroImages  []string
	Collections []domain.Collection
	Products    []domain.Product
	Search      string
}

// StorefrontDeps wires one session. Catalog and Host are required.
type StorefrontDeps struct {
	SessionID     string
	User          domain.UserProfile
	AdminEligible bool

	Catalog   repositories.CatalogRepository
	Host      SessionHost
	Decoder   ImageDecoder
	Fetcher   ImageFetcher
	Editor    ImageEditor
	Chat      ChatModel
	Payments  PaymentProcessor
	Store     MediaStore
	Publisher MediaEventPublisher

	ShippingFee int64
	Currency    string
	Clock       func() time.Time
	Logger      Logger
	IDGenerator func() string
}

// Storefront is one shopper's session state machine. A single mutex serializes events and every
// mutation ends with a control bridge recomputation before the lock is released. Remote work
// (upload decode, image fetch, generation, chat, payment) runs without the session lock.
type Storefront struct {
	id            string
	user          domain.UserProfile
	adminEligible bool
	catalog       repositories.CatalogRepository
	host          SessionHost
	decoder       ImageDecoder
	payments      PaymentProcessor
	now           func() time.Time
	logger        Logger
	fold          cases.Caser

	pipeline *MediaEditPipeline
	chat     *ConciergeChat

	mu          sync.Mutex
	nav         *Navigator
	ledger      *CartLedger
	bridge      *ControlBridge
	orders      *OrderBook
	admin       bool
	search      string
	selected    *domain.Product
	checkingOut bool
	lastSeen    time.Time
}

// NewStorefront builds a session on the home screen and pushes the initial control state.
func NewStorefront(deps StorefrontDeps) (*Storefront, error) {
	if deps.Catalog == nil {
		return nil, errors.New("storefront: catalog repository is required")
	}
	if deps.Host == nil {
		return nil, errors.New("storefront: host is required")
	}
	if strings.TrimSpace(deps.SessionID) == "" {
		return nil, errors.New("storefront: session id is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	payments := deps.Payments
	if payments == nil {
		payments = SimulatedPaymentProcessor{Delay: defaultPayLatency}
	}

	resolver, err := NewTargetResolver(TargetResolverDeps{
		Catalog:   deps.Catalog,
		Store:     deps.Store,
		Publisher: deps.Publisher,
		SessionID: deps.SessionID,
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	pipeline, err := NewMediaEditPipeline(MediaEditPipelineDeps{
		Resolver: resolver,
		Decoder:  deps.Decoder,
		Fetcher:  deps.Fetcher,
		Editor:   deps.Editor,
		Haptics:  deps.Host,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Storefront{
		id:            deps.SessionID,
		user:          deps.User,
		adminEligible: deps.AdminEligible,
		catalog:       deps.Catalog,
		host:          deps.Host,
		decoder:       deps.Decoder,
		payments:      payments,
		now:           func() time.Time { return clock().UTC() },
		logger:        logger,
		fold:          cases.Fold(),
		pipeline:      pipeline,
		chat: NewConciergeChat(ConciergeChatDeps{
			Model:       deps.Chat,
			Clock:       clock,
			IDGenerator: deps.IDGenerator,
			Logger:      logger,
		}),
		nav:    NewNavigator(),
		ledger: NewCartLedger(CartLedgerDeps{ShippingFee: deps.ShippingFee, Haptics: deps.Host}),
		bridge: NewControlBridge(deps.Host, deps.Currency),
		orders: NewOrderBook(),
	}
	s.lastSeen = s.now()
	deps.Host.Dispatch(func(action domain.Action) {
		ctx := context.Background()
		if err := s.Activate(ctx, action); err != nil {
			s.logger(ctx, "storefront.activate.failed", map[string]any{"session": s.id, "action": string(action), "error": err.Error()})
		}
	})

	s.mu.Lock()
	s.sync()
	s.mu.Unlock()
	return s, nil
}

// ID returns the session id.
func (s *Storefront) ID() string { return s.id }

// User returns the host user bound to the session.
func (s *Storefront) User() domain.UserProfile { return s.user }

// Host returns the session's control host.
func (s *Storefront) Host() SessionHost { return s.host }

// LastSeen returns when the session last handled an event.
func (s *Storefront) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Snapshot returns a consistent read of the session.
func (s *Storefront) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := SessionSnapshot{
		SessionID:     s.id,
		User:          s.user,
		Admin:         s.admin,
		AdminEligible: s.adminEligible,
		View:          s.nav.Current(),
		Controls:      s.bridge.Current(),
		Cart:          CartSnapshot{Lines: s.ledger.Lines(), Summary: s.ledger.Summary()},
		Search:        s.search,
		Pipeline:      s.pipeline.Snapshot(),
		CheckingOut:   s.checkingOut,
		ChatBusy:      s.chat.Busy(),
	}
	if s.selected != nil {
		p := *s.selected
		snap.SelectedProduct = &p
	}
	return snap
}

// Catalog returns hero slides, collections and the products matching the current search. The
// search is a case-folded substring match on name, description and collection title.
func (s *Storefront) Catalog(ctx context.Context) (CatalogView, error) {
	catalog, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return CatalogView{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	s.mu.Lock()
	query := s.search
	s.mu.Unlock()

	view := CatalogView{HeroImages: catalog.HeroImages, Collections: catalog.Collections, Search: query}
	if query == "" {
		view.Products = catalog.Products
		return view, nil
	}
	titles := make(map[int]string, len(catalog.Collections))
	for _, c := range catalog.Collections {
		titles[c.ID] = s.fold.String(c.Title)
	}
	needle := s.fold.String(query)
	for _, p := range catalog.Products {
		if strings.Contains(s.fold.String(p.Name), needle) ||
			strings.Contains(s.fold.String(p.Description), needle) ||
			strings.Contains(titles[p.CollectionID], needle) {
			view.Products = append(view.Products, p)
		}
	}
	return view, nil
}

// Open moves from home to view. Opening the AI studio with a selected edit target enters the
// generation branch.
func (s *Storefront) Open(ctx context.Context, view domain.View) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if view == domain.ViewHome {
		s.goHome(false)
		s.sync()
		return nil
	}
	if view == domain.ViewAIStudio && s.pipeline.State() == PipelineTargetSelected {
		err := s.enterStudio(ctx)
		s.sync()
		return err
	}
	if _, err := s.nav.Open(view); err != nil {
		return err
	}
	if view == domain.ViewAIStudio && s.pipeline.State() == PipelineIdle {
		if err := s.pipeline.BeginStandalone(); err != nil {
			return err
		}
	}
	s.sync()
	return nil
}

// Home returns to the home screen from anywhere. Leaving the AI studio discards the edit.
func (s *Storefront) Home() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.goHome(false)
	s.sync()
}

// SelectProduct opens the product screen.
func (s *Storefront) SelectProduct(ctx context.Context, productID int) error {
	product, err := s.findProduct(ctx, productID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if _, err := s.nav.SelectProduct(productID); err != nil {
		return err
	}
	s.selected = &product
	s.sync()
	return nil
}

// SelectCollection filters the catalog by the collection's title and returns home.
func (s *Storefront) SelectCollection(ctx context.Context, collectionID int) error {
	collection, err := s.catalog.FindCollection(ctx, collectionID)
	if err != nil {
		if isRepoNotFound(err) {
			return ErrCollectionNotFound
		}
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.nav.Current().View != domain.ViewCollections {
		return fmt.Errorf("%w: collections can only be picked from the collections screen", ErrIllegalTransition)
	}
	s.search = collection.Title
	s.goHome(false)
	s.sync()
	return nil
}

// SetSearch replaces the catalog search query.
func (s *Storefront) SetSearch(query string) error {
	query = strings.TrimSpace(query)
	if len([]rune(query)) > maxSearchLength {
		return fmt.Errorf("%w: search query too long", ErrValidationGuard)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.search = query
	s.sync()
	return nil
}

// AddToCart adds one unit of the product.
func (s *Storefront) AddToCart(ctx context.Context, productID int) error {
	product, err := s.findProduct(ctx, productID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.checkingOut {
		return ErrCheckoutInProgress
	}
	if err := s.ledger.Add(product.ID, product.Name, product.Price); err != nil {
		return err
	}
	s.sync()
	return nil
}

// UpdateQuantity applies delta to the product's cart line.
func (s *Storefront) UpdateQuantity(productID, delta int) error {
	if productID <= 0 {
		return ErrCartInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.checkingOut {
		return ErrCheckoutInProgress
	}
	if err := s.ledger.UpdateQuantity(productID, delta); err != nil {
		return err
	}
	s.sync()
	return nil
}

// Activate runs the action bound to a clicked native control.
func (s *Storefront) Activate(ctx context.Context, action domain.Action) error {
	switch action {
	case domain.ActionCheckout:
		_, err := s.Checkout(ctx)
		return err
	case domain.ActionOpenCart:
		return s.Open(ctx, domain.ViewCart)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	switch action {
	case domain.ActionAddToBag:
		if s.nav.Current().View != domain.ViewProduct || s.selected == nil {
			return fmt.Errorf("%w: no product selected", ErrIllegalTransition)
		}
		if s.checkingOut {
			return ErrCheckoutInProgress
		}
		if err := s.ledger.Add(s.selected.ID, s.selected.Name, s.selected.Price); err != nil {
			return err
		}
		s.host.Notify(domain.HapticSuccess)
		s.goHome(false)
	case domain.ActionGoHome, domain.ActionLeaveProduct:
		s.goHome(false)
	case domain.ActionCloseFlow:
		s.goHome(true)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrValidationGuard, action)
	}
	s.sync()
	return nil
}

// Checkout charges the cart total, then clears the cart, records the order and returns home in
// one locked step. The primary control shows progress while the charge runs.
func (s *Storefront) Checkout(ctx context.Context) (domain.Order, error) {
	s.mu.Lock()
	s.touch()
	switch {
	case s.checkingOut:
		s.mu.Unlock()
		return domain.Order{}, ErrCheckoutInProgress
	case s.nav.Current().View != domain.ViewCart:
		s.mu.Unlock()
		return domain.Order{}, fmt.Errorf("%w: checkout starts from the cart", ErrIllegalTransition)
	case s.ledger.ItemCount() == 0:
		s.mu.Unlock()
		return domain.Order{}, ErrCheckoutEmptyCart
	}
	total := s.ledger.Total()
	s.checkingOut = true
	s.sync()
	s.mu.Unlock()

	err := s.payments.Charge(ctx, s.id, total)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkingOut = false
	if err != nil {
		s.host.Notify(domain.HapticError)
		s.sync()
		s.logger(ctx, "checkout.failed", map[string]any{"session": s.id, "total": total, "error": err.Error()})
		return domain.Order{}, fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
	}
	order := s.orders.Record(s.ledger.Lines(), total, s.now())
	s.ledger.Clear()
	s.goHome(false)
	s.host.Notify(domain.HapticSuccess)
	s.sync()
	s.logger(ctx, "checkout.completed", map[string]any{"session": s.id, "order": order.ID, "total": total})
	return order, nil
}

// Orders returns the order history, newest first.
func (s *Storefront) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders.List()
}

// ToggleAdmin flips admin mode. Turning it off discards any edit in progress.
func (s *Storefront) ToggleAdmin() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if !s.adminEligible {
		return false, ErrAdminNotPermitted
	}
	s.admin = !s.admin
	if !s.admin {
		s.pipeline.Cancel()
		if s.nav.Current().View == domain.ViewAIStudio {
			s.goHome(false)
		}
	}
	s.sync()
	return s.admin, nil
}

// BeginEdit selects target for replacement, discarding any prior unconsumed target.
func (s *Storefront) BeginEdit(ctx context.Context, target domain.EditTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if !s.admin {
		return ErrAdminRequired
	}
	if !target.Valid() {
		return ErrEditTargetInvalid
	}
	_, ok, err := s.pipeline.resolver.Resolve(ctx, target)
	if err != nil {
		return err
	}
	if !ok {
		switch target.Kind {
		case domain.EditKindProduct:
			return ErrProductNotFound
		case domain.EditKindCollection:
			return ErrCollectionNotFound
		}
	}
	if err := s.pipeline.Begin(target); err != nil {
		return err
	}
	s.sync()
	return nil
}

// UploadReplacement takes the upload branch and commits the decoded file.
func (s *Storefront) UploadReplacement(ctx context.Context, r io.Reader) (domain.EditTarget, error) {
	s.mu.Lock()
	s.touch()
	if !s.admin {
		s.mu.Unlock()
		return domain.EditTarget{}, ErrAdminRequired
	}
	if s.pipeline.State() != PipelineAwaitingUpload {
		if err := s.pipeline.ChooseUpload(); err != nil {
			s.mu.Unlock()
			return domain.EditTarget{}, err
		}
	}
	s.mu.Unlock()

	target, err := s.pipeline.CompleteUpload(ctx, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sync()
	return target, err
}

// ChooseGeneration takes the generation branch and opens the AI studio through home.
func (s *Storefront) ChooseGeneration(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if !s.admin {
		return ErrAdminRequired
	}
	err := s.enterStudio(ctx)
	s.sync()
	return err
}

// ReplaceWorkingImage decodes r and uses it as the generation source.
func (s *Storefront) ReplaceWorkingImage(ctx context.Context, r io.Reader) error {
	if err := s.requireStudioAccess(); err != nil {
		return err
	}
	if s.decoder == nil {
		return errPipelineDecoderRequired
	}
	dataURI, err := s.decoder.Decode(r)
	if err != nil {
		s.host.Notify(domain.HapticError)
		return fmt.Errorf("%w: %v", ErrUploadDecodeFailed, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pipeline.SetWorkingImage(dataURI); err != nil {
		return err
	}
	s.sync()
	return nil
}

// Generate stages an AI-edited image for review.
func (s *Storefront) Generate(ctx context.Context, prompt string) (string, error) {
	if err := s.requireStudioAccess(); err != nil {
		return "", err
	}
	result, err := s.pipeline.Generate(ctx, prompt)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sync()
	return result, err
}

// RetryGeneration discards the staged image.
func (s *Storefront) RetryGeneration() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if err := s.pipeline.TryAgain(); err != nil {
		return err
	}
	s.sync()
	return nil
}

// SaveGeneration commits the staged image and returns home. The commit runs without the session
// lock; leaving the studio or dropping admin mode meanwhile cancels it.
func (s *Storefront) SaveGeneration(ctx context.Context) (domain.EditTarget, error) {
	if err := s.requireAdmin(); err != nil {
		return domain.EditTarget{}, err
	}

	target, err := s.pipeline.Save(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil && s.nav.Current().View == domain.ViewAIStudio {
		s.goHome(false)
	}
	s.sync()
	return target, err
}

// CancelEdit discards the edit from any pipeline state and leaves the AI studio.
func (s *Storefront) CancelEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.pipeline.Cancel()
	if s.nav.Current().View == domain.ViewAIStudio {
		s.goHome(false)
	}
	s.sync()
}

// ChatMessages returns the concierge chat log.
func (s *Storefront) ChatMessages() []domain.ChatMessage {
	return s.chat.Messages()
}

// SendChat posts a concierge message and returns the model's reply.
func (s *Storefront) SendChat(ctx context.Context, text string) (domain.ChatMessage, error) {
	s.mu.Lock()
	s.touch()
	s.mu.Unlock()
	return s.chat.Send(ctx, text)
}

// enterStudio runs with s.mu held.
func (s *Storefront) enterStudio(ctx context.Context) error {
	if err := s.pipeline.ChooseGeneration(ctx); err != nil {
		return err
	}
	if s.nav.Current().View != domain.ViewAIStudio {
		s.nav.Home()
		s.selected = nil
		if _, err := s.nav.Open(domain.ViewAIStudio); err != nil {
			return err
		}
	}
	return nil
}

// goHome runs with s.mu held. Leaving the AI studio, or closing any flow screen, discards the
// live edit target.
func (s *Storefront) goHome(closeFlow bool) {
	t := s.nav.Home()
	s.selected = nil
	if closeFlow || t.Left(domain.ViewAIStudio) {
		s.pipeline.Cancel()
	}
}

// sync runs with s.mu held.
func (s *Storefront) sync() {
	s.nav.AttachTarget(s.pipeline.Snapshot().Target)
	s.bridge.Sync(s.nav.Current(), s.ledger.Summary(), s.selected, s.checkingOut)
}

// touch runs with s.mu held.
func (s *Storefront) touch() {
	s.lastSeen = s.now()
}

func (s *Storefront) requireAdmin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if !s.admin {
		return ErrAdminRequired
	}
	return nil
}

// requireStudioAccess admits anyone to the standalone studio and only admins to a targeted edit.
func (s *Storefront) requireStudioAccess() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if !s.admin && !s.pipeline.Standalone() {
		return ErrAdminRequired
	}
	return nil
}

func (s *Storefront) findProduct(ctx context.Context, productID int) (domain.Product, error) {
	if productID <= 0 {
		return domain.Product{}, fmt.Errorf("%w: product id", ErrValidationGuard)
	}
	product, err := s.catalog.FindProduct(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Product{}, ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return product, nil
}

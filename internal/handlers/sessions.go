package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/platform/auth"
	"github.com/muse-store/miniapp/internal/platform/httpx"
	"github.com/muse-store/miniapp/internal/platform/idempotency"
	"github.com/muse-store/miniapp/internal/platform/requestctx"
	"github.com/muse-store/miniapp/internal/services"
)

const (
	maxUploadBytes  = 10 << 20
	uploadFormField = "file"
)

// LaunchVerifier validates the host's signed launch payload.
type LaunchVerifier interface {
	Verify(raw string) (auth.LaunchData, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(identity auth.Identity) (string, time.Time, error)
}

// SessionStore opens and resolves storefront sessions.
type SessionStore interface {
	Create(ctx context.Context, user domain.UserProfile) (*services.Storefront, error)
	Get(id string) (*services.Storefront, error)
}

// hostChannel is implemented by hosts that mirror controls over a websocket.
type hostChannel interface {
	Serve(ctx context.Context, conn *websocket.Conn) error
}

// hostClicker is implemented by hosts that accept control clicks without a websocket.
type hostClicker interface {
	Click(kind domain.ButtonKind) bool
}

// SessionHandlerDeps wires the session endpoints.
type SessionHandlerDeps struct {
	Verifier LaunchVerifier
	Tokens   TokenIssuer
	Parser   auth.TokenParser
	Sessions SessionStore

	Currency            string
	GenerationPerMinute int
	ChatPerMinute       int
	AllowedOrigins      []string

	// Replays stores checkout responses keyed by the Idempotency-Key header. Nil disables replay.
	Replays idempotency.Store

	// ServeContext bounds websocket host channels; it is cancelled on shutdown.
	ServeContext context.Context
	Clock        func() time.Time
}

// SessionHandlers exposes the storefront session: launch, state, navigation, cart, checkout,
// admin media edits, orders and concierge chat.
type SessionHandlers struct {
	verifier   LaunchVerifier
	tokens     TokenIssuer
	parser     auth.TokenParser
	sessions   SessionStore
	present    *presenter
	generation rateLimiter
	chat       rateLimiter
	upgrader   websocket.Upgrader
	serveCtx   context.Context
	replay     func(http.Handler) http.Handler
}

// NewSessionHandlers constructs the session handlers.
func NewSessionHandlers(deps SessionHandlerDeps) *SessionHandlers {
	serveCtx := deps.ServeContext
	if serveCtx == nil {
		serveCtx = context.Background()
	}
	h := &SessionHandlers{
		verifier:   deps.Verifier,
		tokens:     deps.Tokens,
		parser:     deps.Parser,
		sessions:   deps.Sessions,
		present:    newPresenter(deps.Currency),
		generation: newPerMinuteLimiter(deps.GenerationPerMinute, deps.Clock),
		chat:       newPerMinuteLimiter(deps.ChatPerMinute, deps.Clock),
		serveCtx:   serveCtx,
		replay:     idempotency.Middleware(deps.Replays, idempotency.WithClock(deps.Clock)),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(deps.AllowedOrigins),
	}
	return h
}

// Routes wires POST /sessions and the authenticated /session group.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(middleware.Timeout(defaultTimeout)).Post("/sessions", h.createSession)

	r.Route("/session", func(s chi.Router) {
		s.Use(auth.RequireSession(h.parser))
		s.Get("/ws", h.serveHost)

		s.Group(func(g chi.Router) {
			g.Use(middleware.Timeout(defaultTimeout))
			g.Get("/", h.getSession)
			g.Post("/navigate", h.navigate)
			g.Post("/products/{productID}:select", h.selectProduct)
			g.Post("/collections/{collectionID}:select", h.selectCollection)
			g.Put("/search", h.setSearch)
			g.Post("/cart/items", h.addCartItem)
			g.Patch("/cart/items/{productID}", h.updateCartItem)
			g.Post("/controls/{button}:activate", h.activateControl)
			g.With(h.replay).Post("/checkout", h.checkout)
			g.Get("/orders", h.listOrders)
			g.Post("/admin:toggle", h.toggleAdmin)

			g.Post("/media-edits", h.beginEdit)
			g.Post("/media-edits:upload", h.uploadReplacement)
			g.Post("/media-edits:generate-mode", h.chooseGeneration)
			g.Put("/media-edits/working-image", h.replaceWorkingImage)
			g.Post("/media-edits:generate", h.generate)
			g.Post("/media-edits:retry", h.retryGeneration)
			g.Post("/media-edits:save", h.saveGeneration)
			g.Post("/media-edits:cancel", h.cancelEdit)

			g.Get("/chat", h.listChat)
			g.Post("/chat/messages", h.sendChat)
		})
	})
}

type createSessionRequest struct {
	InitData string `json:"initData"`
}

type createSessionResponse struct {
	Token     string         `json:"token"`
	ExpiresAt string         `json:"expiresAt"`
	Session   sessionPayload `json:"session"`
}

func (h *SessionHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.verifier == nil || h.tokens == nil || h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "sessions are unavailable", http.StatusServiceUnavailable))
		return
	}
	var req createSessionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	launch, err := h.verifier.Verify(req.InitData)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInitDataExpired):
			httpx.WriteError(ctx, w, httpx.NewError("init_data_expired", "launch data expired", http.StatusUnauthorized))
		case errors.Is(err, auth.ErrInitDataSignature):
			httpx.WriteError(ctx, w, httpx.NewError("init_data_invalid", "launch data signature mismatch", http.StatusUnauthorized))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "launch data is missing or malformed", http.StatusBadRequest))
		}
		return
	}

	session, err := h.sessions.Create(ctx, launch.User)
	if err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	snap := session.Snapshot()
	token, expiresAt, err := h.tokens.Issue(auth.Identity{
		UserID:        launch.User.ID,
		SessionID:     session.ID(),
		AdminEligible: snap.AdminEligible,
	})
	if err != nil {
		requestctx.Logger(ctx).Error("session token issue failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "failed to issue session token", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusCreated, createSessionResponse{
		Token:     token,
		ExpiresAt: formatTime(expiresAt),
		Session:   h.present.session(snap),
	})
}

// storefront resolves the session bound to the request's token, writing the error itself.
func (h *SessionHandlers) storefront(w http.ResponseWriter, r *http.Request) (*services.Storefront, bool) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.SessionID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "sessions are unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	session, err := h.sessions.Get(identity.SessionID)
	if err != nil {
		writeStorefrontError(ctx, w, err)
		return nil, false
	}
	if session.User().ID != identity.UserID {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "session belongs to another user", http.StatusForbidden))
		return nil, false
	}
	return session, true
}

func (h *SessionHandlers) writeSnapshot(w http.ResponseWriter, status int, session *services.Storefront) {
	writeJSONResponse(w, status, h.present.session(session.Snapshot()))
}

func (h *SessionHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	h.writeSnapshot(w, http.StatusOK, session)
}

func (h *SessionHandlers) serveHost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	channel, ok := session.Host().(hostChannel)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("host_channel_unavailable", "session host has no remote channel", http.StatusConflict))
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		return
	}
	if err := channel.Serve(h.serveCtx, conn); err != nil {
		requestctx.Logger(ctx).Warn("host channel closed", zap.String("session", session.ID()), zap.Error(err))
	}
}

type navigateRequest struct {
	View string `json:"view"`
}

func (h *SessionHandlers) navigate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	view, err := domain.ParseView(req.View)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if err := session.Open(ctx, view); err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, session)
}

func (h *SessionHandlers) selectProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	productID, ok := pathInt(w, r, "productID")
	if !ok {
		return
	}
	if err := session.SelectProduct(ctx, productID); err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, session)
}

func (h *SessionHandlers) selectCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	collectionID, ok := pathInt(w, r, "collectionID")
	if !ok {
		return
	}
	if err := session.SelectCollection(ctx, collectionID); err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, session)
}

type searchRequest struct {
	Query string `json:"query"`
}

func (h *SessionHandlers) setSearch(w http.ResponseWriter, r *http.Request) {
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	var req searchRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := session.SetSearch(req.Query); err != nil {
		writeStorefrontError(r.Context(), w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, session)
}

type addCartItemRequest struct {
	ProductID int `json:"productId"`
}

func (h *SessionHandlers) addCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId must be a positive integer", http.StatusBadRequest))
		return
	}
	if err := session.AddToCart(ctx, req.ProductID); err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, session)
}

type updateCartItemRequest struct {
	Delta int `json:"delta"`
}

func (h *SessionHandlers) updateCartItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	productID, ok := pathInt(w, r, "productID")
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := session.UpdateQuantity(productID, req.Delta); err != nil {
		writeStorefrontError(r.Context(), w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, session)
}

// activateControl presses a native control on behalf of clients without a websocket. The
// bound handler runs synchronously, so a checkout click returns after the charge settles.
func (h *SessionHandlers) activateControl(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	kind := domain.ButtonKind(strings.ToLower(strings.TrimSpace(chi.URLParam(r, "button"))))
	if kind != domain.ButtonPrimary && kind != domain.ButtonBack {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "button must be main or back", http.StatusBadRequest))
		return
	}
	clicker, ok := session.Host().(hostClicker)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("host_channel_unavailable", "session host does not accept clicks", http.StatusConflict))
		return
	}
	if !clicker.Click(kind) {
		httpx.WriteError(ctx, w, httpx.NewError("control_inactive", "control is hidden or unbound", http.StatusConflict))
		return
	}
	h.writeSnapshot(w, http.StatusOK, session)
}

type checkoutResponse struct {
	Order   orderPayload   `json:"order"`
	Session sessionPayload `json:"session"`
}

func (h *SessionHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	order, err := session.Checkout(ctx)
	if err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		Order:   buildOrderPayloads([]domain.Order{order})[0],
		Session: h.present.session(session.Snapshot()),
	})
}

func (h *SessionHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": buildOrderPayloads(session.Orders())})
}

func (h *SessionHandlers) toggleAdmin(w http.ResponseWriter, r *http.Request) {
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	if _, err := session.ToggleAdmin(); err != nil {
		writeStorefrontError(r.Context(), w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, session)
}

type beginEditRequest struct {
	Kind  string `json:"kind"`
	Index *int   `json:"index"`
	ID    *int   `json:"id"`
}

func (r beginEditRequest) target() (domain.EditTarget, error) {
	kind, err := domain.ParseEditKind(r.Kind)
	if err != nil {
		return domain.EditTarget{}, err
	}
	switch kind {
	case domain.EditKindHero:
		if r.Index == nil || r.ID != nil {
			return domain.EditTarget{}, services.ErrEditTargetInvalid
		}
		return domain.HeroTarget(*r.Index), nil
	case domain.EditKindProduct:
		if r.ID == nil || r.Index != nil {
			return domain.EditTarget{}, services.ErrEditTargetInvalid
		}
		return domain.ProductTarget(*r.ID), nil
	default:
		if r.ID == nil || r.Index != nil {
			return domain.EditTarget{}, services.ErrEditTargetInvalid
		}
		return domain.CollectionTarget(*r.ID), nil
	}
}

func (h *SessionHandlers) beginEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	var req beginEditRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	target, err := req.target()
	if err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	if err := session.BeginEdit(ctx, target); err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, session)
}

type committedResponse struct {
	Target  *targetPayload `json:"target"`
	Session sessionPayload `json:"session"`
}

func (h *SessionHandlers) uploadReplacement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	file, closeFile, ok := openUpload(w, r)
	if !ok {
		return
	}
	defer closeFile()
	target, err := session.UploadReplacement(ctx, file)
	if err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, committedResponse{
		Target:  buildTargetPayload(&target),
		Session: h.present.session(session.Snapshot()),
	})
}

func (h *SessionHandlers) chooseGeneration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	if err := session.ChooseGeneration(ctx); err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, session)
}

func (h *SessionHandlers) replaceWorkingImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	file, closeFile, ok := openUpload(w, r)
	if !ok {
		return
	}
	defer closeFile()
	if err := session.ReplaceWorkingImage(ctx, file); err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, session)
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

func (h *SessionHandlers) generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if h.generation != nil && !h.generation.Allow(session.ID()) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many generation requests", http.StatusTooManyRequests).
			WithDetails(map[string]any{"scope": "generation"}))
		return
	}
	if _, err := session.Generate(ctx, req.Prompt); err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, session)
}

func (h *SessionHandlers) retryGeneration(w http.ResponseWriter, r *http.Request) {
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	if err := session.RetryGeneration(); err != nil {
		writeStorefrontError(r.Context(), w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, session)
}

func (h *SessionHandlers) saveGeneration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	target, err := session.SaveGeneration(ctx)
	if err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, committedResponse{
		Target:  buildTargetPayload(&target),
		Session: h.present.session(session.Snapshot()),
	})
}

func (h *SessionHandlers) cancelEdit(w http.ResponseWriter, r *http.Request) {
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	session.CancelEdit()
	h.writeSnapshot(w, http.StatusOK, session)
}

func (h *SessionHandlers) listChat(w http.ResponseWriter, r *http.Request) {
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	messages := session.ChatMessages()
	out := make([]chatMessagePayload, 0, len(messages))
	for _, msg := range messages {
		out = append(out, buildChatPayload(msg))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"messages": out,
		"busy":     session.Snapshot().ChatBusy,
	})
}

type sendChatRequest struct {
	Text string `json:"text"`
}

func (h *SessionHandlers) sendChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.storefront(w, r)
	if !ok {
		return
	}
	var req sendChatRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if h.chat != nil && !h.chat.Allow(session.ID()) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many chat messages", http.StatusTooManyRequests).
			WithDetails(map[string]any{"scope": "chat"}))
		return
	}
	reply, err := session.SendChat(ctx, req.Text)
	if err != nil {
		writeStorefrontError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"reply": buildChatPayload(reply)})
}

// openUpload extracts the multipart file field, writing the error response itself.
func openUpload(w http.ResponseWriter, r *http.Request) (io.Reader, func(), bool) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+64*1024)
	f, _, err := r.FormFile(uploadFormField)
	// Parts over the in-memory limit are spilled to temp files.
	removeSpilled := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}
	if err != nil {
		removeSpilled()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "upload exceeds allowed size", http.StatusRequestEntityTooLarge))
			return nil, nil, false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "multipart field \"file\" is required", http.StatusBadRequest))
		return nil, nil, false
	}
	return f, func() {
		_ = f.Close()
		removeSpilled()
	}, true
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			set[origin] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

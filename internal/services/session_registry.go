package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/muse-store/miniapp/internal/domain"
)

const defaultSessionIdleTTL = 2 * time.Hour

// HostFactory builds the native control host for a new session.
type HostFactory func() SessionHost

// SessionRegistryDeps wires the registry. Template supplies the shared collaborators of every
// storefront; its SessionID, User, AdminEligible and Host fields are filled per session.
type SessionRegistryDeps struct {
	Template      StorefrontDeps
	Hosts         HostFactory
	AdminUserIDs  []int64
	AllowAllAdmin bool
	IdleTTL       time.Duration
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        Logger
}

// SessionRegistry owns the live storefront sessions of the process.
type SessionRegistry struct {
	template   StorefrontDeps
	hosts      HostFactory
	admins     []int64
	allowAdmin bool
	ttl        time.Duration
	now        func() time.Time
	newID      func() string
	logger     Logger

	mu       sync.RWMutex
	sessions map[string]*Storefront
}

// NewSessionRegistry validates deps and returns an empty registry.
func NewSessionRegistry(deps SessionRegistryDeps) (*SessionRegistry, error) {
	if deps.Template.Catalog == nil {
		return nil, errors.New("session registry: catalog repository is required")
	}
	if deps.Hosts == nil {
		return nil, errors.New("session registry: host factory is required")
	}
	ttl := deps.IdleTTL
	if ttl <= 0 {
		ttl = defaultSessionIdleTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &SessionRegistry{
		template:   deps.Template,
		hosts:      deps.Hosts,
		admins:     slices.Clone(deps.AdminUserIDs),
		allowAdmin: deps.AllowAllAdmin,
		ttl:        ttl,
		now:        clock,
		newID:      newID,
		logger:     logger,
		sessions:   make(map[string]*Storefront),
	}, nil
}

// Create opens a storefront session for user.
func (r *SessionRegistry) Create(ctx context.Context, user domain.UserProfile) (*Storefront, error) {
	if user.ID <= 0 {
		return nil, errors.New("session registry: user id is required")
	}
	deps := r.template
	deps.SessionID = strings.ToLower(r.newID())
	deps.User = user
	deps.AdminEligible = r.allowAdmin || slices.Contains(r.admins, user.ID)
	deps.Host = r.hosts()
	if deps.Clock == nil {
		deps.Clock = r.now
	}
	if deps.Logger == nil {
		deps.Logger = r.logger
	}

	session, err := NewStorefront(deps)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.mu.Unlock()

	r.logger(ctx, "session.created", map[string]any{"session": session.ID(), "user": user.ID, "admin_eligible": deps.AdminEligible})
	return session, nil
}

// Get returns the live session with id. Sessions idle past the TTL are treated as gone.
func (r *SessionRegistry) Get(id string) (*Storefront, error) {
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if r.expired(session) {
		r.remove(id)
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Len returns the number of tracked sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops idle sessions and returns how many were removed.
func (r *SessionRegistry) Sweep(ctx context.Context) int {
	r.mu.RLock()
	sessions := make(map[string]*Storefront, len(r.sessions))
	for id, session := range r.sessions {
		sessions[id] = session
	}
	r.mu.RUnlock()

	// LastSeen takes the session lock, so expiry is checked without holding the registry lock.
	var stale []string
	for id, session := range sessions {
		if r.expired(session) {
			stale = append(stale, id)
		}
	}

	for _, id := range stale {
		r.remove(id)
	}
	if len(stale) > 0 {
		r.logger(ctx, "session.swept", map[string]any{"removed": len(stale)})
	}
	return len(stale)
}

// Run sweeps every interval until ctx ends.
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.ttl / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

func (r *SessionRegistry) expired(session *Storefront) bool {
	return r.now().Sub(session.LastSeen()) > r.ttl
}

func (r *SessionRegistry) remove(id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		session.CancelEdit()
	}
}

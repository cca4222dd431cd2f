package idempotency

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long a completed response stays replayable.
const DefaultTTL = 30 * time.Minute

// ReservationState describes the outcome of reserving a key.
type ReservationState int

const (
	// ReservationStateNew means the caller owns the key and should run the request.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means a stored response should be replayed.
	ReservationStateCompleted
	// ReservationStatePending means another request still holds the key.
	ReservationStatePending
)

// Response is the stored reply for a completed key.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Reservation is the result of Reserve. Response is set for completed keys.
type Reservation struct {
	State    ReservationState
	Response Response
}

// Store persists reservations and replayable responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

type record struct {
	fingerprint string
	done        bool
	response    Response
	expiresAt   time.Time
}

// MemoryStore keeps reservations in process. Expired records are dropped lazily on Reserve.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]record
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]record)}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropExpiredLocked(now)

	rec, ok := s.records[key]
	if !ok {
		s.records[key] = record{fingerprint: fingerprint, expiresAt: now.Add(ttl)}
		return Reservation{State: ReservationStateNew}, nil
	}
	if rec.fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if rec.done {
		return Reservation{State: ReservationStateCompleted, Response: rec.response}, nil
	}
	return Reservation{State: ReservationStatePending}, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok && rec.fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.records[key] = record{
		fingerprint: fingerprint,
		done:        true,
		response: Response{
			Status:  resp.Status,
			Headers: sanitizeHeaders(resp.Headers),
			Body:    append([]byte(nil), resp.Body...),
		},
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of live records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) dropExpiredLocked(now time.Time) {
	for key, rec := range s.records {
		if !now.Before(rec.expiresAt) {
			delete(s.records, key)
		}
	}
}

func sanitizeHeaders(header http.Header) http.Header {
	filtered := make(http.Header, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "transfer-encoding":
			continue
		}
		filtered[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return filtered
}

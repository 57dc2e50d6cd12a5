package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
)

// claimLease bounds how long an unanswered claim blocks its key.
const claimLease = 2 * time.Minute

type entry struct {
	response ports.StoredResponse
	savedAt  time.Time
}

// Store retains checkout responses in memory for replaying duplicate requests.
type Store struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]entry
}

// NewStore creates an in-memory idempotency store. A zero ttl keeps keys forever.
func NewStore(ttl time.Duration) *Store {
	return &Store{ttl: ttl, items: make(map[string]entry)}
}

func (s *Store) Get(_ context.Context, key string) (*ports.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.items[key]
	if !ok || s.stale(value) {
		return nil, nil
	}
	resp := value.response
	return &resp, nil
}

func (s *Store) Claim(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok && !s.stale(existing) {
		return false, nil
	}
	s.items[key] = entry{savedAt: time.Now()}
	return true, nil
}

// Save keeps the first live response for a key. A pending claim is replaced.
func (s *Store) Save(_ context.Context, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok && !existing.response.InFlight() && !s.stale(existing) {
		return nil
	}
	s.items[key] = entry{response: response, savedAt: time.Now()}
	return nil
}

func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok && existing.response.InFlight() {
		delete(s.items, key)
	}
	return nil
}

func (s *Store) stale(e entry) bool {
	age := time.Since(e.savedAt)
	if e.response.InFlight() && age > claimLease {
		return true
	}
	return s.ttl > 0 && age > s.ttl
}

// EventLedger is an in-memory ports.EventLedger.
type EventLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewEventLedger() *EventLedger {
	return &EventLedger{entries: make(map[string]time.Time)}
}

func (l *EventLedger) Seen(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	expires, ok := l.entries[eventID]
	if !ok {
		return false, nil
	}
	if time.Now().After(expires) {
		delete(l.entries, eventID)
		return false, nil
	}
	return true, nil
}

func (l *EventLedger) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[eventID] = time.Now().Add(ttl)
	return nil
}

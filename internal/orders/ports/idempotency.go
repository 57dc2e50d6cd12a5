package ports

import (
	"context"
	"time"
)

// StoredResponse contains the checkout response to replay for a reused key.
// A zero StatusCode marks a key that is claimed by a request still in flight.
type StoredResponse struct {
	StatusCode int
	Body       []byte
	OrderID    string
}

// InFlight reports whether the key is claimed but has no response yet.
func (r StoredResponse) InFlight() bool {
	return r.StatusCode == 0
}

// IdempotencyStore lets checkout requests be retried without opening a second session.
type IdempotencyStore interface {
	// Get returns nil, nil when the key has not been used.
	Get(ctx context.Context, key string) (*StoredResponse, error)
	// Claim reserves an unused key for the calling request. It reports false
	// when another request holds the key or has already answered it.
	Claim(ctx context.Context, key string) (bool, error)
	// Save stores the response for a claimed key.
	Save(ctx context.Context, key string, response StoredResponse) error
	// Release drops an unanswered claim so the key can be retried.
	Release(ctx context.Context, key string) error
}

// EventLedger remembers processed webhook event ids so redeliveries short-circuit.
type EventLedger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error
}

package database

import (
	"context"
	"fmt"
	"time"
)

const healthTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckHealth pings the database with a short deadline so a stalled
// connection fails readiness instead of hanging the probe.
func CheckHealth(ctx context.Context, db Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

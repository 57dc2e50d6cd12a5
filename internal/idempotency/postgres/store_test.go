//go:build integration

package postgres_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/idempotency/postgres"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	testpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testpostgres.Run(ctx,
		"postgres:16-alpine",
		testpostgres.WithDatabase("storefront"),
		testpostgres.WithUsername("test"),
		testpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	root, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(root)
		if parent == root {
			t.Fatal("could not find project root (go.mod)")
		}
		root = parent
	}

	if _, err := database.RunMigrations(connStr, filepath.Join(root, "migrations")); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := database.NewPool(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

func TestStoreKeepsFirstResponse(t *testing.T) {
	store := postgres.NewStore(setupTestDB(t), time.Hour)
	ctx := context.Background()

	first := ports.StoredResponse{StatusCode: 201, Body: []byte(`{"sessionId":"cs_1"}`), OrderID: "order-1"}
	second := ports.StoredResponse{StatusCode: 201, Body: []byte(`{"sessionId":"cs_2"}`), OrderID: "order-2"}

	if err := store.Save(ctx, "user-1:key", first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.Save(ctx, "user-1:key", second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, err := store.Get(ctx, "user-1:key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.OrderID != "order-1" || string(got.Body) != string(first.Body) {
		t.Errorf("expected first response to be preserved, got %+v", got)
	}

	missing, err := store.Get(ctx, "user-1:other")
	if err != nil || missing != nil {
		t.Errorf("Get(unknown) = %v, %v; want nil, nil", missing, err)
	}
}

func TestStorePurge(t *testing.T) {
	store := postgres.NewStore(setupTestDB(t), 0)
	ctx := context.Background()

	if err := store.Save(ctx, "k", ports.StoredResponse{StatusCode: 201, Body: []byte("{}")}); err != nil {
		t.Fatalf("save: %v", err)
	}

	removed, err := store.Purge(ctx, time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 0 {
		t.Errorf("purged %d fresh keys", removed)
	}

	removed, err = store.Purge(ctx, -time.Minute)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Errorf("purged %d keys, want 1", removed)
	}
}

func TestStoreExpiredKeyCanBeReused(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	if _, err := pool.Exec(ctx,
		`INSERT INTO idempotency_keys (key, status_code, body, order_id, created_at) VALUES ($1, 201, '{}', 'order-old', $2)`,
		"user-1:key", time.Now().UTC().Add(-2*time.Hour),
	); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store := postgres.NewStore(pool, time.Hour)

	got, err := store.Get(ctx, "user-1:key")
	if err != nil || got != nil {
		t.Fatalf("Get(expired) = %v, %v; want nil, nil", got, err)
	}

	fresh := ports.StoredResponse{StatusCode: 201, Body: []byte(`{"sessionId":"cs_new"}`), OrderID: "order-new"}
	if err := store.Save(ctx, "user-1:key", fresh); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err = store.Get(ctx, "user-1:key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.OrderID != "order-new" {
		t.Errorf("expected expired key to be replaced, got %+v", got)
	}
}

func TestStoreClaimReservesKeyUntilAnswered(t *testing.T) {
	store := postgres.NewStore(setupTestDB(t), time.Hour)
	ctx := context.Background()

	claimed, err := store.Claim(ctx, "user-1:key")
	if err != nil || !claimed {
		t.Fatalf("first Claim() = %v, %v; want true", claimed, err)
	}
	claimed, err = store.Claim(ctx, "user-1:key")
	if err != nil || claimed {
		t.Fatalf("second Claim() = %v, %v; want false", claimed, err)
	}

	got, err := store.Get(ctx, "user-1:key")
	if err != nil || got == nil || !got.InFlight() {
		t.Fatalf("Get(claimed) = %+v, %v; want in-flight placeholder", got, err)
	}

	resp := ports.StoredResponse{StatusCode: 201, Body: []byte(`{"sessionId":"cs_1"}`), OrderID: "order-1"}
	if err := store.Save(ctx, "user-1:key", resp); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = store.Get(ctx, "user-1:key")
	if err != nil || got == nil || got.OrderID != "order-1" || got.InFlight() {
		t.Fatalf("Get(answered) = %+v, %v", got, err)
	}

	if err := store.Release(ctx, "user-1:key"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got, _ := store.Get(ctx, "user-1:key"); got == nil || got.OrderID != "order-1" {
		t.Errorf("release dropped an answered key: %+v", got)
	}
}

func TestStoreReleasedOrAbandonedClaimCanBeRetaken(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewStore(pool, time.Hour)
	ctx := context.Background()

	if _, err := store.Claim(ctx, "user-1:released"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Release(ctx, "user-1:released"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if claimed, err := store.Claim(ctx, "user-1:released"); err != nil || !claimed {
		t.Errorf("Claim(released) = %v, %v; want true", claimed, err)
	}

	if _, err := pool.Exec(ctx,
		`INSERT INTO idempotency_keys (key, status_code, body, order_id, created_at) VALUES ($1, 0, '', '', $2)`,
		"user-1:abandoned", time.Now().UTC().Add(-10*time.Minute),
	); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if got, _ := store.Get(ctx, "user-1:abandoned"); got != nil {
		t.Errorf("abandoned claim still visible: %+v", got)
	}
	if claimed, err := store.Claim(ctx, "user-1:abandoned"); err != nil || !claimed {
		t.Errorf("Claim(abandoned) = %v, %v; want true", claimed, err)
	}
}

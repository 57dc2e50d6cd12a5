// Package platform connects the storefront to its backing services and
// assembles the order service for the API and the operations CLI.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	cacheadapter "github.com/dejobratic/storefront/internal/catalog/adapters/cache"
	mongoadapter "github.com/dejobratic/storefront/internal/catalog/adapters/mongo"
	catalogports "github.com/dejobratic/storefront/internal/catalog/ports"
	"github.com/dejobratic/storefront/internal/config"
	"github.com/dejobratic/storefront/internal/database"
	idemmemory "github.com/dejobratic/storefront/internal/idempotency/memory"
	idempostgres "github.com/dejobratic/storefront/internal/idempotency/postgres"
	idemredis "github.com/dejobratic/storefront/internal/idempotency/redis"
	"github.com/dejobratic/storefront/internal/kafka"
	"github.com/dejobratic/storefront/internal/media"
	ordersadapters "github.com/dejobratic/storefront/internal/orders/adapters"
	httpadapter "github.com/dejobratic/storefront/internal/orders/adapters/http"
	orderspostgres "github.com/dejobratic/storefront/internal/orders/adapters/postgres"
	stripeadapter "github.com/dejobratic/storefront/internal/orders/adapters/stripe"
	ordersapp "github.com/dejobratic/storefront/internal/orders/app"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	ordersmetrics "github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/metric"
)

// Platform owns every open connection. Close releases them in reverse order.
type Platform struct {
	Service     *ordersapp.Service
	Pool        *pgxpool.Pool
	Mongo       *mongo.Database
	Idempotency *idempostgres.Store

	closers []func(context.Context) error
}

// Open connects to Postgres, MongoDB and the optional Redis and Kafka
// deployments, then assembles the order service.
func Open(ctx context.Context, cfg *config.Config, meter metric.Meter, logger *slog.Logger) (*Platform, error) {
	p := &Platform{}
	fail := func(err error) (*Platform, error) {
		_ = p.Close(context.Background())
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		logger.InfoContext(ctx, "running database migrations", "path", cfg.Database.MigrationsPath)
		version, err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath)
		if err != nil {
			return fail(fmt.Errorf("run migrations: %w", err))
		}
		logger.InfoContext(ctx, "migrations completed", "version", version)
	}

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fail(fmt.Errorf("create database pool: %w", err))
	}
	p.Pool = pool
	p.closers = append(p.closers, func(context.Context) error { pool.Close(); return nil })

	mongoDB, err := mongoadapter.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return fail(err)
	}
	p.Mongo = mongoDB
	p.closers = append(p.closers, func(ctx context.Context) error { return mongoDB.Client().Disconnect(ctx) })

	catalogStore := mongoadapter.NewStore(mongoDB)
	if err := catalogStore.CreateIndexes(ctx); err != nil {
		return fail(fmt.Errorf("create catalog indexes: %w", err))
	}

	var (
		catalog catalogports.Store = catalogStore
		ledger  ports.EventLedger  = idemmemory.NewEventLedger()
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		p.closers = append(p.closers, func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("ping redis: %w", err))
		}
		catalog = cacheadapter.NewStore(catalogStore, client, cfg.Redis.CacheTTL, logger)
		ledger = idemredis.NewEventLedger(client)
	} else {
		logger.WarnContext(ctx, "REDIS_ADDR not set, webhook dedup is per instance and the catalog is uncached")
	}

	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return fail(fmt.Errorf("initialize database metrics: %w", err))
	}
	kafkaMetrics, err := kafka.NewMetrics(meter)
	if err != nil {
		return fail(fmt.Errorf("initialize kafka metrics: %w", err))
	}
	orderMetrics, err := ordersmetrics.NewMetrics(meter)
	if err != nil {
		return fail(fmt.Errorf("initialize order metrics: %w", err))
	}

	var events ports.EventBus = kafka.NewNoopEventBus()
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix)
		p.closers = append(p.closers, func(context.Context) error { return publisher.Close() })
		events = publisher
	}

	resolver, err := newMediaResolver(ctx, cfg.Media, logger)
	if err != nil {
		return fail(err)
	}
	if resolver.client != nil {
		p.closers = append(p.closers, func(context.Context) error { return resolver.client.Close() })
	}

	gateway := stripeadapter.NewGateway(stripeadapter.Config{
		SecretKey:       cfg.Stripe.SecretKey,
		WebhookSecret:   cfg.Stripe.WebhookSecret,
		CallTimeout:     cfg.Stripe.CallTimeout,
		LookupRetries:   cfg.Stripe.LookupRetries,
		BreakerFailures: cfg.Stripe.BreakerFailures,
		BreakerCooldown: cfg.Stripe.BreakerCooldown,
	}, logger)

	p.Idempotency = idempostgres.NewStore(pool, cfg.Checkout.IdempotencyTTL)
	p.Service = ordersapp.NewService(ordersapp.Dependencies{
		Repo:    ordersadapters.NewObservableRepository(orderspostgres.NewRepository(pool), dbMetrics),
		Catalog: catalog,
		// Catalog edits land in MongoDB without invalidating Redis, so
		// checkout prices against the backing store.
		CheckoutCatalog: catalogStore,
		Gateway:         gateway,
		Events:          ordersadapters.NewObservableEventBus(events, kafkaMetrics),
		IdemStore:       p.Idempotency,
		Ledger:          ledger,
		Media:           resolver.Resolver,
		Logger:          logger,
		Metrics:         orderMetrics,
	}, ordersapp.Options{
		Checkout: commands.CheckoutSettings{
			Currency:   cfg.Checkout.Currency,
			SuccessURL: cfg.Checkout.SuccessURL,
			CancelURL:  cfg.Checkout.CancelURL,
		},
		RevokeOnRefund:  cfg.Checkout.RevokeOnRefund,
		WebhookDedupTTL: cfg.Checkout.WebhookDedupTTL,
	})

	return p, nil
}

// HealthChecks returns the readiness probes for the storage backends.
func (p *Platform) HealthChecks() map[string]httpadapter.HealthCheck {
	return map[string]httpadapter.HealthCheck{
		"postgres": func(ctx context.Context) error { return database.CheckHealth(ctx, p.Pool) },
		"mongo":    func(ctx context.Context) error { return mongoadapter.CheckHealth(ctx, p.Mongo) },
	}
}

func (p *Platform) Close(ctx context.Context) error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

type mediaResolver struct {
	*media.Resolver
	client *storage.Client
}

// newMediaResolver signs with the configured service account key when one
// is given, otherwise with the ambient GCS credentials. Without either,
// gs:// references fail to resolve and web URLs still pass through.
func newMediaResolver(ctx context.Context, cfg config.MediaConfig, logger *slog.Logger) (*mediaResolver, error) {
	resolverCfg := media.Config{AccessID: cfg.GCSAccessID, URLTTL: cfg.URLTTL}

	if cfg.GCSPrivateKeyPath != "" {
		key, err := os.ReadFile(cfg.GCSPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read GCS signing key: %w", err)
		}
		resolverCfg.PrivateKey = key
		return &mediaResolver{Resolver: media.NewResolver(nil, resolverCfg)}, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		logger.WarnContext(ctx, "no GCS credentials, gs:// media cannot be signed", "error", err)
		return &mediaResolver{Resolver: media.NewResolver(nil, resolverCfg)}, nil
	}
	return &mediaResolver{Resolver: media.NewResolver(client, resolverCfg), client: client}, nil
}

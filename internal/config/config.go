package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingSecret is returned by Validate when a required secret is unset.
var ErrMissingSecret = errors.New("required secret is not set")

// Config captures runtime configuration for the storefront API and CLI.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Stripe    StripeConfig
	Auth      AuthConfig
	Media     MediaConfig
	Checkout  CheckoutConfig
	Telemetry TelemetryConfig
	Service   ServiceConfig
}

type HTTPConfig struct {
	Port           int
	ShutdownGrace  int
	RequestTimeout time.Duration
}

type DatabaseConfig struct {
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	// Addr is empty when Redis is not deployed; the catalog cache and
	// webhook dedup then fall back to in-process implementations.
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

type StripeConfig struct {
	SecretKey       string
	WebhookSecret   string
	CallTimeout     time.Duration
	LookupRetries   uint64
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type MediaConfig struct {
	GCSAccessID       string
	GCSPrivateKeyPath string
	URLTTL            time.Duration
}

type CheckoutConfig struct {
	Currency        string
	SuccessURL      string
	CancelURL       string
	RevokeOnRefund  bool
	WebhookDedupTTL time.Duration
	IdempotencyTTL  time.Duration
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	OTelInsecure  bool
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

const (
	defaultHTTPPort        = 8080
	defaultShutdownGrace   = 15
	defaultRequestTimeout  = 30 * time.Second
	defaultMigrationsPath  = "migrations"
	defaultAutoMigrate     = true
	defaultMongoURI        = "mongodb://localhost:27017"
	defaultMongoDatabase   = "storefront"
	defaultCacheTTL        = 5 * time.Minute
	defaultTopicPrefix     = "storefront"
	defaultStripeTimeout   = 10 * time.Second
	defaultLookupRetries   = 3
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
	defaultMediaURLTTL     = 15 * time.Minute
	defaultCurrency        = "usd"
	defaultSuccessURL      = "http://localhost:3000/payment/success"
	defaultCancelURL       = "http://localhost:3000/payment/cancel"
	defaultDedupTTL        = 72 * time.Hour
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultServiceName     = "storefront-api"
	defaultServiceVersion  = "0.1.0"
	defaultEnvironment     = "development"
	defaultLogLevel        = "info"
	defaultOTelSampleRate  = 1.0
)

// Load reads configuration from environment variables, applying defaults when needed.
func Load() (*Config, error) {
	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		return nil, fmt.Errorf("loading redis config: %w", err)
	}

	stripeCfg, err := loadStripeConfig()
	if err != nil {
		return nil, fmt.Errorf("loading stripe config: %w", err)
	}

	mediaCfg, err := loadMediaConfig()
	if err != nil {
		return nil, fmt.Errorf("loading media config: %w", err)
	}

	checkoutCfg, err := loadCheckoutConfig()
	if err != nil {
		return nil, fmt.Errorf("loading checkout config: %w", err)
	}

	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	return &Config{
		HTTP:      httpCfg,
		Database:  loadDatabaseConfig(),
		Mongo:     loadMongoConfig(),
		Redis:     redisCfg,
		Kafka:     loadKafkaConfig(),
		Stripe:    stripeCfg,
		Auth:      AuthConfig{JWTSecret: os.Getenv("JWT_SECRET")},
		Media:     mediaCfg,
		Checkout:  checkoutCfg,
		Telemetry: telCfg,
		Service:   loadServiceConfig(),
	}, nil
}

// Validate rejects configurations the API cannot safely start with.
func (c *Config) Validate() error {
	var errs []error
	for name, value := range map[string]string{
		"STRIPE_SECRET_KEY":     c.Stripe.SecretKey,
		"STRIPE_WEBHOOK_SECRET": c.Stripe.WebhookSecret,
		"JWT_SECRET":            c.Auth.JWTSecret,
	} {
		if value == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingSecret, name))
		}
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid API_HTTP_PORT %d", c.HTTP.Port))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("invalid OTEL_SAMPLE_RATE %v", c.Telemetry.SampleRate))
	}
	return errors.Join(errs...)
}

func loadHTTPConfig() (HTTPConfig, error) {
	port, err := getIntEnv("API_HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return HTTPConfig{}, err
	}

	shutdownGrace, err := getIntEnv("API_SHUTDOWN_GRACE_SECONDS", defaultShutdownGrace)
	if err != nil {
		return HTTPConfig{}, err
	}

	requestTimeout, err := getDurationEnv("API_REQUEST_TIMEOUT", defaultRequestTimeout)
	if err != nil {
		return HTTPConfig{}, err
	}

	return HTTPConfig{
		Port:           port,
		ShutdownGrace:  shutdownGrace,
		RequestTimeout: requestTimeout,
	}, nil
}

func loadDatabaseConfig() DatabaseConfig {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	return DatabaseConfig{
		URL:            databaseURL,
		AutoMigrate:    getBoolEnv("AUTO_MIGRATE", defaultAutoMigrate),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath),
	}
}

func loadMongoConfig() MongoConfig {
	return MongoConfig{
		URI:      getEnvOrDefault("MONGO_URI", defaultMongoURI),
		Database: getEnvOrDefault("MONGO_DATABASE", defaultMongoDatabase),
	}
}

func loadRedisConfig() (RedisConfig, error) {
	db, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}

	cacheTTL, err := getDurationEnv("CATALOG_CACHE_TTL", defaultCacheTTL)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		CacheTTL: cacheTTL,
	}, nil
}

func loadKafkaConfig() KafkaConfig {
	var brokers []string
	if value, ok := os.LookupEnv("KAFKA_BROKERS"); ok && value != "" {
		brokers = strings.Split(value, ",")
	}

	return KafkaConfig{
		Brokers:     brokers,
		TopicPrefix: getEnvOrDefault("KAFKA_TOPIC_PREFIX", defaultTopicPrefix),
	}
}

func loadStripeConfig() (StripeConfig, error) {
	callTimeout, err := getDurationEnv("STRIPE_CALL_TIMEOUT", defaultStripeTimeout)
	if err != nil {
		return StripeConfig{}, err
	}

	retries, err := getIntEnv("STRIPE_LOOKUP_RETRIES", defaultLookupRetries)
	if err != nil {
		return StripeConfig{}, err
	}

	failures, err := getIntEnv("STRIPE_BREAKER_FAILURES", defaultBreakerFailures)
	if err != nil {
		return StripeConfig{}, err
	}

	cooldown, err := getDurationEnv("STRIPE_BREAKER_COOLDOWN", defaultBreakerCooldown)
	if err != nil {
		return StripeConfig{}, err
	}

	return StripeConfig{
		SecretKey:       os.Getenv("STRIPE_SECRET_KEY"),
		WebhookSecret:   os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CallTimeout:     callTimeout,
		LookupRetries:   uint64(max(retries, 0)),
		BreakerFailures: uint32(max(failures, 1)),
		BreakerCooldown: cooldown,
	}, nil
}

func loadMediaConfig() (MediaConfig, error) {
	ttl, err := getDurationEnv("MEDIA_URL_TTL", defaultMediaURLTTL)
	if err != nil {
		return MediaConfig{}, err
	}

	return MediaConfig{
		GCSAccessID:       os.Getenv("GCS_SIGNER_EMAIL"),
		GCSPrivateKeyPath: os.Getenv("GCS_SIGNER_KEY_FILE"),
		URLTTL:            ttl,
	}, nil
}

func loadCheckoutConfig() (CheckoutConfig, error) {
	dedupTTL, err := getDurationEnv("WEBHOOK_DEDUP_TTL", defaultDedupTTL)
	if err != nil {
		return CheckoutConfig{}, err
	}

	idemTTL, err := getDurationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL)
	if err != nil {
		return CheckoutConfig{}, err
	}

	return CheckoutConfig{
		Currency:        strings.ToLower(getEnvOrDefault("CHECKOUT_CURRENCY", defaultCurrency)),
		SuccessURL:      getEnvOrDefault("CHECKOUT_SUCCESS_URL", defaultSuccessURL),
		CancelURL:       getEnvOrDefault("CHECKOUT_CANCEL_URL", defaultCancelURL),
		RevokeOnRefund:  getBoolEnv("ENTITLEMENT_REVOKE_ON_REFUND", false),
		WebhookDedupTTL: dedupTTL,
		IdempotencyTTL:  idemTTL,
	}, nil
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:      getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
		OTelEndpoint:  getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelInsecure:  getBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", true),
		EnableTracing: getBoolEnv("OTEL_ENABLE_TRACING", true),
		EnableMetrics: getBoolEnv("OTEL_ENABLE_METRICS", true),
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "storefront")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

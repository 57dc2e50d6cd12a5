package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("JWT_SECRET", "jwt-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	if cfg.HTTP.Port != defaultHTTPPort {
		t.Errorf("HTTP.Port = %d, want %d", cfg.HTTP.Port, defaultHTTPPort)
	}
	if cfg.Checkout.Currency != "usd" {
		t.Errorf("Checkout.Currency = %q, want usd", cfg.Checkout.Currency)
	}
	if cfg.Checkout.RevokeOnRefund {
		t.Error("Checkout.RevokeOnRefund should default to false")
	}
	if cfg.Checkout.WebhookDedupTTL != 72*time.Hour {
		t.Errorf("Checkout.WebhookDedupTTL = %v, want 72h", cfg.Checkout.WebhookDedupTTL)
	}
	if cfg.Stripe.LookupRetries != defaultLookupRetries {
		t.Errorf("Stripe.LookupRetries = %d, want %d", cfg.Stripe.LookupRetries, defaultLookupRetries)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("Redis.Addr = %q, want empty", cfg.Redis.Addr)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("API_HTTP_PORT", "9090")
	t.Setenv("CHECKOUT_CURRENCY", "EUR")
	t.Setenv("ENTITLEMENT_REVOKE_ON_REFUND", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("STRIPE_BREAKER_COOLDOWN", "1m")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/shop")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.Checkout.Currency != "eur" {
		t.Errorf("Checkout.Currency = %q, want eur", cfg.Checkout.Currency)
	}
	if !cfg.Checkout.RevokeOnRefund {
		t.Error("Checkout.RevokeOnRefund should be true")
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Kafka.Brokers = %v, want 2 brokers", cfg.Kafka.Brokers)
	}
	if cfg.Stripe.BreakerCooldown != time.Minute {
		t.Errorf("Stripe.BreakerCooldown = %v, want 1m", cfg.Stripe.BreakerCooldown)
	}
	if cfg.Database.URL != "postgres://u:p@db:5432/shop" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port", "API_HTTP_PORT", "eighty"},
		{"duration", "WEBHOOK_DEDUP_TTL", "3 days"},
		{"sample rate", "OTEL_SAMPLE_RATE", "half"},
		{"redis db", "REDIS_DB", "zero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%q should fail", tt.key, tt.value)
			}
		})
	}
}

func TestValidateRequiresSecrets(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	err = cfg.Validate()
	if !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("Validate() error = %v, want ErrMissingSecret", err)
	}
	for _, name := range []string{"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("Validate() error should name %s: %v", name, err)
		}
	}
}

func TestValidateRejectsOutOfRangeValues(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	cfg.Telemetry.SampleRate = 2
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject a sample rate above 1")
	}
}

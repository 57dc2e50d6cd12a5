package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const webhookSecret = "whsec_test_secret"

func newTestGateway(t *testing.T, handler http.Handler, mutate ...func(*Config)) *Gateway {
	t.Helper()

	cfg := Config{
		SecretKey:            "sk_test_123",
		WebhookSecret:        webhookSecret,
		CallTimeout:          2 * time.Second,
		LookupRetries:        3,
		RetryInitialInterval: time.Millisecond,
		BreakerFailures:      5,
	}

	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(srv.URL),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		})
		cfg.Backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}

	for _, m := range mutate {
		m(&cfg)
	}
	return NewGateway(cfg, nil)
}

func sign(t *testing.T, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestParseEventRejectsBadSignature(t *testing.T) {
	gateway := newTestGateway(t, nil)
	payload := `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`

	_, err := gateway.ParseEvent([]byte(payload), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ports.ErrSignatureInvalid)

	_, err = gateway.ParseEvent([]byte(payload), "")
	assert.ErrorIs(t, err, ports.ErrSignatureInvalid)

	tampered := strings.Replace(payload, "cs_1", "cs_2", 1)
	_, err = gateway.ParseEvent([]byte(tampered), sign(t, payload))
	assert.ErrorIs(t, err, ports.ErrSignatureInvalid)
}

func TestParseEventExtractsIdentifiers(t *testing.T) {
	gateway := newTestGateway(t, nil)

	tests := []struct {
		name    string
		payload string
		want    ports.PaymentEvent
	}{
		{
			name: "checkout completed",
			payload: `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{
				"id":"cs_1","object":"checkout.session","payment_status":"paid","status":"complete",
				"payment_intent":"pi_1","metadata":{"order_id":"order-1"},
				"customer_details":{"email":"buyer@example.com"}}}}`,
			want: ports.PaymentEvent{
				ID: "evt_1", Type: ports.EventCheckoutCompleted, SessionID: "cs_1",
				PaymentIntentID: "pi_1", OrderID: "order-1", PaymentStatus: "paid",
				CustomerEmail: "buyer@example.com",
			},
		},
		{
			name: "payment failed",
			payload: `{"id":"evt_2","object":"event","type":"payment_intent.payment_failed","data":{"object":{
				"id":"pi_2","object":"payment_intent","metadata":{"order_id":"order-2"}}}}`,
			want: ports.PaymentEvent{ID: "evt_2", Type: ports.EventPaymentFailed, PaymentIntentID: "pi_2", OrderID: "order-2"},
		},
		{
			name: "charge refunded",
			payload: `{"id":"evt_3","object":"event","type":"charge.refunded","data":{"object":{
				"id":"ch_3","object":"charge","payment_intent":"pi_3","refunded":true}}}`,
			want: ports.PaymentEvent{ID: "evt_3", Type: ports.EventChargeRefunded, PaymentIntentID: "pi_3"},
		},
		{
			name:    "unknown type",
			payload: `{"id":"evt_4","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`,
			want:    ports.PaymentEvent{ID: "evt_4", Type: "customer.created"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := gateway.ParseEvent([]byte(tt.payload), sign(t, tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestCreateSessionSendsFrozenAmountAndMetadata(t *testing.T) {
	var form map[string]string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for key := range r.PostForm {
			form[key] = r.PostForm.Get(key)
		}
		form["Idempotency-Key"] = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1","status":"open","payment_status":"unpaid","created":1760000000}`))
	})

	gateway := newTestGateway(t, handler)
	session, err := gateway.CreateSession(context.Background(), ports.CheckoutRequest{
		OrderID:        "order-1",
		ProductName:    "Freelance Invoice",
		AmountCents:    1999,
		Currency:       "usd",
		SuccessURL:     "https://shop.example.com/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      "https://shop.example.com/cancel",
		Metadata:       map[string]string{"order_id": "order-1", "template_id": "tpl-1"},
		IdempotencyKey: "checkout-order-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", session.URL)
	assert.False(t, session.Paid())

	assert.Equal(t, "1999", form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, "usd", form["line_items[0][price_data][currency]"])
	assert.Equal(t, "1", form["line_items[0][quantity]"])
	assert.Equal(t, "payment", form["mode"])
	assert.Equal(t, "order-1", form["metadata[order_id]"])
	assert.Equal(t, "order-1", form["payment_intent_data[metadata][order_id]"])
	assert.Equal(t, "checkout-order-1", form["Idempotency-Key"])
}

func TestRetrieveSessionRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"temporary"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"cs_1","object":"checkout.session","status":"complete","payment_status":"paid","payment_intent":"pi_1"}`))
	})

	session, err := newTestGateway(t, handler).RetrieveSession(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.True(t, session.Paid())
	assert.Equal(t, "pi_1", session.PaymentIntentID)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRetrieveSessionGivesUpAfterBoundedRetries(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"down"}}`))
	})

	_, err := newTestGateway(t, handler).RetrieveSession(context.Background(), "cs_1")
	assert.ErrorIs(t, err, ports.ErrUpstream)
	assert.Equal(t, int32(4), hits.Load())
}

func TestRetrieveSessionDoesNotRetryMissingSession(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such checkout.session"}}`))
	})

	_, err := newTestGateway(t, handler).RetrieveSession(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"down"}}`))
	})

	gateway := newTestGateway(t, handler, func(c *Config) {
		c.BreakerFailures = 2
		c.BreakerCooldown = time.Hour
	})

	req := ports.CheckoutRequest{OrderID: "o", ProductName: "p", AmountCents: 100, Currency: "usd"}
	for i := 0; i < 3; i++ {
		_, err := gateway.CreateSession(context.Background(), req)
		assert.True(t, errors.Is(err, ports.ErrUpstream), "attempt %d: %v", i, err)
	}
	assert.Equal(t, int32(2), hits.Load())
}

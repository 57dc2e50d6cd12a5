package commands_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/auth"
	catalogmemory "github.com/dejobratic/storefront/internal/catalog/adapters/memory"
	catalogdomain "github.com/dejobratic/storefront/internal/catalog/domain"
	idemmemory "github.com/dejobratic/storefront/internal/idempotency/memory"
	"github.com/dejobratic/storefront/internal/orders/adapters/memory"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const validSignature = "t=1,v1=valid"

var (
	buyer = &auth.Identity{UserID: "user-1", Email: "buyer@example.com", Role: "user"}
	other = &auth.Identity{UserID: "user-2", Email: "other@example.com", Role: "user"}
	admin = &auth.Identity{UserID: "admin-1", Email: "admin@example.com", Role: auth.RoleAdmin}
)

// fakeGateway is an in-process payment processor.
type fakeGateway struct {
	mu          sync.Mutex
	sessions    map[string]*ports.CheckoutSession
	requests    []ports.CheckoutRequest
	createErr   error
	retrieveErr error
	retrieves   atomic.Int32
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]*ports.CheckoutSession{}}
}

func (g *fakeGateway) CreateSession(_ context.Context, req ports.CheckoutRequest) (*ports.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.requests = append(g.requests, req)
	id := fmt.Sprintf("cs_test_%d", len(g.requests))
	session := &ports.CheckoutSession{
		ID:            id,
		URL:           "https://checkout.example.com/" + id,
		Status:        "open",
		PaymentStatus: "unpaid",
		AmountTotal:   req.AmountCents,
		Currency:      req.Currency,
		Metadata:      req.Metadata,
		CreatedAt:     time.Now().UTC(),
	}
	g.sessions[id] = session
	copied := *session
	return &copied, nil
}

func (g *fakeGateway) RetrieveSession(_ context.Context, sessionID string) (*ports.CheckoutSession, error) {
	g.retrieves.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	session, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("retrieve checkout session: %w", ports.ErrNotFound)
	}
	copied := *session
	return &copied, nil
}

func (g *fakeGateway) ParseEvent(payload []byte, signature string) (*ports.PaymentEvent, error) {
	if signature != validSignature {
		return nil, ports.ErrSignatureInvalid
	}
	var event ports.PaymentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrValidation, err)
	}
	return &event, nil
}

func (g *fakeGateway) ListSessions(_ context.Context, _ time.Time, _ int) ([]ports.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ports.CheckoutSession, 0, len(g.sessions))
	for _, s := range g.sessions {
		out = append(out, *s)
	}
	return out, nil
}

func (g *fakeGateway) settle(sessionID, intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[sessionID].PaymentStatus = "paid"
	g.sessions[sessionID].Status = "complete"
	g.sessions[sessionID].PaymentIntentID = intentID
}

func (g *fakeGateway) lastRequest() ports.CheckoutRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

// recordingBus keeps every published event.
type recordingBus struct {
	mu     sync.Mutex
	events []ports.OrderEvent
}

func (b *recordingBus) Publish(_ context.Context, event ports.OrderEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) count(eventType ports.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// countingRepo counts order lookups.
type countingRepo struct {
	ports.OrderRepository
	lookups atomic.Int32
}

func (r *countingRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	r.lookups.Add(1)
	return r.OrderRepository.GetByID(ctx, id)
}

func (r *countingRepo) GetBySessionID(ctx context.Context, id string) (*domain.Order, error) {
	r.lookups.Add(1)
	return r.OrderRepository.GetBySessionID(ctx, id)
}

func (r *countingRepo) GetByPaymentIntentID(ctx context.Context, id string) (*domain.Order, error) {
	r.lookups.Add(1)
	return r.OrderRepository.GetByPaymentIntentID(ctx, id)
}

// passthroughMedia returns references unchanged.
type passthroughMedia struct{}

func (passthroughMedia) Resolve(_ context.Context, ref string) (string, error) {
	return ref, nil
}

// unreachableMedia fails every lookup like an unavailable media host.
type unreachableMedia struct{}

func (unreachableMedia) Resolve(context.Context, string) (string, error) {
	return "", errors.New("storage signBlob: connection refused")
}

type fixture struct {
	repo    *countingRepo
	catalog *catalogmemory.Store
	gateway *fakeGateway
	bus     *recordingBus
	ledger  *idemmemory.EventLedger
	logger  *slog.Logger
	metrics *metrics.Metrics
	reader  *sdkmetric.ManualReader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	m, err := metrics.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)

	f := &fixture{
		repo:    &countingRepo{OrderRepository: memory.NewRepository()},
		catalog: catalogmemory.NewStore(),
		gateway: newFakeGateway(),
		bus:     &recordingBus{},
		ledger:  idemmemory.NewEventLedger(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: m,
		reader:  reader,
	}

	ctx := context.Background()
	templates := []catalogdomain.Template{
		{ID: "tpl-invoice", Title: "Freelance Invoice", Price: decimal.RequireFromString("19.99"), IsActive: true, PDFURL: "https://cdn.example.com/invoice.pdf"},
		{ID: "tpl-a", Title: "Budget Planner", Price: decimal.NewFromInt(15), IsActive: true, PDFURL: "https://cdn.example.com/a.pdf"},
		{ID: "tpl-b", Title: "Meal Planner", Price: decimal.NewFromInt(15), IsActive: true, PDFURL: "https://cdn.example.com/b.pdf"},
		{ID: "tpl-c", Title: "Habit Tracker", Price: decimal.NewFromInt(9), IsActive: true, PDFURL: "https://cdn.example.com/c.pdf"},
		{ID: "tpl-retired", Title: "Retired", Price: decimal.NewFromInt(5), IsActive: false},
		{ID: "tpl-free", Title: "Freebie", Price: decimal.Zero, IsActive: true},
	}
	for _, tpl := range templates {
		require.NoError(t, f.catalog.SaveTemplate(ctx, tpl))
	}
	require.NoError(t, f.catalog.SaveBundle(ctx, catalogdomain.Bundle{
		ID:            "bundle-starter",
		Title:         "Starter Pack",
		TemplateIDs:   []string{"tpl-a", "tpl-b"},
		Price:         decimal.NewFromInt(25),
		OriginalTotal: decimal.NewFromInt(30),
		IsActive:      true,
	}))

	return f
}

func (f *fixture) settings() commands.CheckoutSettings {
	return commands.CheckoutSettings{
		Currency:   "usd",
		SuccessURL: "https://shop.example.com/payment/success",
		CancelURL:  "https://shop.example.com/payment/cancel",
	}
}

func (f *fixture) checkout() commands.CheckoutHandler {
	return commands.NewObservableCheckoutHandler(
		commands.NewCreateCheckoutCommandHandler(f.catalog, f.gateway, f.repo, f.bus, f.settings(), f.logger),
		f.logger, f.metrics,
	)
}

func (f *fixture) reconciler() commands.Reconciler {
	return commands.NewObservableReconciler(commands.NewReconcileCommandHandler(f.repo, f.bus, f.logger), f.logger, f.metrics)
}

func (f *fixture) webhook() commands.WebhookHandler {
	return commands.NewObservableWebhookHandler(
		commands.NewHandleWebhookCommandHandler(f.gateway, f.ledger, f.reconciler(), time.Hour, f.logger),
		f.logger, f.metrics,
	)
}

func (f *fixture) confirm() *commands.ConfirmPaymentCommandHandler {
	return commands.NewConfirmPaymentCommandHandler(f.gateway, f.reconciler(), f.catalog, passthroughMedia{})
}

func (f *fixture) download(revokeOnRefund bool) commands.DownloadHandler {
	return commands.NewObservableDownloadHandler(
		commands.NewDownloadTemplateCommandHandler(f.repo, f.catalog, passthroughMedia{}, revokeOnRefund),
		f.logger, f.metrics,
	)
}

// buy opens a checkout for templateID (or bundleID when prefixed "bundle-").
func (f *fixture) buy(t *testing.T, caller *auth.Identity, target string) *commands.CheckoutResult {
	t.Helper()
	cmd := commands.CreateCheckoutCommand{Caller: caller, TemplateID: target}
	if strings.HasPrefix(target, "bundle-") {
		cmd = commands.CreateCheckoutCommand{Caller: caller, BundleID: target}
	}
	result, err := f.checkout().Handle(context.Background(), cmd)
	require.NoError(t, err)
	return result
}

func event(t *testing.T, ev ports.PaymentEvent) []byte {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return payload
}

func (f *fixture) counter(t *testing.T, name, key, value string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if key == "" {
					total += dp.Value
					continue
				}
				if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/auth"
	catalogports "github.com/dejobratic/storefront/internal/catalog/ports"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/app/queries"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// Dependencies are the adapters the order use cases run against.
type Dependencies struct {
	Repo    ports.OrderRepository
	Catalog catalogports.Store
	// CheckoutCatalog prices new orders and must not sit behind a cache.
	// Nil falls back to Catalog.
	CheckoutCatalog catalogports.Store
	Gateway         ports.PaymentGateway
	Events          ports.EventBus
	IdemStore       ports.IdempotencyStore
	Ledger          ports.EventLedger
	Media           ports.MediaResolver
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// Options tune use case behaviour.
type Options struct {
	Checkout        commands.CheckoutSettings
	RevokeOnRefund  bool
	WebhookDedupTTL time.Duration
}

// Service bundles use cases for handling orders via the API and the CLI.
type Service struct {
	idemStore ports.IdempotencyStore

	checkout commands.CheckoutHandler
	webhook  commands.WebhookHandler
	confirm  *commands.ConfirmPaymentCommandHandler
	download commands.DownloadHandler
	manage   *commands.ManageOrderCommandHandler
	sweep    *commands.SweepPendingCommandHandler

	getOrder        *queries.GetOrderQueryHandler
	listOrders      *queries.ListOrdersQueryHandler
	bundleDownloads *queries.BundleDownloadsQueryHandler
	orphans         *queries.FindOrphanSessionsQueryHandler
}

// NewService wires required dependencies.
func NewService(deps Dependencies, opts Options) *Service {
	logger := deps.Logger
	pricing := deps.CheckoutCatalog
	if pricing == nil {
		pricing = deps.Catalog
	}

	checkout := commands.NewObservableCheckoutHandler(
		commands.NewCreateCheckoutCommandHandler(pricing, deps.Gateway, deps.Repo, deps.Events, opts.Checkout, logger),
		logger, deps.Metrics,
	)
	reconcile := commands.NewObservableReconciler(
		commands.NewReconcileCommandHandler(deps.Repo, deps.Events, logger),
		logger, deps.Metrics,
	)
	webhook := commands.NewObservableWebhookHandler(
		commands.NewHandleWebhookCommandHandler(deps.Gateway, deps.Ledger, reconcile, opts.WebhookDedupTTL, logger),
		logger, deps.Metrics,
	)
	download := commands.NewObservableDownloadHandler(
		commands.NewDownloadTemplateCommandHandler(deps.Repo, deps.Catalog, deps.Media, opts.RevokeOnRefund),
		logger, deps.Metrics,
	)

	return &Service{
		idemStore:       deps.IdemStore,
		checkout:        checkout,
		webhook:         webhook,
		confirm:         commands.NewConfirmPaymentCommandHandler(deps.Gateway, reconcile, deps.Catalog, deps.Media),
		download:        download,
		manage:          commands.NewManageOrderCommandHandler(deps.Repo, deps.Events, logger),
		sweep:           commands.NewSweepPendingCommandHandler(deps.Repo, deps.Gateway, reconcile, logger),
		getOrder:        queries.NewGetOrderQueryHandler(deps.Repo),
		listOrders:      queries.NewListOrdersQueryHandler(deps.Repo),
		bundleDownloads: queries.NewBundleDownloadsQueryHandler(deps.Repo, deps.Catalog, deps.Media, opts.RevokeOnRefund),
		orphans:         queries.NewFindOrphanSessionsQueryHandler(deps.Repo, deps.Gateway),
	}
}

// CreateCheckout opens a processor session and its pending order.
func (s *Service) CreateCheckout(ctx context.Context, cmd commands.CreateCheckoutCommand) (*commands.CheckoutResult, error) {
	return s.checkout.Handle(ctx, cmd)
}

// HandleWebhook verifies and applies a processor event.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*commands.WebhookResult, error) {
	return s.webhook.Handle(ctx, commands.HandleWebhookCommand{Payload: payload, Signature: signature})
}

// ConfirmPayment settles an order from the buyer's return to the storefront.
func (s *Service) ConfirmPayment(ctx context.Context, sessionID string) (*commands.ConfirmResult, error) {
	return s.confirm.Handle(ctx, commands.ConfirmPaymentCommand{SessionID: sessionID})
}

// DownloadTemplate returns a download link if the caller bought the template.
func (s *Service) DownloadTemplate(ctx context.Context, caller *auth.Identity, templateID string) (*commands.DownloadLink, error) {
	return s.download.Handle(ctx, commands.DownloadTemplateCommand{Caller: caller, TemplateID: templateID})
}

// BundleDownloads lists the files of a completed bundle order.
func (s *Service) BundleDownloads(ctx context.Context, caller *auth.Identity, orderID string) (*queries.BundleDownloads, error) {
	return s.bundleDownloads.Handle(ctx, queries.BundleDownloadsQuery{Caller: caller, OrderID: orderID})
}

// GetOrder retrieves an order by ID.
func (s *Service) GetOrder(ctx context.Context, caller *auth.Identity, id string) (*domain.Order, error) {
	return s.getOrder.Handle(ctx, queries.GetOrderQuery{Caller: caller, OrderID: id})
}

// ListOrders returns orders using a filter.
func (s *Service) ListOrders(ctx context.Context, caller *auth.Identity, filter ports.ListFilter) (*queries.OrderPage, error) {
	return s.listOrders.Handle(ctx, queries.ListOrdersQuery{Caller: caller, Filter: filter})
}

// CancelOrder cancels an unsettled order.
func (s *Service) CancelOrder(ctx context.Context, caller *auth.Identity, id string) (*domain.Order, error) {
	return s.manage.Cancel(ctx, commands.CancelOrderCommand{Caller: caller, OrderID: id})
}

// UpdateNotes replaces an order's admin notes.
func (s *Service) UpdateNotes(ctx context.Context, caller *auth.Identity, id, notes string) (*domain.Order, error) {
	return s.manage.UpdateNotes(ctx, commands.UpdateNotesCommand{Caller: caller, OrderID: id, Notes: notes})
}

// SweepPending reconciles stale pending orders against the processor.
func (s *Service) SweepPending(ctx context.Context, olderThan time.Duration, limit int) (*commands.SweepResult, error) {
	return s.sweep.Handle(ctx, commands.SweepPendingCommand{OlderThan: olderThan, Limit: limit})
}

// FindOrphanSessions lists recent processor sessions with no order.
func (s *Service) FindOrphanSessions(ctx context.Context, since time.Time, limit int) ([]ports.CheckoutSession, error) {
	return s.orphans.Handle(ctx, queries.FindOrphanSessionsQuery{Since: since, Limit: limit})
}

// ClaimIdempotencyKey reserves a caller's key for one in-flight checkout.
func (s *Service) ClaimIdempotencyKey(ctx context.Context, caller *auth.Identity, key string) (bool, error) {
	return s.idemStore.Claim(ctx, idempotencyKey(caller, key))
}

// ReleaseIdempotencyKey frees a claimed key whose checkout did not complete.
func (s *Service) ReleaseIdempotencyKey(ctx context.Context, caller *auth.Identity, key string) error {
	return s.idemStore.Release(ctx, idempotencyKey(caller, key))
}

// SaveIdempotentResponse writes response details for a caller's key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, caller *auth.Identity, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, idempotencyKey(caller, key), response)
}

// GetIdempotentResponse retrieves previously stored response data.
func (s *Service) GetIdempotentResponse(ctx context.Context, caller *auth.Identity, key string) (*ports.StoredResponse, error) {
	return s.idemStore.Get(ctx, idempotencyKey(caller, key))
}

// idempotencyKey scopes client keys to the caller so users cannot replay each other's responses.
func idempotencyKey(caller *auth.Identity, key string) string {
	if caller == nil {
		return "anonymous:" + key
	}
	return caller.UserID + ":" + key
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dejobratic/storefront/internal/auth"
	catalogdomain "github.com/dejobratic/storefront/internal/catalog/domain"
	catalogports "github.com/dejobratic/storefront/internal/catalog/ports"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const sessionPlaceholder = "session_id={CHECKOUT_SESSION_ID}"

// CheckoutSettings are the deployment-wide checkout defaults.
type CheckoutSettings struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

type CreateCheckoutCommand struct {
	Caller     *auth.Identity
	TemplateID string
	BundleID   string
	// SuccessURL and CancelURL override the configured return pages. They
	// must stay on the configured success page's origin.
	SuccessURL string
	CancelURL  string
}

func (c CreateCheckoutCommand) Validate() error {
	single := strings.TrimSpace(c.TemplateID) != ""
	bundle := strings.TrimSpace(c.BundleID) != ""
	if single == bundle {
		return fmt.Errorf("%w: exactly one of template_id or bundle_id is required", ports.ErrValidation)
	}
	return nil
}

// Kind labels the purchase for metrics and logs.
func (c CreateCheckoutCommand) Kind() string {
	if c.BundleID != "" {
		return "bundle"
	}
	return "template"
}

type CheckoutResult struct {
	Order      domain.Order
	SessionID  string
	SessionURL string
}

type CheckoutHandler interface {
	Handle(ctx context.Context, cmd CreateCheckoutCommand) (*CheckoutResult, error)
}

type CreateCheckoutCommandHandler struct {
	catalog  catalogports.Store
	gateway  ports.PaymentGateway
	repo     ports.OrderRepository
	events   ports.EventBus
	settings CheckoutSettings
	logger   *slog.Logger
}

func NewCreateCheckoutCommandHandler(
	catalog catalogports.Store,
	gateway ports.PaymentGateway,
	repo ports.OrderRepository,
	events ports.EventBus,
	settings CheckoutSettings,
	logger *slog.Logger,
) *CreateCheckoutCommandHandler {
	if settings.Currency == "" {
		settings.Currency = "usd"
	}
	return &CreateCheckoutCommandHandler{
		catalog:  catalog,
		gateway:  gateway,
		repo:     repo,
		events:   events,
		settings: settings,
		logger:   logger,
	}
}

// purchase is the priced catalog entry an order is opened for.
type purchase struct {
	name        string
	description string
	price       decimal.Decimal
	templateID  string
	bundleID    string
	members     []string
}

func (h *CreateCheckoutCommandHandler) Handle(ctx context.Context, cmd CreateCheckoutCommand) (*CheckoutResult, error) {
	if cmd.Caller == nil {
		return nil, ports.ErrUnauthenticated
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if !domain.IsSupportedCurrency(h.settings.Currency) {
		return nil, fmt.Errorf("%w: currency %q is not supported", ports.ErrValidation, h.settings.Currency)
	}

	item, err := h.resolve(ctx, cmd)
	if err != nil {
		return nil, err
	}

	amount, err := catalogdomain.ToMinorUnits(item.price)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is priced at %s", ports.ErrInvalidAmount, item.name, item.price)
	}

	successURL, cancelURL, err := h.returnURLs(cmd)
	if err != nil {
		return nil, err
	}

	orderID := uuid.NewString()
	session, err := h.gateway.CreateSession(ctx, ports.CheckoutRequest{
		OrderID:        orderID,
		CustomerEmail:  cmd.Caller.Email,
		ProductName:    item.name,
		Description:    item.description,
		AmountCents:    amount,
		Currency:       h.settings.Currency,
		SuccessURL:     successURL,
		CancelURL:      cancelURL,
		Metadata:       metadata(orderID, cmd.Caller.UserID, item),
		IdempotencyKey: "checkout-" + orderID,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:                   orderID,
		UserID:               cmd.Caller.UserID,
		TemplateID:           item.templateID,
		BundleID:             item.bundleID,
		TemplateIDsPurchased: item.members,
		CheckoutSessionID:    session.ID,
		AmountCents:          amount,
		Currency:             h.settings.Currency,
		Status:               domain.StatusPending,
		PaymentStatus:        domain.PaymentPending,
		CustomerEmail:        cmd.Caller.Email,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err = order.Validate()
	if err == nil {
		err = h.repo.Create(ctx, order)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: session %s opened for order %s: %v", ports.ErrInconsistent, session.ID, orderID, err)
	}

	publish(ctx, h.events, h.logger, ports.EventOrderCreated, order)

	return &CheckoutResult{Order: order, SessionID: session.ID, SessionURL: session.URL}, nil
}

func (h *CreateCheckoutCommandHandler) resolve(ctx context.Context, cmd CreateCheckoutCommand) (*purchase, error) {
	if cmd.TemplateID != "" {
		tpl, err := h.catalog.GetTemplate(ctx, cmd.TemplateID)
		if err != nil {
			return nil, catalogError("template", cmd.TemplateID, err)
		}
		if !tpl.IsActive {
			return nil, fmt.Errorf("template %s is not available: %w", tpl.ID, ports.ErrNotFound)
		}
		return &purchase{
			name:        tpl.Title,
			description: tpl.Description,
			price:       tpl.Price,
			templateID:  tpl.ID,
		}, nil
	}

	bundle, err := h.catalog.GetBundle(ctx, cmd.BundleID)
	if err != nil {
		return nil, catalogError("bundle", cmd.BundleID, err)
	}
	if !bundle.IsActive {
		return nil, fmt.Errorf("bundle %s is not available: %w", bundle.ID, ports.ErrNotFound)
	}

	ids := bundle.MemberIDs()
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: bundle %s has no templates", ports.ErrValidation, bundle.ID)
	}
	members, err := h.catalog.GetTemplates(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load bundle %s templates: %w", bundle.ID, err)
	}
	if len(members) != len(ids) {
		return nil, fmt.Errorf("%w: bundle %s references %d missing templates", ports.ErrValidation, bundle.ID, len(ids)-len(members))
	}

	frozen := make([]string, len(members))
	for i, m := range members {
		frozen[i] = m.ID
	}

	return &purchase{
		name:        bundle.Title,
		description: bundle.Description,
		price:       bundle.Price,
		bundleID:    bundle.ID,
		members:     frozen,
	}, nil
}

func (h *CreateCheckoutCommandHandler) returnURLs(cmd CreateCheckoutCommand) (string, string, error) {
	success := h.settings.SuccessURL
	cancel := h.settings.CancelURL

	if cmd.SuccessURL != "" {
		if err := sameOrigin(h.settings.SuccessURL, cmd.SuccessURL); err != nil {
			return "", "", err
		}
		success = cmd.SuccessURL
	}
	if cmd.CancelURL != "" {
		if err := sameOrigin(h.settings.SuccessURL, cmd.CancelURL); err != nil {
			return "", "", err
		}
		cancel = cmd.CancelURL
	}

	if success == "" || cancel == "" {
		return "", "", fmt.Errorf("%w: success and cancel urls are required", ports.ErrValidation)
	}

	return withSessionPlaceholder(success), cancel, nil
}

// withSessionPlaceholder appends the processor's session id template so the
// buyer's return can be confirmed.
func withSessionPlaceholder(raw string) string {
	if strings.Contains(raw, "{CHECKOUT_SESSION_ID}") {
		return raw
	}
	if strings.Contains(raw, "?") {
		return raw + "&" + sessionPlaceholder
	}
	return raw + "?" + sessionPlaceholder
}

func sameOrigin(base, candidate string) error {
	c, err := url.Parse(candidate)
	if err != nil || (c.Scheme != "http" && c.Scheme != "https") || c.Host == "" {
		return fmt.Errorf("%w: return url %q must be absolute", ports.ErrValidation, candidate)
	}
	b, err := url.Parse(base)
	if err != nil {
		return errors.Join(ports.ErrValidation, err)
	}
	if !strings.EqualFold(b.Scheme, c.Scheme) || !strings.EqualFold(b.Host, c.Host) {
		return fmt.Errorf("%w: return url %q is not on %s://%s", ports.ErrValidation, candidate, b.Scheme, b.Host)
	}
	return nil
}

func metadata(orderID, userID string, item *purchase) map[string]string {
	meta := map[string]string{
		ports.MetadataOrderID: orderID,
		ports.MetadataUserID:  userID,
	}
	if item.templateID != "" {
		meta[ports.MetadataTemplateID] = item.templateID
	}
	if item.bundleID != "" {
		meta[ports.MetadataBundleID] = item.bundleID
		meta[ports.MetadataTemplateIDs] = strings.Join(item.members, ",")
	}
	return meta
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	catalogports "github.com/dejobratic/storefront/internal/catalog/ports"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

type ConfirmPaymentCommand struct {
	SessionID string
}

type ConfirmResult struct {
	Order       domain.Order
	DownloadURL string
	ItemTitle   string
}

// ConfirmPaymentCommandHandler is the buyer-return half of reconciliation: it
// asks the processor for the live session and applies the same transition
// the webhook would.
type ConfirmPaymentCommandHandler struct {
	gateway    ports.PaymentGateway
	reconciler Reconciler
	catalog    catalogports.Store
	media      ports.MediaResolver
}

func NewConfirmPaymentCommandHandler(
	gateway ports.PaymentGateway,
	reconciler Reconciler,
	catalog catalogports.Store,
	media ports.MediaResolver,
) *ConfirmPaymentCommandHandler {
	return &ConfirmPaymentCommandHandler{
		gateway:    gateway,
		reconciler: reconciler,
		catalog:    catalog,
		media:      media,
	}
}

func (h *ConfirmPaymentCommandHandler) Handle(ctx context.Context, cmd ConfirmPaymentCommand) (*ConfirmResult, error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ports.ErrValidation)
	}

	session, err := h.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Paid() {
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, session.PaymentStatus, ports.ErrPaymentNotCompleted)
	}

	result, err := h.reconciler.Handle(ctx, ReconcileCommand{
		Source:          SourceConfirm,
		Lookup:          OrderLookup{SessionID: sessionID, OrderID: session.Metadata[ports.MetadataOrderID]},
		Outcome:         domain.OutcomePaid,
		PaymentIntentID: session.PaymentIntentID,
	})
	if errors.Is(err, ports.ErrNotFound) {
		return nil, fmt.Errorf("%w: paid session %s", ports.ErrInconsistent, sessionID)
	}
	if err != nil {
		return nil, err
	}

	order := result.Order
	if order.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("order %s is %s: %w", order.ID, order.Status, ports.ErrPaymentNotCompleted)
	}

	return h.deliverable(ctx, order)
}

func (h *ConfirmPaymentCommandHandler) deliverable(ctx context.Context, order domain.Order) (*ConfirmResult, error) {
	if order.IsBundle() {
		bundle, err := h.catalog.GetBundle(ctx, order.BundleID)
		if err != nil {
			return nil, catalogError("bundle", order.BundleID, err)
		}
		return &ConfirmResult{
			Order:       order,
			DownloadURL: BundleDownloadsPath(order.ID),
			ItemTitle:   bundle.Title,
		}, nil
	}

	tpl, err := h.catalog.GetTemplate(ctx, order.TemplateID)
	if err != nil {
		return nil, catalogError("template", order.TemplateID, err)
	}
	link, err := h.media.Resolve(ctx, tpl.PDFURL)
	if err != nil {
		return nil, fmt.Errorf("resolve media for template %s: %w: %w", tpl.ID, ports.ErrUpstream, err)
	}
	return &ConfirmResult{Order: order, DownloadURL: link, ItemTitle: tpl.Title}, nil
}

// BundleDownloadsPath is where a bundle buyer collects individual files.
func BundleDownloadsPath(orderID string) string {
	return "/v1/orders/" + orderID + "/downloads"
}

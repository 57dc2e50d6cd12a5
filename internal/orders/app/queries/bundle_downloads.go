package queries

import (
	"context"
	"fmt"

	"github.com/dejobratic/storefront/internal/auth"
	catalogports "github.com/dejobratic/storefront/internal/catalog/ports"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

type BundleDownloadsQuery struct {
	Caller  *auth.Identity
	OrderID string
}

type BundleDownloads struct {
	OrderID  string                  `json:"orderId"`
	BundleID string                  `json:"bundleId"`
	Title    string                  `json:"title"`
	Files    []commands.DownloadLink `json:"files"`
}

// BundleDownloadsQueryHandler lists the files of a completed bundle order,
// using the template set frozen on the order rather than the current bundle.
type BundleDownloadsQueryHandler struct {
	repo           ports.OrderRepository
	catalog        catalogports.Store
	media          ports.MediaResolver
	revokeOnRefund bool
}

func NewBundleDownloadsQueryHandler(
	repo ports.OrderRepository,
	catalog catalogports.Store,
	media ports.MediaResolver,
	revokeOnRefund bool,
) *BundleDownloadsQueryHandler {
	return &BundleDownloadsQueryHandler{
		repo:           repo,
		catalog:        catalog,
		media:          media,
		revokeOnRefund: revokeOnRefund,
	}
}

func (h *BundleDownloadsQueryHandler) Handle(ctx context.Context, query BundleDownloadsQuery) (*BundleDownloads, error) {
	if query.Caller == nil {
		return nil, ports.ErrUnauthenticated
	}

	order, err := h.repo.GetByID(ctx, query.OrderID)
	if err != nil {
		return nil, err
	}
	if !query.Caller.CanAccess(order.UserID) {
		return nil, ports.ErrUnauthorized
	}
	if !order.IsBundle() || len(order.TemplateIDsPurchased) == 0 {
		return nil, fmt.Errorf("%w: order %s is not a bundle purchase", ports.ErrValidation, order.ID)
	}
	if !query.Caller.IsAdmin() && !order.Entitles(order.TemplateIDsPurchased[0], h.revokeOnRefund) {
		return nil, ports.ErrPurchaseRequired
	}

	templates, err := h.catalog.GetTemplates(ctx, order.TemplateIDsPurchased)
	if err != nil {
		return nil, fmt.Errorf("load bundle templates: %w", err)
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("templates of order %s: %w", order.ID, ports.ErrNotFound)
	}

	out := &BundleDownloads{
		OrderID:  order.ID,
		BundleID: order.BundleID,
		Files:    make([]commands.DownloadLink, 0, len(templates)),
	}
	if bundle, err := h.catalog.GetBundle(ctx, order.BundleID); err == nil {
		out.Title = bundle.Title
	}

	for _, tpl := range templates {
		link, err := h.media.Resolve(ctx, tpl.PDFURL)
		if err != nil {
			return nil, fmt.Errorf("resolve media for template %s: %w: %w", tpl.ID, ports.ErrUpstream, err)
		}
		out.Files = append(out.Files, commands.DownloadLink{
			TemplateID:  tpl.ID,
			Title:       tpl.Title,
			FileName:    commands.FileName(tpl.Title),
			DownloadURL: link,
		})
	}

	return out, nil
}


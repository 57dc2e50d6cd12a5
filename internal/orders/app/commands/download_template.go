package commands

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dejobratic/storefront/internal/auth"
	catalogports "github.com/dejobratic/storefront/internal/catalog/ports"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

type DownloadTemplateCommand struct {
	Caller     *auth.Identity
	TemplateID string
}

type DownloadLink struct {
	TemplateID  string `json:"templateId"`
	Title       string `json:"title"`
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
}

type DownloadHandler interface {
	Handle(ctx context.Context, cmd DownloadTemplateCommand) (*DownloadLink, error)
}

// DownloadTemplateCommandHandler gates file delivery on a completed order.
type DownloadTemplateCommandHandler struct {
	repo           ports.OrderRepository
	catalog        catalogports.Store
	media          ports.MediaResolver
	revokeOnRefund bool
}

func NewDownloadTemplateCommandHandler(
	repo ports.OrderRepository,
	catalog catalogports.Store,
	media ports.MediaResolver,
	revokeOnRefund bool,
) *DownloadTemplateCommandHandler {
	return &DownloadTemplateCommandHandler{
		repo:           repo,
		catalog:        catalog,
		media:          media,
		revokeOnRefund: revokeOnRefund,
	}
}

func (h *DownloadTemplateCommandHandler) Handle(ctx context.Context, cmd DownloadTemplateCommand) (*DownloadLink, error) {
	if cmd.Caller == nil {
		return nil, ports.ErrUnauthenticated
	}
	if strings.TrimSpace(cmd.TemplateID) == "" {
		return nil, fmt.Errorf("%w: template id is required", ports.ErrValidation)
	}

	tpl, err := h.catalog.GetTemplate(ctx, cmd.TemplateID)
	if err != nil {
		return nil, catalogError("template", cmd.TemplateID, err)
	}

	if !cmd.Caller.IsAdmin() {
		entitled, err := h.repo.HasEntitlement(ctx, cmd.Caller.UserID, tpl.ID, h.revokeOnRefund)
		if err != nil {
			return nil, err
		}
		if !entitled {
			return nil, ports.ErrPurchaseRequired
		}
	}

	link, err := h.media.Resolve(ctx, tpl.PDFURL)
	if err != nil {
		return nil, fmt.Errorf("resolve media for template %s: %w: %w", tpl.ID, ports.ErrUpstream, err)
	}

	if err := h.catalog.IncrementDownloadCount(ctx, tpl.ID); err != nil {
		return nil, catalogError("template", tpl.ID, err)
	}

	return &DownloadLink{
		TemplateID:  tpl.ID,
		Title:       tpl.Title,
		FileName:    FileName(tpl.Title),
		DownloadURL: link,
	}, nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// FileName turns a template title into a safe PDF file name.
func FileName(title string) string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(strings.TrimSpace(title), "_"), "_")
	if name == "" {
		name = "template"
	}
	return name + ".pdf"
}

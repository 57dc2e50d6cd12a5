package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dejobratic/storefront/internal/auth"
	"github.com/dejobratic/storefront/internal/orders/app"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/go-chi/chi/v5"
)

const (
	maxJSONBody    = 64 << 10
	maxWebhookBody = 1 << 20
)

// Handler exposes HTTP endpoints for checkout, reconciliation, downloads and orders.
type Handler struct {
	service *app.Service
	logger  *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register binds the handlers to r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/checkout", h.createCheckout)
	r.Post("/v1/payments/webhook", h.webhook)
	r.Get("/v1/payments/confirm", h.confirm)
	r.Get("/v1/templates/{id}/download", h.downloadTemplate)

	r.Route("/v1/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
		r.Patch("/{id}", h.updateOrder)
		r.Post("/{id}/cancel", h.cancelOrder)
		r.Get("/{id}/downloads", h.bundleDownloads)
	})
}

type checkoutRequest struct {
	TemplateID string `json:"templateId"`
	BundleID   string `json:"bundleId"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

type checkoutResponse struct {
	SessionID  string `json:"sessionId"`
	SessionURL string `json:"sessionUrl"`
	OrderID    string `json:"orderId"`
}

func (h *Handler) createCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := auth.FromContext(ctx)
	if caller == nil {
		writeServiceError(w, r, h.logger, ports.ErrUnauthenticated)
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey != "" {
		if !h.reserveIdempotencyKey(w, r, caller, idemKey) {
			return
		}
	}

	body, orderID, err := h.openCheckout(r, caller)
	if err != nil {
		if idemKey != "" {
			if relErr := h.service.ReleaseIdempotencyKey(context.WithoutCancel(ctx), caller, idemKey); relErr != nil {
				h.logger.WarnContext(ctx, "failed to release idempotency key", "error", relErr)
			}
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	if idemKey != "" {
		stored := ports.StoredResponse{StatusCode: http.StatusCreated, Body: body, OrderID: orderID}
		if err := h.service.SaveIdempotentResponse(ctx, caller, idemKey, stored); err != nil {
			h.logger.WarnContext(ctx, "failed to store idempotent checkout response",
				"order_id", orderID,
				"error", err,
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func (h *Handler) openCheckout(r *http.Request, caller *auth.Identity) ([]byte, string, error) {
	var payload checkoutRequest
	if err := decodeJSON(r, &payload, false); err != nil {
		return nil, "", err
	}

	result, err := h.service.CreateCheckout(r.Context(), commands.CreateCheckoutCommand{
		Caller:     caller,
		TemplateID: strings.TrimSpace(payload.TemplateID),
		BundleID:   strings.TrimSpace(payload.BundleID),
		SuccessURL: payload.SuccessURL,
		CancelURL:  payload.CancelURL,
	})
	if err != nil {
		return nil, "", err
	}

	body, err := json.Marshal(checkoutResponse{
		SessionID:  result.SessionID,
		SessionURL: result.SessionURL,
		OrderID:    result.Order.ID,
	})
	if err != nil {
		return nil, "", err
	}
	return body, result.Order.ID, nil
}

// reserveIdempotencyKey claims key for this request. When the key is already
// taken it writes the replayed response or a conflict and returns false.
func (h *Handler) reserveIdempotencyKey(w http.ResponseWriter, r *http.Request, caller *auth.Identity, key string) bool {
	ctx := r.Context()
	claimed, err := h.service.ClaimIdempotencyKey(ctx, caller, key)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return false
	}
	if claimed {
		return true
	}

	stored, err := h.service.GetIdempotentResponse(ctx, caller, key)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return false
	}
	if stored == nil || stored.InFlight() {
		writeServiceError(w, r, h.logger, ports.ErrRequestInFlight)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.StatusCode)
	_, _ = w.Write(stored.Body)
	return false
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeServiceError(w, r, h.logger, fmt.Errorf("%w: read body: %v", ports.ErrValidation, err))
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true, "result": result.Result})
}

type confirmResponse struct {
	OrderID     string `json:"orderId"`
	DownloadURL string `json:"downloadUrl"`
	ItemTitle   string `json:"itemTitle"`
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ConfirmPayment(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, confirmResponse{
		OrderID:     result.Order.ID,
		DownloadURL: result.DownloadURL,
		ItemTitle:   result.ItemTitle,
	})
}

func (h *Handler) downloadTemplate(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	link, err := h.service.DownloadTemplate(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (h *Handler) bundleDownloads(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	downloads, err := h.service.BundleDownloads(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, downloads)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	order, err := h.service.GetOrder(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())

	query := r.URL.Query()
	filter := ports.ListFilter{UserID: query.Get("user_id")}
	if statusParam := query.Get("status"); statusParam != "" {
		status := domain.OrderStatus(statusParam)
		filter.Status = &status
	}

	var err error
	if filter.Page, err = intParam(query.Get("page")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if filter.PageSize, err = intParam(query.Get("page_size")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	page, err := h.service.ListOrders(r.Context(), caller, filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// orderPatch is the complete set of fields an admin may change on an order.
// Anything else in the body is rejected.
type orderPatch struct {
	Notes *string `json:"notes"`
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())

	var patch orderPatch
	if err := decodeJSON(r, &patch, true); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if patch.Notes == nil {
		writeServiceError(w, r, h.logger, fmt.Errorf("%w: nothing to update", ports.ErrValidation))
		return
	}

	order, err := h.service.UpdateNotes(r.Context(), caller, chi.URLParam(r, "id"), *patch.Notes)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	order, err := h.service.CancelOrder(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func decodeJSON(r *http.Request, dst any, strict bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if strict {
		decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", ports.ErrValidation)
		}
		return fmt.Errorf("%w: invalid JSON payload: %v", ports.ErrValidation, err)
	}
	return nil
}

func intParam(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0, fmt.Errorf("%w: %q is not a valid page number", ports.ErrValidation, value)
	}
	return parsed, nil
}

package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableDownloadHandler struct {
	handler DownloadHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableDownloadHandler(handler DownloadHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableDownloadHandler {
	return &ObservableDownloadHandler{handler: handler, logger: logger, metrics: metrics}
}

func (o *ObservableDownloadHandler) Handle(ctx context.Context, cmd DownloadTemplateCommand) (*DownloadLink, error) {
	ctx, span := telemetry.StartSpan(ctx, "DownloadTemplateCommand.Handle")
	defer span.End()

	telemetry.AddSpanAttributes(span, attribute.String("template.id", cmd.TemplateID))

	link, err := o.handler.Handle(ctx, cmd)
	switch {
	case err == nil:
		o.metrics.RecordDownload(ctx, "granted")
		telemetry.SetSpanSuccess(span)
		return link, nil
	case errors.Is(err, ports.ErrPurchaseRequired), errors.Is(err, ports.ErrUnauthenticated):
		o.metrics.RecordDownload(ctx, "denied")
		telemetry.AddSpanEvent(span, err.Error())
	case errors.Is(err, ports.ErrNotFound):
		o.metrics.RecordDownload(ctx, "not_found")
		telemetry.AddSpanEvent(span, err.Error())
	default:
		o.metrics.RecordDownload(ctx, "error")
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "download failed",
			"error", err,
			"template_id", cmd.TemplateID,
		)
	}
	return nil, err
}

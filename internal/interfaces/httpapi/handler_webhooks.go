package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/riskibarqy/redial/internal/usecase"
)

// Provider webhooks carry at most a call status plus a transcript; anything
// larger is not a webhook this engine understands.
const maxWebhookBodyBytes = 1 << 20

// ProviderWebhook ingests a status callback from a voice provider. The
// provider kind in the path picks the adapter that understands the payload;
// events that normalize to a non-final outcome are acknowledged without
// touching the job so providers do not retry progress notifications.
func (h *Handler) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ProviderWebhook")
	defer span.End()

	kind := strings.ToLower(strings.TrimSpace(r.PathValue("providerKind")))
	adapter, ok := h.adapters.Resolve(kind)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: no adapter for provider kind %q", usecase.ErrNotFound, kind))
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: read webhook body: %v", usecase.ErrInvalidInput, err))
		return
	}

	event, err := adapter.NormalizeInboundEvent(ctx, raw)
	if err != nil {
		h.logger.WarnContext(ctx, "normalize webhook failed",
			"provider_kind", kind,
			"remote_ip", resolveClientIP(ctx, r),
			"error", err,
		)
		writeError(ctx, w, err)
		return
	}

	if event.Outcome == "" {
		h.logger.DebugContext(ctx, "webhook progress event ignored",
			"provider_kind", kind,
			"correlation_id", event.CorrelationID,
		)
		writeSuccess(ctx, w, http.StatusOK, reconcileResultDTO{Disposition: "ignored"})
		return
	}

	result, err := h.reconcile.ApplyEvent(ctx, event)
	if err != nil {
		h.logger.WarnContext(ctx, "reconcile webhook failed",
			"provider_kind", kind,
			"correlation_id", event.CorrelationID,
			"outcome", event.Outcome,
			"remote_ip", resolveClientIP(ctx, r),
			"error", err,
		)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, reconcileResultDTO{
		Disposition: result.Disposition,
		JobID:       result.JobID,
		JobStatus:   result.JobStatus,
	})
}

type reconcileResultDTO struct {
	Disposition string `json:"disposition"`
	JobID       string `json:"job_id,omitempty"`
	JobStatus   string `json:"job_status,omitempty"`
}

package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/redial/internal/domain/schedulerun"
	"github.com/riskibarqy/redial/internal/usecase"
	"go.opentelemetry.io/otel/trace"
)

var internalRunUnsafeRegex = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// RunDispatchTickJob executes one dispatch pass. The queue delivers these on
// a fixed cadence; each delivery re-arms the next occurrence so the chain
// survives as long as one message gets through.
func (h *Handler) RunDispatchTickJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunDispatchTickJob")
	defer span.End()

	if h.dispatch == nil {
		writeError(ctx, w, fmt.Errorf("%w: dispatch service is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	req, err := decodeInternalJobRequest(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.dispatch.RunTick(ctx)
	if err != nil {
		h.recordRunOutcome(ctx, req, schedulerun.RunRecord{
			Kind:         schedulerun.KindDispatch,
			Path:         "/v1/internal/jobs/dispatch-tick",
			Status:       schedulerun.StatusFailed,
			ErrorMessage: err.Error(),
		})
		h.rearmSchedule(ctx, schedulerun.KindDispatch)
		h.logger.WarnContext(ctx, "dispatch tick job failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	h.recordRunOutcome(ctx, req, schedulerun.RunRecord{
		Kind:   schedulerun.KindDispatch,
		Path:   "/v1/internal/jobs/dispatch-tick",
		Status: schedulerun.StatusCompleted,
		Counts: map[string]any{
			"budget":  result.Budget,
			"claimed": result.Claimed,
			"placed":  result.Placed,
			"failed":  result.Failed,
		},
	})
	h.rearmSchedule(ctx, schedulerun.KindDispatch)

	writeSuccess(ctx, w, http.StatusOK, result)
}

// RunProbeProvidersJob probes every active provider and reports the
// resulting availability snapshots.
func (h *Handler) RunProbeProvidersJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunProbeProvidersJob")
	defer span.End()

	if h.availability == nil {
		writeError(ctx, w, fmt.Errorf("%w: availability service is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	req, err := decodeInternalJobRequest(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := h.availability.ProbeAll(ctx); err != nil {
		h.recordRunOutcome(ctx, req, schedulerun.RunRecord{
			Kind:         schedulerun.KindProbe,
			Path:         "/v1/internal/jobs/probe-providers",
			Status:       schedulerun.StatusFailed,
			ErrorMessage: err.Error(),
		})
		h.rearmSchedule(ctx, schedulerun.KindProbe)
		h.logger.WarnContext(ctx, "probe providers job failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	snapshots, err := h.availability.Snapshots(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "load snapshots after probe failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	h.recordRunOutcome(ctx, req, schedulerun.RunRecord{
		Kind:   schedulerun.KindProbe,
		Path:   "/v1/internal/jobs/probe-providers",
		Status: schedulerun.StatusCompleted,
		Counts: map[string]any{"probed": len(snapshots)},
	})
	h.rearmSchedule(ctx, schedulerun.KindProbe)

	items := make([]providerSnapshotDTO, 0, len(snapshots))
	for _, snapshot := range snapshots {
		items = append(items, snapshotToDTO(ctx, snapshot))
	}
	writeSuccess(ctx, w, http.StatusOK, probeRunDTO{Probed: len(items), Snapshots: items})
}

// RunRecoverJob promotes due retries back to pending and requeues calls
// stuck in flight past the stall timeout.
func (h *Handler) RunRecoverJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunRecoverJob")
	defer span.End()

	if h.recovery == nil {
		writeError(ctx, w, fmt.Errorf("%w: recovery service is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	req, err := decodeInternalJobRequest(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.recovery.RunSweep(ctx)
	if err != nil {
		h.recordRunOutcome(ctx, req, schedulerun.RunRecord{
			Kind:         schedulerun.KindRecover,
			Path:         "/v1/internal/jobs/recover",
			Status:       schedulerun.StatusFailed,
			ErrorMessage: err.Error(),
			Counts: map[string]any{
				"promoted": result.Promoted,
				"requeued": result.Requeued,
			},
		})
		h.rearmSchedule(ctx, schedulerun.KindRecover)
		h.logger.WarnContext(ctx, "recover job failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	h.recordRunOutcome(ctx, req, schedulerun.RunRecord{
		Kind:   schedulerun.KindRecover,
		Path:   "/v1/internal/jobs/recover",
		Status: schedulerun.StatusCompleted,
		Counts: map[string]any{
			"promoted": result.Promoted,
			"requeued": result.Requeued,
		},
	})
	h.rearmSchedule(ctx, schedulerun.KindRecover)

	writeSuccess(ctx, w, http.StatusOK, result)
}

type internalJobRequest struct {
	Kind       string `json:"kind"`
	DispatchID string `json:"dispatch_id"`
}

func decodeInternalJobRequest(r *http.Request) (internalJobRequest, error) {
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var req internalJobRequest
	if err := decoder.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return internalJobRequest{}, nil
		}
		return internalJobRequest{}, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err)
	}

	return req, nil
}

func (h *Handler) recordRunOutcome(ctx context.Context, req internalJobRequest, record schedulerun.RunRecord) {
	if h.runRepo == nil {
		return
	}

	runID := strings.TrimSpace(req.DispatchID)
	if runID == "" {
		runID = buildManualRunID(record.Kind, time.Now().UTC())
	}
	record.RunID = runID
	record.OccurredAt = time.Now().UTC()
	record.TraceID, record.SpanID = traceMetaFromContext(ctx)

	if err := h.runRepo.UpsertRun(ctx, record); err != nil {
		h.logger.WarnContext(ctx, "record run outcome failed",
			"run_id", record.RunID,
			"kind", record.Kind,
			"status", record.Status,
			"error", err,
		)
	}
}

// rearmSchedule queues the next occurrence of a recurring job. Failures are
// logged, never surfaced: the orchestrator's heartbeat re-seeds lost chains.
func (h *Handler) rearmSchedule(ctx context.Context, kind string) {
	if h.scheduler == nil {
		return
	}
	if err := h.scheduler.EnsureNext(ctx, kind); err != nil {
		h.logger.WarnContext(ctx, "re-arm schedule failed", "kind", kind, "error", err)
	}
}

func buildManualRunID(kind string, now time.Time) string {
	kind = sanitizeRunPart(kind)
	ts := now.UTC().Format("20060102T150405.000000000Z")
	return "manual-" + kind + "-" + ts
}

func sanitizeRunPart(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return internalRunUnsafeRegex.ReplaceAllString(value, "-")
}

func traceMetaFromContext(ctx context.Context) (string, string) {
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if !spanContext.IsValid() {
		return "", ""
	}
	return spanContext.TraceID().String(), spanContext.SpanID().String()
}

type probeRunDTO struct {
	Probed    int                   `json:"probed"`
	Snapshots []providerSnapshotDTO `json:"snapshots"`
}

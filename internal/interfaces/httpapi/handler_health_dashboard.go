package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/riskibarqy/redial/internal/domain/schedulerun"
	"github.com/riskibarqy/redial/internal/usecase"
)

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetAdminDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetAdminDashboard")
	defer span.End()

	dashboard, err := h.dashboardService.Get(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "get admin dashboard failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, dashboardToDTO(ctx, dashboard))
}

type dashboardDTO struct {
	QueueDepth   map[string]int        `json:"queue_depth"`
	InFlight     int                   `json:"in_flight"`
	RetryBacklog int                   `json:"retry_backlog"`
	Providers    []providerSnapshotDTO `json:"providers"`
	RecentRuns   []runRecordDTO        `json:"recent_runs"`
}

type runRecordDTO struct {
	RunID         string         `json:"run_id"`
	Kind          string         `json:"kind"`
	Path          string         `json:"path"`
	Status        string         `json:"status"`
	Counts        map[string]any `json:"counts,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	OccurredAtUTC string         `json:"occurred_at_utc"`
}

func dashboardToDTO(ctx context.Context, dashboard usecase.Dashboard) dashboardDTO {
	ctx, span := startSpan(ctx, "httpapi.dashboardToDTO")
	defer span.End()

	providers := make([]providerSnapshotDTO, 0, len(dashboard.Providers))
	for _, snapshot := range dashboard.Providers {
		providers = append(providers, snapshotToDTO(ctx, snapshot))
	}

	runs := make([]runRecordDTO, 0, len(dashboard.RecentRuns))
	for _, run := range dashboard.RecentRuns {
		runs = append(runs, runRecordToDTO(ctx, run))
	}

	return dashboardDTO{
		QueueDepth:   dashboard.QueueDepth,
		InFlight:     dashboard.InFlight,
		RetryBacklog: dashboard.RetryBacklog,
		Providers:    providers,
		RecentRuns:   runs,
	}
}

func runRecordToDTO(ctx context.Context, run schedulerun.RunRecord) runRecordDTO {
	ctx, span := startSpan(ctx, "httpapi.runRecordToDTO")
	defer span.End()

	return runRecordDTO{
		RunID:         run.RunID,
		Kind:          run.Kind,
		Path:          run.Path,
		Status:        run.Status,
		Counts:        run.Counts,
		ErrorMessage:  run.ErrorMessage,
		OccurredAtUTC: run.OccurredAt.UTC().Format(time.RFC3339),
	}
}

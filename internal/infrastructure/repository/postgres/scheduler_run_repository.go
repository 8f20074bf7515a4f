package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/redial/internal/domain/schedulerun"
	qb "github.com/riskibarqy/redial/internal/platform/querybuilder"
)

type SchedulerRunRepository struct {
	db *sqlx.DB
}

func NewSchedulerRunRepository(db *sqlx.DB) *SchedulerRunRepository {
	return &SchedulerRunRepository{db: db}
}

// UpsertRun keeps one row per run id. A run typically progresses from sent
// to completed or failed; counts only stick on completion and the error
// column is cleared whenever the run moves past a failure.
func (r *SchedulerRunRepository) UpsertRun(ctx context.Context, record schedulerun.RunRecord) error {
	runID := strings.TrimSpace(record.RunID)
	if runID == "" {
		return fmt.Errorf("upsert scheduler run: run id is required")
	}

	kind := strings.TrimSpace(record.Kind)
	if kind == "" {
		kind = "unknown"
	}
	path := strings.TrimSpace(record.Path)
	if path == "" {
		path = "/unknown"
	}

	occurredAt := record.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	countsJSON, err := marshalCounts(record.Counts)
	if err != nil {
		return fmt.Errorf("marshal scheduler run counts: %w", err)
	}

	insertModel := schedulerRunInsertModel{
		RunID:      runID,
		Kind:       kind,
		Path:       path,
		Status:     record.Status,
		Counts:     countsJSON,
		LastError:  optionalString(record.ErrorMessage),
		OccurredAt: occurredAt,
		TraceID:    optionalString(record.TraceID),
		SpanID:     optionalString(record.SpanID),
	}
	if record.Status != schedulerun.StatusFailed {
		insertModel.LastError = nil
	}

	query, args, err := qb.InsertModel("scheduler_runs", insertModel, `ON CONFLICT (run_id) WHERE deleted_at IS NULL
DO UPDATE SET
    kind = EXCLUDED.kind,
    path = EXCLUDED.path,
    status = EXCLUDED.status,
    counts = CASE
        WHEN EXCLUDED.status = 'completed' THEN EXCLUDED.counts
        ELSE scheduler_runs.counts
    END,
    last_error = CASE
        WHEN EXCLUDED.status = 'failed' THEN EXCLUDED.last_error
        ELSE NULL
    END,
    occurred_at = EXCLUDED.occurred_at,
    trace_id = COALESCE(EXCLUDED.trace_id, scheduler_runs.trace_id),
    span_id = COALESCE(EXCLUDED.span_id, scheduler_runs.span_id),
    updated_at = NOW(),
    deleted_at = NULL`)
	if err != nil {
		return fmt.Errorf("build upsert scheduler run query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert scheduler run run_id=%s status=%s: %w", runID, record.Status, err)
	}

	return nil
}

func (r *SchedulerRunRepository) ListRecent(ctx context.Context, limit int) ([]schedulerun.RunRecord, error) {
	builder := qb.Select("*").From("scheduler_runs").
		Where(qb.IsNull("deleted_at")).
		OrderBy("occurred_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(limit)
	}
	query, args, err := builder.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list recent scheduler runs query: %w", err)
	}

	var rows []schedulerRunTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list recent scheduler runs: %w", err)
	}

	out := make([]schedulerun.RunRecord, 0, len(rows))
	for _, row := range rows {
		counts, err := unmarshalCounts(row.Counts)
		if err != nil {
			return nil, fmt.Errorf("unmarshal scheduler run %s counts: %w", row.RunID, err)
		}
		out = append(out, schedulerun.RunRecord{
			RunID:        row.RunID,
			Kind:         row.Kind,
			Path:         row.Path,
			Status:       row.Status,
			Counts:       counts,
			ErrorMessage: nullStringToString(row.LastError),
			OccurredAt:   row.OccurredAt,
			TraceID:      nullStringToString(row.TraceID),
			SpanID:       nullStringToString(row.SpanID),
		})
	}
	return out, nil
}

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/redial/internal/domain/callevent"
	qb "github.com/riskibarqy/redial/internal/platform/querybuilder"
)

type CallEventRepository struct {
	db *sqlx.DB
}

func NewCallEventRepository(db *sqlx.DB) *CallEventRepository {
	return &CallEventRepository{db: db}
}

// UpsertAttempt merges on correlation id. The outcome always follows the
// latest write; every other column only moves forward, so a sparse close
// event cannot blank out what the placement recorded.
func (r *CallEventRepository) UpsertAttempt(ctx context.Context, attempt callevent.Attempt) error {
	correlationID := strings.TrimSpace(attempt.CorrelationID)
	if correlationID == "" {
		return fmt.Errorf("upsert call attempt: correlation id is required")
	}

	insertModel := callAttemptInsertModel{
		CorrelationID:   correlationID,
		JobID:           attempt.JobID,
		ProviderID:      optionalString(attempt.ProviderID),
		AttemptNumber:   attempt.AttemptNumber,
		Outcome:         attempt.Outcome,
		ProviderStatus:  optionalString(attempt.ProviderStatus),
		ErrorMessage:    optionalString(attempt.ErrorMessage),
		DurationSeconds: optionalInt(attempt.DurationSeconds),
		RecordingURL:    optionalString(attempt.RecordingURL),
		AssignedAt:      attempt.AssignedAt.UTC(),
		ClosedAt:        optionalTime(attempt.ClosedAt),
		TraceID:         optionalString(attempt.TraceID),
		SpanID:          optionalString(attempt.SpanID),
	}

	query, args, err := qb.InsertModel("call_attempts", insertModel, `ON CONFLICT (correlation_id) WHERE deleted_at IS NULL
DO UPDATE SET
    outcome = EXCLUDED.outcome,
    provider_public_id = COALESCE(EXCLUDED.provider_public_id, call_attempts.provider_public_id),
    provider_status = COALESCE(EXCLUDED.provider_status, call_attempts.provider_status),
    error_message = COALESCE(EXCLUDED.error_message, call_attempts.error_message),
    duration_seconds = COALESCE(EXCLUDED.duration_seconds, call_attempts.duration_seconds),
    recording_url = COALESCE(EXCLUDED.recording_url, call_attempts.recording_url),
    closed_at = COALESCE(EXCLUDED.closed_at, call_attempts.closed_at),
    trace_id = COALESCE(EXCLUDED.trace_id, call_attempts.trace_id),
    span_id = COALESCE(EXCLUDED.span_id, call_attempts.span_id),
    updated_at = NOW(),
    deleted_at = NULL`)
	if err != nil {
		return fmt.Errorf("build upsert call attempt query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert call attempt correlation_id=%s: %w", correlationID, err)
	}

	return nil
}

func (r *CallEventRepository) ListAttemptsByJob(ctx context.Context, jobID string) ([]callevent.Attempt, error) {
	query, args, err := qb.Select("*").From("call_attempts").
		Where(
			qb.Eq("call_job_public_id", jobID),
			qb.IsNull("deleted_at"),
		).
		OrderBy("attempt_number ASC", "correlation_id ASC").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list call attempts query: %w", err)
	}

	var rows []callAttemptTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list call attempts by job: %w", err)
	}

	out := make([]callevent.Attempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, callevent.Attempt{
			CorrelationID:   row.CorrelationID,
			JobID:           row.JobID,
			ProviderID:      nullStringToString(row.ProviderID),
			AttemptNumber:   row.AttemptNumber,
			Outcome:         row.Outcome,
			ProviderStatus:  nullStringToString(row.ProviderStatus),
			ErrorMessage:    nullStringToString(row.ErrorMessage),
			DurationSeconds: nullInt64ToInt(row.DurationSeconds),
			RecordingURL:    nullStringToString(row.RecordingURL),
			AssignedAt:      row.AssignedAt,
			ClosedAt:        nullTimeToTimePtr(row.ClosedAt),
			TraceID:         nullStringToString(row.TraceID),
			SpanID:          nullStringToString(row.SpanID),
		})
	}
	return out, nil
}

// UpsertRetryRecord keeps one row per job. first_failed_at is written once
// and then preserved across every later failure.
func (r *CallEventRepository) UpsertRetryRecord(ctx context.Context, record callevent.RetryRecord) error {
	jobID := strings.TrimSpace(record.JobID)
	if jobID == "" {
		return fmt.Errorf("upsert call retry record: job id is required")
	}

	insertModel := callRetryInsertModel{
		JobID:          jobID,
		RetryCount:     record.RetryCount,
		LastError:      optionalString(record.LastError),
		LastProviderID: optionalString(record.LastProviderID),
		NextRetryAt:    optionalTime(record.NextRetryAt),
		FirstFailedAt:  record.FirstFailedAt.UTC(),
	}

	query, args, err := qb.InsertModel("call_retries", insertModel, `ON CONFLICT (call_job_public_id) WHERE deleted_at IS NULL
DO UPDATE SET
    retry_count = EXCLUDED.retry_count,
    last_error = EXCLUDED.last_error,
    last_provider_public_id = EXCLUDED.last_provider_public_id,
    next_retry_at = EXCLUDED.next_retry_at,
    first_failed_at = call_retries.first_failed_at,
    updated_at = NOW(),
    deleted_at = NULL`)
	if err != nil {
		return fmt.Errorf("build upsert call retry record query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert call retry record job=%s: %w", jobID, err)
	}

	return nil
}

func (r *CallEventRepository) GetRetryRecord(ctx context.Context, jobID string) (callevent.RetryRecord, bool, error) {
	query, args, err := qb.Select("*").From("call_retries").
		Where(
			qb.Eq("call_job_public_id", jobID),
			qb.IsNull("deleted_at"),
		).
		ToSQL()
	if err != nil {
		return callevent.RetryRecord{}, false, fmt.Errorf("build get call retry record query: %w", err)
	}

	var row callRetryTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return callevent.RetryRecord{}, false, nil
		}
		return callevent.RetryRecord{}, false, fmt.Errorf("get call retry record: %w", err)
	}

	return callevent.RetryRecord{
		JobID:          row.JobID,
		RetryCount:     row.RetryCount,
		LastError:      nullStringToString(row.LastError),
		LastProviderID: nullStringToString(row.LastProviderID),
		NextRetryAt:    nullTimeToTimePtr(row.NextRetryAt),
		FirstFailedAt:  row.FirstFailedAt,
		UpdatedAt:      row.UpdatedAt,
	}, true, nil
}

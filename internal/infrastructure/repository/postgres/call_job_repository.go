package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/redial/internal/domain/calljob"
	qb "github.com/riskibarqy/redial/internal/platform/querybuilder"
)

type CallJobRepository struct {
	db *sqlx.DB
}

func NewCallJobRepository(db *sqlx.DB) *CallJobRepository {
	return &CallJobRepository{db: db}
}

func (r *CallJobRepository) Create(ctx context.Context, job calljob.Job) error {
	variablesJSON, err := marshalStringMap(job.Variables)
	if err != nil {
		return fmt.Errorf("marshal call job variables: %w", err)
	}

	insertModel := callJobInsertModel{
		PublicID:         job.ID,
		AccountID:        job.AccountID,
		PhoneNumber:      job.PhoneNumber,
		TemplateID:       job.TemplateID,
		Script:           job.Script,
		Variables:        variablesJSON,
		Priority:         job.Priority,
		Status:           job.Status,
		PinnedProviderID: optionalString(job.PinnedProviderID),
		AttemptCount:     job.AttemptCount,
		MaxRetries:       job.MaxRetries,
		ScheduledAt:      optionalTime(job.ScheduledAt),
	}
	query, args, err := qb.InsertModel("call_jobs", insertModel, "")
	if err != nil {
		return fmt.Errorf("build create call job query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create call job: %w", err)
	}

	return nil
}

func (r *CallJobRepository) GetByID(ctx context.Context, jobID string) (calljob.Job, bool, error) {
	query, args, err := qb.Select("*").From("call_jobs").
		Where(
			qb.Eq("public_id", jobID),
			qb.IsNull("deleted_at"),
		).
		ToSQL()
	if err != nil {
		return calljob.Job{}, false, fmt.Errorf("build get call job by id query: %w", err)
	}

	var row callJobTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return calljob.Job{}, false, nil
		}
		return calljob.Job{}, false, fmt.Errorf("get call job by id: %w", err)
	}

	job, err := callJobFromRow(row)
	if err != nil {
		return calljob.Job{}, false, err
	}
	return job, true, nil
}

func (r *CallJobRepository) GetByCorrelationID(ctx context.Context, correlationID string) (calljob.Job, bool, error) {
	if correlationID == "" {
		return calljob.Job{}, false, nil
	}

	query, args, err := qb.Select("*").From("call_jobs").
		Where(
			qb.Eq("correlation_id", correlationID),
			qb.IsNull("deleted_at"),
		).
		ToSQL()
	if err != nil {
		return calljob.Job{}, false, fmt.Errorf("build get call job by correlation id query: %w", err)
	}

	var row callJobTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return calljob.Job{}, false, nil
		}
		return calljob.Job{}, false, fmt.Errorf("get call job by correlation id: %w", err)
	}

	job, err := callJobFromRow(row)
	if err != nil {
		return calljob.Job{}, false, err
	}
	return job, true, nil
}

func (r *CallJobRepository) ListByAccount(ctx context.Context, accountID string, filter calljob.ListFilter) ([]calljob.Job, error) {
	conditions := []qb.Condition{
		qb.Eq("account_id", accountID),
		qb.IsNull("deleted_at"),
	}
	if filter.Status != "" {
		conditions = append(conditions, qb.Eq("status", filter.Status))
	}

	builder := qb.Select("*").From("call_jobs").
		Where(conditions...).
		OrderBy("created_at DESC", "id DESC")
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		builder = builder.Offset(filter.Offset)
	}
	query, args, err := builder.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list call jobs query: %w", err)
	}

	var rows []callJobTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list call jobs by account: %w", err)
	}

	out := make([]calljob.Job, 0, len(rows))
	for _, row := range rows {
		job, err := callJobFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// NextEligible walks the pending queue in dispatch order: priority ascending,
// then created_at, then the insert sequence as the final tiebreak. Jobs with a
// future scheduled_at or a future next_attempt_at are invisible until due.
func (r *CallJobRepository) NextEligible(ctx context.Context, now time.Time) (calljob.Job, bool, error) {
	query, args, err := qb.Select("*").From("call_jobs").
		Where(
			qb.Eq("status", calljob.StatusPending),
			qb.Expr("(scheduled_at IS NULL OR scheduled_at <= ?)", now.UTC()),
			qb.Expr("(next_attempt_at IS NULL OR next_attempt_at <= ?)", now.UTC()),
			qb.IsNull("deleted_at"),
		).
		OrderBy("priority ASC", "created_at ASC", "id ASC").
		Limit(1).
		ToSQL()
	if err != nil {
		return calljob.Job{}, false, fmt.Errorf("build next eligible call job query: %w", err)
	}

	var row callJobTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return calljob.Job{}, false, nil
		}
		return calljob.Job{}, false, fmt.Errorf("next eligible call job: %w", err)
	}

	job, err := callJobFromRow(row)
	if err != nil {
		return calljob.Job{}, false, err
	}
	return job, true, nil
}

// Transition is the compare-and-set write every state change goes through.
// The from set is part of the WHERE clause, so a row claimed by a concurrent
// actor simply matches zero rows and the caller learns it lost.
func (r *CallJobRepository) Transition(ctx context.Context, jobID string, from []string, to string, fields calljob.TransitionFields) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition call job: from statuses are required")
	}

	update := qb.Update("call_jobs").
		Set("status", to).
		SetExpr("updated_at", "NOW()")

	if fields.ClearProvider {
		update = update.
			SetExpr("provider_public_id", "NULL").
			SetExpr("correlation_id", "NULL")
	}
	if fields.ProviderID != nil {
		update = update.Set("provider_public_id", *fields.ProviderID)
	}
	if fields.CorrelationID != nil {
		update = update.Set("correlation_id", *fields.CorrelationID)
	}
	if fields.AttemptCount != nil {
		update = update.Set("attempt_count", *fields.AttemptCount)
	}
	if fields.LastError != nil {
		update = update.Set("last_error", *fields.LastError)
	}
	if fields.DurationSeconds != nil {
		update = update.Set("duration_seconds", *fields.DurationSeconds)
	}
	if fields.ClearNextAttempt {
		update = update.SetExpr("next_attempt_at", "NULL")
	} else if fields.NextAttemptAt != nil {
		update = update.Set("next_attempt_at", fields.NextAttemptAt.UTC())
	}
	if fields.DispatchedAt != nil {
		update = update.Set("dispatched_at", fields.DispatchedAt.UTC())
	}
	if fields.CompletedAt != nil {
		update = update.Set("completed_at", fields.CompletedAt.UTC())
	}

	fromValues := make([]any, 0, len(from))
	for _, status := range from {
		fromValues = append(fromValues, status)
	}
	query, args, err := update.
		Where(
			qb.Eq("public_id", jobID),
			qb.In("status", fromValues),
			qb.IsNull("deleted_at"),
		).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build transition call job query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition call job to %s: %w", to, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected transition call job: %w", err)
	}
	return affected > 0, nil
}

func (r *CallJobRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	query, args, err := qb.Select("status", "COUNT(*) AS total").From("call_jobs").
		Where(qb.IsNull("deleted_at")).
		GroupBy("status").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build count call jobs by status query: %w", err)
	}

	var rows []statusCountModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count call jobs by status: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *CallJobRepository) ListInFlightDispatchedBefore(ctx context.Context, cutoff time.Time, limit int) ([]calljob.Job, error) {
	builder := qb.Select("*").From("call_jobs").
		Where(
			qb.Eq("status", calljob.StatusInFlight),
			qb.Expr("dispatched_at IS NOT NULL AND dispatched_at < ?", cutoff.UTC()),
			qb.IsNull("deleted_at"),
		).
		OrderBy("dispatched_at ASC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(limit)
	}
	query, args, err := builder.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list stalled call jobs query: %w", err)
	}

	var rows []callJobTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list stalled call jobs: %w", err)
	}

	out := make([]calljob.Job, 0, len(rows))
	for _, row := range rows {
		job, err := callJobFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

func (r *CallJobRepository) ListRetryableDue(ctx context.Context, now time.Time, limit int) ([]calljob.Job, error) {
	builder := qb.Select("*").From("call_jobs").
		Where(
			qb.Eq("status", calljob.StatusFailedRetryable),
			qb.Expr("(next_attempt_at IS NULL OR next_attempt_at <= ?)", now.UTC()),
			qb.IsNull("deleted_at"),
		).
		OrderBy("priority ASC", "created_at ASC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(limit)
	}
	query, args, err := builder.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list retryable call jobs query: %w", err)
	}

	var rows []callJobTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list retryable call jobs: %w", err)
	}

	out := make([]calljob.Job, 0, len(rows))
	for _, row := range rows {
		job, err := callJobFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

type statusCountModel struct {
	Status string `db:"status"`
	Total  int    `db:"total"`
}

func callJobFromRow(row callJobTableModel) (calljob.Job, error) {
	variables, err := unmarshalStringMap(row.Variables)
	if err != nil {
		return calljob.Job{}, fmt.Errorf("unmarshal call job %s variables: %w", row.PublicID, err)
	}

	return calljob.Job{
		ID:               row.PublicID,
		AccountID:        row.AccountID,
		PhoneNumber:      row.PhoneNumber,
		TemplateID:       row.TemplateID,
		Script:           row.Script,
		Variables:        variables,
		Priority:         row.Priority,
		Status:           row.Status,
		ProviderID:       nullStringToString(row.ProviderID),
		PinnedProviderID: nullStringToString(row.PinnedProviderID),
		CorrelationID:    nullStringToString(row.CorrelationID),
		AttemptCount:     row.AttemptCount,
		MaxRetries:       row.MaxRetries,
		LastError:        nullStringToString(row.LastError),
		DurationSeconds:  nullInt64ToIntPtr(row.DurationSeconds),
		ScheduledAt:      nullTimeToTimePtr(row.ScheduledAt),
		NextAttemptAt:    nullTimeToTimePtr(row.NextAttemptAt),
		DispatchedAt:     nullTimeToTimePtr(row.DispatchedAt),
		CompletedAt:      nullTimeToTimePtr(row.CompletedAt),
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

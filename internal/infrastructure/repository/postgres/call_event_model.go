package postgres

import (
	"database/sql"
	"time"
)

type callAttemptTableModel struct {
	ID              int64          `db:"id"`
	CorrelationID   string         `db:"correlation_id"`
	JobID           string         `db:"call_job_public_id"`
	ProviderID      sql.NullString `db:"provider_public_id"`
	AttemptNumber   int            `db:"attempt_number"`
	Outcome         string         `db:"outcome"`
	ProviderStatus  sql.NullString `db:"provider_status"`
	ErrorMessage    sql.NullString `db:"error_message"`
	DurationSeconds sql.NullInt64  `db:"duration_seconds"`
	RecordingURL    sql.NullString `db:"recording_url"`
	AssignedAt      time.Time      `db:"assigned_at"`
	ClosedAt        sql.NullTime   `db:"closed_at"`
	TraceID         sql.NullString `db:"trace_id"`
	SpanID          sql.NullString `db:"span_id"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
	DeletedAt       *time.Time     `db:"deleted_at"`
}

type callAttemptInsertModel struct {
	CorrelationID   string     `db:"correlation_id"`
	JobID           string     `db:"call_job_public_id"`
	ProviderID      *string    `db:"provider_public_id"`
	AttemptNumber   int        `db:"attempt_number"`
	Outcome         string     `db:"outcome"`
	ProviderStatus  *string    `db:"provider_status"`
	ErrorMessage    *string    `db:"error_message"`
	DurationSeconds *int       `db:"duration_seconds"`
	RecordingURL    *string    `db:"recording_url"`
	AssignedAt      time.Time  `db:"assigned_at"`
	ClosedAt        *time.Time `db:"closed_at"`
	TraceID         *string    `db:"trace_id"`
	SpanID          *string    `db:"span_id"`
}

type callRetryTableModel struct {
	ID             int64          `db:"id"`
	JobID          string         `db:"call_job_public_id"`
	RetryCount     int            `db:"retry_count"`
	LastError      sql.NullString `db:"last_error"`
	LastProviderID sql.NullString `db:"last_provider_public_id"`
	NextRetryAt    sql.NullTime   `db:"next_retry_at"`
	FirstFailedAt  time.Time      `db:"first_failed_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	DeletedAt      *time.Time     `db:"deleted_at"`
}

type callRetryInsertModel struct {
	JobID          string     `db:"call_job_public_id"`
	RetryCount     int        `db:"retry_count"`
	LastError      *string    `db:"last_error"`
	LastProviderID *string    `db:"last_provider_public_id"`
	NextRetryAt    *time.Time `db:"next_retry_at"`
	FirstFailedAt  time.Time  `db:"first_failed_at"`
}

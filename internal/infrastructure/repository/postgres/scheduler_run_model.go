package postgres

import (
	"database/sql"
	"time"
)

type schedulerRunTableModel struct {
	ID         int64          `db:"id"`
	RunID      string         `db:"run_id"`
	Kind       string         `db:"kind"`
	Path       string         `db:"path"`
	Status     string         `db:"status"`
	Counts     []byte         `db:"counts"`
	LastError  sql.NullString `db:"last_error"`
	OccurredAt time.Time      `db:"occurred_at"`
	TraceID    sql.NullString `db:"trace_id"`
	SpanID     sql.NullString `db:"span_id"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
	DeletedAt  *time.Time     `db:"deleted_at"`
}

type schedulerRunInsertModel struct {
	RunID      string    `db:"run_id"`
	Kind       string    `db:"kind"`
	Path       string    `db:"path"`
	Status     string    `db:"status"`
	Counts     string    `db:"counts"`
	LastError  *string   `db:"last_error"`
	OccurredAt time.Time `db:"occurred_at"`
	TraceID    *string   `db:"trace_id"`
	SpanID     *string   `db:"span_id"`
}

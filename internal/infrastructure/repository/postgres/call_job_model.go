package postgres

import (
	"database/sql"
	"time"
)

type callJobTableModel struct {
	ID               int64          `db:"id"`
	PublicID         string         `db:"public_id"`
	AccountID        string         `db:"account_id"`
	PhoneNumber      string         `db:"phone_number"`
	TemplateID       string         `db:"template_public_id"`
	Script           string         `db:"script"`
	Variables        []byte         `db:"variables"`
	Priority         int            `db:"priority"`
	Status           string         `db:"status"`
	ProviderID       sql.NullString `db:"provider_public_id"`
	PinnedProviderID sql.NullString `db:"pinned_provider_public_id"`
	CorrelationID    sql.NullString `db:"correlation_id"`
	AttemptCount     int            `db:"attempt_count"`
	MaxRetries       int            `db:"max_retries"`
	LastError        sql.NullString `db:"last_error"`
	DurationSeconds  sql.NullInt64  `db:"duration_seconds"`
	ScheduledAt      sql.NullTime   `db:"scheduled_at"`
	NextAttemptAt    sql.NullTime   `db:"next_attempt_at"`
	DispatchedAt     sql.NullTime   `db:"dispatched_at"`
	CompletedAt      sql.NullTime   `db:"completed_at"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
	DeletedAt        *time.Time     `db:"deleted_at"`
}

type callJobInsertModel struct {
	PublicID         string     `db:"public_id"`
	AccountID        string     `db:"account_id"`
	PhoneNumber      string     `db:"phone_number"`
	TemplateID       string     `db:"template_public_id"`
	Script           string     `db:"script"`
	Variables        string     `db:"variables"`
	Priority         int        `db:"priority"`
	Status           string     `db:"status"`
	PinnedProviderID *string    `db:"pinned_provider_public_id"`
	AttemptCount     int        `db:"attempt_count"`
	MaxRetries       int        `db:"max_retries"`
	ScheduledAt      *time.Time `db:"scheduled_at"`
}

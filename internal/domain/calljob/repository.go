package calljob

import (
	"context"
	"time"
)

// TransitionFields are the optional column updates applied atomically with a
// status transition. Nil pointers leave the column untouched.
type TransitionFields struct {
	ProviderID       *string
	ClearProvider    bool
	CorrelationID    *string
	AttemptCount     *int
	LastError        *string
	DurationSeconds  *int
	NextAttemptAt    *time.Time
	ClearNextAttempt bool
	DispatchedAt     *time.Time
	CompletedAt      *time.Time
}

// ListFilter narrows ListByAccount.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// Repository exposes call job persistence. Transition is the only mutation
// path after Create: it succeeds only when the current status is in the
// given set (compare-and-set), and that result is the engine's sole
// concurrency-safety primitive.
type Repository interface {
	Create(ctx context.Context, job Job) error
	GetByID(ctx context.Context, jobID string) (Job, bool, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (Job, bool, error)
	ListByAccount(ctx context.Context, accountID string, filter ListFilter) ([]Job, error)

	// NextEligible returns the most urgent dispatchable job: status pending,
	// scheduled_at absent or due, next_attempt_at absent or due, ordered by
	// priority ascending then created_at ascending.
	NextEligible(ctx context.Context, now time.Time) (Job, bool, error)

	Transition(ctx context.Context, jobID string, from []string, to string, fields TransitionFields) (bool, error)

	CountByStatus(ctx context.Context) (map[string]int, error)
	ListInFlightDispatchedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Job, error)
	ListRetryableDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
}

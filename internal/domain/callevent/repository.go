package callevent

import "context"

// Repository persists attempt history and retry bookkeeping.
type Repository interface {
	UpsertAttempt(ctx context.Context, attempt Attempt) error
	ListAttemptsByJob(ctx context.Context, jobID string) ([]Attempt, error)
	UpsertRetryRecord(ctx context.Context, record RetryRecord) error
	GetRetryRecord(ctx context.Context, jobID string) (RetryRecord, bool, error)
}

package calljob

import "time"

const (
	StatusPending         = "pending"
	StatusInFlight        = "in_flight"
	StatusCompleted       = "completed"
	StatusFailedRetryable = "failed_retryable"
	StatusFailed          = "failed"
	StatusCanceled        = "canceled"
)

// Job is one queued outbound call request.
type Job struct {
	ID               string
	AccountID        string
	PhoneNumber      string
	TemplateID       string
	Script           string
	Variables        map[string]string
	Priority         int
	Status           string
	ProviderID       string
	PinnedProviderID string
	CorrelationID    string
	AttemptCount     int
	MaxRetries       int
	LastError        string
	DurationSeconds  *int
	ScheduledAt      *time.Time
	NextAttemptAt    *time.Time
	DispatchedAt     *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

func IsKnownStatus(status string) bool {
	switch status {
	case StatusPending, StatusInFlight, StatusCompleted, StatusFailedRetryable, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

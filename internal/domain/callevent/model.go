package callevent

import (
	"strings"
	"time"
)

const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeBusy      = "busy"
	OutcomeNoAnswer  = "no_answer"
	OutcomeCanceled  = "canceled"
)

const (
	AttemptAssigned  = "assigned"
	AttemptCompleted = "completed"
	AttemptFailed    = "failed"
)

// CanonicalEvent is a provider completion callback reduced to the fields the
// reconciler acts on, independent of provider vocabulary.
type CanonicalEvent struct {
	CorrelationID   string
	ProviderKind    string
	Outcome         string
	DurationSeconds int
	RecordingURL    string
	Transcript      string
	FailureDetail   string
	OccurredAt      time.Time
}

// Attempt is one job-to-provider assignment, kept as an append-only audit
// row keyed by correlation id. Created when the call is placed, closed by
// the reconciler or the retry manager.
type Attempt struct {
	CorrelationID   string
	JobID           string
	ProviderID      string
	AttemptNumber   int
	Outcome         string
	ProviderStatus  string
	ErrorMessage    string
	DurationSeconds int
	RecordingURL    string
	AssignedAt      time.Time
	ClosedAt        *time.Time
	TraceID         string
	SpanID          string
}

// RetryRecord is per-job retry bookkeeping. It is created on first failure,
// updated on each subsequent failure, and survives terminal failure as an
// audit artifact.
type RetryRecord struct {
	JobID          string
	RetryCount     int
	LastError      string
	LastProviderID string
	NextRetryAt    *time.Time
	FirstFailedAt  time.Time
	UpdatedAt      time.Time
}

func NormalizeOutcome(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func IsSuccessOutcome(outcome string) bool {
	return NormalizeOutcome(outcome) == OutcomeCompleted
}

func IsCancelOutcome(outcome string) bool {
	return NormalizeOutcome(outcome) == OutcomeCanceled
}

func IsKnownOutcome(outcome string) bool {
	switch NormalizeOutcome(outcome) {
	case OutcomeCompleted, OutcomeFailed, OutcomeBusy, OutcomeNoAnswer, OutcomeCanceled:
		return true
	default:
		return false
	}
}

package schedulerun

import "time"

const (
	KindDispatch = "dispatch"
	KindProbe    = "probe"
	KindRecover  = "recover"
)

const (
	StatusSent      = "sent"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunRecord is one execution (or queued execution) of a background job:
// a dispatch tick, a provider probe sweep, or a recovery sweep.
type RunRecord struct {
	RunID        string
	Kind         string
	Path         string
	Status       string
	Counts       map[string]any
	ErrorMessage string
	OccurredAt   time.Time
	TraceID      string
	SpanID       string
}

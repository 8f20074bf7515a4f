package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/riskibarqy/redial/internal/domain/callevent"
)

// CallEventRepository keeps attempt and retry bookkeeping in memory.
// Attempts merge on correlation id the same way the SQL upsert does:
// zero-valued update fields never blank out what an earlier write recorded.
type CallEventRepository struct {
	mu       sync.RWMutex
	attempts map[string]callevent.Attempt
	retries  map[string]callevent.RetryRecord
}

func NewCallEventRepository() *CallEventRepository {
	return &CallEventRepository{
		attempts: make(map[string]callevent.Attempt),
		retries:  make(map[string]callevent.RetryRecord),
	}
}

func (r *CallEventRepository) UpsertAttempt(_ context.Context, attempt callevent.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.attempts[attempt.CorrelationID]
	if !exists {
		r.attempts[attempt.CorrelationID] = attempt
		return nil
	}

	existing.Outcome = attempt.Outcome
	if attempt.ProviderStatus != "" {
		existing.ProviderStatus = attempt.ProviderStatus
	}
	if attempt.ErrorMessage != "" {
		existing.ErrorMessage = attempt.ErrorMessage
	}
	if attempt.DurationSeconds > 0 {
		existing.DurationSeconds = attempt.DurationSeconds
	}
	if attempt.RecordingURL != "" {
		existing.RecordingURL = attempt.RecordingURL
	}
	if attempt.ClosedAt != nil {
		existing.ClosedAt = attempt.ClosedAt
	}
	if attempt.TraceID != "" {
		existing.TraceID = attempt.TraceID
		existing.SpanID = attempt.SpanID
	}
	r.attempts[attempt.CorrelationID] = existing
	return nil
}

func (r *CallEventRepository) ListAttemptsByJob(_ context.Context, jobID string) ([]callevent.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]callevent.Attempt, 0)
	for _, attempt := range r.attempts {
		if attempt.JobID == jobID {
			out = append(out, attempt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AttemptNumber != out[j].AttemptNumber {
			return out[i].AttemptNumber < out[j].AttemptNumber
		}
		return out[i].CorrelationID < out[j].CorrelationID
	})
	return out, nil
}

func (r *CallEventRepository) UpsertRetryRecord(_ context.Context, record callevent.RetryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.retries[record.JobID]
	if exists {
		// The first failure timestamp survives every later update.
		record.FirstFailedAt = existing.FirstFailedAt
	}
	r.retries[record.JobID] = record
	return nil
}

func (r *CallEventRepository) GetRetryRecord(_ context.Context, jobID string) (callevent.RetryRecord, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.retries[jobID]
	return record, exists, nil
}

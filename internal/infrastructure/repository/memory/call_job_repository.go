package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/redial/internal/domain/calljob"
)

// CallJobRepository is the in-memory job store used by tests. Transition
// performs the same compare-and-swap contract as the SQL store, just under a
// mutex instead of a row predicate.
type CallJobRepository struct {
	mu    sync.RWMutex
	items map[string]calljob.Job
}

func NewCallJobRepository(jobs []calljob.Job) *CallJobRepository {
	items := make(map[string]calljob.Job, len(jobs))
	for _, job := range jobs {
		items[job.ID] = job
	}
	return &CallJobRepository{items: items}
}

func (r *CallJobRepository) Create(_ context.Context, job calljob.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[job.ID]; exists {
		return fmt.Errorf("call job %s: duplicate key value violates unique constraint", job.ID)
	}
	r.items[job.ID] = job
	return nil
}

func (r *CallJobRepository) GetByID(_ context.Context, jobID string) (calljob.Job, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.items[jobID]
	return job, ok, nil
}

func (r *CallJobRepository) GetByCorrelationID(_ context.Context, correlationID string) (calljob.Job, bool, error) {
	if correlationID == "" {
		return calljob.Job{}, false, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, job := range r.items {
		if job.CorrelationID == correlationID {
			return job, true, nil
		}
	}
	return calljob.Job{}, false, nil
}

func (r *CallJobRepository) ListByAccount(_ context.Context, accountID string, filter calljob.ListFilter) ([]calljob.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]calljob.Job, 0)
	for _, job := range r.items {
		if job.AccountID != accountID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		out = append(out, job)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []calljob.Job{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// NextEligible returns the dispatchable pending job with the most urgent
// priority, oldest first inside a band. Jobs scheduled in the future and
// jobs still inside a retry backoff window are skipped.
func (r *CallJobRepository) NextEligible(_ context.Context, now time.Time) (calljob.Job, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best calljob.Job
	found := false
	for _, job := range r.items {
		if job.Status != calljob.StatusPending {
			continue
		}
		if job.ScheduledAt != nil && job.ScheduledAt.After(now) {
			continue
		}
		if job.NextAttemptAt != nil && job.NextAttemptAt.After(now) {
			continue
		}
		if !found || jobBefore(job, best) {
			best = job
			found = true
		}
	}
	return best, found, nil
}

func (r *CallJobRepository) Transition(_ context.Context, jobID string, from []string, to string, fields calljob.TransitionFields) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.items[jobID]
	if !ok {
		return false, nil
	}

	matched := false
	for _, status := range from {
		if job.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}

	job.Status = to
	applyTransitionFields(&job, fields)
	job.UpdatedAt = time.Now().UTC()
	r.items[jobID] = job
	return true, nil
}

func (r *CallJobRepository) CountByStatus(_ context.Context) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, job := range r.items {
		counts[job.Status]++
	}
	return counts, nil
}

func (r *CallJobRepository) ListInFlightDispatchedBefore(_ context.Context, cutoff time.Time, limit int) ([]calljob.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]calljob.Job, 0)
	for _, job := range r.items {
		if job.Status != calljob.StatusInFlight {
			continue
		}
		if job.DispatchedAt == nil || !job.DispatchedAt.Before(cutoff) {
			continue
		}
		out = append(out, job)
	}
	sortJobsByDispatchedAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *CallJobRepository) ListRetryableDue(_ context.Context, now time.Time, limit int) ([]calljob.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]calljob.Job, 0)
	for _, job := range r.items {
		if job.Status != calljob.StatusFailedRetryable {
			continue
		}
		if job.NextAttemptAt != nil && job.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, job)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return jobBefore(out[i], out[j])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func applyTransitionFields(job *calljob.Job, fields calljob.TransitionFields) {
	if fields.ClearProvider {
		job.ProviderID = ""
		job.CorrelationID = ""
	}
	if fields.ProviderID != nil {
		job.ProviderID = *fields.ProviderID
	}
	if fields.CorrelationID != nil {
		job.CorrelationID = *fields.CorrelationID
	}
	if fields.AttemptCount != nil {
		job.AttemptCount = *fields.AttemptCount
	}
	if fields.LastError != nil {
		job.LastError = *fields.LastError
	}
	if fields.DurationSeconds != nil {
		duration := *fields.DurationSeconds
		job.DurationSeconds = &duration
	}
	if fields.NextAttemptAt != nil {
		at := *fields.NextAttemptAt
		job.NextAttemptAt = &at
	}
	if fields.ClearNextAttempt {
		job.NextAttemptAt = nil
	}
	if fields.DispatchedAt != nil {
		at := *fields.DispatchedAt
		job.DispatchedAt = &at
	}
	if fields.CompletedAt != nil {
		at := *fields.CompletedAt
		job.CompletedAt = &at
	}
}

// jobBefore orders by priority ascending, then created_at, then id so two
// stores walk the queue identically.
func jobBefore(left, right calljob.Job) bool {
	if left.Priority != right.Priority {
		return left.Priority < right.Priority
	}
	if !left.CreatedAt.Equal(right.CreatedAt) {
		return left.CreatedAt.Before(right.CreatedAt)
	}
	return left.ID < right.ID
}

func sortJobsByDispatchedAt(jobs []calljob.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		leftAt, rightAt := jobs[i].DispatchedAt, jobs[j].DispatchedAt
		switch {
		case leftAt == nil && rightAt == nil:
			return jobs[i].ID < jobs[j].ID
		case leftAt == nil:
			return true
		case rightAt == nil:
			return false
		case !leftAt.Equal(*rightAt):
			return leftAt.Before(*rightAt)
		default:
			return jobs[i].ID < jobs[j].ID
		}
	})
}

package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/riskibarqy/redial/internal/domain/calljob"
)

func pendingJob(id string, priority int, createdAt time.Time) calljob.Job {
	return calljob.Job{
		ID:          id,
		AccountID:   "acc-1",
		PhoneNumber: "+15550100",
		Script:      "hello",
		Priority:    priority,
		Status:      calljob.StatusPending,
		MaxRetries:  3,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestCallJobRepository_NextEligible_OrdersAndFilters(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	now := base.Add(time.Minute)
	future := now.Add(time.Hour)
	backoff := now.Add(30 * time.Second)

	scheduled := pendingJob("job-sched", 0, base)
	scheduled.ScheduledAt = &future

	parked := pendingJob("job-backoff", 2, base)
	parked.NextAttemptAt = &backoff

	flying := pendingJob("job-flight", 0, base)
	flying.Status = calljob.StatusInFlight

	repo := NewCallJobRepository([]calljob.Job{
		pendingJob("job-c-urgent", 1, base.Add(30*time.Second)),
		pendingJob("job-b-tie", 5, base),
		pendingJob("job-a-tie", 5, base),
		pendingJob("job-d-late", 5, base.Add(10*time.Second)),
		scheduled,
		parked,
		flying,
	})

	// Drain the eligible queue by claiming each pick: priority band first,
	// oldest inside a band, id as the final tie break.
	wantOrder := []string{"job-c-urgent", "job-a-tie", "job-b-tie", "job-d-late"}
	for i, want := range wantOrder {
		job, found, err := repo.NextEligible(context.Background(), now)
		if err != nil {
			t.Fatalf("next eligible: %v", err)
		}
		if !found || job.ID != want {
			t.Fatalf("pick %d: expected %s, got %q (found=%v)", i, want, job.ID, found)
		}
		ok, err := repo.Transition(context.Background(), job.ID, []string{calljob.StatusPending}, calljob.StatusInFlight, calljob.TransitionFields{})
		if err != nil || !ok {
			t.Fatalf("claim %s: ok=%v err=%v", job.ID, ok, err)
		}
	}

	if _, found, _ := repo.NextEligible(context.Background(), now); found {
		t.Fatal("future-scheduled and backoff jobs must not be eligible yet")
	}

	job, found, err := repo.NextEligible(context.Background(), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("next eligible after window: %v", err)
	}
	if !found || job.ID != "job-sched" {
		t.Fatalf("expected job-sched once due, got %q (found=%v)", job.ID, found)
	}
}

func TestCallJobRepository_Transition_SingleWinner(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	repo := NewCallJobRepository([]calljob.Job{pendingJob("job-1", 0, base)})

	const claimers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	for i := 0; i < claimers; i++ {
		providerID := fmt.Sprintf("prov-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Transition(context.Background(), "job-1", []string{calljob.StatusPending}, calljob.StatusInFlight, calljob.TransitionFields{ProviderID: &providerID})
			if err != nil {
				t.Errorf("transition: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins = append(wins, providerID)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(wins) != 1 {
		t.Fatalf("expected exactly one winning claim, got %d", len(wins))
	}
	job, _, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != calljob.StatusInFlight || job.ProviderID != wins[0] {
		t.Fatalf("expected in_flight with provider %s, got status=%s provider=%s", wins[0], job.Status, job.ProviderID)
	}
}

func TestCallJobRepository_Transition_AppliesAndClearsFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	repo := NewCallJobRepository([]calljob.Job{pendingJob("job-1", 0, base)})

	providerID := "prov-a"
	dispatchedAt := base.Add(time.Minute)
	ok, err := repo.Transition(ctx, "job-1", []string{calljob.StatusPending}, calljob.StatusInFlight, calljob.TransitionFields{
		ProviderID:   &providerID,
		DispatchedAt: &dispatchedAt,
	})
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	correlationID := "corr-1"
	ok, err = repo.Transition(ctx, "job-1", []string{calljob.StatusInFlight}, calljob.StatusInFlight, calljob.TransitionFields{CorrelationID: &correlationID})
	if err != nil || !ok {
		t.Fatalf("record correlation: ok=%v err=%v", ok, err)
	}

	// A transition whose from-set no longer matches is a detected no-op.
	ok, err = repo.Transition(ctx, "job-1", []string{calljob.StatusPending}, calljob.StatusCanceled, calljob.TransitionFields{})
	if err != nil {
		t.Fatalf("stale transition: %v", err)
	}
	if ok {
		t.Fatal("transition from a stale status must report no rows")
	}
	job, _, err := repo.GetByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != calljob.StatusInFlight || job.ProviderID != "prov-a" || job.CorrelationID != "corr-1" {
		t.Fatalf("stale transition mutated the row: %+v", job)
	}
	if job.DispatchedAt == nil || !job.DispatchedAt.Equal(dispatchedAt) {
		t.Fatalf("expected dispatched at %s, got %v", dispatchedAt, job.DispatchedAt)
	}

	attempts := 1
	lastError := "provider unavailable"
	nextAttempt := base.Add(2 * time.Minute)
	ok, err = repo.Transition(ctx, "job-1", []string{calljob.StatusInFlight}, calljob.StatusFailedRetryable, calljob.TransitionFields{
		AttemptCount:  &attempts,
		LastError:     &lastError,
		NextAttemptAt: &nextAttempt,
	})
	if err != nil || !ok {
		t.Fatalf("park for retry: ok=%v err=%v", ok, err)
	}

	ok, err = repo.Transition(ctx, "job-1", []string{calljob.StatusFailedRetryable}, calljob.StatusPending, calljob.TransitionFields{
		ClearProvider:    true,
		ClearNextAttempt: true,
	})
	if err != nil || !ok {
		t.Fatalf("promote: ok=%v err=%v", ok, err)
	}

	job, _, err = repo.GetByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("get promoted job: %v", err)
	}
	if job.Status != calljob.StatusPending {
		t.Fatalf("expected pending after promotion, got %s", job.Status)
	}
	if job.ProviderID != "" || job.CorrelationID != "" || job.NextAttemptAt != nil {
		t.Fatalf("promotion must clear the assignment: %+v", job)
	}
	if job.AttemptCount != 1 || job.LastError != "provider unavailable" {
		t.Fatalf("promotion must keep the failure history: attempts=%d lastError=%q", job.AttemptCount, job.LastError)
	}

	ok, err = repo.Transition(ctx, "job-missing", []string{calljob.StatusPending}, calljob.StatusCanceled, calljob.TransitionFields{})
	if err != nil {
		t.Fatalf("unknown job transition: %v", err)
	}
	if ok {
		t.Fatal("unknown job must report no rows")
	}
}

func TestCallJobRepository_ListInFlightDispatchedBefore(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	dispatched := func(id string, at time.Time) calljob.Job {
		job := pendingJob(id, 0, base)
		job.Status = calljob.StatusInFlight
		job.DispatchedAt = &at
		return job
	}

	fresh := dispatched("job-fresh", base.Add(40*time.Minute))
	unstamped := pendingJob("job-unstamped", 0, base)
	unstamped.Status = calljob.StatusInFlight

	repo := NewCallJobRepository([]calljob.Job{
		dispatched("job-older", base),
		dispatched("job-newer", base.Add(10*time.Minute)),
		fresh,
		unstamped,
		pendingJob("job-pending", 0, base),
	})

	cutoff := base.Add(30 * time.Minute)
	stalled, err := repo.ListInFlightDispatchedBefore(context.Background(), cutoff, 0)
	if err != nil {
		t.Fatalf("list stalled: %v", err)
	}
	if len(stalled) != 2 || stalled[0].ID != "job-older" || stalled[1].ID != "job-newer" {
		t.Fatalf("expected [job-older job-newer], got %+v", stalled)
	}

	limited, err := repo.ListInFlightDispatchedBefore(context.Background(), cutoff, 1)
	if err != nil {
		t.Fatalf("list stalled limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "job-older" {
		t.Fatalf("expected the oldest stalled call only, got %+v", limited)
	}
}

func TestCallJobRepository_ListRetryableDue(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	now := base.Add(30 * time.Minute)
	parked := func(id string, priority int, next *time.Time) calljob.Job {
		job := pendingJob(id, priority, base)
		job.Status = calljob.StatusFailedRetryable
		job.NextAttemptAt = next
		return job
	}

	due := base.Add(10 * time.Minute)
	notDue := base.Add(time.Hour)
	repo := NewCallJobRepository([]calljob.Job{
		parked("job-due", 5, &due),
		parked("job-urgent", 1, &due),
		parked("job-unscheduled", 5, nil),
		parked("job-waiting", 0, &notDue),
		pendingJob("job-pending", 0, base),
	})

	got, err := repo.ListRetryableDue(context.Background(), now, 0)
	if err != nil {
		t.Fatalf("list retryable: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 due jobs, got %+v", got)
	}
	if got[0].ID != "job-urgent" || got[1].ID != "job-due" || got[2].ID != "job-unscheduled" {
		t.Fatalf("expected priority order [job-urgent job-due job-unscheduled], got %+v", got)
	}

	limited, err := repo.ListRetryableDue(context.Background(), now, 2)
	if err != nil {
		t.Fatalf("list retryable limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit 2, got %+v", limited)
	}
}

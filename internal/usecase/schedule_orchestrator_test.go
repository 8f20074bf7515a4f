package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/riskibarqy/redial/internal/domain/schedulerun"
	"github.com/riskibarqy/redial/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/redial/internal/platform/logging"
)

type enqueuedJob struct {
	path    string
	delay   time.Duration
	dedupID string
}

type capturingJobQueue struct {
	jobs []enqueuedJob
	err  error
}

func (q *capturingJobQueue) Enqueue(_ context.Context, path string, _ any, delay time.Duration, deduplicationID string) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, enqueuedJob{path: path, delay: delay, dedupID: deduplicationID})
	return nil
}

func TestDedupKey_UsesQueueSafeFormat(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.February, 25, 4, 25, 42, 0, time.UTC)
	got := dedupKey("probe", "prov:twilio/primary 1", at, 5*time.Minute)

	if strings.Contains(got, ":") {
		t.Fatalf("dedup key must not contain colon, got=%q", got)
	}

	want := "probe-prov-twilio-primary-1-20260225T042500Z"
	if got != want {
		t.Fatalf("unexpected dedup key: got=%q want=%q", got, want)
	}
}

func TestDedupKey_CollapsesOccurrencesInsideOneBucket(t *testing.T) {
	t.Parallel()

	bucket := 5 * time.Second
	first := dedupKey("dispatch", "all", time.Date(2026, 2, 25, 4, 25, 40, 0, time.UTC), bucket)
	second := dedupKey("dispatch", "all", time.Date(2026, 2, 25, 4, 25, 44, 0, time.UTC), bucket)
	third := dedupKey("dispatch", "all", time.Date(2026, 2, 25, 4, 25, 45, 0, time.UTC), bucket)

	if first != second {
		t.Fatalf("same bucket must collapse: %q vs %q", first, second)
	}
	if first == third {
		t.Fatalf("next bucket must differ, both %q", first)
	}
}

func TestSanitizeDedupSegment_EmptyFallback(t *testing.T) {
	t.Parallel()

	if got := sanitizeDedupSegment(" \t "); got != "unknown" {
		t.Fatalf("unexpected sanitize fallback: got=%q want=%q", got, "unknown")
	}
}

func TestScheduleOrchestrator_EnsureSchedules_QueuesEveryKind(t *testing.T) {
	t.Parallel()

	queue := &capturingJobQueue{}
	runRepo := memory.NewSchedulerRunRepository()
	orchestrator := NewScheduleOrchestrator(queue, runRepo, ScheduleOrchestratorConfig{
		DispatchInterval: 5 * time.Second,
		ProbeInterval:    15 * time.Second,
		RecoverInterval:  time.Minute,
	}, logging.NewNop())
	orchestrator.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

	result, err := orchestrator.EnsureSchedules(context.Background())
	if err != nil {
		t.Fatalf("ensure schedules: %v", err)
	}
	if result.QueuedCount != 3 {
		t.Fatalf("unexpected queued count: %d", result.QueuedCount)
	}

	wantDelays := map[string]time.Duration{
		"/v1/internal/jobs/dispatch-tick":   5 * time.Second,
		"/v1/internal/jobs/probe-providers": 15 * time.Second,
		"/v1/internal/jobs/recover":         time.Minute,
	}
	if len(queue.jobs) != len(wantDelays) {
		t.Fatalf("unexpected queue entries: %d", len(queue.jobs))
	}
	for _, job := range queue.jobs {
		if wantDelays[job.path] != job.delay {
			t.Fatalf("path %s: unexpected delay %s", job.path, job.delay)
		}
		if job.dedupID == "" || strings.Contains(job.dedupID, ":") {
			t.Fatalf("path %s: bad dedup id %q", job.path, job.dedupID)
		}
	}

	runs, err := runRepo.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 run records, got %d", len(runs))
	}
	for _, run := range runs {
		if run.Status != schedulerun.StatusSent {
			t.Fatalf("run %s: unexpected status %s", run.RunID, run.Status)
		}
	}
}

func TestScheduleOrchestrator_EnsureNext_RecordsQueueFailure(t *testing.T) {
	t.Parallel()

	queue := &capturingJobQueue{err: errors.New("queue unreachable")}
	runRepo := memory.NewSchedulerRunRepository()
	orchestrator := NewScheduleOrchestrator(queue, runRepo, ScheduleOrchestratorConfig{}, logging.NewNop())

	if err := orchestrator.EnsureNext(context.Background(), schedulerun.KindDispatch); err == nil {
		t.Fatal("expected an error when the queue rejects")
	}

	runs, err := runRepo.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run record, got %d", len(runs))
	}
	if runs[0].Status != schedulerun.StatusFailed || runs[0].ErrorMessage == "" {
		t.Fatalf("expected a failed record with the queue error, got %+v", runs[0])
	}
}

func TestScheduleOrchestrator_EnsureNext_UnknownKind(t *testing.T) {
	t.Parallel()

	orchestrator := NewScheduleOrchestrator(NewNoopJobQueue(), nil, ScheduleOrchestratorConfig{}, logging.NewNop())

	if err := orchestrator.EnsureNext(context.Background(), "compact"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

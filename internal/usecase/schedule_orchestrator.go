package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/riskibarqy/redial/internal/domain/schedulerun"
	"github.com/riskibarqy/redial/internal/platform/logging"
	"go.opentelemetry.io/otel/trace"
)

// JobQueue delivers a delayed HTTP callback to one of the internal job
// routes. The deduplication id collapses concurrent enqueues of the same
// logical occurrence.
type JobQueue interface {
	Enqueue(ctx context.Context, path string, payload any, delay time.Duration, deduplicationID string) error
}

type noopJobQueue struct{}

func (noopJobQueue) Enqueue(_ context.Context, _ string, _ any, _ time.Duration, _ string) error {
	return nil
}

func NewNoopJobQueue() JobQueue {
	return noopJobQueue{}
}

type ScheduleOrchestratorConfig struct {
	DispatchInterval  time.Duration
	ProbeInterval     time.Duration
	RecoverInterval   time.Duration
	HeartbeatInterval time.Duration
}

type ScheduleResult struct {
	QueuedCount      int      `json:"queued_count"`
	QueuedOperations []string `json:"queued_operations"`
}

// ScheduleOrchestrator keeps the queue-driven execution mode alive. Each
// internal job route re-enqueues its own next occurrence after running; the
// orchestrator seeds the chains at startup and re-seeds them on a heartbeat,
// relying on deduplication ids to make the re-seeding idempotent.
type ScheduleOrchestrator struct {
	queue   JobQueue
	runRepo schedulerun.Repository
	cfg     ScheduleOrchestratorConfig
	logger  *logging.Logger
	now     func() time.Time
}

var dedupUnsafeCharRegex = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func NewScheduleOrchestrator(
	queue JobQueue,
	runRepo schedulerun.Repository,
	cfg ScheduleOrchestratorConfig,
	logger *logging.Logger,
) *ScheduleOrchestrator {
	if queue == nil {
		queue = NewNoopJobQueue()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = 5 * time.Second
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 15 * time.Second
	}
	if cfg.RecoverInterval <= 0 {
		cfg.RecoverInterval = time.Minute
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Minute
	}

	return &ScheduleOrchestrator{
		queue:   queue,
		runRepo: runRepo,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// EnsureSchedules enqueues the first occurrence of every recurring internal
// job. Safe to call repeatedly; already-queued occurrences deduplicate.
func (s *ScheduleOrchestrator) EnsureSchedules(ctx context.Context) (ScheduleResult, error) {
	result := ScheduleResult{QueuedOperations: make([]string, 0, 3)}
	for _, kind := range []string{schedulerun.KindDispatch, schedulerun.KindProbe, schedulerun.KindRecover} {
		if err := s.EnsureNext(ctx, kind); err != nil {
			return result, err
		}
		result.QueuedCount++
		result.QueuedOperations = append(result.QueuedOperations, kind)
	}
	return result, nil
}

// EnsureNext enqueues the next occurrence of one job kind, delayed by its
// interval and deduplicated on the interval bucket.
func (s *ScheduleOrchestrator) EnsureNext(ctx context.Context, kind string) error {
	path, interval, err := s.jobRoute(kind)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	dedupID := dedupKey(kind, "all", now.Add(interval), interval)
	payload := map[string]any{
		"kind":        kind,
		"dispatch_id": dedupID,
	}

	if err := s.queue.Enqueue(ctx, path, payload, interval, dedupID); err != nil {
		s.recordScheduleRun(ctx, schedulerun.RunRecord{
			RunID:        dedupID,
			Kind:         kind,
			Path:         path,
			Status:       schedulerun.StatusFailed,
			ErrorMessage: err.Error(),
			OccurredAt:   now,
		})
		return fmt.Errorf("enqueue %s job: %w", kind, err)
	}

	s.recordScheduleRun(ctx, schedulerun.RunRecord{
		RunID:      dedupID,
		Kind:       kind,
		Path:       path,
		Status:     schedulerun.StatusSent,
		OccurredAt: now,
	})
	return nil
}

func (s *ScheduleOrchestrator) jobRoute(kind string) (string, time.Duration, error) {
	switch kind {
	case schedulerun.KindDispatch:
		return "/v1/internal/jobs/dispatch-tick", s.cfg.DispatchInterval, nil
	case schedulerun.KindProbe:
		return "/v1/internal/jobs/probe-providers", s.cfg.ProbeInterval, nil
	case schedulerun.KindRecover:
		return "/v1/internal/jobs/recover", s.cfg.RecoverInterval, nil
	default:
		return "", 0, fmt.Errorf("%w: unknown job kind %q", ErrInvalidInput, kind)
	}
}

func (s *ScheduleOrchestrator) recordScheduleRun(ctx context.Context, record schedulerun.RunRecord) {
	if s.runRepo == nil || strings.TrimSpace(record.RunID) == "" {
		return
	}
	record.TraceID, record.SpanID = traceMetaFromContext(ctx)
	if record.OccurredAt.IsZero() {
		record.OccurredAt = s.now().UTC()
	}
	if err := s.runRepo.UpsertRun(ctx, record); err != nil {
		s.logger.WarnContext(ctx, "record schedule run failed",
			"run_id", record.RunID,
			"status", record.Status,
			"error", err,
		)
	}
}

// Run re-seeds the job chains on a heartbeat so a lost queue message cannot
// silence a recurring job forever.
func (s *ScheduleOrchestrator) Run(ctx context.Context) {
	if _, err := s.EnsureSchedules(ctx); err != nil {
		s.logger.ErrorContext(ctx, "seed job schedules failed", "error", err)
	}

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "schedule heartbeat started", "interval", s.cfg.HeartbeatInterval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "schedule heartbeat stopped")
			return
		case <-ticker.C:
			if _, err := s.EnsureSchedules(ctx); err != nil {
				s.logger.ErrorContext(ctx, "re-seed job schedules failed", "error", err)
			}
		}
	}
}

// dedupKey builds a queue deduplication id. The timestamp is truncated to
// the job's interval so every occurrence inside one bucket collapses to a
// single queue entry. Colons are avoided because the queue provider rejects
// them in deduplication ids.
func dedupKey(prefix, scope string, at time.Time, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = time.Minute
	}
	slot := at.UTC().Truncate(bucket).Format("20060102T150405Z")
	prefix = sanitizeDedupSegment(prefix)
	scope = sanitizeDedupSegment(scope)
	return prefix + "-" + scope + "-" + slot
}

func sanitizeDedupSegment(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return dedupUnsafeCharRegex.ReplaceAllString(value, "-")
}

func traceMetaFromContext(ctx context.Context) (string, string) {
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if !spanContext.IsValid() {
		return "", ""
	}
	return spanContext.TraceID().String(), spanContext.SpanID().String()
}

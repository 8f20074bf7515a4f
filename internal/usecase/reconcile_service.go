package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/riskibarqy/redial/internal/domain/callevent"
	"github.com/riskibarqy/redial/internal/domain/calljob"
	"github.com/riskibarqy/redial/internal/platform/logging"
)

// UsageReporter decrements the account's call allowance after a completed
// call. Implementations must tolerate being skipped; the decrement is best
// effort and never blocks completion.
type UsageReporter interface {
	ConsumeCallUsage(ctx context.Context, accountID, jobID string) error
}

type noopUsageReporter struct{}

func NewNoopUsageReporter() UsageReporter {
	return noopUsageReporter{}
}

func (noopUsageReporter) ConsumeCallUsage(context.Context, string, string) error {
	return nil
}

const (
	DispositionApplied = "applied"
	DispositionStale   = "stale"
)

// ReconcileResult reports what one inbound event did to the job it targeted.
type ReconcileResult struct {
	Disposition string `json:"disposition"`
	JobID       string `json:"job_id"`
	JobStatus   string `json:"job_status"`
}

// ReconcileService closes the loop on in-flight calls from provider events.
// Every mutation goes through the job store's compare-and-swap, which is
// what makes redelivered and out-of-order events harmless: the first event
// wins the transition and every later one observes a terminal row and is
// reported stale.
type ReconcileService struct {
	jobRepo      calljob.Repository
	eventRepo    callevent.Repository
	recovery     *RecoveryService
	availability *AvailabilityService
	usage        UsageReporter
	logger       *logging.Logger
	now          func() time.Time
}

func NewReconcileService(
	jobRepo calljob.Repository,
	eventRepo callevent.Repository,
	recovery *RecoveryService,
	availability *AvailabilityService,
	usage UsageReporter,
	logger *logging.Logger,
) *ReconcileService {
	if usage == nil {
		usage = NewNoopUsageReporter()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReconcileService{
		jobRepo:      jobRepo,
		eventRepo:    eventRepo,
		recovery:     recovery,
		availability: availability,
		usage:        usage,
		logger:       logger,
		now:          time.Now,
	}
}

// ApplyEvent applies one canonical provider event. Unknown correlation ids
// return ErrUnknownCorrelation after a warning; events for jobs already in a
// terminal state are acknowledged as stale without touching anything.
func (s *ReconcileService) ApplyEvent(ctx context.Context, event callevent.CanonicalEvent) (ReconcileResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ReconcileService.ApplyEvent")
	defer span.End()

	correlationID := strings.TrimSpace(event.CorrelationID)
	if correlationID == "" {
		return ReconcileResult{}, fmt.Errorf("%w: correlation id is required", ErrInvalidInput)
	}
	outcome := callevent.NormalizeOutcome(event.Outcome)
	if !callevent.IsKnownOutcome(outcome) {
		return ReconcileResult{}, fmt.Errorf("%w: unknown outcome %q", ErrInvalidInput, event.Outcome)
	}

	job, exists, err := s.jobRepo.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("resolve job by correlation=%s: %w", correlationID, err)
	}
	if !exists {
		s.logger.WarnContext(ctx, "discarding event with unknown correlation id",
			"correlation_id", correlationID,
			"provider_kind", event.ProviderKind,
			"outcome", outcome,
		)
		return ReconcileResult{}, fmt.Errorf("%w: correlation=%s", ErrUnknownCorrelation, correlationID)
	}
	if calljob.IsTerminalStatus(job.Status) {
		return ReconcileResult{Disposition: DispositionStale, JobID: job.ID, JobStatus: job.Status}, nil
	}

	switch {
	case callevent.IsSuccessOutcome(outcome):
		return s.applyCompletion(ctx, job, event)
	case callevent.IsCancelOutcome(outcome):
		return s.applyCancellation(ctx, job, event)
	default:
		return s.applyFailure(ctx, job, event, outcome)
	}
}

func (s *ReconcileService) applyCompletion(ctx context.Context, job calljob.Job, event callevent.CanonicalEvent) (ReconcileResult, error) {
	completedAt := s.now().UTC()
	duration := event.DurationSeconds
	moved, err := s.jobRepo.Transition(ctx, job.ID, []string{calljob.StatusInFlight}, calljob.StatusCompleted, calljob.TransitionFields{
		CompletedAt:      &completedAt,
		DurationSeconds:  &duration,
		ClearNextAttempt: true,
	})
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("complete job=%s: %w", job.ID, err)
	}
	if !moved {
		return s.staleAfterLostRace(ctx, job)
	}

	// Side effects are gated on winning the transition, so a redelivered
	// event can never double-decrement the slot or the allowance.
	s.availability.NoteFinished(job.ProviderID)
	s.closeAttempt(ctx, job, event, callevent.AttemptCompleted, "")
	if err := s.usage.ConsumeCallUsage(ctx, job.AccountID, job.ID); err != nil {
		s.logger.WarnContext(ctx, "usage decrement failed",
			"job_id", job.ID,
			"account_id", job.AccountID,
			"error", err,
		)
	}

	s.logger.InfoContext(ctx, "job completed",
		"job_id", job.ID,
		"provider_id", job.ProviderID,
		"duration_seconds", duration,
	)
	return ReconcileResult{Disposition: DispositionApplied, JobID: job.ID, JobStatus: calljob.StatusCompleted}, nil
}

func (s *ReconcileService) applyCancellation(ctx context.Context, job calljob.Job, event callevent.CanonicalEvent) (ReconcileResult, error) {
	moved, err := s.jobRepo.Transition(ctx, job.ID, []string{calljob.StatusInFlight}, calljob.StatusCanceled, calljob.TransitionFields{
		ClearNextAttempt: true,
	})
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("cancel job=%s from provider event: %w", job.ID, err)
	}
	if !moved {
		return s.staleAfterLostRace(ctx, job)
	}

	s.availability.NoteFinished(job.ProviderID)
	s.closeAttempt(ctx, job, event, callevent.AttemptFailed, "call canceled at provider")
	return ReconcileResult{Disposition: DispositionApplied, JobID: job.ID, JobStatus: calljob.StatusCanceled}, nil
}

func (s *ReconcileService) applyFailure(ctx context.Context, job calljob.Job, event callevent.CanonicalEvent, outcome string) (ReconcileResult, error) {
	detail := strings.TrimSpace(event.FailureDetail)
	if detail == "" {
		detail = "provider reported outcome " + outcome
	}

	status, err := s.recovery.HandleFailure(ctx, job, detail, true)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("hand off failed job=%s: %w", job.ID, err)
	}
	if status == "" {
		return s.staleAfterLostRace(ctx, job)
	}

	s.availability.NoteFinished(job.ProviderID)
	s.closeAttempt(ctx, job, event, callevent.AttemptFailed, detail)
	return ReconcileResult{Disposition: DispositionApplied, JobID: job.ID, JobStatus: status}, nil
}

// staleAfterLostRace re-reads the job after a lost compare-and-swap so the
// caller can acknowledge the event against the winner's state.
func (s *ReconcileService) staleAfterLostRace(ctx context.Context, job calljob.Job) (ReconcileResult, error) {
	refreshed, exists, err := s.jobRepo.GetByID(ctx, job.ID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("reload job=%s: %w", job.ID, err)
	}
	if exists {
		job = refreshed
	}
	return ReconcileResult{Disposition: DispositionStale, JobID: job.ID, JobStatus: job.Status}, nil
}

// closeAttempt stamps the outcome on the attempt row keyed by the provider
// correlation id, best effort.
func (s *ReconcileService) closeAttempt(ctx context.Context, job calljob.Job, event callevent.CanonicalEvent, outcome, errMsg string) {
	closedAt := s.now().UTC()
	attempt := callevent.Attempt{
		CorrelationID:   event.CorrelationID,
		JobID:           job.ID,
		ProviderID:      job.ProviderID,
		AttemptNumber:   job.AttemptCount + 1,
		Outcome:         outcome,
		ProviderStatus:  event.Outcome,
		ErrorMessage:    errMsg,
		DurationSeconds: event.DurationSeconds,
		RecordingURL:    event.RecordingURL,
		ClosedAt:        &closedAt,
	}
	if job.DispatchedAt != nil {
		attempt.AssignedAt = job.DispatchedAt.UTC()
	}
	attempt.TraceID, attempt.SpanID = traceMetaFromContext(ctx)

	if err := s.eventRepo.UpsertAttempt(ctx, attempt); err != nil {
		s.logger.WarnContext(ctx, "close call attempt failed", "job_id", job.ID, "error", err)
	}
}

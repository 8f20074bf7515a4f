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

type RecoveryConfig struct {
	BaseDelay       time.Duration
	PromoteInterval time.Duration
	PromoteBatch    int
	StallTimeout    time.Duration
	StallInterval   time.Duration
	StallBatch      int
}

// RecoveryService owns everything that brings a failed or stuck job back to
// a decidable state: the failure handoff out of in-flight, promotion of due
// retries back to pending, and the sweep for calls whose completion event
// never arrived.
type RecoveryService struct {
	jobRepo   calljob.Repository
	eventRepo callevent.Repository
	logger    *logging.Logger
	cfg       RecoveryConfig
	now       func() time.Time
}

func NewRecoveryService(
	jobRepo calljob.Repository,
	eventRepo callevent.Repository,
	cfg RecoveryConfig,
	logger *logging.Logger,
) *RecoveryService {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 30 * time.Second
	}
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = 5 * time.Second
	}
	if cfg.PromoteBatch <= 0 {
		cfg.PromoteBatch = 100
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = 30 * time.Minute
	}
	if cfg.StallInterval <= 0 {
		cfg.StallInterval = time.Minute
	}
	if cfg.StallBatch <= 0 {
		cfg.StallBatch = 100
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RecoveryService{
		jobRepo:   jobRepo,
		eventRepo: eventRepo,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// HandleFailure moves an in-flight job out of in-flight after a failed
// attempt. Retryable failures with attempts left park the job with an
// exponential backoff; everything else steps through the retryable state and
// lands in failed. The returned status is empty when a concurrent actor
// already moved the job, in which case nothing was changed.
func (s *RecoveryService) HandleFailure(ctx context.Context, job calljob.Job, detail string, retryable bool) (string, error) {
	now := s.now().UTC()
	errText := strings.TrimSpace(detail)
	if errText == "" {
		errText = "call failed"
	}

	if !retryable || job.AttemptCount >= job.MaxRetries {
		parked, err := s.jobRepo.Transition(ctx, job.ID, []string{calljob.StatusInFlight}, calljob.StatusFailedRetryable, calljob.TransitionFields{
			LastError:        &errText,
			ClearNextAttempt: true,
		})
		if err != nil {
			return "", fmt.Errorf("park job=%s after failure: %w", job.ID, err)
		}
		if !parked {
			return "", nil
		}
		s.recordRetry(ctx, job, errText, job.AttemptCount, nil, now)

		failed, err := s.jobRepo.Transition(ctx, job.ID, []string{calljob.StatusFailedRetryable}, calljob.StatusFailed, calljob.TransitionFields{})
		if err != nil {
			return "", fmt.Errorf("mark job=%s failed: %w", job.ID, err)
		}
		if !failed {
			s.logger.WarnContext(ctx, "terminal failure transition lost a race", "job_id", job.ID)
			return "", nil
		}
		s.logger.InfoContext(ctx, "job failed terminally",
			"job_id", job.ID,
			"attempt_count", job.AttemptCount,
			"retryable", retryable,
			"error", errText,
		)
		return calljob.StatusFailed, nil
	}

	nextAttemptAt := now.Add(backoffDelay(s.cfg.BaseDelay, job.AttemptCount))
	newAttemptCount := job.AttemptCount + 1
	parked, err := s.jobRepo.Transition(ctx, job.ID, []string{calljob.StatusInFlight}, calljob.StatusFailedRetryable, calljob.TransitionFields{
		LastError:     &errText,
		AttemptCount:  &newAttemptCount,
		NextAttemptAt: &nextAttemptAt,
	})
	if err != nil {
		return "", fmt.Errorf("park job=%s for retry: %w", job.ID, err)
	}
	if !parked {
		return "", nil
	}
	s.recordRetry(ctx, job, errText, newAttemptCount, &nextAttemptAt, now)

	s.logger.InfoContext(ctx, "job scheduled for retry",
		"job_id", job.ID,
		"attempt_count", newAttemptCount,
		"next_attempt_at", nextAttemptAt.Format(time.RFC3339),
		"error", errText,
	)
	return calljob.StatusFailedRetryable, nil
}

func (s *RecoveryService) recordRetry(ctx context.Context, job calljob.Job, errText string, retryCount int, nextRetryAt *time.Time, now time.Time) {
	record := callevent.RetryRecord{
		JobID:          job.ID,
		RetryCount:     retryCount,
		LastError:      errText,
		LastProviderID: job.ProviderID,
		NextRetryAt:    nextRetryAt,
		FirstFailedAt:  now,
		UpdatedAt:      now,
	}
	if err := s.eventRepo.UpsertRetryRecord(ctx, record); err != nil {
		s.logger.WarnContext(ctx, "record retry bookkeeping failed", "job_id", job.ID, "error", err)
	}
}

// PromoteDueRetries returns parked jobs whose backoff has elapsed to the
// pending pool. The provider assignment is cleared so the next dispatch
// selects fresh.
func (s *RecoveryService) PromoteDueRetries(ctx context.Context) (int, error) {
	due, err := s.jobRepo.ListRetryableDue(ctx, s.now().UTC(), s.cfg.PromoteBatch)
	if err != nil {
		return 0, fmt.Errorf("list due retries: %w", err)
	}

	promoted := 0
	for _, job := range due {
		moved, err := s.jobRepo.Transition(ctx, job.ID, []string{calljob.StatusFailedRetryable}, calljob.StatusPending, calljob.TransitionFields{
			ClearProvider:    true,
			ClearNextAttempt: true,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "promote retry failed", "job_id", job.ID, "error", err)
			continue
		}
		if moved {
			promoted++
		}
	}
	return promoted, nil
}

// SweepStalled requeues in-flight jobs that have outlived the stall timeout
// without a completion event. The stall counts as a retryable failure, so
// the usual backoff and retry ceiling apply.
func (s *RecoveryService) SweepStalled(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.cfg.StallTimeout)
	stalled, err := s.jobRepo.ListInFlightDispatchedBefore(ctx, cutoff, s.cfg.StallBatch)
	if err != nil {
		return 0, fmt.Errorf("list stalled jobs: %w", err)
	}

	swept := 0
	for _, job := range stalled {
		detail := fmt.Sprintf("no completion event within %s of dispatch", s.cfg.StallTimeout)
		s.closeStalledAttempt(ctx, job, detail)

		status, err := s.HandleFailure(ctx, job, detail, true)
		if err != nil {
			s.logger.WarnContext(ctx, "stall handoff failed", "job_id", job.ID, "error", err)
			continue
		}
		if status != "" {
			swept++
		}
	}
	return swept, nil
}

func (s *RecoveryService) closeStalledAttempt(ctx context.Context, job calljob.Job, detail string) {
	if job.CorrelationID == "" {
		return
	}

	closedAt := s.now().UTC()
	attempt := callevent.Attempt{
		CorrelationID: job.CorrelationID,
		JobID:         job.ID,
		ProviderID:    job.ProviderID,
		AttemptNumber: job.AttemptCount + 1,
		Outcome:       callevent.AttemptFailed,
		ErrorMessage:  detail,
		ClosedAt:      &closedAt,
	}
	if job.DispatchedAt != nil {
		attempt.AssignedAt = job.DispatchedAt.UTC()
	}
	if err := s.eventRepo.UpsertAttempt(ctx, attempt); err != nil {
		s.logger.WarnContext(ctx, "close stalled attempt failed", "job_id", job.ID, "error", err)
	}
}

// RunSweep executes one promotion pass and one stall pass. It backs the
// manual recover route; the loop in Run does the same work on timers.
func (s *RecoveryService) RunSweep(ctx context.Context) (RecoverResult, error) {
	promoted, promoteErr := s.PromoteDueRetries(ctx)
	swept, stallErr := s.SweepStalled(ctx)

	result := RecoverResult{Promoted: promoted, Requeued: swept}
	if promoteErr != nil {
		return result, promoteErr
	}
	return result, stallErr
}

type RecoverResult struct {
	Promoted int `json:"promoted"`
	Requeued int `json:"requeued"`
}

// Run drives both recovery sweeps until the context is canceled. Promotions
// run frequently so due retries rejoin the queue promptly; the stall sweep
// is coarser.
func (s *RecoveryService) Run(ctx context.Context) {
	promoteTicker := time.NewTicker(s.cfg.PromoteInterval)
	defer promoteTicker.Stop()
	stallTicker := time.NewTicker(s.cfg.StallInterval)
	defer stallTicker.Stop()

	s.logger.InfoContext(ctx, "recovery loop started",
		"promote_interval", s.cfg.PromoteInterval.String(),
		"stall_interval", s.cfg.StallInterval.String(),
		"stall_timeout", s.cfg.StallTimeout.String(),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "recovery loop stopped")
			return
		case <-promoteTicker.C:
			if _, err := s.PromoteDueRetries(ctx); err != nil {
				s.logger.ErrorContext(ctx, "retry promotion sweep failed", "error", err)
			}
		case <-stallTicker.C:
			if _, err := s.SweepStalled(ctx); err != nil {
				s.logger.ErrorContext(ctx, "stall sweep failed", "error", err)
			}
		}
	}
}

// backoffDelay doubles the base delay per completed attempt. The shift is
// capped so a corrupt attempt count cannot overflow the duration.
func backoffDelay(base time.Duration, attemptCount int) time.Duration {
	if base <= 0 {
		base = 30 * time.Second
	}
	if attemptCount < 0 {
		attemptCount = 0
	}
	if attemptCount > 16 {
		attemptCount = 16
	}
	return base * time.Duration(1<<attemptCount)
}

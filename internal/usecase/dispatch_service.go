package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/redial/internal/domain/callevent"
	"github.com/riskibarqy/redial/internal/domain/calljob"
	"github.com/riskibarqy/redial/internal/domain/provider"
	"github.com/riskibarqy/redial/internal/platform/logging"
)

type DispatchConfig struct {
	TickInterval    time.Duration
	GlobalMaxCalls  int
	WorkerCount     int
	InitiateTimeout time.Duration
	CallbackBaseURL string
}

// TickResult summarizes one dispatch pass.
type TickResult struct {
	Budget  int    `json:"budget"`
	Claimed int    `json:"claimed"`
	Placed  int    `json:"placed"`
	Failed  int    `json:"failed"`
	Skipped string `json:"skipped,omitempty"`
}

// DispatchService pulls eligible pending jobs on a fixed tick, claims each
// one with a compare-and-swap on the job row, and places the calls in a
// bounded parallel batch. Provider calls never run inside a store
// transaction; a claim that later fails to place is handed to the recovery
// service instead of rolled back.
type DispatchService struct {
	jobRepo      calljob.Repository
	eventRepo    callevent.Repository
	availability *AvailabilityService
	adapters     *AdapterRegistry
	recovery     *RecoveryService
	cfg          DispatchConfig
	logger       *logging.Logger
	now          func() time.Time
}

type dispatchTask struct {
	job  calljob.Job
	prov provider.Provider
}

func NewDispatchService(
	jobRepo calljob.Repository,
	eventRepo callevent.Repository,
	availability *AvailabilityService,
	adapters *AdapterRegistry,
	recovery *RecoveryService,
	cfg DispatchConfig,
	logger *logging.Logger,
) *DispatchService {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.GlobalMaxCalls <= 0 {
		cfg.GlobalMaxCalls = 50
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 10
	}
	if cfg.InitiateTimeout <= 0 {
		cfg.InitiateTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DispatchService{
		jobRepo:      jobRepo,
		eventRepo:    eventRepo,
		availability: availability,
		adapters:     adapters,
		recovery:     recovery,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// RunTick executes one dispatch pass: budget, claim, place. Claims stop as
// soon as no provider can take the next job, so a capacity-starved queue
// stays untouched in priority order instead of churning.
func (s *DispatchService) RunTick(ctx context.Context) (TickResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.DispatchService.RunTick")
	defer span.End()

	var result TickResult

	counts, err := s.jobRepo.CountByStatus(ctx)
	if err != nil {
		return result, fmt.Errorf("count jobs by status: %w", err)
	}
	budget := s.cfg.GlobalMaxCalls - counts[calljob.StatusInFlight]
	if budget <= 0 {
		result.Skipped = "global concurrency limit reached"
		return result, nil
	}
	result.Budget = budget

	tasks, skipped, err := s.claimBatch(ctx, budget)
	result.Claimed = len(tasks)
	result.Skipped = skipped
	if err != nil {
		return result, err
	}
	if len(tasks) == 0 {
		return result, nil
	}

	placed, failed, err := s.placeBatch(ctx, tasks)
	result.Placed = placed
	result.Failed = failed
	if err != nil {
		return result, err
	}

	s.logger.InfoContext(ctx, "dispatch tick finished",
		"budget", result.Budget,
		"claimed", result.Claimed,
		"placed", result.Placed,
		"failed", result.Failed,
	)
	return result, nil
}

func (s *DispatchService) claimBatch(ctx context.Context, budget int) ([]dispatchTask, string, error) {
	now := s.now().UTC()
	tasks := make([]dispatchTask, 0, budget)

	for len(tasks) < budget {
		job, exists, err := s.jobRepo.NextEligible(ctx, now)
		if err != nil {
			return tasks, "", fmt.Errorf("peek next eligible job: %w", err)
		}
		if !exists {
			break
		}

		selected, err := s.availability.SelectProvider(ctx, job)
		if errors.Is(err, ErrNoProviderAvailable) {
			// Backpressure: the job at the head of the queue stays pending
			// and this tick pulls nothing more behind it.
			return tasks, "no provider available for job " + job.ID, nil
		}
		if err != nil {
			return tasks, "", fmt.Errorf("select provider for job=%s: %w", job.ID, err)
		}

		providerID := selected.ID
		dispatchedAt := now
		claimed, err := s.jobRepo.Transition(ctx, job.ID, []string{calljob.StatusPending}, calljob.StatusInFlight, calljob.TransitionFields{
			ProviderID:   &providerID,
			DispatchedAt: &dispatchedAt,
		})
		if err != nil {
			return tasks, "", fmt.Errorf("claim job=%s: %w", job.ID, err)
		}
		if !claimed {
			// Another dispatcher or a cancellation won the row; move on.
			continue
		}

		s.availability.NoteDispatched(selected.ID)
		job.Status = calljob.StatusInFlight
		job.ProviderID = selected.ID
		job.DispatchedAt = &dispatchedAt
		tasks = append(tasks, dispatchTask{job: job, prov: selected})
	}
	return tasks, "", nil
}

func (s *DispatchService) placeBatch(ctx context.Context, tasks []dispatchTask) (int, int, error) {
	workerCount := s.cfg.WorkerCount
	if workerCount > len(tasks) {
		workerCount = len(tasks)
	}
	pool, err := ants.NewPool(workerCount)
	if err != nil {
		return 0, 0, fmt.Errorf("create dispatch worker pool: %w", err)
	}
	defer pool.Release()

	var placed atomic.Int32
	var failed atomic.Int32

	var workers sync.WaitGroup
	for _, task := range tasks {
		task := task
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()
			if s.placeOne(ctx, task) {
				placed.Add(1)
			} else {
				failed.Add(1)
			}
		}); err != nil {
			workers.Done()
			// The job is already claimed; hand it straight to recovery so it
			// does not sit in-flight with no call behind it.
			s.availability.NoteFinished(task.prov.ID)
			if _, handoffErr := s.recovery.HandleFailure(ctx, task.job, "submit dispatch task: "+err.Error(), true); handoffErr != nil {
				s.logger.ErrorContext(ctx, "failure handoff after submit error failed", "job_id", task.job.ID, "error", handoffErr)
			}
			failed.Add(1)
		}
	}
	workers.Wait()

	return int(placed.Load()), int(failed.Load()), nil
}

// placeOne initiates a single claimed call. A failure here never aborts the
// batch; the job goes to the recovery handoff and the advisory slot is
// released.
func (s *DispatchService) placeOne(ctx context.Context, task dispatchTask) bool {
	assignedAt := s.now().UTC()

	adapter, ok := s.adapters.Resolve(task.prov.Kind)
	if !ok {
		s.failPlacement(ctx, task, assignedAt, fmt.Errorf("%w: no adapter registered for kind %s", ErrProviderUnavailable, task.prov.Kind))
		return false
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.InitiateTimeout)
	defer cancel()

	placement, err := adapter.InitiateCall(callCtx, CallRequest{
		Provider:    task.prov,
		Recipient:   task.job.PhoneNumber,
		Script:      task.job.Script,
		Reference:   task.job.ID,
		CallbackURL: s.callbackURL(task.prov.Kind),
	})
	if err != nil {
		s.failPlacement(ctx, task, assignedAt, err)
		return false
	}

	correlationID := strings.TrimSpace(placement.CorrelationID)
	if correlationID == "" {
		s.failPlacement(ctx, task, assignedAt, fmt.Errorf("%w: provider returned an empty correlation id", ErrProviderUnavailable))
		return false
	}

	recorded, err := s.jobRepo.Transition(ctx, task.job.ID, []string{calljob.StatusInFlight}, calljob.StatusInFlight, calljob.TransitionFields{
		CorrelationID: &correlationID,
	})
	if err != nil || !recorded {
		// The call is live regardless; the stall sweep will recover the job
		// if the correlation id never lands.
		s.logger.WarnContext(ctx, "record correlation id failed",
			"job_id", task.job.ID,
			"correlation_id", correlationID,
			"error", err,
		)
	}

	s.recordAttempt(ctx, task, correlationID, placement.ProviderStatus, callevent.AttemptAssigned, "", assignedAt)
	s.logger.InfoContext(ctx, "call placed",
		"job_id", task.job.ID,
		"provider_id", task.prov.ID,
		"provider_kind", task.prov.Kind,
		"correlation_id", correlationID,
		"attempt", task.job.AttemptCount+1,
	)
	return true
}

func (s *DispatchService) failPlacement(ctx context.Context, task dispatchTask, assignedAt time.Time, cause error) {
	retryable := !errors.Is(cause, ErrProviderRejected)
	s.logger.WarnContext(ctx, "call initiation failed",
		"job_id", task.job.ID,
		"provider_id", task.prov.ID,
		"provider_kind", task.prov.Kind,
		"retryable", retryable,
		"error", cause,
	)

	s.availability.NoteFinished(task.prov.ID)
	s.recordAttempt(ctx, task, "", "", callevent.AttemptFailed, cause.Error(), assignedAt)
	if _, err := s.recovery.HandleFailure(ctx, task.job, cause.Error(), retryable); err != nil {
		s.logger.ErrorContext(ctx, "failure handoff failed", "job_id", task.job.ID, "error", err)
	}
}

// recordAttempt writes the audit row for one placement, best effort. Failed
// initiations have no provider correlation id, so they get a deterministic
// synthetic key and an immediate close timestamp.
func (s *DispatchService) recordAttempt(ctx context.Context, task dispatchTask, correlationID, providerStatus, outcome, errMsg string, assignedAt time.Time) {
	attemptNumber := task.job.AttemptCount + 1
	if correlationID == "" {
		correlationID = failedPlacementKey(task.job.ID, attemptNumber)
	}

	attempt := callevent.Attempt{
		CorrelationID:  correlationID,
		JobID:          task.job.ID,
		ProviderID:     task.prov.ID,
		AttemptNumber:  attemptNumber,
		Outcome:        outcome,
		ProviderStatus: providerStatus,
		ErrorMessage:   errMsg,
		AssignedAt:     assignedAt,
	}
	if outcome == callevent.AttemptFailed {
		closedAt := s.now().UTC()
		attempt.ClosedAt = &closedAt
	}
	attempt.TraceID, attempt.SpanID = traceMetaFromContext(ctx)

	if err := s.eventRepo.UpsertAttempt(ctx, attempt); err != nil {
		s.logger.WarnContext(ctx, "record call attempt failed", "job_id", task.job.ID, "error", err)
	}
}

func (s *DispatchService) callbackURL(providerKind string) string {
	base := strings.TrimRight(strings.TrimSpace(s.cfg.CallbackBaseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/v1/webhooks/" + providerKind
}

// Run drives dispatch ticks until the context is canceled. Ticks run on a
// single goroutine, so a slow batch delays the next tick instead of
// overlapping with it.
func (s *DispatchService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "dispatch loop started",
		"interval", s.cfg.TickInterval.String(),
		"global_max_calls", s.cfg.GlobalMaxCalls,
		"worker_count", s.cfg.WorkerCount,
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "dispatch loop stopped")
			return
		case <-ticker.C:
			if _, err := s.RunTick(ctx); err != nil {
				s.logger.ErrorContext(ctx, "dispatch tick failed", "error", err)
			}
		}
	}
}

func failedPlacementKey(jobID string, attemptNumber int) string {
	return "noplacement-" + jobID + "-" + strconv.Itoa(attemptNumber)
}

package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/riskibarqy/redial/internal/domain/calljob"
	"github.com/riskibarqy/redial/internal/domain/provider"
	idgen "github.com/riskibarqy/redial/internal/platform/id"
)

// QuotaChecker reports whether an account may start another outbound call.
// Implementations return an error wrapping ErrQuotaExceeded when the
// allowance is exhausted.
type QuotaChecker interface {
	CheckCallAllowance(ctx context.Context, accountID string) error
}

// ScriptRenderer resolves a template id and a variable map into the final
// call script handed to the provider.
type ScriptRenderer interface {
	RenderScript(ctx context.Context, templateID string, variables map[string]string) (string, error)
}

type noopQuotaChecker struct{}

// NewNoopQuotaChecker returns a checker that always allows. Used when no
// account service is configured.
func NewNoopQuotaChecker() QuotaChecker {
	return noopQuotaChecker{}
}

func (noopQuotaChecker) CheckCallAllowance(context.Context, string) error {
	return nil
}

type CallJobServiceConfig struct {
	DefaultMaxRetries int
	MaxPriority       int
	ListDefaultLimit  int
	ListMaxLimit      int
}

// CallJobService owns the caller-facing lifecycle of a call job: enqueue,
// read, list, and cancel. Everything past enqueue is driven by the dispatch
// and reconcile loops.
type CallJobService struct {
	jobRepo      calljob.Repository
	providerRepo provider.Repository
	renderer     ScriptRenderer
	quota        QuotaChecker
	idGen        idgen.Generator
	cfg          CallJobServiceConfig
	now          func() time.Time
}

func NewCallJobService(
	jobRepo calljob.Repository,
	providerRepo provider.Repository,
	renderer ScriptRenderer,
	quota QuotaChecker,
	idGen idgen.Generator,
	cfg CallJobServiceConfig,
) *CallJobService {
	if quota == nil {
		quota = NewNoopQuotaChecker()
	}
	if cfg.DefaultMaxRetries <= 0 {
		cfg.DefaultMaxRetries = 3
	}
	if cfg.MaxPriority <= 0 {
		cfg.MaxPriority = 100
	}
	if cfg.ListDefaultLimit <= 0 {
		cfg.ListDefaultLimit = 50
	}
	if cfg.ListMaxLimit <= 0 {
		cfg.ListMaxLimit = 200
	}
	return &CallJobService{
		jobRepo:      jobRepo,
		providerRepo: providerRepo,
		renderer:     renderer,
		quota:        quota,
		idGen:        idGen,
		cfg:          cfg,
		now:          time.Now,
	}
}

type EnqueueCallInput struct {
	AccountID        string
	PhoneNumber      string
	TemplateID       string
	Variables        map[string]string
	Priority         int
	MaxRetries       *int
	ScheduledAt      *time.Time
	PinnedProviderID string
}

type ListCallsInput struct {
	AccountID string
	Status    string
	Limit     int
	Offset    int
}

// Enqueue validates the request, checks the account allowance, renders the
// script once, and persists the job in pending. Dispatch happens on the next
// scheduler tick, never inline.
func (s *CallJobService) Enqueue(ctx context.Context, input EnqueueCallInput) (calljob.Job, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.CallJobService.Enqueue")
	defer span.End()

	accountID := strings.TrimSpace(input.AccountID)
	if accountID == "" {
		return calljob.Job{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	phoneNumber, err := normalizePhoneNumber(input.PhoneNumber)
	if err != nil {
		return calljob.Job{}, err
	}
	templateID := strings.TrimSpace(input.TemplateID)
	if templateID == "" {
		return calljob.Job{}, fmt.Errorf("%w: template id is required", ErrInvalidInput)
	}
	if input.Priority < 0 || input.Priority > s.cfg.MaxPriority {
		return calljob.Job{}, fmt.Errorf("%w: priority must be between 0 and %d", ErrInvalidInput, s.cfg.MaxPriority)
	}
	maxRetries := s.cfg.DefaultMaxRetries
	if input.MaxRetries != nil {
		if *input.MaxRetries < 0 {
			return calljob.Job{}, fmt.Errorf("%w: max retries must not be negative", ErrInvalidInput)
		}
		maxRetries = *input.MaxRetries
	}

	if err := s.quota.CheckCallAllowance(ctx, accountID); err != nil {
		return calljob.Job{}, fmt.Errorf("check call allowance for account=%s: %w", accountID, err)
	}

	script, err := s.renderer.RenderScript(ctx, templateID, input.Variables)
	if err != nil {
		return calljob.Job{}, fmt.Errorf("render call script from template=%s: %w", templateID, err)
	}

	pinnedProviderID := strings.TrimSpace(input.PinnedProviderID)
	if pinnedProviderID != "" {
		pinned, exists, err := s.providerRepo.GetByID(ctx, pinnedProviderID)
		if err != nil {
			return calljob.Job{}, fmt.Errorf("resolve pinned provider=%s: %w", pinnedProviderID, err)
		}
		if !exists {
			return calljob.Job{}, fmt.Errorf("%w: pinned provider=%s does not exist", ErrInvalidInput, pinnedProviderID)
		}
		if !pinned.Active {
			return calljob.Job{}, fmt.Errorf("%w: pinned provider=%s is not active", ErrInvalidInput, pinnedProviderID)
		}
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		return calljob.Job{}, fmt.Errorf("generate call job id: %w", err)
	}

	now := s.now().UTC()
	job := calljob.Job{
		ID:               jobID,
		AccountID:        accountID,
		PhoneNumber:      phoneNumber,
		TemplateID:       templateID,
		Script:           script,
		Variables:        cloneVariables(input.Variables),
		Priority:         input.Priority,
		Status:           calljob.StatusPending,
		PinnedProviderID: pinnedProviderID,
		MaxRetries:       maxRetries,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if input.ScheduledAt != nil {
		scheduledAt := input.ScheduledAt.UTC()
		job.ScheduledAt = &scheduledAt
	}

	if err := s.jobRepo.Create(ctx, job); err != nil {
		return calljob.Job{}, fmt.Errorf("enqueue call job: %w", err)
	}
	return job, nil
}

func (s *CallJobService) Get(ctx context.Context, accountID, jobID string) (calljob.Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return calljob.Job{}, fmt.Errorf("%w: job id is required", ErrInvalidInput)
	}

	job, exists, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return calljob.Job{}, fmt.Errorf("get call job=%s: %w", jobID, err)
	}
	// A foreign account must not learn whether the id exists.
	if !exists || job.AccountID != strings.TrimSpace(accountID) {
		return calljob.Job{}, fmt.Errorf("%w: call job=%s", ErrNotFound, jobID)
	}
	return job, nil
}

func (s *CallJobService) List(ctx context.Context, input ListCallsInput) ([]calljob.Job, error) {
	accountID := strings.TrimSpace(input.AccountID)
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	status := strings.TrimSpace(input.Status)
	if status != "" && !calljob.IsKnownStatus(status) {
		return nil, fmt.Errorf("%w: unknown status filter %q", ErrInvalidInput, status)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = s.cfg.ListDefaultLimit
	}
	if limit > s.cfg.ListMaxLimit {
		limit = s.cfg.ListMaxLimit
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	jobs, err := s.jobRepo.ListByAccount(ctx, accountID, calljob.ListFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("list call jobs for account=%s: %w", accountID, err)
	}
	return jobs, nil
}

// Cancel honors a cancellation only while the job is still pending. A job
// already claimed by the dispatcher runs to its natural outcome; canceling a
// canceled job is a no-op.
func (s *CallJobService) Cancel(ctx context.Context, accountID, jobID string) (calljob.Job, error) {
	job, err := s.Get(ctx, accountID, jobID)
	if err != nil {
		return calljob.Job{}, err
	}
	if job.Status == calljob.StatusCanceled {
		return job, nil
	}
	if job.Status != calljob.StatusPending {
		return calljob.Job{}, fmt.Errorf("%w: call job=%s is %s; only pending jobs can be canceled", ErrInvalidInput, jobID, job.Status)
	}

	canceled, err := s.jobRepo.Transition(ctx, job.ID, []string{calljob.StatusPending}, calljob.StatusCanceled, calljob.TransitionFields{ClearNextAttempt: true})
	if err != nil {
		return calljob.Job{}, fmt.Errorf("cancel call job=%s: %w", jobID, err)
	}
	if !canceled {
		// Lost the race against the dispatcher or a concurrent cancel.
		refreshed, exists, err := s.jobRepo.GetByID(ctx, job.ID)
		if err != nil {
			return calljob.Job{}, fmt.Errorf("reload call job=%s: %w", jobID, err)
		}
		if exists && refreshed.Status == calljob.StatusCanceled {
			return refreshed, nil
		}
		return calljob.Job{}, fmt.Errorf("%w: call job=%s is no longer pending", ErrInvalidInput, jobID)
	}

	job.Status = calljob.StatusCanceled
	return job, nil
}

func cloneVariables(variables map[string]string) map[string]string {
	if len(variables) == 0 {
		return nil
	}
	cloned := make(map[string]string, len(variables))
	for key, value := range variables {
		cloned[key] = value
	}
	return cloned
}

// normalizePhoneNumber strips separators and enforces an E.164-ish shape:
// optional leading plus, 7 to 15 digits.
func normalizePhoneNumber(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: phone number is required", ErrInvalidInput)
	}

	var builder strings.Builder
	for i, r := range trimmed {
		switch {
		case r == '+' && i == 0:
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			continue
		default:
			return "", fmt.Errorf("%w: phone number contains invalid character %q", ErrInvalidInput, r)
		}
	}

	normalized := builder.String()
	digits := strings.TrimPrefix(normalized, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return "", fmt.Errorf("%w: phone number must contain 7 to 15 digits", ErrInvalidInput)
	}
	return normalized, nil
}

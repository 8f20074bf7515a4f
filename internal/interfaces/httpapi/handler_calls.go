package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/redial/internal/domain/calljob"
	"github.com/riskibarqy/redial/internal/usecase"
)

func (h *Handler) EnqueueCall(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.EnqueueCall")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	var req enqueueCallRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	job, err := h.callJobs.Enqueue(ctx, usecase.EnqueueCallInput{
		AccountID:        principal.UserID,
		PhoneNumber:      req.PhoneNumber,
		TemplateID:       req.TemplateID,
		Variables:        req.Variables,
		Priority:         req.Priority,
		MaxRetries:       req.MaxRetries,
		ScheduledAt:      req.ScheduledAt,
		PinnedProviderID: req.PinnedProviderID,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "enqueue call failed", "account_id", principal.UserID, "template_id", req.TemplateID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusCreated, callJobToDTO(ctx, job))
}

func (h *Handler) ListCalls(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListCalls")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	query := r.URL.Query()
	limit, err := parseOptionalInt(query.Get("limit"))
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: limit must be an integer", usecase.ErrInvalidInput))
		return
	}
	offset, err := parseOptionalInt(query.Get("offset"))
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: offset must be an integer", usecase.ErrInvalidInput))
		return
	}

	jobs, err := h.callJobs.List(ctx, usecase.ListCallsInput{
		AccountID: principal.UserID,
		Status:    query.Get("status"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "list calls failed", "account_id", principal.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}

	items := make([]callJobDTO, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, callJobToDTO(ctx, job))
	}
	writeSuccess(ctx, w, http.StatusOK, items)
}

func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetCall")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}
	callID := strings.TrimSpace(r.PathValue("callID"))

	job, err := h.callJobs.Get(ctx, principal.UserID, callID)
	if err != nil {
		h.logger.WarnContext(ctx, "get call failed", "account_id", principal.UserID, "call_id", callID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, callJobToDTO(ctx, job))
}

func (h *Handler) CancelCall(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CancelCall")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}
	callID := strings.TrimSpace(r.PathValue("callID"))

	job, err := h.callJobs.Cancel(ctx, principal.UserID, callID)
	if err != nil {
		h.logger.WarnContext(ctx, "cancel call failed", "account_id", principal.UserID, "call_id", callID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, callJobToDTO(ctx, job))
}

func parseOptionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

type enqueueCallRequest struct {
	PhoneNumber      string            `json:"phone_number" validate:"required,max=32"`
	TemplateID       string            `json:"template_id" validate:"required"`
	Variables        map[string]string `json:"variables"`
	Priority         int               `json:"priority" validate:"min=0,max=9"`
	MaxRetries       *int              `json:"max_retries" validate:"omitempty,min=0,max=10"`
	ScheduledAt      *time.Time        `json:"scheduled_at"`
	PinnedProviderID string            `json:"pinned_provider_id"`
}

type callJobDTO struct {
	ID               string `json:"id"`
	AccountID        string `json:"account_id"`
	PhoneNumber      string `json:"phone_number"`
	TemplateID       string `json:"template_id"`
	Script           string `json:"script"`
	Priority         int    `json:"priority"`
	Status           string `json:"status"`
	ProviderID       string `json:"provider_id,omitempty"`
	PinnedProviderID string `json:"pinned_provider_id,omitempty"`
	CorrelationID    string `json:"correlation_id,omitempty"`
	AttemptCount     int    `json:"attempt_count"`
	MaxRetries       int    `json:"max_retries"`
	LastError        string `json:"last_error,omitempty"`
	DurationSeconds  *int   `json:"duration_seconds,omitempty"`
	ScheduledAtUTC   string `json:"scheduled_at_utc,omitempty"`
	NextAttemptAtUTC string `json:"next_attempt_at_utc,omitempty"`
	DispatchedAtUTC  string `json:"dispatched_at_utc,omitempty"`
	CompletedAtUTC   string `json:"completed_at_utc,omitempty"`
	CreatedAtUTC     string `json:"created_at_utc"`
	UpdatedAtUTC     string `json:"updated_at_utc"`
}

func callJobToDTO(ctx context.Context, job calljob.Job) callJobDTO {
	ctx, span := startSpan(ctx, "httpapi.callJobToDTO")
	defer span.End()

	return callJobDTO{
		ID:               job.ID,
		AccountID:        job.AccountID,
		PhoneNumber:      job.PhoneNumber,
		TemplateID:       job.TemplateID,
		Script:           job.Script,
		Priority:         job.Priority,
		Status:           job.Status,
		ProviderID:       job.ProviderID,
		PinnedProviderID: job.PinnedProviderID,
		CorrelationID:    job.CorrelationID,
		AttemptCount:     job.AttemptCount,
		MaxRetries:       job.MaxRetries,
		LastError:        job.LastError,
		DurationSeconds:  job.DurationSeconds,
		ScheduledAtUTC:   formatOptionalTime(job.ScheduledAt),
		NextAttemptAtUTC: formatOptionalTime(job.NextAttemptAt),
		DispatchedAtUTC:  formatOptionalTime(job.DispatchedAt),
		CompletedAtUTC:   formatOptionalTime(job.CompletedAt),
		CreatedAtUTC:     job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAtUTC:     job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

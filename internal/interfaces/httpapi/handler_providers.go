package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/redial/internal/domain/provider"
	"github.com/riskibarqy/redial/internal/usecase"
)

func (h *Handler) CreateProvider(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CreateProvider")
	defer span.End()

	var req providerWriteRequest
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

	item, err := h.providerAdmin.Create(ctx, usecase.ProviderInput{
		Name:               req.Name,
		Kind:               req.Kind,
		Active:             req.Active,
		Priority:           req.Priority,
		MaxConcurrentCalls: req.MaxConcurrentCalls,
		Settings:           req.Settings,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "create provider failed", "name", req.Name, "kind", req.Kind, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusCreated, providerToDTO(ctx, item))
}

func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListProviders")
	defer span.End()

	includeInactive := strings.EqualFold(r.URL.Query().Get("include_inactive"), "true")
	items, err := h.providerAdmin.List(ctx, includeInactive)
	if err != nil {
		h.logger.WarnContext(ctx, "list providers failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	dtos := make([]providerDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, providerToDTO(ctx, item))
	}
	writeSuccess(ctx, w, http.StatusOK, dtos)
}

func (h *Handler) GetProvider(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetProvider")
	defer span.End()

	providerID := strings.TrimSpace(r.PathValue("providerID"))
	item, err := h.providerAdmin.Get(ctx, providerID)
	if err != nil {
		h.logger.WarnContext(ctx, "get provider failed", "provider_id", providerID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, providerToDTO(ctx, item))
}

func (h *Handler) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.UpdateProvider")
	defer span.End()

	providerID := strings.TrimSpace(r.PathValue("providerID"))

	var req providerWriteRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err))
		return
	}

	item, err := h.providerAdmin.Update(ctx, providerID, usecase.ProviderInput{
		Name:               req.Name,
		Kind:               req.Kind,
		Active:             req.Active,
		Priority:           req.Priority,
		MaxConcurrentCalls: req.MaxConcurrentCalls,
		Settings:           req.Settings,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "update provider failed", "provider_id", providerID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, providerToDTO(ctx, item))
}

func (h *Handler) DeleteProvider(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.DeleteProvider")
	defer span.End()

	providerID := strings.TrimSpace(r.PathValue("providerID"))
	if err := h.providerAdmin.Delete(ctx, providerID); err != nil {
		h.logger.WarnContext(ctx, "delete provider failed", "provider_id", providerID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) GetProviderHealth(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetProviderHealth")
	defer span.End()

	providerID := strings.TrimSpace(r.PathValue("providerID"))
	snapshot, err := h.providerAdmin.Health(ctx, providerID)
	if err != nil {
		h.logger.WarnContext(ctx, "get provider health failed", "provider_id", providerID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, snapshotToDTO(ctx, snapshot))
}

type providerWriteRequest struct {
	Name               string            `json:"name" validate:"omitempty,max=100"`
	Kind               string            `json:"kind" validate:"omitempty,max=50"`
	Active             *bool             `json:"active"`
	Priority           *int              `json:"priority" validate:"omitempty,min=0"`
	MaxConcurrentCalls *int              `json:"max_concurrent_calls" validate:"omitempty,min=1"`
	Settings           map[string]string `json:"settings"`
}

type providerDTO struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Kind               string            `json:"kind"`
	Active             bool              `json:"active"`
	Priority           int               `json:"priority"`
	MaxConcurrentCalls int               `json:"max_concurrent_calls"`
	Settings           map[string]string `json:"settings,omitempty"`
	CreatedAtUTC       string            `json:"created_at_utc"`
	UpdatedAtUTC       string            `json:"updated_at_utc"`
}

type providerSnapshotDTO struct {
	ProviderID     string `json:"provider_id"`
	Health         string `json:"health"`
	InFlight       int    `json:"in_flight"`
	RemainingSlots int    `json:"remaining_slots"`
	LatencyMs      int64  `json:"latency_ms"`
	LastDetail     string `json:"last_detail,omitempty"`
	ProbedAtUTC    string `json:"probed_at_utc,omitempty"`
}

func providerToDTO(ctx context.Context, item provider.Provider) providerDTO {
	ctx, span := startSpan(ctx, "httpapi.providerToDTO")
	defer span.End()

	return providerDTO{
		ID:                 item.ID,
		Name:               item.Name,
		Kind:               item.Kind,
		Active:             item.Active,
		Priority:           item.Priority,
		MaxConcurrentCalls: item.MaxConcurrentCalls,
		Settings:           redactProviderSettings(item.Settings),
		CreatedAtUTC:       item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAtUTC:       item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func snapshotToDTO(ctx context.Context, snapshot provider.Snapshot) providerSnapshotDTO {
	ctx, span := startSpan(ctx, "httpapi.snapshotToDTO")
	defer span.End()

	probedAt := ""
	if !snapshot.ProbedAt.IsZero() {
		probedAt = snapshot.ProbedAt.UTC().Format(time.RFC3339)
	}

	return providerSnapshotDTO{
		ProviderID:     snapshot.ProviderID,
		Health:         snapshot.Health,
		InFlight:       snapshot.InFlight,
		RemainingSlots: snapshot.RemainingSlots,
		LatencyMs:      snapshot.LatencyMs,
		LastDetail:     snapshot.LastDetail,
		ProbedAtUTC:    probedAt,
	}
}

// redactProviderSettings masks credential-bearing settings in API responses.
// The stored values stay intact; only the representation is scrubbed.
func redactProviderSettings(settings map[string]string) map[string]string {
	if len(settings) == 0 {
		return nil
	}
	redacted := make(map[string]string, len(settings))
	for key, value := range settings {
		if isSensitiveSettingKey(key) && value != "" {
			redacted[key] = "***"
			continue
		}
		redacted[key] = value
	}
	return redacted
}

func isSensitiveSettingKey(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	return strings.Contains(normalized, "token") ||
		strings.Contains(normalized, "key") ||
		strings.Contains(normalized, "secret") ||
		strings.Contains(normalized, "password")
}

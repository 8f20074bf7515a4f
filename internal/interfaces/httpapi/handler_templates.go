package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/redial/internal/domain/scripttemplate"
	"github.com/riskibarqy/redial/internal/usecase"
)

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CreateTemplate")
	defer span.End()

	var req createTemplateRequest
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

	item, err := h.templates.Create(ctx, usecase.CreateTemplateInput{
		Name:        req.Name,
		Description: req.Description,
		Body:        req.Body,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "create template failed", "name", req.Name, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusCreated, templateToDTO(ctx, item))
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListTemplates")
	defer span.End()

	items, err := h.templates.List(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "list templates failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	dtos := make([]templateDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, templateToDTO(ctx, item))
	}
	writeSuccess(ctx, w, http.StatusOK, dtos)
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetTemplate")
	defer span.End()

	templateID := strings.TrimSpace(r.PathValue("templateID"))
	item, err := h.templates.Get(ctx, templateID)
	if err != nil {
		h.logger.WarnContext(ctx, "get template failed", "template_id", templateID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, templateToDTO(ctx, item))
}

type createTemplateRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	Body        string `json:"body" validate:"required"`
}

type templateDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Body         string `json:"body"`
	CreatedAtUTC string `json:"created_at_utc"`
	UpdatedAtUTC string `json:"updated_at_utc"`
}

func templateToDTO(ctx context.Context, item scripttemplate.Template) templateDTO {
	ctx, span := startSpan(ctx, "httpapi.templateToDTO")
	defer span.End()

	return templateDTO{
		ID:           item.ID,
		Name:         item.Name,
		Description:  item.Description,
		Body:         item.Body,
		CreatedAtUTC: item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAtUTC: item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

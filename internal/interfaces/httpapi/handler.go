package httpapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/redial/internal/domain/schedulerun"
	"github.com/riskibarqy/redial/internal/usecase"
)

type Handler struct {
	callJobs         *usecase.CallJobService
	templates        *usecase.TemplateService
	providerAdmin    *usecase.ProviderAdminService
	dispatch         *usecase.DispatchService
	availability     *usecase.AvailabilityService
	reconcile        *usecase.ReconcileService
	recovery         *usecase.RecoveryService
	scheduler        *usecase.ScheduleOrchestrator
	dashboardService *usecase.DashboardService
	adapters         *usecase.AdapterRegistry
	runRepo          schedulerun.Repository
	logger           *slog.Logger
	validator        *validator.Validate
}

func NewHandler(
	callJobs *usecase.CallJobService,
	templates *usecase.TemplateService,
	providerAdmin *usecase.ProviderAdminService,
	dispatch *usecase.DispatchService,
	availability *usecase.AvailabilityService,
	reconcile *usecase.ReconcileService,
	recovery *usecase.RecoveryService,
	scheduler *usecase.ScheduleOrchestrator,
	dashboardService *usecase.DashboardService,
	adapters *usecase.AdapterRegistry,
	runRepo schedulerun.Repository,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		callJobs:         callJobs,
		templates:        templates,
		providerAdmin:    providerAdmin,
		dispatch:         dispatch,
		availability:     availability,
		reconcile:        reconcile,
		recovery:         recovery,
		scheduler:        scheduler,
		dashboardService: dashboardService,
		adapters:         adapters,
		runRepo:          runRepo,
		logger:           logger,
		validator:        validator.New(),
	}
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}

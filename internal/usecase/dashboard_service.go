package usecase

import (
	"context"
	"fmt"

	"github.com/riskibarqy/redial/internal/domain/calljob"
	"github.com/riskibarqy/redial/internal/domain/provider"
	"github.com/riskibarqy/redial/internal/domain/schedulerun"
)

// Dashboard is the operator view: queue depth per status, provider health,
// and the most recent background runs.
type Dashboard struct {
	QueueDepth   map[string]int
	InFlight     int
	RetryBacklog int
	Providers    []provider.Snapshot
	RecentRuns   []schedulerun.RunRecord
}

type DashboardService struct {
	jobRepo      calljob.Repository
	runRepo      schedulerun.Repository
	availability *AvailabilityService
}

func NewDashboardService(
	jobRepo calljob.Repository,
	runRepo schedulerun.Repository,
	availability *AvailabilityService,
) *DashboardService {
	return &DashboardService{
		jobRepo:      jobRepo,
		runRepo:      runRepo,
		availability: availability,
	}
}

const dashboardRecentRunLimit = 20

func (s *DashboardService) Get(ctx context.Context) (Dashboard, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.DashboardService.Get")
	defer span.End()

	counts, err := s.jobRepo.CountByStatus(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("count jobs by status: %w", err)
	}

	snapshots, err := s.availability.Snapshots(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("collect provider snapshots: %w", err)
	}

	runs, err := s.runRepo.ListRecent(ctx, dashboardRecentRunLimit)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list recent runs: %w", err)
	}

	return Dashboard{
		QueueDepth:   counts,
		InFlight:     counts[calljob.StatusInFlight],
		RetryBacklog: counts[calljob.StatusFailedRetryable],
		Providers:    snapshots,
		RecentRuns:   runs,
	}, nil
}

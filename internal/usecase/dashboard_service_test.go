package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/riskibarqy/redial/internal/domain/calljob"
	"github.com/riskibarqy/redial/internal/domain/provider"
	"github.com/riskibarqy/redial/internal/domain/schedulerun"
	"github.com/riskibarqy/redial/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/redial/internal/platform/logging"
)

func TestDashboardService_Get(t *testing.T) {
	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	inFlight := pendingJob("job-running", 0, base)
	inFlight.Status = calljob.StatusInFlight
	parked := pendingJob("job-parked", 0, base)
	parked.Status = calljob.StatusFailedRetryable
	jobRepo := memory.NewCallJobRepository([]calljob.Job{
		pendingJob("job-waiting", 0, base),
		inFlight,
		parked,
	})

	providerRepo := memory.NewProviderRepository([]provider.Provider{testProvider("prov-a", 3)})
	registry := NewAdapterRegistry(&fakeAdapter{kind: provider.KindTwilio, probeHealthy: true})
	availability := NewAvailabilityService(providerRepo, registry, AvailabilityConfig{}, logging.NewNop())
	if err := availability.ProbeAll(ctx); err != nil {
		t.Fatalf("probe: %v", err)
	}

	runRepo := memory.NewSchedulerRunRepository()
	for i, kind := range []string{schedulerun.KindDispatch, schedulerun.KindProbe, schedulerun.KindRecover} {
		record := schedulerun.RunRecord{
			RunID:      kind + "-1",
			Kind:       kind,
			Path:       "/v1/internal/jobs/" + kind,
			Status:     schedulerun.StatusCompleted,
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := runRepo.UpsertRun(ctx, record); err != nil {
			t.Fatalf("seed run: %v", err)
		}
	}

	dashboard, err := NewDashboardService(jobRepo, runRepo, availability).Get(ctx)
	if err != nil {
		t.Fatalf("get dashboard: %v", err)
	}

	if dashboard.QueueDepth[calljob.StatusPending] != 1 {
		t.Fatalf("expected one pending job, got %+v", dashboard.QueueDepth)
	}
	if dashboard.InFlight != 1 {
		t.Fatalf("expected one in-flight job, got %d", dashboard.InFlight)
	}
	if dashboard.RetryBacklog != 1 {
		t.Fatalf("expected one parked job, got %d", dashboard.RetryBacklog)
	}
	if len(dashboard.Providers) != 1 || dashboard.Providers[0].Health != provider.HealthOnline {
		t.Fatalf("expected one online provider, got %+v", dashboard.Providers)
	}
	if len(dashboard.RecentRuns) != 3 {
		t.Fatalf("expected three recent runs, got %d", len(dashboard.RecentRuns))
	}
	// Most recent run first.
	if dashboard.RecentRuns[0].Kind != schedulerun.KindRecover {
		t.Fatalf("expected newest run first, got %+v", dashboard.RecentRuns[0])
	}
}

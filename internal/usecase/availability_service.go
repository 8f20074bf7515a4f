package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/redial/internal/domain/calljob"
	"github.com/riskibarqy/redial/internal/domain/provider"
	"github.com/riskibarqy/redial/internal/platform/logging"
)

type AvailabilityConfig struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	ProbeWorkers  int
}

// AvailabilityService keeps an in-memory health and load snapshot per
// provider, refreshed by a probe loop that runs independently of dispatch.
// Between probes the in-flight number is adjusted with advisory deltas from
// NoteDispatched/NoteFinished; a fresh probe observation replaces the delta,
// so transient drift self-corrects.
type AvailabilityService struct {
	providerRepo provider.Repository
	adapters     *AdapterRegistry
	cfg          AvailabilityConfig
	logger       *logging.Logger
	now          func() time.Time

	mu     sync.RWMutex
	states map[string]*availabilityState
}

type availabilityState struct {
	health     string
	probedLoad int
	delta      int
	latencyMs  int64
	detail     string
	probedAt   time.Time
}

func NewAvailabilityService(
	providerRepo provider.Repository,
	adapters *AdapterRegistry,
	cfg AvailabilityConfig,
	logger *logging.Logger,
) *AvailabilityService {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 15 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.ProbeWorkers <= 0 {
		cfg.ProbeWorkers = 4
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityService{
		providerRepo: providerRepo,
		adapters:     adapters,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		states:       make(map[string]*availabilityState),
	}
}

// ProbeAll refreshes the snapshot of every active provider in parallel. A
// failing probe degrades the provider; nothing ever removes it from the set,
// so a flapping gateway comes back on its own once probes succeed again.
func (s *AvailabilityService) ProbeAll(ctx context.Context) error {
	providers, err := s.providerRepo.List(ctx, false)
	if err != nil {
		return fmt.Errorf("list providers for probing: %w", err)
	}
	if len(providers) == 0 {
		return nil
	}

	workerCount := s.cfg.ProbeWorkers
	if workerCount > len(providers) {
		workerCount = len(providers)
	}
	pool, err := ants.NewPool(workerCount)
	if err != nil {
		return fmt.Errorf("create probe worker pool: %w", err)
	}
	defer pool.Release()

	var workers sync.WaitGroup
	for _, item := range providers {
		item := item
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()
			s.probeOne(ctx, item)
		}); err != nil {
			workers.Done()
			return fmt.Errorf("submit probe to worker pool: %w", err)
		}
	}
	workers.Wait()
	return nil
}

func (s *AvailabilityService) probeOne(ctx context.Context, item provider.Provider) {
	adapter, ok := s.adapters.Resolve(item.Kind)
	if !ok {
		s.writeState(item.ID, provider.HealthOffline, 0, false, 0, "no adapter registered for kind "+item.Kind)
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	probe, err := adapter.ProbeHealth(probeCtx, item)
	if err != nil {
		s.logger.WarnContext(ctx, "provider probe failed",
			"provider_id", item.ID,
			"provider_kind", item.Kind,
			"error", err,
		)
		s.writeState(item.ID, provider.HealthDegraded, 0, false, 0, trimDetail(err.Error()))
		return
	}

	activeCalls, err := adapter.CountActiveCalls(probeCtx, item)
	if err != nil {
		s.logger.WarnContext(ctx, "provider active-call count failed",
			"provider_id", item.ID,
			"provider_kind", item.Kind,
			"error", err,
		)
		s.writeState(item.ID, provider.HealthDegraded, 0, false, probe.LatencyMs, trimDetail(err.Error()))
		return
	}

	health := provider.HealthOnline
	if !probe.Healthy {
		health = provider.HealthDegraded
	}
	s.writeState(item.ID, health, activeCalls, true, probe.LatencyMs, trimDetail(probe.Detail))
}

// writeState records one probe observation. resetDelta is false when the
// observation carries no trustworthy load number, in which case the advisory
// delta keeps compensating.
func (s *AvailabilityService) writeState(providerID, health string, probedLoad int, resetDelta bool, latencyMs int64, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[providerID]
	if !ok {
		state = &availabilityState{}
		s.states[providerID] = state
	}
	state.health = health
	state.latencyMs = latencyMs
	state.detail = detail
	state.probedAt = s.now().UTC()
	if resetDelta {
		state.probedLoad = probedLoad
		state.delta = 0
	}
}

// NoteDispatched bumps the advisory in-flight number after a successful
// claim, so one tick does not oversubscribe a provider between probes.
func (s *AvailabilityService) NoteDispatched(providerID string) {
	if providerID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[providerID]
	if !ok {
		state = &availabilityState{health: provider.HealthOffline}
		s.states[providerID] = state
	}
	state.delta++
}

// NoteFinished releases one advisory slot after a call left in-flight for any
// reason: completion, failure handoff, or stall requeue.
func (s *AvailabilityService) NoteFinished(providerID string) {
	if providerID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.states[providerID]; ok {
		state.delta--
	}
}

// SelectProvider picks the gateway for one job. A pinned job only ever
// considers its pinned provider; when that provider is unhealthy or full the
// job waits, it never falls back to the pool. Unpinned jobs take the online
// provider with the most remaining capacity, provider priority breaking ties.
func (s *AvailabilityService) SelectProvider(ctx context.Context, job calljob.Job) (provider.Provider, error) {
	providers, err := s.providerRepo.List(ctx, false)
	if err != nil {
		return provider.Provider{}, fmt.Errorf("list providers for selection: %w", err)
	}

	pinnedID := strings.TrimSpace(job.PinnedProviderID)
	if pinnedID != "" {
		filtered := make([]provider.Provider, 0, 1)
		for _, item := range providers {
			if item.ID == pinnedID {
				filtered = append(filtered, item)
				break
			}
		}
		providers = filtered
	}

	type candidate struct {
		item      provider.Provider
		remaining int
	}

	s.mu.RLock()
	candidates := make([]candidate, 0, len(providers))
	for _, item := range providers {
		state, ok := s.states[item.ID]
		if !ok || state.health != provider.HealthOnline {
			continue
		}
		inFlight := compositeInFlight(state)
		if inFlight >= item.MaxConcurrentCalls {
			continue
		}
		candidates = append(candidates, candidate{item: item, remaining: item.MaxConcurrentCalls - inFlight})
	}
	s.mu.RUnlock()

	if len(candidates) == 0 {
		return provider.Provider{}, fmt.Errorf("%w: job=%s", ErrNoProviderAvailable, job.ID)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].remaining != candidates[j].remaining {
			return candidates[i].remaining > candidates[j].remaining
		}
		if candidates[i].item.Priority != candidates[j].item.Priority {
			return candidates[i].item.Priority < candidates[j].item.Priority
		}
		return candidates[i].item.ID < candidates[j].item.ID
	})
	return candidates[0].item, nil
}

// Snapshots reports the current view of every active provider, including
// ones that have not been probed yet (shown offline with zero load).
func (s *AvailabilityService) Snapshots(ctx context.Context) ([]provider.Snapshot, error) {
	providers, err := s.providerRepo.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list providers for snapshots: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]provider.Snapshot, 0, len(providers))
	for _, item := range providers {
		out = append(out, s.snapshotLocked(item))
	}
	return out, nil
}

// SnapshotFor reports the current view of one provider regardless of its
// active flag.
func (s *AvailabilityService) SnapshotFor(ctx context.Context, providerID string) (provider.Snapshot, error) {
	item, exists, err := s.providerRepo.GetByID(ctx, providerID)
	if err != nil {
		return provider.Snapshot{}, fmt.Errorf("get provider=%s: %w", providerID, err)
	}
	if !exists {
		return provider.Snapshot{}, fmt.Errorf("%w: provider=%s", ErrNotFound, providerID)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(item), nil
}

func (s *AvailabilityService) snapshotLocked(item provider.Provider) provider.Snapshot {
	snapshot := provider.Snapshot{
		ProviderID: item.ID,
		Health:     provider.HealthOffline,
		LastDetail: "not probed yet",
	}
	state, ok := s.states[item.ID]
	if !ok {
		snapshot.RemainingSlots = item.MaxConcurrentCalls
		return snapshot
	}

	inFlight := compositeInFlight(state)
	remaining := item.MaxConcurrentCalls - inFlight
	if remaining < 0 {
		remaining = 0
	}
	snapshot.Health = state.health
	snapshot.InFlight = inFlight
	snapshot.RemainingSlots = remaining
	snapshot.LatencyMs = state.latencyMs
	snapshot.LastDetail = state.detail
	snapshot.ProbedAt = state.probedAt
	return snapshot
}

// Run probes once immediately so dispatch has a snapshot to work with, then
// keeps probing on the configured interval until the context is canceled.
func (s *AvailabilityService) Run(ctx context.Context) {
	if err := s.ProbeAll(ctx); err != nil {
		s.logger.ErrorContext(ctx, "initial provider probe failed", "error", err)
	}

	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "provider probe loop started", "interval", s.cfg.ProbeInterval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "provider probe loop stopped")
			return
		case <-ticker.C:
			if err := s.ProbeAll(ctx); err != nil {
				s.logger.ErrorContext(ctx, "provider probe sweep failed", "error", err)
			}
		}
	}
}

func compositeInFlight(state *availabilityState) int {
	inFlight := state.probedLoad + state.delta
	if inFlight < 0 {
		return 0
	}
	return inFlight
}

func trimDetail(detail string) string {
	const maxDetailLength = 240
	detail = strings.TrimSpace(detail)
	if len(detail) > maxDetailLength {
		return detail[:maxDetailLength]
	}
	return detail
}

package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/riskibarqy/redial/internal/domain/schedulerun"
)

type SchedulerRunRepository struct {
	mu    sync.RWMutex
	items map[string]schedulerun.RunRecord
}

func NewSchedulerRunRepository() *SchedulerRunRepository {
	return &SchedulerRunRepository{items: make(map[string]schedulerun.RunRecord)}
}

func (r *SchedulerRunRepository) UpsertRun(_ context.Context, record schedulerun.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[record.RunID] = record
	return nil
}

func (r *SchedulerRunRepository) ListRecent(_ context.Context, limit int) ([]schedulerun.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schedulerun.RunRecord, 0, len(r.items))
	for _, record := range r.items {
		out = append(out, record)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].RunID < out[j].RunID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

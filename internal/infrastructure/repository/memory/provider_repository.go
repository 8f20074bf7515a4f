package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/redial/internal/domain/provider"
)

type providerEntry struct {
	item      provider.Provider
	deletedAt *time.Time
}

type ProviderRepository struct {
	mu    sync.RWMutex
	items map[string]providerEntry
}

func NewProviderRepository(providers []provider.Provider) *ProviderRepository {
	items := make(map[string]providerEntry, len(providers))
	for _, item := range providers {
		items[item.ID] = providerEntry{item: item}
	}
	return &ProviderRepository{items: items}
}

func (r *ProviderRepository) Create(_ context.Context, item provider.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.ID]; exists {
		return fmt.Errorf("provider %s: duplicate key value violates unique constraint", item.ID)
	}
	for _, entry := range r.items {
		if entry.deletedAt == nil && entry.item.Name == item.Name {
			return fmt.Errorf("provider name %s: duplicate key value violates unique constraint", item.Name)
		}
	}
	r.items[item.ID] = providerEntry{item: item}
	return nil
}

func (r *ProviderRepository) Update(_ context.Context, item provider.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.items[item.ID]
	if !exists || entry.deletedAt != nil {
		return fmt.Errorf("provider %s not found", item.ID)
	}
	entry.item = item
	r.items[item.ID] = entry
	return nil
}

func (r *ProviderRepository) GetByID(_ context.Context, providerID string) (provider.Provider, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.items[providerID]
	if !exists || entry.deletedAt != nil {
		return provider.Provider{}, false, nil
	}
	return entry.item, true, nil
}

func (r *ProviderRepository) List(_ context.Context, includeInactive bool) ([]provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]provider.Provider, 0, len(r.items))
	for _, entry := range r.items {
		if entry.deletedAt != nil {
			continue
		}
		if !includeInactive && !entry.item.Active {
			continue
		}
		out = append(out, entry.item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *ProviderRepository) SoftDelete(_ context.Context, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.items[providerID]
	if !exists || entry.deletedAt != nil {
		return fmt.Errorf("provider %s not found", providerID)
	}
	now := time.Now().UTC()
	entry.deletedAt = &now
	r.items[providerID] = entry
	return nil
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/riskibarqy/redial/internal/domain/scripttemplate"
)

type TemplateRepository struct {
	mu    sync.RWMutex
	items map[string]scripttemplate.Template
}

func NewTemplateRepository(templates []scripttemplate.Template) *TemplateRepository {
	items := make(map[string]scripttemplate.Template, len(templates))
	for _, item := range templates {
		items[item.ID] = item
	}
	return &TemplateRepository{items: items}
}

func (r *TemplateRepository) Create(_ context.Context, item scripttemplate.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.ID]; exists {
		return fmt.Errorf("template %s: duplicate key value violates unique constraint", item.ID)
	}
	for _, existing := range r.items {
		if existing.Name == item.Name {
			return fmt.Errorf("template name %s: duplicate key value violates unique constraint", item.Name)
		}
	}
	r.items[item.ID] = item
	return nil
}

func (r *TemplateRepository) GetByID(_ context.Context, templateID string) (scripttemplate.Template, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[templateID]
	return item, exists, nil
}

func (r *TemplateRepository) List(_ context.Context) ([]scripttemplate.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]scripttemplate.Template, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

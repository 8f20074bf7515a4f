package cache

import (
	"context"

	"github.com/riskibarqy/redial/internal/domain/provider"
	"github.com/riskibarqy/redial/internal/domain/scripttemplate"
	basecache "github.com/riskibarqy/redial/internal/platform/cache"
)

type ProviderRepository struct {
	next  provider.Repository
	cache *basecache.Store
}

func NewProviderRepository(next provider.Repository, cache *basecache.Store) *ProviderRepository {
	return &ProviderRepository{next: next, cache: cache}
}

func (r *ProviderRepository) Create(ctx context.Context, item provider.Provider) error {
	if err := r.next.Create(ctx, item); err != nil {
		return err
	}

	r.cache.Delete(ctx, providerByIDKey(item.ID))
	r.cache.DeletePrefix(ctx, providerListPrefix)
	return nil
}

func (r *ProviderRepository) Update(ctx context.Context, item provider.Provider) error {
	if err := r.next.Update(ctx, item); err != nil {
		return err
	}

	r.cache.Delete(ctx, providerByIDKey(item.ID))
	r.cache.DeletePrefix(ctx, providerListPrefix)
	return nil
}

func (r *ProviderRepository) GetByID(ctx context.Context, providerID string) (provider.Provider, bool, error) {
	v, err := r.cache.GetOrLoad(ctx, providerByIDKey(providerID), func(ctx context.Context) (any, error) {
		item, exists, err := r.next.GetByID(ctx, providerID)
		if err != nil {
			return nil, err
		}
		return cachedProviderByID{
			value:  cloneProvider(item),
			exists: exists,
		}, nil
	})
	if err != nil {
		return provider.Provider{}, false, err
	}

	cached, _ := v.(cachedProviderByID)
	return cloneProvider(cached.value), cached.exists, nil
}

func (r *ProviderRepository) List(ctx context.Context, includeInactive bool) ([]provider.Provider, error) {
	v, err := r.cache.GetOrLoad(ctx, providerListKey(includeInactive), func(ctx context.Context) (any, error) {
		items, err := r.next.List(ctx, includeInactive)
		if err != nil {
			return nil, err
		}
		out := make([]provider.Provider, 0, len(items))
		for _, item := range items {
			out = append(out, cloneProvider(item))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	items, _ := v.([]provider.Provider)
	out := make([]provider.Provider, 0, len(items))
	for _, item := range items {
		out = append(out, cloneProvider(item))
	}
	return out, nil
}

func (r *ProviderRepository) SoftDelete(ctx context.Context, providerID string) error {
	if err := r.next.SoftDelete(ctx, providerID); err != nil {
		return err
	}

	r.cache.Delete(ctx, providerByIDKey(providerID))
	r.cache.DeletePrefix(ctx, providerListPrefix)
	return nil
}

type cachedProviderByID struct {
	value  provider.Provider
	exists bool
}

func cloneProvider(item provider.Provider) provider.Provider {
	out := item
	if item.Settings != nil {
		out.Settings = make(map[string]string, len(item.Settings))
		for k, v := range item.Settings {
			out.Settings[k] = v
		}
	}
	return out
}

const providerListPrefix = "provider:list:"

func providerByIDKey(providerID string) string {
	return "provider:id:" + providerID
}

func providerListKey(includeInactive bool) string {
	if includeInactive {
		return providerListPrefix + "all"
	}
	return providerListPrefix + "active"
}

type TemplateRepository struct {
	next  scripttemplate.Repository
	cache *basecache.Store
}

func NewTemplateRepository(next scripttemplate.Repository, cache *basecache.Store) *TemplateRepository {
	return &TemplateRepository{next: next, cache: cache}
}

func (r *TemplateRepository) Create(ctx context.Context, item scripttemplate.Template) error {
	if err := r.next.Create(ctx, item); err != nil {
		return err
	}

	r.cache.Delete(ctx, templateByIDKey(item.ID))
	r.cache.Delete(ctx, templateListKey)
	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, templateID string) (scripttemplate.Template, bool, error) {
	v, err := r.cache.GetOrLoad(ctx, templateByIDKey(templateID), func(ctx context.Context) (any, error) {
		item, exists, err := r.next.GetByID(ctx, templateID)
		if err != nil {
			return nil, err
		}
		return cachedTemplateByID{value: item, exists: exists}, nil
	})
	if err != nil {
		return scripttemplate.Template{}, false, err
	}

	cached, _ := v.(cachedTemplateByID)
	return cached.value, cached.exists, nil
}

func (r *TemplateRepository) List(ctx context.Context) ([]scripttemplate.Template, error) {
	v, err := r.cache.GetOrLoad(ctx, templateListKey, func(ctx context.Context) (any, error) {
		items, err := r.next.List(ctx)
		if err != nil {
			return nil, err
		}
		return append([]scripttemplate.Template(nil), items...), nil
	})
	if err != nil {
		return nil, err
	}

	items, _ := v.([]scripttemplate.Template)
	return append([]scripttemplate.Template(nil), items...), nil
}

type cachedTemplateByID struct {
	value  scripttemplate.Template
	exists bool
}

const templateListKey = "template:list"

func templateByIDKey(templateID string) string {
	return "template:id:" + templateID
}

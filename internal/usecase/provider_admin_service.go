package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/riskibarqy/redial/internal/domain/provider"
	idgen "github.com/riskibarqy/redial/internal/platform/id"
)

// ProviderAdminService manages the provider registry consulted by dispatch.
// Kinds are validated against the adapter registry so an operator cannot
// register a gateway the engine has no integration for.
type ProviderAdminService struct {
	repo         provider.Repository
	adapters     *AdapterRegistry
	availability *AvailabilityService
	idGen        idgen.Generator
	now          func() time.Time
}

func NewProviderAdminService(
	repo provider.Repository,
	adapters *AdapterRegistry,
	availability *AvailabilityService,
	idGen idgen.Generator,
) *ProviderAdminService {
	return &ProviderAdminService{
		repo:         repo,
		adapters:     adapters,
		availability: availability,
		idGen:        idGen,
		now:          time.Now,
	}
}

type ProviderInput struct {
	Name               string
	Kind               string
	Active             *bool
	Priority           *int
	MaxConcurrentCalls *int
	Settings           map[string]string
}

func (s *ProviderAdminService) Create(ctx context.Context, input ProviderInput) (provider.Provider, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return provider.Provider{}, fmt.Errorf("%w: provider name is required", ErrInvalidInput)
	}
	kind := strings.ToLower(strings.TrimSpace(input.Kind))
	if kind == "" {
		return provider.Provider{}, fmt.Errorf("%w: provider kind is required", ErrInvalidInput)
	}
	if _, ok := s.adapters.Resolve(kind); !ok {
		return provider.Provider{}, fmt.Errorf("%w: unsupported provider kind %q (supported: %s)", ErrInvalidInput, kind, strings.Join(s.adapters.Kinds(), ", "))
	}
	if input.MaxConcurrentCalls == nil || *input.MaxConcurrentCalls <= 0 {
		return provider.Provider{}, fmt.Errorf("%w: max concurrent calls must be greater than zero", ErrInvalidInput)
	}
	priority := 0
	if input.Priority != nil {
		if *input.Priority < 0 {
			return provider.Provider{}, fmt.Errorf("%w: priority must not be negative", ErrInvalidInput)
		}
		priority = *input.Priority
	}

	providerID, err := s.idGen.NewID()
	if err != nil {
		return provider.Provider{}, fmt.Errorf("generate provider id: %w", err)
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}

	now := s.now().UTC()
	item := provider.Provider{
		ID:                 providerID,
		Name:               name,
		Kind:               kind,
		Active:             active,
		Priority:           priority,
		MaxConcurrentCalls: *input.MaxConcurrentCalls,
		Settings:           cloneSettings(input.Settings),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		if isDuplicateConstraintError(err) {
			return provider.Provider{}, fmt.Errorf("%w: provider name %q already exists", ErrInvalidInput, name)
		}
		return provider.Provider{}, fmt.Errorf("create provider: %w", err)
	}
	return item, nil
}

func (s *ProviderAdminService) Update(ctx context.Context, providerID string, input ProviderInput) (provider.Provider, error) {
	item, err := s.Get(ctx, providerID)
	if err != nil {
		return provider.Provider{}, err
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		item.Name = name
	}
	if kind := strings.ToLower(strings.TrimSpace(input.Kind)); kind != "" && kind != item.Kind {
		if _, ok := s.adapters.Resolve(kind); !ok {
			return provider.Provider{}, fmt.Errorf("%w: unsupported provider kind %q (supported: %s)", ErrInvalidInput, kind, strings.Join(s.adapters.Kinds(), ", "))
		}
		item.Kind = kind
	}
	if input.Active != nil {
		item.Active = *input.Active
	}
	if input.MaxConcurrentCalls != nil {
		if *input.MaxConcurrentCalls <= 0 {
			return provider.Provider{}, fmt.Errorf("%w: max concurrent calls must be greater than zero", ErrInvalidInput)
		}
		item.MaxConcurrentCalls = *input.MaxConcurrentCalls
	}
	if input.Priority != nil {
		if *input.Priority < 0 {
			return provider.Provider{}, fmt.Errorf("%w: priority must not be negative", ErrInvalidInput)
		}
		item.Priority = *input.Priority
	}
	if input.Settings != nil {
		item.Settings = cloneSettings(input.Settings)
	}
	item.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, item); err != nil {
		if isNotFoundText(err) {
			return provider.Provider{}, fmt.Errorf("%w: provider=%s", ErrNotFound, providerID)
		}
		return provider.Provider{}, fmt.Errorf("update provider=%s: %w", providerID, err)
	}
	return item, nil
}

func (s *ProviderAdminService) Get(ctx context.Context, providerID string) (provider.Provider, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return provider.Provider{}, fmt.Errorf("%w: provider id is required", ErrInvalidInput)
	}

	item, exists, err := s.repo.GetByID(ctx, providerID)
	if err != nil {
		return provider.Provider{}, fmt.Errorf("get provider=%s: %w", providerID, err)
	}
	if !exists {
		return provider.Provider{}, fmt.Errorf("%w: provider=%s", ErrNotFound, providerID)
	}
	return item, nil
}

func (s *ProviderAdminService) List(ctx context.Context, includeInactive bool) ([]provider.Provider, error) {
	items, err := s.repo.List(ctx, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return items, nil
}

// Delete soft-deletes the provider. In-flight calls on it still reconcile;
// it just stops being selectable.
func (s *ProviderAdminService) Delete(ctx context.Context, providerID string) error {
	if _, err := s.Get(ctx, providerID); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, providerID); err != nil {
		if isNotFoundText(err) {
			return fmt.Errorf("%w: provider=%s", ErrNotFound, providerID)
		}
		return fmt.Errorf("delete provider=%s: %w", providerID, err)
	}
	return nil
}

// Health reports the provider's latest probe snapshot.
func (s *ProviderAdminService) Health(ctx context.Context, providerID string) (provider.Snapshot, error) {
	if _, err := s.Get(ctx, providerID); err != nil {
		return provider.Snapshot{}, err
	}
	return s.availability.SnapshotFor(ctx, providerID)
}

func cloneSettings(settings map[string]string) map[string]string {
	if len(settings) == 0 {
		return nil
	}
	cloned := make(map[string]string, len(settings))
	for key, value := range settings {
		cloned[key] = value
	}
	return cloned
}

func isDuplicateConstraintError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "duplicate key value violates unique constraint")
}

func isNotFoundText(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

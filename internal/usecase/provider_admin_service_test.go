package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/riskibarqy/redial/internal/domain/provider"
	"github.com/riskibarqy/redial/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/redial/internal/platform/logging"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func newProviderAdminHarness(t *testing.T, providers []provider.Provider) (*ProviderAdminService, *AvailabilityService) {
	t.Helper()

	repo := memory.NewProviderRepository(providers)
	registry := NewAdapterRegistry(&fakeAdapter{kind: provider.KindTwilio, probeHealthy: true})
	availability := NewAvailabilityService(repo, registry, AvailabilityConfig{}, logging.NewNop())
	svc := NewProviderAdminService(repo, registry, availability, staticIDGenerator{id: "prov-100"})
	return svc, availability
}

func TestProviderAdminService_Create_ValidatesInput(t *testing.T) {
	svc, _ := newProviderAdminHarness(t, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		input ProviderInput
	}{
		{"missing name", ProviderInput{Kind: provider.KindTwilio, MaxConcurrentCalls: intPtr(2)}},
		{"missing kind", ProviderInput{Name: "Backup", MaxConcurrentCalls: intPtr(2)}},
		{"unknown kind", ProviderInput{Name: "Backup", Kind: "carrier-x", MaxConcurrentCalls: intPtr(2)}},
		{"missing concurrency", ProviderInput{Name: "Backup", Kind: provider.KindTwilio}},
		{"zero concurrency", ProviderInput{Name: "Backup", Kind: provider.KindTwilio, MaxConcurrentCalls: intPtr(0)}},
		{"negative priority", ProviderInput{Name: "Backup", Kind: provider.KindTwilio, MaxConcurrentCalls: intPtr(2), Priority: intPtr(-1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tc.input); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestProviderAdminService_Create_NormalizesAndClones(t *testing.T) {
	svc, _ := newProviderAdminHarness(t, nil)

	settings := map[string]string{"account_sid": "AC123"}
	created, err := svc.Create(context.Background(), ProviderInput{
		Name:               "  Backup Twilio  ",
		Kind:               "  TWILIO ",
		Priority:           intPtr(2),
		MaxConcurrentCalls: intPtr(3),
		Settings:           settings,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != "prov-100" {
		t.Fatalf("expected generated id, got %q", created.ID)
	}
	if created.Name != "Backup Twilio" || created.Kind != provider.KindTwilio {
		t.Fatalf("expected normalized name and kind, got %+v", created)
	}
	if !created.Active {
		t.Fatalf("providers default to active")
	}

	// The stored settings must not alias the caller's map.
	settings["account_sid"] = "AC999"
	stored, err := svc.Get(context.Background(), "prov-100")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Settings["account_sid"] != "AC123" {
		t.Fatalf("settings must be cloned, got %q", stored.Settings["account_sid"])
	}
}

func TestProviderAdminService_Create_DuplicateName(t *testing.T) {
	svc, _ := newProviderAdminHarness(t, []provider.Provider{testProvider("prov-1", 2)})

	_, err := svc.Create(context.Background(), ProviderInput{
		Name:               "provider-prov-1",
		Kind:               provider.KindTwilio,
		MaxConcurrentCalls: intPtr(2),
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for duplicate name, got %v", err)
	}
}

func TestProviderAdminService_Update(t *testing.T) {
	svc, _ := newProviderAdminHarness(t, []provider.Provider{testProvider("prov-1", 2)})
	ctx := context.Background()

	updated, err := svc.Update(ctx, "prov-1", ProviderInput{Active: boolPtr(false), Priority: intPtr(7)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Active || updated.Priority != 7 {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if updated.MaxConcurrentCalls != 2 {
		t.Fatalf("untouched fields must survive, got %+v", updated)
	}

	if _, err := svc.Update(ctx, "prov-1", ProviderInput{Kind: "carrier-x"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown kind, got %v", err)
	}
	if _, err := svc.Update(ctx, "prov-missing", ProviderInput{Priority: intPtr(1)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProviderAdminService_DeleteHidesProvider(t *testing.T) {
	svc, _ := newProviderAdminHarness(t, []provider.Provider{testProvider("prov-1", 2)})
	ctx := context.Background()

	if err := svc.Delete(ctx, "prov-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, "prov-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	items, err := svc.List(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("deleted provider must not be listed, got %d", len(items))
	}
	if err := svc.Delete(ctx, "prov-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete must report not found, got %v", err)
	}
}

func TestProviderAdminService_Health(t *testing.T) {
	svc, availability := newProviderAdminHarness(t, []provider.Provider{testProvider("prov-1", 4)})
	ctx := context.Background()

	if err := availability.ProbeAll(ctx); err != nil {
		t.Fatalf("probe: %v", err)
	}

	snapshot, err := svc.Health(ctx, "prov-1")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if snapshot.Health != provider.HealthOnline {
		t.Fatalf("expected online, got %s", snapshot.Health)
	}
	if snapshot.RemainingSlots != 4 {
		t.Fatalf("expected full capacity, got %d", snapshot.RemainingSlots)
	}

	if _, err := svc.Health(ctx, "prov-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/riskibarqy/redial/internal/domain/callevent"
	"github.com/riskibarqy/redial/internal/domain/provider"
)

// CallRequest carries everything an adapter needs to place one outbound call.
// The script is opaque to the adapter; Reference is the engine-side job id a
// gateway may echo back for correlation.
type CallRequest struct {
	Provider    provider.Provider
	Recipient   string
	Script      string
	Reference   string
	CallbackURL string
}

// CallPlacement is the provider's acknowledgement of an initiated call.
type CallPlacement struct {
	CorrelationID  string
	ProviderStatus string
}

// ProbeResult is one health probe observation.
type ProbeResult struct {
	Healthy   bool
	LatencyMs int64
	Detail    string
}

// ProviderAdapter is the uniform contract every call-service integration
// implements. InitiateCall failures are classified as ErrProviderRejected
// (validation, never retried) or ErrProviderUnavailable (network/timeout,
// retried with backoff). The engine never branches on provider kind outside
// registry resolution.
type ProviderAdapter interface {
	Kind() string
	InitiateCall(ctx context.Context, req CallRequest) (CallPlacement, error)
	ProbeHealth(ctx context.Context, item provider.Provider) (ProbeResult, error)
	CountActiveCalls(ctx context.Context, item provider.Provider) (int, error)
	NormalizeInboundEvent(ctx context.Context, raw []byte) (callevent.CanonicalEvent, error)
}

// AdapterRegistry resolves a provider kind to its adapter.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]ProviderAdapter
}

func NewAdapterRegistry(adapters ...ProviderAdapter) *AdapterRegistry {
	registry := &AdapterRegistry{adapters: make(map[string]ProviderAdapter, len(adapters))}
	for _, adapter := range adapters {
		registry.Register(adapter)
	}
	return registry
}

func (r *AdapterRegistry) Register(adapter ProviderAdapter) {
	if adapter == nil {
		return
	}
	kind := normalizeAdapterKind(adapter.Kind())
	if kind == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[kind] = adapter
}

func (r *AdapterRegistry) Resolve(kind string) (ProviderAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[normalizeAdapterKind(kind)]
	return adapter, ok
}

func (r *AdapterRegistry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.adapters))
	for kind := range r.adapters {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func normalizeAdapterKind(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

package provider

import "time"

const (
	KindTwilio = "twilio"
	KindHermes = "hermes"
)

const (
	HealthOnline   = "online"
	HealthDegraded = "degraded"
	HealthOffline  = "offline"
)

// Provider is one configured call-service integration. Settings carry
// adapter-specific credentials and endpoints; the engine never inspects them.
type Provider struct {
	ID                 string
	Name               string
	Kind               string
	Active             bool
	Priority           int
	MaxConcurrentCalls int
	Settings           map[string]string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Snapshot is the live availability view of one provider. Counters are
// advisory: they may briefly overshoot the configured limit and are
// reconciled against the probed count on the next sweep.
type Snapshot struct {
	ProviderID     string
	Health         string
	InFlight       int
	RemainingSlots int
	LatencyMs      int64
	LastDetail     string
	ProbedAt       time.Time
}

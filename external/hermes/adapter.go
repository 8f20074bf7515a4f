package hermes

import (
	"context"
	"fmt"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/fasthttp"

	"github.com/riskibarqy/redial/internal/domain/callevent"
	"github.com/riskibarqy/redial/internal/domain/provider"
	"github.com/riskibarqy/redial/internal/platform/logging"
	"github.com/riskibarqy/redial/internal/platform/resilience"
	"github.com/riskibarqy/redial/internal/usecase"
)

const (
	settingBaseURL = "base_url"
	settingAPIKey  = "api_key"

	defaultTimeout = 10 * time.Second
)

var errHermesTransient = crerr.New("hermes transient failure")

type AdapterConfig struct {
	Client         *fasthttp.Client
	Timeout        time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Adapter drives a self-hosted Hermes voice gateway over its JSON API:
// POST /v1/calls places a call, GET /v1/health and GET /v1/calls/active/count
// feed the availability probe, and completion webhooks arrive as JSON. Each
// configured provider points at its own gateway through the base_url setting.
type Adapter struct {
	client         *fasthttp.Client
	timeout        time.Duration
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
}

func NewAdapter(cfg AdapterConfig) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	client := cfg.Client
	if client == nil {
		client = &fasthttp.Client{Name: "redial-hermes"}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Adapter{
		client:         client,
		timeout:        timeout,
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}
}

func (a *Adapter) Kind() string {
	return provider.KindHermes
}

func (a *Adapter) InitiateCall(ctx context.Context, req usecase.CallRequest) (usecase.CallPlacement, error) {
	gateway, err := gatewayFrom(req.Provider)
	if err != nil {
		return usecase.CallPlacement{}, err
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return usecase.CallPlacement{}, fmt.Errorf("%w: recipient is required", usecase.ErrProviderRejected)
	}
	if strings.TrimSpace(req.Script) == "" {
		return usecase.CallPlacement{}, fmt.Errorf("%w: call script is empty", usecase.ErrProviderRejected)
	}

	payload := placeCallRequest{
		To:          strings.TrimSpace(req.Recipient),
		Script:      req.Script,
		Reference:   req.Reference,
		CallbackURL: strings.TrimSpace(req.CallbackURL),
	}

	body, status, err := a.doJSON(ctx, gateway, fasthttp.MethodPost, gateway.baseURL+"/v1/calls", payload)
	if err != nil {
		return usecase.CallPlacement{}, err
	}
	if status/100 != 2 {
		return usecase.CallPlacement{}, classifyStatus(status, body)
	}

	var decoded placeCallResponse
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return usecase.CallPlacement{}, fmt.Errorf("%w: decode place-call response: %v", usecase.ErrProviderUnavailable, err)
	}
	if strings.TrimSpace(decoded.CallID) == "" {
		return usecase.CallPlacement{}, fmt.Errorf("%w: gateway returned no call id", usecase.ErrProviderUnavailable)
	}

	return usecase.CallPlacement{
		CorrelationID:  decoded.CallID,
		ProviderStatus: decoded.Status,
	}, nil
}

func (a *Adapter) ProbeHealth(ctx context.Context, item provider.Provider) (usecase.ProbeResult, error) {
	gateway, err := gatewayFrom(item)
	if err != nil {
		return usecase.ProbeResult{}, err
	}

	start := time.Now()
	body, status, err := a.doJSON(ctx, gateway, fasthttp.MethodGet, gateway.baseURL+"/v1/health", nil)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return usecase.ProbeResult{}, err
	}
	if status/100 != 2 {
		return usecase.ProbeResult{}, classifyStatus(status, body)
	}

	var decoded healthResponse
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return usecase.ProbeResult{}, fmt.Errorf("decode health response: %w", err)
	}

	state := strings.ToLower(strings.TrimSpace(decoded.Status))
	detail := "gateway " + state
	if strings.TrimSpace(decoded.Detail) != "" {
		detail += ": " + strings.TrimSpace(decoded.Detail)
	}

	return usecase.ProbeResult{
		Healthy:   state == "ok",
		LatencyMs: latency,
		Detail:    detail,
	}, nil
}

func (a *Adapter) CountActiveCalls(ctx context.Context, item provider.Provider) (int, error) {
	gateway, err := gatewayFrom(item)
	if err != nil {
		return 0, err
	}

	body, status, err := a.doJSON(ctx, gateway, fasthttp.MethodGet, gateway.baseURL+"/v1/calls/active/count", nil)
	if err != nil {
		return 0, err
	}
	if status/100 != 2 {
		return 0, classifyStatus(status, body)
	}

	var decoded activeCountResponse
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return 0, fmt.Errorf("decode active-count response: %w", err)
	}
	if decoded.Count < 0 {
		return 0, nil
	}

	return decoded.Count, nil
}

// NormalizeInboundEvent converts a Hermes completion webhook into the
// canonical event shape. Progress statuses normalize to an empty outcome; the
// webhook surface acknowledges those without reconciling.
func (a *Adapter) NormalizeInboundEvent(_ context.Context, raw []byte) (callevent.CanonicalEvent, error) {
	var decoded webhookEvent
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		return callevent.CanonicalEvent{}, fmt.Errorf("%w: parse hermes webhook: %v", usecase.ErrInvalidInput, err)
	}

	correlationID := strings.TrimSpace(decoded.CallID)
	if correlationID == "" {
		return callevent.CanonicalEvent{}, fmt.Errorf("%w: webhook has no call_id", usecase.ErrInvalidInput)
	}

	event := callevent.CanonicalEvent{
		CorrelationID: correlationID,
		ProviderKind:  provider.KindHermes,
		Outcome:       mapGatewayStatus(decoded.Status),
		RecordingURL:  strings.TrimSpace(decoded.RecordingURL),
		Transcript:    strings.TrimSpace(decoded.Transcript),
		FailureDetail: strings.TrimSpace(decoded.Error),
	}
	if decoded.DurationSeconds > 0 {
		event.DurationSeconds = decoded.DurationSeconds
	}
	if occurredAt := strings.TrimSpace(decoded.OccurredAt); occurredAt != "" {
		if parsed, err := time.Parse(time.RFC3339, occurredAt); err == nil {
			event.OccurredAt = parsed.UTC()
		}
	}

	return event, nil
}

func (a *Adapter) doJSON(ctx context.Context, gateway gatewaySettings, method, url string, payload any) ([]byte, int, error) {
	if a.circuitEnabled {
		if err := a.breaker.Allow(); err != nil {
			a.logger.WarnContext(ctx, "hermes circuit breaker rejected request", "state", a.breaker.State())
			return nil, 0, fmt.Errorf("%w: hermes is temporarily unavailable", usecase.ErrProviderUnavailable)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if gateway.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+gateway.apiKey)
	}
	if payload != nil {
		body, err := sonic.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal hermes request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	// fasthttp carries no context; honor the caller's deadline by shrinking
	// the request timeout to whatever remains.
	timeout := a.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, 0, context.DeadlineExceeded
	}

	if err := a.client.DoTimeout(req, resp, timeout); err != nil {
		a.recordCircuitResult(fmt.Errorf("%w: %v", errHermesTransient, err))
		return nil, 0, fmt.Errorf("%w: request hermes: %v", usecase.ErrProviderUnavailable, err)
	}

	status := resp.StatusCode()
	raw := append([]byte(nil), resp.Body()...)

	if isRetryableStatus(status) {
		a.recordCircuitResult(fmt.Errorf("%w: status %d", errHermesTransient, status))
	} else {
		a.recordCircuitResult(nil)
	}

	return raw, status, nil
}

func (a *Adapter) recordCircuitResult(err error) {
	if !a.circuitEnabled || a.breaker == nil {
		return
	}
	if err != nil && crerr.Is(err, errHermesTransient) {
		a.breaker.RecordFailure()
		return
	}
	a.breaker.RecordSuccess()
}

func classifyStatus(status int, body []byte) error {
	detail := errorDetail(body)
	if isRetryableStatus(status) {
		return fmt.Errorf("%w: hermes status=%d %s", usecase.ErrProviderUnavailable, status, detail)
	}
	return fmt.Errorf("%w: hermes status=%d %s", usecase.ErrProviderRejected, status, detail)
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == fasthttp.StatusRequestTimeout ||
		statusCode == fasthttp.StatusTooManyRequests ||
		statusCode >= fasthttp.StatusInternalServerError
}

func errorDetail(body []byte) string {
	var decoded struct {
		Error string `json:"error"`
	}
	if err := sonic.Unmarshal(body, &decoded); err != nil || strings.TrimSpace(decoded.Error) == "" {
		return ""
	}
	return "error=" + strings.TrimSpace(decoded.Error)
}

func mapGatewayStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed":
		return callevent.OutcomeCompleted
	case "busy":
		return callevent.OutcomeBusy
	case "no_answer", "no-answer":
		return callevent.OutcomeNoAnswer
	case "failed", "error":
		return callevent.OutcomeFailed
	case "canceled", "cancelled":
		return callevent.OutcomeCanceled
	default:
		return ""
	}
}

type gatewaySettings struct {
	baseURL string
	apiKey  string
}

func gatewayFrom(item provider.Provider) (gatewaySettings, error) {
	gateway := gatewaySettings{
		baseURL: strings.TrimRight(strings.TrimSpace(item.Settings[settingBaseURL]), "/"),
		apiKey:  strings.TrimSpace(item.Settings[settingAPIKey]),
	}
	if gateway.baseURL == "" {
		return gatewaySettings{}, fmt.Errorf("%w: provider=%s is missing setting %s", usecase.ErrProviderRejected, item.ID, settingBaseURL)
	}
	return gateway, nil
}

type placeCallRequest struct {
	To          string `json:"to"`
	Script      string `json:"script"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type placeCallResponse struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
}

type healthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

type activeCountResponse struct {
	Count int `json:"count"`
}

type webhookEvent struct {
	CallID          string `json:"call_id"`
	Status          string `json:"status"`
	DurationSeconds int    `json:"duration_seconds"`
	RecordingURL    string `json:"recording_url"`
	Transcript      string `json:"transcript"`
	Error           string `json:"error"`
	OccurredAt      string `json:"occurred_at"`
}

package twilio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"

	"github.com/riskibarqy/redial/internal/domain/provider"
	"github.com/riskibarqy/redial/internal/platform/logging"
	"github.com/riskibarqy/redial/internal/platform/resilience"
	"github.com/riskibarqy/redial/internal/usecase"
)

const (
	defaultBaseURL = "https://api.twilio.com"
	apiVersion     = "2010-04-01"

	settingAccountSID = "account_sid"
	settingAuthToken  = "auth_token"
	settingFromNumber = "from_number"
	settingBaseURL    = "base_url"

	maxResponseBytes = 1 << 20
)

var errTwilioTransient = crerr.New("twilio transient failure")

type AdapterConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	Timeout        time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Adapter places calls through the Twilio Programmable Voice REST API.
// Credentials live in provider settings, so several Twilio accounts can run
// side by side behind the one registered adapter.
type Adapter struct {
	httpClient     *http.Client
	baseURL        string
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
}

func NewAdapter(cfg AdapterConfig) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Adapter{
		httpClient:     httpClient,
		baseURL:        baseURL,
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}
}

func (a *Adapter) Kind() string {
	return provider.KindTwilio
}

// InitiateCall creates a call resource with inline TwiML that speaks the
// rendered script. The returned call sid is the correlation id every later
// status callback carries.
func (a *Adapter) InitiateCall(ctx context.Context, req usecase.CallRequest) (usecase.CallPlacement, error) {
	creds, err := credentialsFrom(req.Provider)
	if err != nil {
		return usecase.CallPlacement{}, err
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return usecase.CallPlacement{}, fmt.Errorf("%w: recipient is required", usecase.ErrProviderRejected)
	}
	if strings.TrimSpace(req.Script) == "" {
		return usecase.CallPlacement{}, fmt.Errorf("%w: call script is empty", usecase.ErrProviderRejected)
	}

	form := url.Values{}
	form.Set("To", strings.TrimSpace(req.Recipient))
	form.Set("From", creds.fromNumber)
	form.Set("Twiml", buildSayTwiML(req.Script))
	if strings.TrimSpace(req.CallbackURL) != "" {
		form.Set("StatusCallback", strings.TrimSpace(req.CallbackURL))
		form.Set("StatusCallbackMethod", http.MethodPost)
	}

	body, status, err := a.do(ctx, creds, http.MethodPost, a.accountURL(creds, "/Calls.json"), strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return usecase.CallPlacement{}, err
	}
	if status/100 != 2 {
		return usecase.CallPlacement{}, classifyStatus(status, body)
	}

	var decoded callResource
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return usecase.CallPlacement{}, fmt.Errorf("%w: decode call resource: %v", usecase.ErrProviderUnavailable, err)
	}
	if strings.TrimSpace(decoded.SID) == "" {
		return usecase.CallPlacement{}, fmt.Errorf("%w: call resource has no sid", usecase.ErrProviderUnavailable)
	}

	return usecase.CallPlacement{
		CorrelationID:  decoded.SID,
		ProviderStatus: decoded.Status,
	}, nil
}

// ProbeHealth fetches the account resource. A suspended or closed account is
// reported unhealthy with the account status as detail.
func (a *Adapter) ProbeHealth(ctx context.Context, item provider.Provider) (usecase.ProbeResult, error) {
	creds, err := credentialsFrom(item)
	if err != nil {
		return usecase.ProbeResult{}, err
	}

	start := time.Now()
	body, status, err := a.do(ctx, creds, http.MethodGet, a.accountURL(creds, ".json"), nil, "")
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return usecase.ProbeResult{}, err
	}
	if status/100 != 2 {
		return usecase.ProbeResult{}, classifyStatus(status, body)
	}

	var decoded accountResource
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return usecase.ProbeResult{}, fmt.Errorf("decode account resource: %w", err)
	}

	healthy := strings.EqualFold(decoded.Status, "active")
	detail := "account " + decoded.Status
	return usecase.ProbeResult{
		Healthy:   healthy,
		LatencyMs: latency,
		Detail:    detail,
	}, nil
}

// CountActiveCalls reports how many calls the account currently has in
// progress. The number is advisory; one page is enough because the engine
// only compares it against the configured concurrency limit.
func (a *Adapter) CountActiveCalls(ctx context.Context, item provider.Provider) (int, error) {
	creds, err := credentialsFrom(item)
	if err != nil {
		return 0, err
	}

	endpoint := a.accountURL(creds, "/Calls.json") + "?Status=in-progress&PageSize=100"
	body, status, err := a.do(ctx, creds, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return 0, err
	}
	if status/100 != 2 {
		return 0, classifyStatus(status, body)
	}

	var decoded callsPage
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return 0, fmt.Errorf("decode calls page: %w", err)
	}

	return len(decoded.Calls), nil
}

func (a *Adapter) accountURL(creds credentials, suffix string) string {
	base := creds.baseURL
	if base == "" {
		base = a.baseURL
	}
	return base + "/" + apiVersion + "/Accounts/" + creds.accountSID + suffix
}

func (a *Adapter) do(ctx context.Context, creds credentials, method, endpoint string, body io.Reader, contentType string) ([]byte, int, error) {
	if a.circuitEnabled {
		if err := a.breaker.Allow(); err != nil {
			a.logger.WarnContext(ctx, "twilio circuit breaker rejected request", "state", a.breaker.State())
			return nil, 0, fmt.Errorf("%w: twilio is temporarily unavailable", usecase.ErrProviderUnavailable)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(creds.accountSID, creds.authToken)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.recordCircuitResult(fmt.Errorf("%w: %v", errTwilioTransient, err))
		return nil, 0, fmt.Errorf("%w: request twilio: %s", usecase.ErrProviderUnavailable, sanitizeSensitiveText(err.Error(), creds.authToken))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		a.recordCircuitResult(fmt.Errorf("%w: %v", errTwilioTransient, err))
		return nil, 0, fmt.Errorf("%w: read twilio response: %v", usecase.ErrProviderUnavailable, err)
	}

	if isRetryableStatus(resp.StatusCode) {
		a.recordCircuitResult(fmt.Errorf("%w: status %d", errTwilioTransient, resp.StatusCode))
	} else {
		a.recordCircuitResult(nil)
	}

	return raw, resp.StatusCode, nil
}

func (a *Adapter) recordCircuitResult(err error) {
	if !a.circuitEnabled || a.breaker == nil {
		return
	}
	if isCircuitFailure(err) {
		a.breaker.RecordFailure()
		return
	}
	a.breaker.RecordSuccess()
}

// classifyStatus splits provider failures into the two retry classes: 408,
// 429 and 5xx are transient and worth another attempt on a different slot;
// everything else is Twilio refusing the request and retrying cannot help.
func classifyStatus(status int, body []byte) error {
	detail := errorDetail(body)
	if isRetryableStatus(status) {
		return fmt.Errorf("%w: twilio status=%d %s", usecase.ErrProviderUnavailable, status, detail)
	}
	return fmt.Errorf("%w: twilio status=%d %s", usecase.ErrProviderRejected, status, detail)
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests ||
		statusCode >= http.StatusInternalServerError
}

func errorDetail(body []byte) string {
	var decoded apiError
	if err := sonic.Unmarshal(body, &decoded); err != nil || decoded.Message == "" {
		return ""
	}
	if decoded.Code > 0 {
		return fmt.Sprintf("code=%d message=%s", decoded.Code, decoded.Message)
	}
	return "message=" + decoded.Message
}

type credentials struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
}

// credentialsFrom pulls the per-provider account settings. Missing settings
// are rejections, not transient failures: retrying cannot make a credential
// appear.
func credentialsFrom(item provider.Provider) (credentials, error) {
	creds := credentials{
		accountSID: strings.TrimSpace(item.Settings[settingAccountSID]),
		authToken:  strings.TrimSpace(item.Settings[settingAuthToken]),
		fromNumber: strings.TrimSpace(item.Settings[settingFromNumber]),
		baseURL:    strings.TrimRight(strings.TrimSpace(item.Settings[settingBaseURL]), "/"),
	}
	if creds.accountSID == "" {
		return credentials{}, fmt.Errorf("%w: provider=%s is missing setting %s", usecase.ErrProviderRejected, item.ID, settingAccountSID)
	}
	if creds.authToken == "" {
		return credentials{}, fmt.Errorf("%w: provider=%s is missing setting %s", usecase.ErrProviderRejected, item.ID, settingAuthToken)
	}
	if creds.fromNumber == "" {
		return credentials{}, fmt.Errorf("%w: provider=%s is missing setting %s", usecase.ErrProviderRejected, item.ID, settingFromNumber)
	}
	return creds, nil
}

func sanitizeSensitiveText(value, secret string) string {
	value = strings.TrimSpace(value)
	if secret != "" {
		value = strings.ReplaceAll(value, secret, "REDACTED")
	}
	return value
}

var twimlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func buildSayTwiML(script string) string {
	return "<Response><Say>" + twimlEscaper.Replace(script) + "</Say></Response>"
}

type callResource struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type accountResource struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type callsPage struct {
	Calls []callResource `json:"calls"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

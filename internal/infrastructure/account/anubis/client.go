package anubis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/riskibarqy/redial/internal/domain/user"
	basecache "github.com/riskibarqy/redial/internal/platform/cache"
	"github.com/riskibarqy/redial/internal/platform/resilience"
	"github.com/riskibarqy/redial/internal/usecase"
)

// CircuitBreakerConfig is re-exported so callers can configure the breaker
// without importing the platform package.
type CircuitBreakerConfig = resilience.CircuitBreakerConfig

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return resilience.DefaultCircuitBreakerConfig()
}

var errAnubisTransient = errors.New("anubis transient failure")

const (
	allowancePath = "/v1/accounts/call-allowance"
	usagePath     = "/v1/accounts/call-usage"

	maxResponseBytes = 1 << 20
	verdictCacheTTL  = 30 * time.Second
)

// Client talks to the Anubis account service: token introspection for the
// API surface, plus the call allowance and usage endpoints that back quota
// enforcement. Introspection verdicts are cached briefly so a chatty client
// does not turn every request into an upstream round trip.
type Client struct {
	httpClient    *http.Client
	introspectURL string
	allowanceURL  string
	usageURL      string
	adminKey      string
	breaker       *resilience.CircuitBreaker
	verdicts      *basecache.Store
	logger        *slog.Logger
}

func NewClient(httpClient *http.Client, baseURL, introspectPath, adminKey string, breakerCfg CircuitBreakerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	var breaker *resilience.CircuitBreaker
	if breakerCfg.Enabled {
		breakerCfg = normalizeCircuitBreakerConfig(breakerCfg)
		breaker = resilience.NewCircuitBreaker(
			breakerCfg.FailureThreshold,
			breakerCfg.OpenTimeout,
			breakerCfg.HalfOpenMaxReq,
		)
	}

	return &Client{
		httpClient:    httpClient,
		introspectURL: buildURL(baseURL, introspectPath),
		allowanceURL:  buildURL(baseURL, allowancePath),
		usageURL:      buildURL(baseURL, usagePath),
		adminKey:      strings.TrimSpace(adminKey),
		breaker:       breaker,
		verdicts:      basecache.NewStore(verdictCacheTTL),
		logger:        logger,
	}
}

// VerifyAccessToken introspects a bearer token and returns the principal it
// belongs to. Inactive tokens map to ErrUnauthorized; a 401/403 from Anubis
// means our admin key was rejected and maps to ErrDependencyUnavailable.
func (c *Client) VerifyAccessToken(ctx context.Context, token string) (user.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return user.Principal{}, fmt.Errorf("%w: token is required", usecase.ErrUnauthorized)
	}

	v, err := c.verdicts.GetOrLoad(ctx, "introspect:"+hashToken(token), func(ctx context.Context) (any, error) {
		return c.introspect(ctx, token)
	})
	if err != nil {
		return user.Principal{}, err
	}

	verdict, _ := v.(introspectVerdict)
	if !verdict.active {
		return user.Principal{}, fmt.Errorf("%w: inactive token", usecase.ErrUnauthorized)
	}

	return verdict.principal, nil
}

func (c *Client) introspect(ctx context.Context, token string) (introspectVerdict, error) {
	body, status, err := c.postJSON(ctx, c.introspectURL, introspectRequest{Token: token})
	if err != nil {
		return introspectVerdict{}, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return introspectVerdict{}, fmt.Errorf("%w: anubis rejected admin key (status %d)", usecase.ErrDependencyUnavailable, status)
	case status != http.StatusOK:
		c.logger.WarnContext(ctx, "anubis introspection non-200",
			"status_code", status,
		)
		return introspectVerdict{}, fmt.Errorf("anubis introspection failed with status %d", status)
	}

	var decoded introspectResponse
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return introspectVerdict{}, fmt.Errorf("unmarshal introspect response: %w", err)
	}

	if decoded.Active && strings.TrimSpace(decoded.UserID) == "" {
		return introspectVerdict{}, fmt.Errorf("invalid introspect response: user_id is empty")
	}

	return introspectVerdict{
		active: decoded.Active,
		principal: user.Principal{
			UserID: decoded.UserID,
			Email:  decoded.Email,
		},
	}, nil
}

// CheckCallAllowance asks Anubis whether the account may start another
// outbound call. An exhausted allowance maps to ErrQuotaExceeded with the
// upstream reason attached.
func (c *Client) CheckCallAllowance(ctx context.Context, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}

	body, status, err := c.postJSON(ctx, c.allowanceURL, allowanceRequest{AccountID: accountID})
	if err != nil {
		return err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: anubis rejected admin key (status %d)", usecase.ErrDependencyUnavailable, status)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: account %s", usecase.ErrQuotaExceeded, accountID)
	case status != http.StatusOK:
		c.logger.WarnContext(ctx, "anubis allowance non-200",
			"status_code", status,
			"account_id", accountID,
		)
		return fmt.Errorf("anubis allowance check failed with status %d", status)
	}

	var decoded allowanceResponse
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("unmarshal allowance response: %w", err)
	}

	if !decoded.Allowed {
		reason := strings.TrimSpace(decoded.Reason)
		if reason == "" {
			reason = "no remaining call allowance"
		}
		return fmt.Errorf("%w: %s", usecase.ErrQuotaExceeded, reason)
	}

	return nil
}

// ConsumeCallUsage decrements the account's allowance for one finished call.
// Anubis dedupes on job id, so a 409 means the decrement already happened and
// is treated as success.
func (c *Client) ConsumeCallUsage(ctx context.Context, accountID, jobID string) error {
	accountID = strings.TrimSpace(accountID)
	jobID = strings.TrimSpace(jobID)
	if accountID == "" || jobID == "" {
		return fmt.Errorf("account id and job id are required")
	}

	_, status, err := c.postJSON(ctx, c.usageURL, usageRequest{AccountID: accountID, JobID: jobID})
	if err != nil {
		return err
	}

	switch {
	case status == http.StatusOK || status == http.StatusNoContent || status == http.StatusConflict:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: anubis rejected admin key (status %d)", usecase.ErrDependencyUnavailable, status)
	default:
		c.logger.WarnContext(ctx, "anubis usage decrement non-200",
			"status_code", status,
			"account_id", accountID,
			"job_id", jobID,
		)
		return fmt.Errorf("anubis usage decrement failed with status %d", status)
	}
}

func (c *Client) postJSON(ctx context.Context, url string, payload any) ([]byte, int, error) {
	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			return nil, 0, fmt.Errorf("%w: anubis circuit open", usecase.ErrDependencyUnavailable)
		}
	}

	encoded, err := sonic.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal anubis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, 0, fmt.Errorf("create anubis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.adminKey != "" {
		req.Header.Set("x-admin-key", c.adminKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordOutcome(fmt.Errorf("%w: %v", errAnubisTransient, err))
		return nil, 0, fmt.Errorf("%w: request anubis: %v", usecase.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.recordOutcome(fmt.Errorf("%w: %v", errAnubisTransient, err))
		return nil, 0, fmt.Errorf("read anubis response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.recordOutcome(fmt.Errorf("%w: status %d", errAnubisTransient, resp.StatusCode))
		return nil, resp.StatusCode, fmt.Errorf("%w: anubis returned status %d", usecase.ErrDependencyUnavailable, resp.StatusCode)
	}

	c.recordOutcome(nil)
	return body, resp.StatusCode, nil
}

func (c *Client) recordOutcome(err error) {
	if c.breaker == nil {
		return
	}
	if isCircuitFailure(err) {
		c.breaker.RecordFailure()
		return
	}
	c.breaker.RecordSuccess()
}

type introspectRequest struct {
	Token string `json:"token"`
}

type introspectResponse struct {
	Active bool   `json:"active"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type introspectVerdict struct {
	active    bool
	principal user.Principal
}

type allowanceRequest struct {
	AccountID string `json:"account_id"`
}

type allowanceResponse struct {
	Allowed        bool   `json:"allowed"`
	RemainingCalls int    `json:"remaining_calls"`
	Reason         string `json:"reason"`
}

type usageRequest struct {
	AccountID string `json:"account_id"`
	JobID     string `json:"job_id"`
}

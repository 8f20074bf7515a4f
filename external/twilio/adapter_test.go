package twilio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/riskibarqy/redial/internal/domain/provider"
	"github.com/riskibarqy/redial/internal/platform/logging"
	"github.com/riskibarqy/redial/internal/platform/resilience"
	"github.com/riskibarqy/redial/internal/usecase"
)

func testProvider(baseURL string) provider.Provider {
	return provider.Provider{
		ID:                 "prov-twilio-1",
		Name:               "twilio-primary",
		Kind:               provider.KindTwilio,
		Active:             true,
		MaxConcurrentCalls: 10,
		Settings: map[string]string{
			"account_sid": "AC123",
			"auth_token":  "secret-token",
			"from_number": "+15005550006",
			"base_url":    baseURL,
		},
	}
}

func newTestAdapter(client *http.Client) *Adapter {
	return NewAdapter(AdapterConfig{
		HTTPClient:     client,
		Logger:         logging.NewNop(),
		CircuitBreaker: resilience.CircuitBreakerConfig{Enabled: false},
	})
}

func TestAdapterInitiateCall_PostsFormAndParsesSid(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Calls.json" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret-token" {
			t.Fatalf("unexpected basic auth: %s %s %v", user, pass, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("To"); got != "+628111234567" {
			t.Fatalf("unexpected To: %s", got)
		}
		if got := r.PostForm.Get("From"); got != "+15005550006" {
			t.Fatalf("unexpected From: %s", got)
		}
		if got := r.PostForm.Get("Twiml"); !strings.Contains(got, "Hi Dina &amp; team") {
			t.Fatalf("expected escaped script in TwiML, got %s", got)
		}
		if got := r.PostForm.Get("StatusCallback"); got != "https://redial.example.com/v1/webhooks/twilio" {
			t.Fatalf("unexpected StatusCallback: %s", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA777","status":"queued"}`))
	}))
	defer srv.Close()

	adapter := newTestAdapter(srv.Client())
	placement, err := adapter.InitiateCall(context.Background(), usecase.CallRequest{
		Provider:    testProvider(srv.URL),
		Recipient:   "+628111234567",
		Script:      "Hi Dina & team",
		Reference:   "job-001",
		CallbackURL: "https://redial.example.com/v1/webhooks/twilio",
	})
	if err != nil {
		t.Fatalf("initiate call failed: %v", err)
	}

	if placement.CorrelationID != "CA777" {
		t.Fatalf("unexpected correlation id: %s", placement.CorrelationID)
	}
	if placement.ProviderStatus != "queued" {
		t.Fatalf("unexpected provider status: %s", placement.ProviderStatus)
	}
}

func TestAdapterInitiateCall_ValidationFailureIsNotRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}))
	defer srv.Close()

	adapter := newTestAdapter(srv.Client())
	_, err := adapter.InitiateCall(context.Background(), usecase.CallRequest{
		Provider:  testProvider(srv.URL),
		Recipient: "+628111234567",
		Script:    "hello",
	})
	if !errors.Is(err, usecase.ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "21211") {
		t.Fatalf("expected the twilio error code in the message, got %v", err)
	}
}

func TestAdapterInitiateCall_ServerErrorIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := newTestAdapter(srv.Client())
	_, err := adapter.InitiateCall(context.Background(), usecase.CallRequest{
		Provider:  testProvider(srv.URL),
		Recipient: "+628111234567",
		Script:    "hello",
	})
	if !errors.Is(err, usecase.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestAdapterInitiateCall_MissingCredentialSetting(t *testing.T) {
	t.Parallel()

	item := testProvider("https://api.twilio.com")
	delete(item.Settings, "auth_token")

	adapter := newTestAdapter(nil)
	_, err := adapter.InitiateCall(context.Background(), usecase.CallRequest{
		Provider:  item,
		Recipient: "+628111234567",
		Script:    "hello",
	})
	if !errors.Is(err, usecase.ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected for missing settings, got %v", err)
	}
	if !strings.Contains(err.Error(), "auth_token") {
		t.Fatalf("expected the missing setting name in the message, got %v", err)
	}
}

func TestAdapterProbeHealth_SuspendedAccountIsUnhealthy(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123.json" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sid":"AC123","status":"suspended"}`))
	}))
	defer srv.Close()

	adapter := newTestAdapter(srv.Client())
	probe, err := adapter.ProbeHealth(context.Background(), testProvider(srv.URL))
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}

	if probe.Healthy {
		t.Fatal("expected a suspended account to be unhealthy")
	}
	if probe.Detail != "account suspended" {
		t.Fatalf("unexpected detail: %s", probe.Detail)
	}
}

func TestAdapterCountActiveCalls(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("Status"); got != "in-progress" {
			t.Fatalf("unexpected status filter: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"calls":[{"sid":"CA1"},{"sid":"CA2"},{"sid":"CA3"}]}`))
	}))
	defer srv.Close()

	adapter := newTestAdapter(srv.Client())
	count, err := adapter.CountActiveCalls(context.Background(), testProvider(srv.URL))
	if err != nil {
		t.Fatalf("count active calls failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 active calls, got %d", count)
	}
}

package jobqueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/riskibarqy/redial/internal/platform/resilience"
)

func TestQStashPublisherEnqueue_SetsUpstashHeaders(t *testing.T) {
	t.Parallel()

	var captured *http.Request
	var capturedBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		raw, _ := io.ReadAll(r.Body)
		capturedBody = string(raw)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := NewQStashPublisher(QStashPublisherConfig{
		BaseURL:          srv.URL,
		Token:            "qstash-token",
		TargetBaseURL:    "https://redial.example.com",
		Retries:          3,
		InternalJobToken: "internal-secret",
	}, logger)

	err := publisher.Enqueue(context.Background(), "v1/internal/jobs/dispatch-tick", map[string]string{"kind": "dispatch"}, 5*time.Second, "dispatch-20260310T090000Z")
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if captured == nil {
		t.Fatal("expected the publish request to reach the server")
	}
	wantPath := "/v2/publish/https://redial.example.com/v1/internal/jobs/dispatch-tick"
	if captured.URL.Path != wantPath {
		t.Fatalf("unexpected publish path: %s", captured.URL.Path)
	}
	if got := captured.Header.Get("Authorization"); got != "Bearer qstash-token" {
		t.Fatalf("unexpected authorization header: %s", got)
	}
	if got := captured.Header.Get("Upstash-Delay"); got != "5s" {
		t.Fatalf("unexpected delay header: %s", got)
	}
	if got := captured.Header.Get("Upstash-Retries"); got != "3" {
		t.Fatalf("unexpected retries header: %s", got)
	}
	if got := captured.Header.Get("Upstash-Deduplication-Id"); got != "dispatch-20260310T090000Z" {
		t.Fatalf("unexpected deduplication header: %s", got)
	}
	if got := captured.Header.Get("Upstash-Forward-X-Internal-Job-Token"); got != "internal-secret" {
		t.Fatalf("unexpected forwarded token header: %s", got)
	}
	if !strings.Contains(capturedBody, `"kind":"dispatch"`) {
		t.Fatalf("unexpected body: %s", capturedBody)
	}
}

func TestQStashPublisherEnqueue_RequiresPath(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := NewQStashPublisher(QStashPublisherConfig{
		BaseURL:       "https://qstash.example.com",
		Token:         "qstash-token",
		TargetBaseURL: "https://redial.example.com",
	}, logger)

	err := publisher.Enqueue(context.Background(), "   ", nil, 0, "")
	if err == nil || !strings.Contains(err.Error(), "job path is required") {
		t.Fatalf("expected path validation error, got %v", err)
	}
}

func TestQStashPublisherEnqueue_CircuitOpensOnRepeatedServerErrors(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := NewQStashPublisher(QStashPublisherConfig{
		BaseURL:       srv.URL,
		Token:         "qstash-token",
		TargetBaseURL: "https://redial.example.com",
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
			OpenTimeout:      time.Minute,
			HalfOpenMaxReq:   1,
		},
	}, logger)

	for i := 0; i < 2; i++ {
		if err := publisher.Enqueue(context.Background(), "/v1/internal/jobs/recover", nil, 0, ""); err == nil {
			t.Fatalf("expected publish %d to fail", i)
		}
	}

	err := publisher.Enqueue(context.Background(), "/v1/internal/jobs/recover", nil, 0, "")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected circuit open error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected the open circuit to stop upstream calls at 2, got %d", calls)
	}
}

package twilio

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/riskibarqy/redial/internal/domain/callevent"
	"github.com/riskibarqy/redial/internal/domain/provider"
	"github.com/riskibarqy/redial/internal/usecase"
)

// NormalizeInboundEvent converts a Twilio status callback, which arrives form
// encoded, into the canonical event shape. Progress callbacks (queued,
// ringing, in-progress) normalize to an empty outcome; the webhook surface
// acknowledges those without reconciling.
func (a *Adapter) NormalizeInboundEvent(_ context.Context, raw []byte) (callevent.CanonicalEvent, error) {
	values, err := url.ParseQuery(strings.TrimSpace(string(raw)))
	if err != nil {
		return callevent.CanonicalEvent{}, fmt.Errorf("%w: parse twilio callback: %v", usecase.ErrInvalidInput, err)
	}

	correlationID := strings.TrimSpace(values.Get("CallSid"))
	if correlationID == "" {
		return callevent.CanonicalEvent{}, fmt.Errorf("%w: callback has no CallSid", usecase.ErrInvalidInput)
	}

	event := callevent.CanonicalEvent{
		CorrelationID: correlationID,
		ProviderKind:  provider.KindTwilio,
		Outcome:       mapCallStatus(values.Get("CallStatus")),
		RecordingURL:  strings.TrimSpace(values.Get("RecordingUrl")),
		OccurredAt:    parseCallbackTimestamp(values.Get("Timestamp")),
	}

	if duration := strings.TrimSpace(values.Get("CallDuration")); duration != "" {
		if parsed, err := strconv.Atoi(duration); err == nil && parsed >= 0 {
			event.DurationSeconds = parsed
		}
	}

	if code := strings.TrimSpace(values.Get("ErrorCode")); code != "" {
		event.FailureDetail = "twilio error " + code
	}

	return event, nil
}

func mapCallStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed":
		return callevent.OutcomeCompleted
	case "busy":
		return callevent.OutcomeBusy
	case "no-answer":
		return callevent.OutcomeNoAnswer
	case "failed":
		return callevent.OutcomeFailed
	case "canceled":
		return callevent.OutcomeCanceled
	default:
		return ""
	}
}

// parseCallbackTimestamp accepts the RFC 1123 shape Twilio actually sends
// plus RFC 3339 as a fallback. A zero time is fine; the reconciler stamps
// its own clock on the transition.
func parseCallbackTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/runboard/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{RoutingKey: "  "})
	require.Error(t, err)
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	require.NoError(t, err)

	ev := client.buildEvent(notify.Escalation{
		JobID:      "12",
		Plan:       "cash-position",
		StepID:     "step-03",
		StepTitle:  "Error: Timeout waiting for filter panel",
		Error:      "boom",
		ErrorClass: "escalated",
		OccurredAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600)),
		Metadata:   map[string]string{"job_id": "spoofed", "team": "Payouts"},
	})

	assert.Equal(t, "trigger", ev.EventAction)
	assert.Equal(t, "runboard-job-12-step-03", ev.DedupKey)
	assert.Equal(t, notify.SeverityCritical, ev.Payload.Severity)
	assert.Equal(t, "runboard", ev.Payload.Source)
	assert.Equal(t, "cash-position", ev.Payload.Group)
	assert.Equal(t, "2024-03-01T09:00:00Z", ev.Payload.Timestamp)
	assert.Contains(t, ev.Payload.Summary, "Timeout waiting for filter panel")
	assert.Equal(t, "12", ev.Payload.CustomDetails["job_id"])
	assert.Equal(t, "Payouts", ev.Payload.CustomDetails["team"])
}

func TestDedupKey(t *testing.T) {
	assert.Empty(t, dedupKey(notify.Escalation{}))
	assert.Equal(t, "runboard-job-4", dedupKey(notify.Escalation{JobID: "4"}))
}

func TestSendRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		var body event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "key", body.RoutingKey)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL, RetryLimit: 1})
	require.NoError(t, err)
	require.NoError(t, client.Send(context.Background(), notify.Escalation{JobID: "1"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid routing key", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL})
	require.NoError(t, err)
	err = client.Send(context.Background(), notify.Escalation{JobID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid routing key")
}

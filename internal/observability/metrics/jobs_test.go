package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/runboard/internal/errors"
)

type recordedMetric struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

type recordingSink struct {
	mu      sync.Mutex
	metrics []recordedMetric
}

func (s *recordingSink) Count(name string, value int64, tags map[string]string) {
	s.add(recordedMetric{kind: "count", name: name, value: float64(value), tags: tags})
}

func (s *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	s.add(recordedMetric{kind: "gauge", name: name, value: value, tags: tags})
}

func (s *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	s.add(recordedMetric{kind: "timing", name: name, value: float64(value.Milliseconds()), tags: tags})
}

func (s *recordingSink) add(m recordedMetric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
}

func TestEmitJobLifecycle(t *testing.T) {
	sink := &recordingSink{}
	EmitJobLifecycle(sink, JobMetric{
		Plan:       "cash-position",
		Transition: "in_progress->error",
		Result:     ResultError,
		Duration:   1500 * time.Millisecond,
		Err:        apperrors.CredentialUnavailablef("no fresh otp"),
	})

	require.Len(t, sink.metrics, 2)
	assert.Equal(t, "job.transition", sink.metrics[0].name)
	assert.Equal(t, "credential_unavailable", sink.metrics[0].tags["error_class"])
	assert.Equal(t, "job.duration", sink.metrics[1].name)
	assert.Equal(t, float64(1500), sink.metrics[1].value)
}

func TestEmitStepSkipsErrorClassOnSuccess(t *testing.T) {
	sink := &recordingSink{}
	EmitStep(sink, StepMetric{Plan: "vat-update", Kind: "login", Result: ResultSuccess, Err: apperrors.Internalf("x")})

	require.Len(t, sink.metrics, 1)
	assert.Equal(t, "step.transition", sink.metrics[0].name)
	assert.NotContains(t, sink.metrics[0].tags, "error_class")
	assert.Equal(t, "login", sink.metrics[0].tags["kind"])
}

func TestEmitNilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitJobLifecycle(nil, JobMetric{})
		EmitStep(nil, StepMetric{})
	})
}

func TestEmitDropsEmptyTags(t *testing.T) {
	sink := &recordingSink{}
	EmitJobLifecycle(sink, JobMetric{Transition: "void", Result: ResultSuccess})

	require.Len(t, sink.metrics, 1)
	assert.Equal(t, map[string]string{"transition": "void", "result": "success"}, sink.metrics[0].tags)
	assert.Nil(t, CloneTags(nil))
	assert.Equal(t, map[string]string{"a": "1"}, CloneTags(map[string]string{"a": "1", "": "x"}))
}

// Package metrics emits the job and step lifecycle metrics shared by the runner and services.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/runboard/internal/observability/errors"
	"github.com/target/runboard/internal/observability/statsd"
)

// Values of the result tag.
const (
	ResultSuccess = "success"
	ResultWarning = "warning"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric describes a job status change such as "claim", "void" or "reaped".
type JobMetric struct {
	Plan       string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// StepMetric describes one finished plan step.
type StepMetric struct {
	Plan     string
	Kind     string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitJobLifecycle counts job.transition and, with a duration, times job.duration.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	emit(sink, "job", map[string]string{"plan": in.Plan, "transition": in.Transition}, in.Result, in.Duration, in.Err)
}

// EmitStep counts step.transition and, with a duration, times step.duration.
func EmitStep(sink statsd.Sink, in StepMetric) {
	emit(sink, "step", map[string]string{"plan": in.Plan, "kind": in.Kind}, in.Result, in.Duration, in.Err)
}

// emit sends <subject>.transition and <subject>.duration. Empty tag values are dropped and
// error_class is only set for error results.
func emit(sink statsd.Sink, subject string, tags map[string]string, result string, d time.Duration, err error) {
	if sink == nil {
		return
	}
	tags["result"] = result
	if result == ResultError && err != nil {
		tags["error_class"] = obserrors.Classify(err)
	}
	maps.DeleteFunc(tags, func(_, v string) bool { return v == "" })

	sink.Count(subject+".transition", 1, tags)
	if d > 0 {
		sink.Timing(subject+".duration", d, CloneTags(tags))
	}
}

// CloneTags copies src without empty keys. It returns nil for an empty map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := maps.Clone(src)
	delete(out, "")
	return out
}

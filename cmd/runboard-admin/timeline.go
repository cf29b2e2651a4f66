package main

import (
	"io"
	"strings"
	"time"

	"github.com/target/runboard/internal/domain/model"
	"github.com/target/runboard/internal/service"
)

// timelinePrinter writes the changes between successive snapshots of one job as plain lines.
// A step is printed when it first appears and again whenever its status changes.
type timelinePrinter struct {
	w       io.Writer
	steps   map[string]model.StepStatus
	status  model.JobStatus
	loading bool
	lastErr string
	err     error
}

func newTimelinePrinter(w io.Writer) *timelinePrinter {
	return &timelinePrinter{w: w, steps: map[string]model.StepStatus{}}
}

// Print is a service.StatusPoller Watch callback.
func (p *timelinePrinter) Print(snap service.Snapshot) {
	if p.err != nil {
		return
	}
	p.err = p.print(snap)
}

// Err returns the first write failure.
func (p *timelinePrinter) Err() error { return p.err }

func (p *timelinePrinter) print(snap service.Snapshot) error {
	if snap.Err != nil {
		msg := snap.Err.Error()
		if msg != p.lastErr {
			p.lastErr = msg
			if err := writef(p.w, "! read failed, showing last known state: %s\n", msg); err != nil {
				return err
			}
		}
	} else {
		p.lastErr = ""
	}

	if snap.Record == nil {
		if snap.Loading && !p.loading {
			p.loading = true
			return writeln(p.w, "waiting for job to be created...")
		}
		return nil
	}
	p.loading = false

	rec := snap.Record
	for i := range rec.Logs {
		step := rec.Logs[i]
		if prev, seen := p.steps[step.ID]; seen && prev == step.Status {
			continue
		}
		p.steps[step.ID] = step.Status
		if err := printStep(p.w, step); err != nil {
			return err
		}
	}

	if rec.Job.Status != p.status {
		p.status = rec.Job.Status
		return writef(p.w, "job %s: %s\n", rec.Job.ID, rec.Job.Status.DisplayName())
	}
	return nil
}

func printStep(w io.Writer, step model.Step) error {
	if err := writef(w, "[%s] %-10s %s\n",
		step.Time.Local().Format(time.TimeOnly), step.Status, step.Title); err != nil {
		return err
	}
	for _, line := range step.Description {
		if err := writef(w, "    %s\n", line); err != nil {
			return err
		}
	}
	if len(step.Artifacts) == 0 {
		return nil
	}
	labels := make([]string, 0, len(step.Artifacts))
	for _, a := range step.Artifacts {
		labels = append(labels, a.Label)
	}
	return writef(w, "    artifacts: %s\n", strings.Join(labels, ", "))
}

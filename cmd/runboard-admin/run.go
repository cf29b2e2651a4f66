package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/target/runboard/internal/bootstrap"
	"github.com/target/runboard/internal/domain/model"
	"github.com/target/runboard/internal/domain/plan"
	"github.com/target/runboard/internal/service"
)

// runJob prompts for the plan's parameters, creates the job, and executes it in this process
// while a status poller prints its timeline.
func runJob(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	planName := fs.String("plan", "cash-position", "Plan to run")
	label := fs.String("label", "", "Override the label rendered from the plan")
	preset := paramsFlag{}
	fs.Var(preset, "param", "Plan parameter as key=value; skips its prompt (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withStore(cmdCtx, func(sess *storeSession) error {
		p, err := sess.Jobs().Plan(*planName)
		if err != nil {
			return err
		}
		params, err := promptParams(bufio.NewReader(cmdCtx.Stdin), cmdCtx.Stdout, p.Params, preset)
		if err != nil {
			return err
		}

		runner, err := bootstrap.NewJobRunner(bootstrap.RunnerConfig{
			Config:   &cmdCtx.Config,
			Services: sess.services,
			Logger:   cmdCtx.Logger,
		})
		if err != nil {
			return err
		}

		rec, err := sess.Jobs().Enqueue(cmdCtx.Ctx, service.EnqueueRequest{
			Plan:   p.Name,
			Params: params,
			Label:  *label,
		})
		if err != nil {
			return err
		}
		id := rec.Job.ID
		if err := writef(cmdCtx.Stdout, "job %s: %s\n", id, rec.Job.Label); err != nil {
			return err
		}

		var (
			final  model.JobStatus
			jobErr error
		)
		printer := newTimelinePrinter(cmdCtx.Stdout)
		g, gctx := errgroup.WithContext(cmdCtx.Ctx)
		g.Go(func() error {
			final, jobErr = runner.RunJob(gctx, id)
			if final == "" {
				// The job never reached a terminal status; stop watching.
				return jobErr
			}
			return nil
		})
		g.Go(func() error {
			return sess.Poller().Watch(gctx, id, printer.Print)
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("run job %s: %w", id, err)
		}
		if err := printer.Err(); err != nil {
			return err
		}
		if final != model.JobStatusDone {
			return fmt.Errorf("job %s ended %s: %w", id, final, jobErr)
		}
		return nil
	})
}

// promptParams asks for every parameter not already in preset. An empty answer takes the
// default; a required parameter without a default is asked again until answered.
func promptParams(r *bufio.Reader, w io.Writer, params []plan.Param, preset map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(params)+len(preset))
	for k, v := range preset {
		out[k] = v
	}
	for _, param := range params {
		if _, ok := out[param.Name]; ok {
			continue
		}
		value, err := promptOne(r, w, param)
		if err != nil {
			return nil, err
		}
		if value != "" {
			out[param.Name] = value
		}
	}
	return out, nil
}

func promptOne(r *bufio.Reader, w io.Writer, param plan.Param) (string, error) {
	question := strings.TrimRight(param.Prompt, ": ")
	if question == "" {
		question = param.Name
	}
	if param.Default != "" {
		question += " [" + param.Default + "]"
	}
	for {
		if err := writef(w, "%s: ", question); err != nil {
			return "", err
		}
		line, readErr := r.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer == "" {
			answer = param.Default
		}
		if answer != "" || !param.Required {
			if readErr != nil && !errors.Is(readErr, io.EOF) {
				return "", fmt.Errorf("read %s: %w", param.Name, readErr)
			}
			return answer, nil
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return "", fmt.Errorf("parameter %q is required", param.Name)
			}
			return "", fmt.Errorf("read %s: %w", param.Name, readErr)
		}
		if err := writef(w, "%s is required\n", param.Name); err != nil {
			return "", err
		}
	}
}

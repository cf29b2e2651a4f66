package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/runboard/internal/domain/model"
	"github.com/target/runboard/internal/service"
)

// paramsFlag collects repeated -param key=value flags.
type paramsFlag map[string]string

func (p paramsFlag) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+p[k])
	}
	return strings.Join(parts, ",")
}

func (p paramsFlag) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("param %q must look like key=value", value)
	}
	p[strings.TrimSpace(key)] = val
	return nil
}

type enqueueOptions struct {
	Plan   string
	Label  string
	Params paramsFlag
}

func parseEnqueueFlags(args []string) (enqueueOptions, error) {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := enqueueOptions{Params: paramsFlag{}}
	fs.StringVar(&opts.Plan, "plan", "cash-position", "Plan to run")
	fs.StringVar(&opts.Label, "label", "", "Override the label rendered from the plan")
	fs.Var(opts.Params, "param", "Plan parameter as key=value (repeatable)")

	if err := fs.Parse(args); err != nil {
		return enqueueOptions{}, err
	}
	if fs.NArg() > 0 {
		return enqueueOptions{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func runEnqueue(cmdCtx *commandContext, args []string) error {
	opts, err := parseEnqueueFlags(args)
	if err != nil {
		return err
	}
	return withStore(cmdCtx, func(sess *storeSession) error {
		rec, enqErr := sess.Jobs().Enqueue(cmdCtx.Ctx, service.EnqueueRequest{
			Plan:   opts.Plan,
			Params: opts.Params,
			Label:  opts.Label,
		})
		if enqErr != nil {
			return enqErr
		}
		return writef(cmdCtx.Stdout, "enqueued job %s: %s\n", rec.Job.ID, rec.Job.Label)
	})
}

func runJobs(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	statusFlag := fs.String("status", "", "Only list jobs in this status (pending, in_progress, done, error, void)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	status, err := parseStatusFilter(*statusFlag)
	if err != nil {
		return err
	}

	return withStore(cmdCtx, func(sess *storeSession) error {
		index, err := sess.Jobs().List(cmdCtx.Ctx, status)
		if err != nil {
			return err
		}
		return printJobIndex(cmdCtx.Stdout, index)
	})
}

// parseStatusFilter maps an empty value to "all statuses".
func parseStatusFilter(raw string) (model.JobStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	var status model.JobStatus
	if err := status.UnmarshalText([]byte(raw)); err != nil {
		return "", err
	}
	return status, nil
}

func printJobIndex(w io.Writer, index []model.JobSummary) error {
	if len(index) == 0 {
		return writeln(w, "(no jobs)")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "ID\tSTATUS\tNAME\tYEAR\tSTOCK ID\n"); err != nil {
		return err
	}
	for _, entry := range index {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n", entry.ID, entry.Status, entry.Name, entry.Year, entry.StockID); err != nil {
			return err
		}
	}
	return tw.Flush()
}

type showOptions struct {
	ID    model.JobID
	Query string
}

func parseShowFlags(args []string) (showOptions, error) {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var opts showOptions
	fs.StringVar(&opts.Query, "query", "", `JMESPath expression applied to the record, e.g. "logs[?status=='error'].title"`)
	if err := fs.Parse(args); err != nil {
		return showOptions{}, err
	}
	id, err := singleJobID(fs)
	if err != nil {
		return showOptions{}, err
	}
	opts.ID = id
	if opts.Query != "" {
		if _, compileErr := jmespath.Compile(opts.Query); compileErr != nil {
			return showOptions{}, fmt.Errorf("invalid -query: %w", compileErr)
		}
	}
	return opts, nil
}

func singleJobID(fs *flag.FlagSet) (model.JobID, error) {
	if fs.NArg() != 1 {
		return 0, errors.New("exactly one job id is required")
	}
	return model.ParseJobID(fs.Arg(0))
}

func runShow(cmdCtx *commandContext, args []string) error {
	opts, err := parseShowFlags(args)
	if err != nil {
		return err
	}
	return withStore(cmdCtx, func(sess *storeSession) error {
		rec, getErr := sess.Jobs().Get(cmdCtx.Ctx, opts.ID)
		if getErr != nil {
			return getErr
		}
		return printRecord(cmdCtx.Stdout, rec, opts.Query)
	})
}

// printRecord writes the record as indented JSON. A non-empty query is evaluated against the
// record's JSON form and only its result is printed.
func printRecord(w io.Writer, rec *model.JobRecord, query string) error {
	var out any = rec
	if query != "" {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		out, err = jmespath.Search(query, doc)
		if err != nil {
			return fmt.Errorf("evaluate query: %w", err)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runVoid(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("void", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := singleJobID(fs)
	if err != nil {
		return err
	}
	return withStore(cmdCtx, func(sess *storeSession) error {
		if voidErr := sess.Jobs().Void(cmdCtx.Ctx, id); voidErr != nil {
			return voidErr
		}
		return writef(cmdCtx.Stdout, "job %s voided\n", id)
	})
}

func runWatch(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := singleJobID(fs)
	if err != nil {
		return err
	}
	return withStore(cmdCtx, func(sess *storeSession) error {
		printer := newTimelinePrinter(cmdCtx.Stdout)
		if watchErr := sess.Poller().Watch(cmdCtx.Ctx, id, printer.Print); watchErr != nil {
			return watchErr
		}
		return printer.Err()
	})
}

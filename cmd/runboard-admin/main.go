package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/target/runboard/config"
	"github.com/target/runboard/internal/bootstrap"
	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/service"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Stdin  io.Reader
	Stdout io.Writer
}

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"run": {
			name:        "run",
			description: "Prompt for plan parameters, run one job end to end, and print its progress",
			run:         runJob,
		},
		"enqueue": {
			name:        "enqueue",
			description: "Create a pending job for the runner service to pick up",
			run:         runEnqueue,
		},
		"jobs": {
			name:        "jobs",
			description: "List the job index, optionally filtered by status",
			run:         runJobs,
		},
		"show": {
			name:        "show",
			description: "Print a job record as JSON, optionally filtered with a JMESPath query",
			run:         runShow,
		},
		"watch": {
			name:        "watch",
			description: "Poll a job and print new steps until it finishes",
			run:         runWatch,
		},
		"void": {
			name:        "void",
			description: "Mark a job as void",
			run:         runVoid,
		},
		"otp": {
			name:        "otp",
			description: "Read the current one-time password from the OTP provider",
			run:         runOTP,
		},
		"migrate": {
			name:        "migrate",
			description: "Run Postgres job store migrations",
			run:         runMigrations,
		},
		"seed": {
			name:        "seed",
			description: "Write demo jobs into the configured job store",
			run:         runSeed,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: runboard-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-10s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}

// storeSession is an opened job store plus the services built on it.
type storeSession struct {
	handle   *bootstrap.StoreHandle
	services bootstrap.ServiceContainer
}

func (s *storeSession) Store() core.JobStore          { return s.handle.Store }
func (s *storeSession) Jobs() *service.JobService     { return s.services.Jobs }
func (s *storeSession) Poller() *service.StatusPoller { return s.services.Poller }

// withStore opens the configured job store, builds the services, and runs fn.
func withStore(cmdCtx *commandContext, fn func(sess *storeSession) error) error {
	handle, err := bootstrap.OpenStore(cmdCtx.Ctx, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	services, err := bootstrap.NewServices(cmdCtx.Ctx, &bootstrap.ServiceDeps{
		Config: &cmdCtx.Config,
		Store:  handle.Store,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return errors.Join(err, handle.Close())
	}

	runErr := fn(&storeSession{handle: handle, services: services})
	if closeErr := handle.Close(); closeErr != nil {
		cmdCtx.Logger.Warn("close job store failed", "error", closeErr)
	}
	return runErr
}

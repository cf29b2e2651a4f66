package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/target/runboard/config"
	"github.com/target/runboard/internal/bootstrap"
	"github.com/target/runboard/internal/devseed"
	"github.com/target/runboard/internal/service"
)

func runMigrations(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	timeout := fs.Duration("timeout", 2*time.Minute, "Maximum time to wait for migrations")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmdCtx.Config.Store.Backend != config.StoreBackendPostgres {
		return fmt.Errorf("migrations only apply to the postgres store (STORE_BACKEND=%s)", cmdCtx.Config.Store.Backend)
	}

	db, err := bootstrap.ConnectDB(cmdCtx.Ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("close database failed", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()
	if err := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); err != nil {
		return err
	}
	return writeln(cmdCtx.Stdout, "migrations complete")
}

func runSeed(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	force := fs.Bool("force", false, "Seed even when the store already holds jobs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withStore(cmdCtx, func(sess *storeSession) error {
		ids, err := devseed.Seed(cmdCtx.Ctx, sess.Store(), devseed.Options{
			Force:  *force,
			Logger: cmdCtx.Logger,
		})
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return writeln(cmdCtx.Stdout, "store already has jobs; nothing seeded (use -force)")
		}
		return writef(cmdCtx.Stdout, "seeded %d demo jobs: %v\n", len(ids), ids)
	})
}

func runOTP(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("otp", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	wait := fs.Bool("wait", false, "Wait for a code with at least OTP_MIN_REMAINING validity left")
	if err := fs.Parse(args); err != nil {
		return err
	}
	otpCfg := cmdCtx.Config.OTP
	if otpCfg.URL == "" {
		return errors.New("OTP_URL is not configured")
	}

	source, err := bootstrap.NewOTPSource(otpCfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	if !*wait {
		cred, currentErr := source.Current(cmdCtx.Ctx)
		if currentErr != nil {
			return currentErr
		}
		return writef(cmdCtx.Stdout, "%s (%s remaining)\n", cred.Code, cred.Remaining.Round(time.Second))
	}

	waiter, err := service.NewCredentialWaiter(service.CredentialWaiterOptions{
		Source: source,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	cred, err := waiter.AwaitFreshCredential(cmdCtx.Ctx, otpCfg.MinRemaining, otpCfg.MaxAttempts)
	if err != nil {
		return err
	}
	return writef(cmdCtx.Stdout, "%s (%s remaining)\n", cred.Code, cred.Remaining.Round(time.Second))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/runboard/internal/core"
	apperrors "github.com/target/runboard/internal/errors"
)

// DefaultCredentialMargin is added to a credential's remaining validity before checking again,
// so the next read lands after the provider has rotated the code.
const DefaultCredentialMargin = 5 * time.Second

// CredentialWaiterOptions groups dependencies for CredentialWaiter.
type CredentialWaiterOptions struct {
	Source core.CredentialSource // Required: current OTP reader
	Logger *slog.Logger          // Optional: structured logger
	// Margin overrides DefaultCredentialMargin.
	Margin time.Duration
	// Sleep overrides the context-aware sleep (tests).
	Sleep func(ctx context.Context, d time.Duration) error
}

// CredentialWaiter blocks until the OTP provider issues a code with enough validity left.
type CredentialWaiter struct {
	source core.CredentialSource
	logger *slog.Logger
	margin time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewCredentialWaiter constructs a CredentialWaiter.
func NewCredentialWaiter(opts CredentialWaiterOptions) (*CredentialWaiter, error) {
	if opts.Source == nil {
		return nil, errors.New("CredentialSource is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	margin := opts.Margin
	if margin <= 0 {
		margin = DefaultCredentialMargin
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &CredentialWaiter{
		source: opts.Source,
		logger: logger.With("component", "credential_waiter"),
		margin: margin,
		sleep:  sleep,
	}, nil
}

// AwaitFreshCredential reads the current credential and returns it once at least minRemaining
// of validity is left. A stale credential is waited out (remaining + margin) and read again, up
// to maxAttempts reads in total. Exhausting the attempts yields CredentialUnavailable; a
// cancelled ctx yields ctx.Err().
func (w *CredentialWaiter) AwaitFreshCredential(
	ctx context.Context,
	minRemaining time.Duration,
	maxAttempts int,
) (core.Credential, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cred, err := w.source.Current(ctx)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return core.Credential{}, ctxErr
			}
			lastErr = err
			w.logger.WarnContext(ctx, "credential read failed", "attempt", attempt, "error", err)
			cred.Remaining = 0
		case cred.Code != "" && cred.Remaining >= minRemaining:
			w.logger.DebugContext(ctx, "fresh credential obtained",
				"attempt", attempt, "remaining", cred.Remaining)
			return cred, nil
		default:
			w.logger.InfoContext(ctx, "credential too close to expiry; waiting for the next one",
				"attempt", attempt, "remaining", cred.Remaining, "min_remaining", minRemaining)
		}
		if attempt == maxAttempts {
			break
		}
		if err := w.sleep(ctx, max(cred.Remaining, 0)+w.margin); err != nil {
			return core.Credential{}, err
		}
	}
	msg := fmt.Sprintf("no credential with %s remaining after %d attempts", minRemaining, maxAttempts)
	if lastErr != nil {
		return core.Credential{}, apperrors.Wrap(lastErr, apperrors.ErrCodeCredentialUnavailable, msg)
	}
	return core.Credential{}, apperrors.CredentialUnavailablef("%s", msg)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

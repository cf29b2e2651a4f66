package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a rejected response is quoted in the returned error.
const maxErrorBody = 2048

// DefaultTimeout applies to sink HTTP clients built without an explicit timeout.
const DefaultTimeout = 5 * time.Second

// Delivery is one JSON POST to a sink endpoint.
type Delivery struct {
	// Sink names the destination in errors ("slack", "pagerduty").
	Sink   string
	URL    string
	Body   []byte
	Client *http.Client
	// Retries is the number of additional attempts after the first failure.
	Retries int
	// Backoff is multiplied by the attempt number between tries. Defaults to 200ms.
	Backoff time.Duration
}

// HTTPClient returns c, or a client with timeout (DefaultTimeout when unset).
func HTTPClient(c *http.Client, timeout time.Duration) *http.Client {
	if c != nil {
		return c
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Post sends d, retrying with linear backoff until an attempt gets a 2xx, the retries run out,
// or ctx is done.
func Post(ctx context.Context, d Delivery) error {
	backoff := d.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	client := HTTPClient(d.Client, 0)

	var lastErr error
	for attempt := 0; attempt <= max(d.Retries, 0); attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if lastErr = postOnce(ctx, client, d); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func postOnce(ctx context.Context, client *http.Client, d Delivery) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", d.Sink, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", d.Sink, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close %s response body: %w", d.Sink, closeErr))
		}
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
			return fmt.Errorf("drain %s response body: %w", d.Sink, drainErr)
		}
		return nil
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		return fmt.Errorf("%s %s (reading body: %w)", d.Sink, resp.Status, readErr)
	}
	return fmt.Errorf("%s %s: %s", d.Sink, resp.Status, strings.TrimSpace(string(body)))
}

// Fallback returns value, or def when value is blank.
func Fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

// Package portal is the HTTP client for the browser automation worker that drives the Treasury
// Portal. Selectors, navigation, and OTP entry all live inside the worker; this package only
// ships actions to it and maps its answers.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/domain/model"
	apperrors "github.com/target/runboard/internal/errors"
)

const (
	actionsPath          = "/v1/actions"
	maxResponseBodyBytes = 1 << 20
)

// ClientOptions configures Client.
type ClientOptions struct {
	WorkerURL string
	Timeout   time.Duration
	// HTTPClient overrides the default client. Its Jar is replaced when nil.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client implements core.Automation against the worker's HTTP API.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

var _ core.Automation = (*Client)(nil)

// NewClient constructs a Client. Cookies set by the worker (its session affinity) are kept in a
// jar scoped by the public suffix list.
func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.WorkerURL), "/")
	if base == "" {
		return nil, errors.New("automation worker url is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid automation worker url %q", opts.WorkerURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 3 * time.Minute
		}
		hc = &http.Client{Timeout: timeout}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: base + actionsPath,
		http:     hc,
		logger:   logger.With("component", "portal_client", "worker", u.Host),
	}, nil
}

// actionResponse is the worker's answer to one action.
type actionResponse struct {
	OK          bool               `json:"ok"`
	Title       string             `json:"title,omitempty"`
	Description []string           `json:"description,omitempty"`
	Warning     string             `json:"warning,omitempty"`
	Error       string             `json:"error,omitempty"`
	Recording   string             `json:"recording,omitempty"`
	Artifacts   []producedArtifact `json:"artifacts,omitempty"`
}

type producedArtifact struct {
	Kind  model.ArtifactKind  `json:"kind"`
	Label string              `json:"label"`
	Path  string              `json:"path,omitempty"`
	Table *model.DataTable    `json:"table,omitempty"`
	Email *model.EmailMessage `json:"email,omitempty"`
}

// Execute sends the action and waits for the worker to finish it. Every failure, including a
// worker answering ok=false, is reported as ExternalActionFailed.
func (c *Client) Execute(ctx context.Context, action core.Action) (*core.ActionResult, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.ExternalActionFailed(err, "send action to automation worker")
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if closeErr := resp.Body.Close(); closeErr != nil && readErr == nil {
		readErr = closeErr
	}
	if readErr != nil {
		return nil, apperrors.ExternalActionFailed(readErr, "read automation worker response")
	}

	c.logger.DebugContext(ctx, "action answered",
		"job_id", action.JobID, "step_id", action.StepID, "kind", action.Kind,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	var out actionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, apperrors.ExternalActionFailed(
				fmt.Errorf("worker %s: %s", resp.Status, truncate(string(body), 200)), "automation action failed")
		}
		return nil, apperrors.ExternalActionFailed(err, "decode automation worker response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.OK {
		msg := strings.TrimSpace(out.Error)
		if msg == "" {
			msg = "worker answered " + resp.Status
		}
		failure := apperrors.ExternalActionFailed(errors.New(msg), "automation action failed")
		// Keep the screenshot and recording the worker saved while failing.
		partial, convErr := toResult(out)
		if convErr != nil {
			c.logger.WarnContext(ctx, "dropping failure artifacts", "job_id", action.JobID, "error", convErr)
			return nil, failure
		}
		return partial, failure
	}

	return toResult(out)
}

func toResult(in actionResponse) (*core.ActionResult, error) {
	res := &core.ActionResult{
		Title:       in.Title,
		Description: in.Description,
		Warning:     in.Warning,
		Recording:   in.Recording,
	}
	for i, a := range in.Artifacts {
		if !a.Kind.Valid() {
			return nil, apperrors.ExternalActionFailed(
				fmt.Errorf("artifact %d has unknown kind %q", i, a.Kind), "automation worker returned an invalid artifact")
		}
		res.Artifacts = append(res.Artifacts, core.ProducedArtifact{
			Kind:    a.Kind,
			Label:   a.Label,
			Path:    a.Path,
			Table:   a.Table,
			Message: a.Email,
		})
	}
	return res, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package otp reads the one-time password currently issued by the OTP provider.
package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/runboard/internal/core"
	apperrors "github.com/target/runboard/internal/errors"
)

const maxResponseBytes = 64 * 1024

// SourceOptions configures Source.
type SourceOptions struct {
	URL   string
	Token string
	// CodeExpr and RemainingExpr are JMESPath expressions evaluated against the JSON response.
	// RemainingExpr must yield seconds as a number or numeric string.
	CodeExpr      string
	RemainingExpr string
	HTTPClient    *http.Client
	Logger        *slog.Logger
	Now           func() time.Time
}

// Source is a core.CredentialSource backed by an HTTP endpoint.
type Source struct {
	url           string
	token         string
	codeExpr      jmespath.JMESPath
	remainingExpr jmespath.JMESPath
	client        *http.Client
	logger        *slog.Logger
	now           func() time.Time
}

var _ core.CredentialSource = (*Source)(nil)

// NewSource validates the expressions and constructs a Source.
func NewSource(opts SourceOptions) (*Source, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("otp provider url is required")
	}
	codeExpr, err := jmespath.Compile(fallback(opts.CodeExpr, "otp"))
	if err != nil {
		return nil, fmt.Errorf("compile code expression: %w", err)
	}
	remainingExpr, err := jmespath.Compile(fallback(opts.RemainingExpr, "remaining_seconds"))
	if err != nil {
		return nil, fmt.Errorf("compile remaining expression: %w", err)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Source{
		url:           strings.TrimSpace(opts.URL),
		token:         opts.Token,
		codeExpr:      codeExpr,
		remainingExpr: remainingExpr,
		client:        client,
		logger:        logger.With("component", "otp_source"),
		now:           now,
	}, nil
}

// Current fetches the provider response and extracts the code and its remaining validity.
func (s *Source) Current(ctx context.Context) (core.Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return core.Credential{}, fmt.Errorf("create otp request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return core.Credential{}, fmt.Errorf("otp request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.DebugContext(ctx, "close otp response body", "error", cerr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return core.Credential{}, fmt.Errorf("read otp response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.Credential{}, fmt.Errorf("otp provider %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return core.Credential{}, fmt.Errorf("decode otp response: %w", err)
	}
	return s.extract(doc)
}

func (s *Source) extract(doc any) (core.Credential, error) {
	rawCode, err := s.codeExpr.Search(doc)
	if err != nil {
		return core.Credential{}, fmt.Errorf("evaluate code expression: %w", err)
	}
	code := strings.TrimSpace(stringify(rawCode))
	if code == "" {
		return core.Credential{}, apperrors.CredentialUnavailablef("otp response carries no code")
	}

	rawRemaining, err := s.remainingExpr.Search(doc)
	if err != nil {
		return core.Credential{}, fmt.Errorf("evaluate remaining expression: %w", err)
	}
	secs, err := toSeconds(rawRemaining)
	if err != nil {
		return core.Credential{}, err
	}
	return core.Credential{
		Code:      code,
		Remaining: time.Duration(math.Max(secs, 0) * float64(time.Second)),
		FetchedAt: s.now(),
	}, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func toSeconds(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("remaining validity %q is not a number", t)
		}
		return f, nil
	case nil:
		return 0, errors.New("otp response carries no remaining validity")
	default:
		return 0, fmt.Errorf("remaining validity has unexpected type %T", v)
	}
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

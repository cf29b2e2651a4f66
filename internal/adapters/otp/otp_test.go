package otp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/runboard/internal/errors"
)

func newTestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" && got != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewSource_Validation(t *testing.T) {
	_, err := NewSource(SourceOptions{})
	require.Error(t, err)

	_, err = NewSource(SourceOptions{URL: "http://otp.local", CodeExpr: "foo..bar"})
	require.Error(t, err)
}

func TestCurrent_DefaultExpressions(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"otp":"482913","remaining_seconds":27}`)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	src, err := NewSource(SourceOptions{URL: srv.URL, Token: "secret", Now: func() time.Time { return now }})
	require.NoError(t, err)

	cred, err := src.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "482913", cred.Code)
	assert.Equal(t, 27*time.Second, cred.Remaining)
	assert.Equal(t, now, cred.FetchedAt)
}

func TestCurrent_NestedExpressions(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"data":{"codes":[{"value":123456,"ttl":"4.5"}]}}`)
	src, err := NewSource(SourceOptions{
		URL:           srv.URL,
		CodeExpr:      "data.codes[0].value",
		RemainingExpr: "data.codes[0].ttl",
	})
	require.NoError(t, err)

	cred, err := src.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123456", cred.Code)
	assert.Equal(t, 4500*time.Millisecond, cred.Remaining)
}

func TestCurrent_Failures(t *testing.T) {
	tcs := []struct {
		name    string
		status  int
		body    string
		checkFn func(t *testing.T, err error)
	}{
		{
			name:   "provider error status",
			status: http.StatusServiceUnavailable,
			body:   "maintenance",
			checkFn: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "503")
			},
		},
		{
			name:   "invalid json",
			status: http.StatusOK,
			body:   "<html>",
			checkFn: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "decode otp response")
			},
		},
		{
			name:   "missing code",
			status: http.StatusOK,
			body:   `{"remaining_seconds":20}`,
			checkFn: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsCredentialUnavailable(err))
			},
		},
		{
			name:   "non numeric remaining",
			status: http.StatusOK,
			body:   `{"otp":"1","remaining_seconds":"soon"}`,
			checkFn: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "not a number")
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, tc.status, tc.body)
			src, err := NewSource(SourceOptions{URL: srv.URL})
			require.NoError(t, err)

			_, err = src.Current(context.Background())
			require.Error(t, err)
			tc.checkFn(t, err)
		})
	}
}

func TestCurrent_NegativeRemainingClampsToZero(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"otp":"1","remaining_seconds":-3}`)
	src, err := NewSource(SourceOptions{URL: srv.URL})
	require.NoError(t, err)

	cred, err := src.Current(context.Background())
	require.NoError(t, err)
	assert.Zero(t, cred.Remaining)
}

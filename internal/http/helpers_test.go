package httpx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/target/runboard/internal/adapters/artifacts"
	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/data"
	"github.com/target/runboard/internal/domain/model"
	"github.com/target/runboard/internal/domain/plan"
	"github.com/target/runboard/internal/mocks/fakes"
	"github.com/target/runboard/internal/service"
	"github.com/target/runboard/internal/testutil"
)

type testServer struct {
	store     *data.FileStore
	jobs      *service.JobService
	escalator *fakes.RecordingEscalator
	artifacts *artifacts.LocalPublisher
	handler   http.Handler
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := data.NewFileStore(data.FileStoreOptions{
		Dir:          t.TempDir(),
		Logger:       quietLogger(),
		TimeProvider: data.NewManualClock(testutil.TestTime()),
	})
	require.NoError(t, err)
	pub, err := artifacts.NewLocalPublisher(t.TempDir())
	require.NoError(t, err)

	ts := &testServer{store: store, escalator: &fakes.RecordingEscalator{}, artifacts: pub}
	ts.handler = ts.router(t, store)
	return ts
}

// router builds the full handler over any store, so tests can swap in failing stores.
func (ts *testServer) router(t *testing.T, store core.JobStore) http.Handler {
	t.Helper()
	ts.jobs = service.MustNewJobService(service.JobServiceOptions{
		Store:     store,
		Plans:     plan.MustBuiltin(),
		Escalator: ts.escalator,
		Logger:    quietLogger(),
		Now:       testutil.FixedTimeFunc(testutil.TestTime()),
	})
	poller, err := service.NewStatusPoller(service.StatusPollerOptions{Store: store, Logger: quietLogger()})
	require.NoError(t, err)
	return NewRouter(RouterServices{
		Jobs:       ts.jobs,
		Poller:     poller,
		Artifacts:  ts.artifacts,
		TemplateFS: os.DirFS("../../frontend/templates"),
		Logger:     quietLogger(),
	})
}

func (ts *testServer) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createJob(t *testing.T) *model.JobRecord {
	t.Helper()
	rec, err := ts.store.CreateJob(context.Background(), testutil.NewJobRequest().Build())
	require.NoError(t, err)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func newBufferLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}

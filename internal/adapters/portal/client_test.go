package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/domain/model"
	"github.com/target/runboard/internal/domain/plan"
	apperrors "github.com/target/runboard/internal/errors"
)

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	require.Error(t, err)
	_, err = NewClient(ClientOptions{WorkerURL: "not a url"})
	require.Error(t, err)
}

func TestExecute_Success(t *testing.T) {
	var got core.Action
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/actions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"ok": true,
			"title": "Applied Date filters: 1st March to 15th March",
			"description": ["Start Date: 1st March"],
			"recording": "/videos/session.webm",
			"artifacts": [
				{"kind": "document", "label": "Cash Position", "path": "/downloads/cash.pdf"},
				{"kind": "data_table", "label": "Tax lines", "table": {"columns": ["Code","Rate"], "rows": [["A","20"]]}}
			]
		}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{WorkerURL: srv.URL + "/"})
	require.NoError(t, err)

	res, err := c.Execute(context.Background(), core.Action{
		JobID:  4,
		StepID: "step-04",
		Kind:   plan.KindApplyDateFilter,
		Args:   map[string]string{"start": "1st March"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobID(4), got.JobID)
	assert.Equal(t, "1st March", got.Args["start"])

	assert.Equal(t, "Applied Date filters: 1st March to 15th March", res.Title)
	assert.Equal(t, "/videos/session.webm", res.Recording)
	require.Len(t, res.Artifacts, 2)
	assert.Equal(t, model.ArtifactKindDocument, res.Artifacts[0].Kind)
	require.NotNil(t, res.Artifacts[1].Table)
	assert.Equal(t, []string{"Code", "Rate"}, res.Artifacts[1].Table.Columns)
}

func TestExecute_Failures(t *testing.T) {
	tcs := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "worker reports failure", status: http.StatusOK, body: `{"ok":false,"error":"Timeout waiting for filter panel"}`, want: "Timeout waiting for filter panel"},
		{name: "error status with json", status: http.StatusBadGateway, body: `{"ok":false}`, want: "502"},
		{name: "error status with text", status: http.StatusInternalServerError, body: "boom", want: "boom"},
		{name: "unknown artifact kind", status: http.StatusOK, body: `{"ok":true,"artifacts":[{"kind":"hologram"}]}`, want: "hologram"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, err := NewClient(ClientOptions{WorkerURL: srv.URL})
			require.NoError(t, err)

			_, err = c.Execute(context.Background(), core.Action{StepID: "s"})
			require.Error(t, err)
			assert.True(t, apperrors.IsExternalActionFailed(err))
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestExecute_FailureReturnsCapturedArtifacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"ok": false,
			"error": "Timeout waiting for filter panel",
			"recording": "/videos/session.webm",
			"artifacts": [{"kind": "document", "label": "Failure screenshot", "path": "/screenshots/failure.png"}]
		}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{WorkerURL: srv.URL})
	require.NoError(t, err)

	res, err := c.Execute(context.Background(), core.Action{StepID: "step-04"})
	require.Error(t, err)
	assert.True(t, apperrors.IsExternalActionFailed(err))
	require.NotNil(t, res)
	assert.Equal(t, "/videos/session.webm", res.Recording)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, "/screenshots/failure.png", res.Artifacts[0].Path)
}

func TestExecute_KeepsWorkerCookies(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.SetCookie(w, &http.Cookie{Name: "worker_session", Value: "abc", Path: "/"})
		} else {
			c, err := r.Cookie("worker_session")
			if assert.NoError(t, err) {
				assert.Equal(t, "abc", c.Value)
			}
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{WorkerURL: srv.URL})
	require.NoError(t, err)
	for range 2 {
		_, err := c.Execute(context.Background(), core.Action{StepID: "s"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
}

func TestExecute_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{WorkerURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Execute(ctx, core.Action{StepID: "s"})
	require.Error(t, err)
	assert.True(t, apperrors.IsExternalActionFailed(err))
}

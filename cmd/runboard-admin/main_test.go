package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/runboard/config"
	"github.com/target/runboard/internal/domain/model"
	"github.com/target/runboard/internal/domain/plan"
	"github.com/target/runboard/internal/service"
)

func testCommandContext(t *testing.T, stdin string) (*commandContext, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: config.AppConfig{
			Store: config.StoreConfig{Backend: config.StoreBackendFile, DataDir: t.TempDir()},
			Artifacts: config.ArtifactsConfig{
				Backend: config.ArtifactBackendLocal,
				Dir:     t.TempDir(),
			},
			HTTP: config.HTTPConfig{BaseURL: "https://runboard.example.com"},
		},
		Stdin:  strings.NewReader(stdin),
		Stdout: &out,
	}, &out
}

func TestPrintUsageListsCommandsSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	for name := range commands() {
		assert.Contains(t, out, "  "+name)
	}
	assert.Less(t, strings.Index(out, "enqueue"), strings.Index(out, "watch"))
}

func TestParamsFlag(t *testing.T) {
	p := paramsFlag{}
	require.NoError(t, p.Set("start=2024-03-01"))
	require.NoError(t, p.Set(" end =2024-03-30"))
	require.NoError(t, p.Set("note=a=b"))
	assert.Equal(t, "2024-03-30", p["end"])
	assert.Equal(t, "a=b", p["note"])
	assert.Equal(t, "end=2024-03-30,note=a=b,start=2024-03-01", p.String())

	assert.Error(t, p.Set("novalue"))
	assert.Error(t, p.Set("=x"))
}

func TestParseStatusFilter(t *testing.T) {
	status, err := parseStatusFilter("")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatus(""), status)

	status, err = parseStatusFilter("In Progress")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusInProgress, status)

	_, err = parseStatusFilter("finished")
	assert.Error(t, err)
}

func TestParseShowFlags(t *testing.T) {
	opts, err := parseShowFlags([]string{"-query", "job.status", "7"})
	require.NoError(t, err)
	assert.Equal(t, model.JobID(7), opts.ID)
	assert.Equal(t, "job.status", opts.Query)

	_, err = parseShowFlags([]string{})
	assert.Error(t, err)

	_, err = parseShowFlags([]string{"-query", "logs[?", "7"})
	assert.Error(t, err)
}

func TestPromptParams(t *testing.T) {
	params := []plan.Param{
		{Name: "start", Prompt: "Enter Start Date", Required: true},
		{Name: "end", Prompt: "Enter End Date", Required: true},
		{Name: "cadence", Default: "weekly"},
	}

	t.Run("reads answers and defaults", func(t *testing.T) {
		var out bytes.Buffer
		in := bufio.NewReader(strings.NewReader("2024-03-01\n\n2024-03-30\n\n"))

		got, err := promptParams(in, &out, params, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"start":   "2024-03-01",
			"end":     "2024-03-30",
			"cadence": "weekly",
		}, got)
		assert.Contains(t, out.String(), "Enter Start Date: ")
		assert.Contains(t, out.String(), "end is required")
		assert.Contains(t, out.String(), "cadence [weekly]: ")
	})

	t.Run("preset values skip their prompt", func(t *testing.T) {
		var out bytes.Buffer
		in := bufio.NewReader(strings.NewReader("2024-03-30"))

		got, err := promptParams(in, &out, params, map[string]string{"start": "2024-03-01", "cadence": "daily"})
		require.NoError(t, err)
		assert.Equal(t, "2024-03-30", got["end"])
		assert.Equal(t, "daily", got["cadence"])
		assert.NotContains(t, out.String(), "Start Date")
	})

	t.Run("eof before a required answer", func(t *testing.T) {
		in := bufio.NewReader(strings.NewReader(""))
		_, err := promptParams(in, io.Discard, params, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"start"`)
	})
}

func TestTimelinePrinter(t *testing.T) {
	var out bytes.Buffer
	p := newTimelinePrinter(&out)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	rec := model.NewJobRecord(model.Job{ID: 3, Label: "Cash", Status: model.JobStatusInProgress})
	rec.Logs = []model.Step{{ID: "step-01", Time: at, Title: "Logging in", Status: model.StepStatusProcessing}}

	p.Print(service.Snapshot{Loading: true})
	p.Print(service.Snapshot{Loading: true})
	p.Print(service.Snapshot{Record: rec})
	p.Print(service.Snapshot{Record: rec, Err: errors.New("connection reset")})

	done := model.NewJobRecord(model.Job{ID: 3, Label: "Cash", Status: model.JobStatusDone})
	done.Logs = []model.Step{
		{ID: "step-01", Time: at, Title: "Logged in", Status: model.StepStatusSuccess},
		{
			ID: "step-02", Time: at.Add(time.Minute), Title: "Downloaded PDF", Status: model.StepStatusSuccess,
			Description: []string{"4 pages"},
			Artifacts:   []model.Artifact{{ID: "pdf-1", Kind: model.ArtifactKindDocument, Label: "Cash PDF", Locator: "/artifacts/x.pdf"}},
		},
	}
	p.Print(service.Snapshot{Record: done})
	require.NoError(t, p.Err())

	got := out.String()
	assert.Equal(t, 1, strings.Count(got, "waiting for job"))
	assert.Equal(t, 1, strings.Count(got, "Logging in"))
	assert.Contains(t, got, "Logged in")
	assert.Contains(t, got, "! read failed, showing last known state: connection reset")
	assert.Contains(t, got, "    4 pages")
	assert.Contains(t, got, "artifacts: Cash PDF")
	assert.Contains(t, got, "job 3: In Progress")
	assert.Contains(t, got, "job 3: Done")
}

func TestPrintRecordQuery(t *testing.T) {
	rec := model.NewJobRecord(model.Job{ID: 5, Label: "VAT", Status: model.JobStatusError})
	rec.Logs = []model.Step{
		{ID: "step-01", Title: "Received email", Status: model.StepStatusSuccess},
		{ID: "step-02", Title: "Login failed", Status: model.StepStatusError},
	}

	var buf bytes.Buffer
	require.NoError(t, printRecord(&buf, rec, "logs[?status=='error'].title"))
	var titles []string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &titles))
	assert.Equal(t, []string{"Login failed"}, titles)

	buf.Reset()
	require.NoError(t, printRecord(&buf, rec, ""))
	assert.Contains(t, buf.String(), `"label": "VAT"`)
}

func TestCommandsAgainstFileStore(t *testing.T) {
	cmdCtx, out := testCommandContext(t, "")

	require.NoError(t, runEnqueue(cmdCtx, []string{
		"-plan", "cash-position", "-param", "start=2024-03-01", "-param", "end=2024-03-30",
	}))
	assert.Contains(t, out.String(), "enqueued job 1")

	out.Reset()
	require.NoError(t, runJobs(cmdCtx, []string{"-status", "pending"}))
	assert.Contains(t, out.String(), "Pending")

	out.Reset()
	require.NoError(t, runShow(cmdCtx, []string{"-query", "job.status", "1"}))
	assert.Equal(t, "\"pending\"\n", out.String())

	out.Reset()
	require.NoError(t, runVoid(cmdCtx, []string{"1"}))
	assert.Contains(t, out.String(), "job 1 voided")

	// watch returns once the job is terminal
	out.Reset()
	require.NoError(t, runWatch(cmdCtx, []string{"1"}))
	assert.Contains(t, out.String(), "job 1: Void")

	out.Reset()
	require.NoError(t, runJobs(cmdCtx, []string{"-status", "pending"}))
	assert.Contains(t, out.String(), "(no jobs)")

	require.Error(t, runShow(cmdCtx, []string{"99"}))
}

func TestSeedCommand(t *testing.T) {
	cmdCtx, out := testCommandContext(t, "")

	require.NoError(t, runSeed(cmdCtx, nil))
	assert.Contains(t, out.String(), "seeded 5 demo jobs")

	out.Reset()
	require.NoError(t, runSeed(cmdCtx, nil))
	assert.Contains(t, out.String(), "nothing seeded")
}

func TestMigrateRequiresPostgres(t *testing.T) {
	cmdCtx, _ := testCommandContext(t, "")
	err := runMigrations(cmdCtx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestOTPRequiresURL(t *testing.T) {
	cmdCtx, _ := testCommandContext(t, "")
	require.Error(t, runOTP(cmdCtx, nil))
}

func TestRunRequiresWorker(t *testing.T) {
	cmdCtx, out := testCommandContext(t, "2024-03-01\n2024-03-30\n")

	require.Error(t, runJob(cmdCtx, nil))
	assert.Contains(t, out.String(), "Enter Start Date")

	// no job is left behind when the runner cannot be built
	out.Reset()
	require.NoError(t, runJobs(cmdCtx, nil))
	assert.Contains(t, out.String(), "(no jobs)")
}

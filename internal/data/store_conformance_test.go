package data

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/runboard/internal/domain/model"
	apperrors "github.com/target/runboard/internal/errors"
	"github.com/target/runboard/internal/testutil"
)

type jobStore interface {
	CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.JobRecord, error)
	AppendStep(ctx context.Context, jobID model.JobID, step model.Step) error
	UpdateStep(ctx context.Context, jobID model.JobID, stepID string, patch model.StepPatch) error
	SetJobStatus(ctx context.Context, jobID model.JobID, status model.JobStatus) error
	ReadJob(ctx context.Context, jobID model.JobID) (*model.JobRecord, error)
	ListJobs(ctx context.Context) ([]model.JobSummary, error)
	JobsByStatus(ctx context.Context, status model.JobStatus) ([]model.Job, error)
}

// runStoreConformance exercises the behavior every backend must share. newStore must return an
// empty store driven by tp.
func runStoreConformance(t *testing.T, newStore func(t *testing.T, tp TimeProvider) jobStore) {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2024, 11, 4, 9, 30, 0, 123456789, time.UTC)

	t.Run("create allocates increasing ids and indexes pending jobs", func(t *testing.T) {
		tp := NewManualClock(start)
		s := newStore(t, tp)

		first, err := s.CreateJob(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		second, err := s.CreateJob(ctx, testutil.NewJobRequest().WithLabel("second").Build())
		require.NoError(t, err)

		assert.Greater(t, second.Job.ID, first.Job.ID)
		assert.Equal(t, model.JobStatusPending, first.Job.Status)
		assert.Empty(t, first.Logs)
		assert.Equal(t, model.KeyDetailStatusProcessing, first.KeyDetails[model.KeyDetailStatus])
		assert.Equal(t, start.Truncate(time.Microsecond), first.Job.CreatedAt)

		index, err := s.ListJobs(ctx)
		require.NoError(t, err)
		require.Len(t, index, 2)
		assert.Equal(t, first.Job.ID, index[0].ID)
		assert.Equal(t, "Pending", index[0].Status)
		assert.Equal(t, "second", index[1].StockID)
		assert.Equal(t, "2024-11-04", index[1].Year)
	})

	t.Run("full run reaches done with all steps", func(t *testing.T) {
		tp := NewManualClock(start)
		s := newStore(t, tp)

		rec, err := s.CreateJob(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		id := rec.Job.ID

		require.NoError(t, s.SetJobStatus(ctx, id, model.JobStatusInProgress))
		require.NoError(t, s.AppendStep(ctx, id, testutil.NewStep("1").WithStatus(model.StepStatusSuccess).Build()))
		require.NoError(t, s.AppendStep(ctx, id, testutil.NewStep("2").WithTitle("Logging in").Build()))
		tp.Advance(time.Second)
		require.NoError(t, s.UpdateStep(ctx, id, "2", model.StepPatch{
			Status:    model.StatusPtr(model.StepStatusSuccess),
			Title:     model.StringPtr("Logged in"),
			Artifacts: []model.Artifact{testutil.VideoArtifact("v1", "/artifacts/1/login.webm")},
		}))
		require.NoError(t, s.SetJobStatus(ctx, id, model.JobStatusDone))

		got, err := s.ReadJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusDone, got.Job.Status)
		require.Len(t, got.Logs, 2)
		assert.Equal(t, "Logged in", got.Logs[1].Title)
		assert.Equal(t, model.StepStatusSuccess, got.Logs[1].Status)
		require.Len(t, got.Logs[1].Artifacts, 1)
		require.Len(t, got.SidebarArtifacts, 1)
		assert.Equal(t, "/artifacts/1/login.webm", got.SidebarArtifacts[0].Locator)
		assert.Equal(t, model.KeyDetailStatusComplete, got.KeyDetails[model.KeyDetailStatus])
		assert.Equal(t, start.Add(time.Second).Truncate(time.Microsecond), got.Job.UpdatedAt)

		index, err := s.ListJobs(ctx)
		require.NoError(t, err)
		require.Len(t, index, 1)
		assert.Equal(t, "Done", index[0].Status)
	})

	t.Run("pending may finish directly", func(t *testing.T) {
		s := newStore(t, NewManualClock(start))
		rec, err := s.CreateJob(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		require.NoError(t, s.AppendStep(ctx, rec.Job.ID, testutil.NewStep("1").Build()))
		require.NoError(t, s.SetJobStatus(ctx, rec.Job.ID, model.JobStatusDone))
	})

	t.Run("terminal jobs are immutable", func(t *testing.T) {
		s := newStore(t, NewManualClock(start))
		rec, err := s.CreateJob(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		id := rec.Job.ID
		require.NoError(t, s.AppendStep(ctx, id, testutil.NewStep("1").Build()))
		require.NoError(t, s.SetJobStatus(ctx, id, model.JobStatusError))

		err = s.SetJobStatus(ctx, id, model.JobStatusDone)
		assert.True(t, apperrors.IsInvalidTransition(err), "got %v", err)
		err = s.AppendStep(ctx, id, testutil.NewStep("2").Build())
		assert.True(t, apperrors.IsInvalidTransition(err), "got %v", err)
		err = s.UpdateStep(ctx, id, "1", model.StepPatch{Status: model.StatusPtr(model.StepStatusSuccess)})
		assert.True(t, apperrors.IsInvalidTransition(err), "got %v", err)

		got, err := s.ReadJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusError, got.Job.Status)
		assert.Len(t, got.Logs, 1)
	})

	t.Run("backward and repeated transitions are rejected", func(t *testing.T) {
		s := newStore(t, NewManualClock(start))
		rec, err := s.CreateJob(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		id := rec.Job.ID
		require.NoError(t, s.SetJobStatus(ctx, id, model.JobStatusInProgress))

		err = s.SetJobStatus(ctx, id, model.JobStatusInProgress)
		assert.True(t, apperrors.IsInvalidTransition(err), "got %v", err)
		err = s.SetJobStatus(ctx, id, model.JobStatusPending)
		assert.True(t, apperrors.IsInvalidTransition(err), "got %v", err)
	})

	t.Run("missing jobs and steps", func(t *testing.T) {
		s := newStore(t, NewManualClock(start))
		_, err := s.ReadJob(ctx, 999)
		assert.True(t, apperrors.IsNotFound(err), "got %v", err)
		err = s.AppendStep(ctx, 999, testutil.NewStep("1").Build())
		assert.True(t, apperrors.IsNotFound(err), "got %v", err)
		err = s.SetJobStatus(ctx, 999, model.JobStatusDone)
		assert.True(t, apperrors.IsNotFound(err), "got %v", err)

		rec, err := s.CreateJob(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		err = s.UpdateStep(ctx, rec.Job.ID, "nope", model.StepPatch{Title: model.StringPtr("x")})
		assert.True(t, apperrors.IsNotFound(err), "got %v", err)
	})

	t.Run("duplicate step ids conflict", func(t *testing.T) {
		s := newStore(t, NewManualClock(start))
		rec, err := s.CreateJob(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		require.NoError(t, s.AppendStep(ctx, rec.Job.ID, testutil.NewStep("1").Build()))
		err = s.AppendStep(ctx, rec.Job.ID, testutil.NewStep("1").Build())
		assert.True(t, apperrors.IsConflict(err), "got %v", err)
	})

	t.Run("jobs by status", func(t *testing.T) {
		s := newStore(t, NewManualClock(start))
		a, err := s.CreateJob(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		b, err := s.CreateJob(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		require.NoError(t, s.SetJobStatus(ctx, a.Job.ID, model.JobStatusInProgress))

		pending, err := s.JobsByStatus(ctx, model.JobStatusPending)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, b.Job.ID, pending[0].ID)

		running, err := s.JobsByStatus(ctx, model.JobStatusInProgress)
		require.NoError(t, err)
		require.Len(t, running, 1)
		assert.Equal(t, a.Job.ID, running[0].ID)
	})

	t.Run("concurrent claims admit one winner", func(t *testing.T) {
		s := newStore(t, NewManualClock(start))
		rec, err := s.CreateJob(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)

		claim := func() error { return s.SetJobStatus(ctx, rec.Job.ID, model.JobStatusInProgress) }
		errs := testutil.RunConcurrent(claim, claim, claim, claim)
		wins := 0
		for _, e := range errs {
			if e == nil {
				wins++
				continue
			}
			assert.True(t, apperrors.IsInvalidTransition(e) || apperrors.IsConflict(e), "got %v", e)
		}
		assert.Equal(t, 1, wins)
	})

	t.Run("readers see whole records during appends", func(t *testing.T) {
		s := newStore(t, NewManualClock(start))
		rec, err := s.CreateJob(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		id := rec.Job.ID

		const steps = 20
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 1; i <= steps; i++ {
				step := testutil.NewStep(model.JobID(i).String()).Build()
				if appendErr := s.AppendStep(ctx, id, step); appendErr != nil {
					t.Errorf("append %d: %v", i, appendErr)
					return
				}
			}
		}()

		last := 0
		for last < steps {
			got, readErr := s.ReadJob(ctx, id)
			require.NoError(t, readErr)
			require.GreaterOrEqual(t, len(got.Logs), last)
			last = len(got.Logs)
			if t.Failed() {
				break
			}
		}
		wg.Wait()
	})
}

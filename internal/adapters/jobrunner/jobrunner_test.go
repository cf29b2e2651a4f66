package jobrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/data"
	"github.com/target/runboard/internal/domain/model"
	"github.com/target/runboard/internal/domain/plan"
	apperrors "github.com/target/runboard/internal/errors"
	"github.com/target/runboard/internal/mocks"
	"github.com/target/runboard/internal/mocks/fakes"
	"github.com/target/runboard/internal/testutil"
)

// stubAwaiter returns a fixed credential or error.
type stubAwaiter struct {
	cred  core.Credential
	err   error
	calls int
}

func (s *stubAwaiter) AwaitFreshCredential(context.Context, time.Duration, int) (core.Credential, error) {
	s.calls++
	return s.cred, s.err
}

type runnerFixture struct {
	store     *data.FileStore
	auto      *fakes.ScriptedAutomation
	creds     *stubAwaiter
	publisher *fakes.MemoryPublisher
	runner    *Runner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	store, err := data.NewFileStore(data.FileStoreOptions{
		Dir:          t.TempDir(),
		TimeProvider: data.NewManualClock(testutil.TestTime()),
	})
	require.NoError(t, err)

	f := &runnerFixture{
		store:     store,
		auto:      fakes.NewScriptedAutomation(),
		creds:     &stubAwaiter{cred: core.Credential{Code: "482913", Remaining: 25 * time.Second}},
		publisher: &fakes.MemoryPublisher{},
	}
	f.runner, err = NewRunner(RunnerOptions{
		Store:         store,
		Automation:    f.auto,
		Credentials:   f.creds,
		Publisher:     f.publisher,
		Plans:         plan.MustBuiltin(),
		ActionTimeout: time.Second,
		PollInterval:  10 * time.Millisecond,
		Now:           testutil.TestTime,
	})
	require.NoError(t, err)
	return f
}

func (f *runnerFixture) createCashJob(t *testing.T) model.JobID {
	t.Helper()
	rec, err := f.store.CreateJob(context.Background(), testutil.NewJobRequest().Build())
	require.NoError(t, err)
	return rec.Job.ID
}

func TestNewRunner_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockJobStore(ctrl)

	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)
	_, err = NewRunner(RunnerOptions{Store: store})
	require.Error(t, err)
	_, err = NewRunner(RunnerOptions{Store: store, Automation: fakes.NewScriptedAutomation()})
	require.Error(t, err)

	r, err := NewRunner(RunnerOptions{Store: store, Automation: fakes.NewScriptedAutomation(), Plans: plan.MustBuiltin()})
	require.NoError(t, err)
	assert.Equal(t, defaultActionTimeout, r.actionTimeout)
	assert.Equal(t, 1, r.workers)
}

func TestRunJob_Success(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	id := f.createCashJob(t)

	f.auto.Results["step-02"] = &core.ActionResult{Recording: "/tmp/session.webm"}
	f.auto.Results["step-04"] = &core.ActionResult{
		Title:       "Applied Date filters: 2024-01-01 to 2024-01-31",
		Description: []string{"Start Date: 2024-01-01", "End Date: 2024-01-31"},
		Recording:   "/tmp/session.webm",
	}
	f.auto.Results["step-05"] = &core.ActionResult{
		Artifacts: []core.ProducedArtifact{{Kind: model.ArtifactKindDocument, Label: "Cash Position", Path: "/tmp/cash.pdf"}},
		Recording: "/tmp/session.webm",
	}

	status, err := f.runner.RunJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, status)

	rec, err := f.store.ReadJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, rec.Job.Status)
	assert.Equal(t, model.KeyDetailStatusComplete, rec.KeyDetails[model.KeyDetailStatus])
	require.Len(t, rec.Logs, 5)
	for _, s := range rec.Logs {
		assert.Equal(t, model.StepStatusSuccess, s.Status, s.ID)
	}
	assert.Equal(t, "Logged into Treasury Portal with OTP Authentication", rec.Logs[1].Title)
	assert.Equal(t, "Applied Date filters: 2024-01-01 to 2024-01-31", rec.Logs[3].Title)
	assert.Equal(t, []string{"Start Date: 2024-01-01", "End Date: 2024-01-31"}, rec.Logs[3].Description)

	// The recording is published once and referenced by every step that used it.
	videoLocators := map[string]int{}
	for _, s := range rec.Logs {
		for _, a := range s.Artifacts {
			if a.Kind == model.ArtifactKindVideo {
				videoLocators[a.Locator]++
			}
		}
	}
	assert.Equal(t, map[string]int{"mem://1//tmp/session.webm": 3}, videoLocators)
	assert.Len(t, f.publisher.Published(), 2)
	// The PDF plus the shared recording, listed once.
	assert.Len(t, rec.SidebarArtifacts, 2)

	actions := f.auto.Actions()
	require.Len(t, actions, 4, "note steps do not reach the collaborator")
	assert.Equal(t, plan.KindLogin, actions[0].Kind)
	assert.Equal(t, "482913", actions[0].Credential)
	assert.Equal(t, "2024-01-01", actions[2].Args["start"])

	index, err := f.store.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, index, 1)
	assert.Equal(t, "Done", index[0].Status)
}

func TestRunJob_LoginFailureStopsJob(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	id := f.createCashJob(t)

	f.auto.Errors["step-02"] = errors.New("invalid one-time password")

	status, err := f.runner.RunJob(ctx, id)
	require.Error(t, err)
	assert.Equal(t, model.JobStatusError, status)
	assert.True(t, apperrors.IsExternalActionFailed(err))

	rec, err := f.store.ReadJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, rec.Job.Status)
	require.Len(t, rec.Logs, 2, "no steps are appended after the failure")
	assert.Equal(t, model.StepStatusError, rec.Logs[1].Status)
	assert.Contains(t, rec.Logs[1].Title, "Error: Logging into Treasury Portal")
	assert.Contains(t, rec.Logs[1].Description[0], "invalid one-time password")

	index, err := f.store.ListJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Error", index[0].Status)
}

func TestRunJob_CredentialUnavailable(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	id := f.createCashJob(t)
	f.creds.err = apperrors.CredentialUnavailablef("no credential with 10s remaining after 3 attempts")

	status, err := f.runner.RunJob(ctx, id)
	assert.Equal(t, model.JobStatusError, status)
	assert.True(t, apperrors.IsCredentialUnavailable(err))
	assert.Empty(t, f.auto.Actions(), "login is never attempted without a credential")

	rec, err := f.store.ReadJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StepStatusError, rec.Logs[1].Status)
}

func TestRunJob_ActionTimeout(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	id := f.createCashJob(t)
	f.runner.actionTimeout = 20 * time.Millisecond
	f.runner.automation = &blockOnKind{ScriptedAutomation: f.auto, kind: plan.KindNavigate}

	status, err := f.runner.RunJob(ctx, id)
	assert.Equal(t, model.JobStatusError, status)
	require.Error(t, err)
	assert.True(t, apperrors.IsExternalActionFailed(err))
	assert.ErrorContains(t, err, "timed out after 20ms")

	rec, err := f.store.ReadJob(ctx, id)
	require.NoError(t, err)
	require.Len(t, rec.Logs, 3)
	assert.Equal(t, model.StepStatusError, rec.Logs[2].Status)
}

// blockOnKind never answers actions of one kind until the action context ends.
type blockOnKind struct {
	*fakes.ScriptedAutomation
	kind plan.StepKind
}

func (b *blockOnKind) Execute(ctx context.Context, action core.Action) (*core.ActionResult, error) {
	if action.Kind == b.kind {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return b.ScriptedAutomation.Execute(ctx, action)
}

func TestRunJob_WarningStep(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	id := f.createCashJob(t)
	f.auto.Results["step-03"] = &core.ActionResult{Warning: "report took longer than usual to load"}

	status, err := f.runner.RunJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, status)

	rec, err := f.store.ReadJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StepStatusWarning, rec.Logs[2].Status)
	assert.Equal(t, []string{"report took longer than usual to load"}, rec.Logs[2].Reasoning)
}

func TestRunJob_UnknownPlan(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	rec, err := f.store.CreateJob(ctx, testutil.NewJobRequest().WithPlan("retired-plan").Build())
	require.NoError(t, err)

	status, err := f.runner.RunJob(ctx, rec.Job.ID)
	assert.Equal(t, model.JobStatusError, status)
	assert.True(t, apperrors.IsNotFound(err))

	got, err := f.store.ReadJob(ctx, rec.Job.ID)
	require.NoError(t, err)
	require.Len(t, got.Logs, 1)
	assert.Equal(t, model.StepStatusError, got.Logs[0].Status)
}

func TestRunJob_ClaimLostRace(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	id := f.createCashJob(t)
	require.NoError(t, f.store.SetJobStatus(ctx, id, model.JobStatusInProgress))

	_, err := f.runner.RunJob(ctx, id)
	assert.True(t, apperrors.IsInvalidTransition(err))
	assert.Empty(t, f.auto.Actions())
}

func TestExecute_StoreWriteFailedAborts(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockJobStore(ctrl)
	auto := mocks.NewMockAutomation(ctrl)

	r, err := NewRunner(RunnerOptions{Store: store, Automation: auto, Plans: plan.MustBuiltin(), Now: testutil.TestTime})
	require.NoError(t, err)

	rec := model.NewJobRecord(model.Job{
		ID:     3,
		Plan:   "cash-position",
		Params: map[string]string{"start": "a", "end": "b"},
		Status: model.JobStatusInProgress,
	})
	writeErr := apperrors.StoreWriteFailed(errors.New("no space left on device"), "publish record")

	store.EXPECT().ReadJob(gomock.Any(), model.JobID(3)).Return(rec, nil)
	store.EXPECT().AppendStep(gomock.Any(), model.JobID(3), gomock.Any()).Return(nil)
	store.EXPECT().UpdateStep(gomock.Any(), model.JobID(3), "step-01", gomock.Any()).Return(writeErr)
	// No further writes and no automation calls are expected.

	status, err := r.Execute(context.Background(), 3)
	require.Error(t, err)
	assert.Empty(t, status)
	assert.True(t, apperrors.IsStoreWriteFailed(err))
}

func TestExecute_VoidedMidRunStops(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	id := f.createCashJob(t)
	require.NoError(t, f.store.SetJobStatus(ctx, id, model.JobStatusInProgress))

	voidingAuto := &voidOnLogin{ScriptedAutomation: f.auto, store: f.store, id: id}
	f.runner.automation = voidingAuto

	status, err := f.runner.Execute(ctx, id)
	require.Error(t, err)
	assert.Empty(t, status)
	assert.True(t, apperrors.IsInvalidTransition(err))

	rec, err := f.store.ReadJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusVoid, rec.Job.Status)
	assert.Len(t, rec.Logs, 2)
}

// voidOnLogin voids the job while the login action is in flight, as an operator would.
type voidOnLogin struct {
	*fakes.ScriptedAutomation
	store core.JobStore
	id    model.JobID
}

func (v *voidOnLogin) Execute(ctx context.Context, action core.Action) (*core.ActionResult, error) {
	if action.Kind == plan.KindLogin {
		if err := v.store.SetJobStatus(ctx, v.id, model.JobStatusVoid); err != nil {
			return nil, err
		}
	}
	return v.ScriptedAutomation.Execute(ctx, action)
}

func TestPublishFailureFailsStep(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	id := f.createCashJob(t)
	f.publisher.Err = errors.New("bucket missing")
	f.auto.Results["step-02"] = &core.ActionResult{Recording: "/tmp/session.webm"}

	status, err := f.runner.RunJob(ctx, id)
	assert.Equal(t, model.JobStatusError, status)
	assert.True(t, apperrors.IsExternalActionFailed(err))
}

func TestRunJob_FailedStepKeepsCapturedArtifacts(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	id := f.createCashJob(t)

	f.auto.Results["step-02"] = &core.ActionResult{Recording: "/tmp/session.webm"}
	f.auto.Errors["step-04"] = errors.New("Timeout waiting for filter panel")
	f.auto.Results["step-04"] = &core.ActionResult{
		Recording: "/tmp/session.webm",
		Artifacts: []core.ProducedArtifact{{Kind: model.ArtifactKindDocument, Label: "Failure screenshot", Path: "/tmp/failure.png"}},
	}

	status, err := f.runner.RunJob(ctx, id)
	require.Error(t, err)
	assert.Equal(t, model.JobStatusError, status)

	rec, err := f.store.ReadJob(ctx, id)
	require.NoError(t, err)
	require.Len(t, rec.Logs, 4)
	failed := rec.Logs[3]
	assert.Equal(t, model.StepStatusError, failed.Status)
	require.Len(t, failed.Artifacts, 2)
	assert.Equal(t, "Failure screenshot", failed.Artifacts[0].Label)
	assert.Equal(t, "mem://1//tmp/failure.png", failed.Artifacts[0].Locator)
	assert.Equal(t, model.ArtifactKindVideo, failed.Artifacts[1].Kind)
	assert.Equal(t, rec.Logs[1].Artifacts[0].ID, failed.Artifacts[1].ID, "the session recording is shared with earlier steps")

	// The recording once plus the screenshot.
	assert.Len(t, rec.SidebarArtifacts, 2)
}

func TestRunJob_FailureArtifactPublishErrorKeepsStepFailure(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	id := f.createCashJob(t)

	f.auto.Errors["step-02"] = errors.New("invalid one-time password")
	f.auto.Results["step-02"] = &core.ActionResult{Recording: "/tmp/session.webm"}
	f.publisher.Err = errors.New("bucket missing")

	status, err := f.runner.RunJob(ctx, id)
	assert.Equal(t, model.JobStatusError, status)
	assert.ErrorContains(t, err, "invalid one-time password")

	rec, err := f.store.ReadJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StepStatusError, rec.Logs[1].Status)
	assert.Empty(t, rec.Logs[1].Artifacts)
}

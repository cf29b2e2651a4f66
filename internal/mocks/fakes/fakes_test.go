package fakes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/domain/model"
)

func TestScriptedAutomation_ScriptAndDefaults(t *testing.T) {
	a := NewScriptedAutomation()
	a.Results["login"] = &core.ActionResult{Title: "Logged in"}
	a.Errors["filter"] = errors.New("boom")
	ctx := context.Background()

	res, err := a.Execute(ctx, core.Action{StepID: "login"})
	require.NoError(t, err)
	assert.Equal(t, "Logged in", res.Title)

	_, err = a.Execute(ctx, core.Action{StepID: "filter"})
	require.Error(t, err)

	res, err = a.Execute(ctx, core.Action{StepID: "other"})
	require.NoError(t, err)
	assert.NotNil(t, res)

	assert.Len(t, a.Actions(), 3)
}

func TestScriptedAutomation_DelayHonoursContext(t *testing.T) {
	a := NewScriptedAutomation()
	a.Delay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Execute(ctx, core.Action{StepID: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSequenceCredentialSource_RepeatsLast(t *testing.T) {
	s := &SequenceCredentialSource{Creds: []core.Credential{
		{Code: "111111", Remaining: time.Second},
		{Code: "222222", Remaining: 30 * time.Second},
	}}
	ctx := context.Background()

	for _, want := range []string{"111111", "222222", "222222"} {
		c, err := s.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, c.Code)
	}
	assert.Equal(t, 3, s.Calls())
}

func TestMemoryPublisher_Locator(t *testing.T) {
	p := &MemoryPublisher{}
	loc, err := p.Publish(context.Background(), core.PublishRequest{JobID: 7, Kind: model.ArtifactKindDocument, Path: "a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "mem://7/a.pdf", loc)
	assert.Len(t, p.Published(), 1)
}

func TestRecordingEscalator(t *testing.T) {
	e := &RecordingEscalator{Err: errors.New("sink down")}
	err := e.Escalate(context.Background(), core.EscalationRequest{JobID: 1, StepID: "s"})
	require.Error(t, err)
	assert.Len(t, e.Requests(), 1)
}

package troupe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troupe-dev/troupe/agent"
	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/group"
	"github.com/troupe-dev/troupe/model"
	"github.com/troupe-dev/troupe/session"
)

func scriptedAgent(t *testing.T, name string, answers ...string) *agent.Agent {
	t.Helper()
	mock := model.NewMockModel(name)
	for _, a := range answers {
		mock.QueueResponse(a)
	}
	a, err := agent.New(name, mock)
	require.NoError(t, err)
	return a
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRegistration(t *testing.T) {
	tr := New()

	a := scriptedAgent(t, "solo")
	require.NoError(t, tr.RegisterAgent(a))
	assert.ErrorContains(t, tr.RegisterAgent(a), "already registered")

	got, ok := tr.Agent("solo")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = tr.Group("solo")
	assert.False(t, ok)

	_, err := tr.RunAgent(testContext(t), "ghost", core.Inputs{"input": "x"})
	assert.ErrorContains(t, err, `agent "ghost" not registered`)
	_, err = tr.RunGroup(testContext(t), "ghost", core.Inputs{"input": "x"})
	assert.ErrorContains(t, err, `group "ghost" not registered`)
}

func TestRunAgentSync(t *testing.T) {
	tr := New()
	require.NoError(t, tr.RegisterAgent(scriptedAgent(t, "solo", "done")))

	events, answer, err := tr.RunAgentSync(testContext(t), "solo", core.Inputs{"input": "task"})
	require.NoError(t, err)
	assert.Equal(t, "done", answer)
	require.NotEmpty(t, events)
	assert.Equal(t, core.EventStart, events[0].Type)
	assert.Equal(t, core.EventEnd, events[len(events)-1].Type)
}

func TestRunAgentSync_ErrorRun(t *testing.T) {
	tr := New()
	mock := model.NewMockModel("flaky")
	mock.QueueError(errors.New("backend unreachable"))
	a, err := agent.New("flaky", mock)
	require.NoError(t, err)
	require.NoError(t, tr.RegisterAgent(a))

	events, _, err := tr.RunAgentSync(testContext(t), "flaky", core.Inputs{"input": "task"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "backend unreachable")
	assert.ErrorContains(t, err, "Agent:flaky")
	require.NotEmpty(t, events)
	assert.Equal(t, core.EventError, events[len(events)-1].Type)
}

func buildCrew(t *testing.T, answers map[string]string) (*Troupe, core.SessionStore) {
	t.Helper()
	store := session.NewInMemoryStore()
	tr := New(func(o *Options) { o.SessionStore = store })

	a := scriptedAgent(t, "a", answers["a"])
	b := scriptedAgent(t, "b", answers["b"])
	g, err := group.New("crew", []*agent.Agent{a, b}, func(o *group.Options) {
		o.Mode = group.ModeRoundRobin
	})
	require.NoError(t, err)
	require.NoError(t, tr.RegisterGroup(g))
	return tr, store
}

func TestRunGroupSyncAndSessions(t *testing.T) {
	ctx := testContext(t)
	tr, store := buildCrew(t, map[string]string{"a": "draft", "b": "final"})

	events, answer, err := tr.RunGroupSync(ctx, "crew", core.Inputs{"input": "write it"})
	require.NoError(t, err)
	assert.Equal(t, "final", answer)
	assert.Equal(t, core.EventStart, events[0].Type)

	require.NoError(t, tr.SaveSession(ctx, "job-1", "crew"))
	ids, err := tr.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, ids)

	assert.ErrorContains(t, tr.SaveSession(ctx, "job-2", "ghost"), "not registered")

	// A fresh process with the same store picks the run back up.
	tr2 := New(func(o *Options) { o.SessionStore = store })
	a2 := scriptedAgent(t, "a", "again")
	b2 := scriptedAgent(t, "b", "resumed")
	g2, err := group.New("crew", []*agent.Agent{a2, b2}, func(o *group.Options) {
		o.Mode = group.ModeRoundRobin
	})
	require.NoError(t, err)
	require.NoError(t, tr2.RegisterGroup(g2))

	require.NoError(t, tr2.ResumeSession(ctx, "job-1", "crew"))
	events, answer, err = tr2.RunGroupSync(ctx, "crew", core.Inputs{"input": "continue"})
	require.NoError(t, err)
	assert.Equal(t, "resumed", answer)
	assert.Equal(t, core.EventResume, events[0].Type)
}

func TestResumeSession_Failures(t *testing.T) {
	ctx := testContext(t)
	tr, _ := buildCrew(t, map[string]string{"a": "draft", "b": "final"})

	err := tr.ResumeSession(ctx, "missing", "crew")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	assert.ErrorContains(t, tr.ResumeSession(ctx, "missing", "ghost"), "not registered")

	// Snapshot saved from a differently shaped group must not restore.
	_, _, err = tr.RunGroupSync(ctx, "crew", core.Inputs{"input": "go"})
	require.NoError(t, err)
	require.NoError(t, tr.SaveSession(ctx, "job-1", "crew"))

	other := New(func(o *Options) { o.SessionStore = tr.store })
	c := scriptedAgent(t, "c", "answer")
	g, err := group.New("crew", []*agent.Agent{c}, func(o *group.Options) {
		o.Mode = group.ModeRoundRobin
	})
	require.NoError(t, err)
	require.NoError(t, other.RegisterGroup(g))

	err = other.ResumeSession(ctx, "job-1", "crew")
	var mismatch *core.StateMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "members", mismatch.Field)
}

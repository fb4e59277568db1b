package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Danni-Agent/internal/a2a"
	xerrors "Danni-Agent/internal/errors"
	"Danni-Agent/internal/observability/alerting"
	"Danni-Agent/internal/swarm"
	"Danni-Agent/internal/tracker"
)

type stubExecutor struct {
	mu     sync.Mutex
	calls  []swarm.Input
	output *swarm.Output
	err    error
}

func (s *stubExecutor) Execute(_ context.Context, in swarm.Input, _ *tracker.Tracker) (*swarm.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, in)
	if s.err != nil {
		return nil, s.err
	}
	if s.output != nil {
		return s.output, nil
	}
	out := &swarm.Output{Brief: in.Brief, Metadata: swarm.Metadata{AgentsUsed: 5, TxHashes: []string{}}}
	out.Analysis.Synthesis = "Synthesis for " + in.Brief
	return out, nil
}

func (s *stubExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recordingAlerter struct {
	events []alerting.Event
}

func (r *recordingAlerter) Notify(_ context.Context, e alerting.Event) error {
	r.events = append(r.events, e)
	return nil
}

func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func userMessage(texts ...string) a2a.Message {
	parts := make([]a2a.Part, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, a2a.TextPart(t))
	}
	return a2a.Message{Role: a2a.RoleUser, Parts: parts}
}

func fixedClock() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func newTestRegistry(exec Executor, opts ...Option) (*Registry, *MemoryStore) {
	store := NewMemoryStore()
	base := []Option{WithStore(store), WithIDGenerator(sequentialIDs()), WithClock(fixedClock)}
	return NewRegistry(exec, append(base, opts...)...), store
}

func seedTask(t *testing.T, store *MemoryStore, id string, state a2a.TaskState) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), &a2a.Task{
		ID:        id,
		ContextID: "ctx-" + id,
		Status:    a2a.TaskStatus{State: state},
		Artifacts: []a2a.Artifact{},
		History:   []a2a.Message{userMessage("brief")},
	}))
}

func TestCreateIndexesContext(t *testing.T) {
	r, _ := newTestRegistry(&stubExecutor{})
	ctx := context.Background()

	first, err := r.Create(ctx, userMessage("hello"), "")
	require.NoError(t, err)
	assert.Equal(t, "id-2", first.ID)
	assert.Equal(t, "id-1", first.ContextID)
	assert.Equal(t, a2a.StateSubmitted, first.Status.State)
	assert.Equal(t, "2026-03-01T12:00:00Z", first.Status.Timestamp)
	assert.Empty(t, first.Artifacts)
	require.Len(t, first.History, 1)

	found, err := r.FindByContextID(ctx, first.ContextID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	second, err := r.Create(ctx, userMessage("again"), first.ContextID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ContextID, second.ContextID)

	found, err = r.FindByContextID(ctx, first.ContextID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID, "context keeps its first task")
}

func TestGetUnknownTask(t *testing.T) {
	r, _ := newTestRegistry(&stubExecutor{})
	_, err := r.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, "Task not found: missing", err.Error())
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.Equal(t, a2a.RPCTaskNotFound, xerrors.RPCCodeOf(err))

	_, err = r.FindByContextID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestUpdateStatusFollowsTransitionTable(t *testing.T) {
	ctx := context.Background()
	for _, from := range a2a.AllStates() {
		for _, to := range a2a.AllStates() {
			r, store := newTestRegistry(&stubExecutor{})
			seedTask(t, store, "t", from)

			updated, err := r.UpdateStatus(ctx, "t", to, a2a.AgentMessage("note", nil))
			if a2a.CanTransition(from, to) {
				require.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, updated.Status.State)
				require.NotNil(t, updated.Status.Message)
				assert.Equal(t, []string{"note"}, updated.Status.Message.Texts())
				continue
			}
			require.Error(t, err, "%s -> %s", from, to)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, fmt.Sprintf("Task t: invalid transition from '%s' to '%s'", from, to), err.Error())

			unchanged, getErr := r.Get(ctx, "t")
			require.NoError(t, getErr)
			assert.Equal(t, from, unchanged.Status.State)
		}
	}
}

func TestAddArtifactPolicy(t *testing.T) {
	ctx := context.Background()
	cases := map[a2a.TaskState]bool{
		a2a.StateSubmitted:     true,
		a2a.StateWorking:       true,
		a2a.StateInputRequired: true,
		a2a.StateCompleted:     true,
		a2a.StateFailed:        false,
		a2a.StateCanceled:      false,
		a2a.StateRejected:      false,
	}
	for state, allowed := range cases {
		r, store := newTestRegistry(&stubExecutor{})
		seedTask(t, store, "t", state)

		got, err := r.AddArtifact(ctx, "t", a2a.Artifact{ArtifactID: "a", Name: "receipt"})
		if allowed {
			require.NoError(t, err, state)
			assert.Len(t, got.Artifacts, 1)
			continue
		}
		require.Error(t, err, state)
		assert.ErrorIs(t, err, ErrTaskMutation)
		assert.Equal(t, fmt.Sprintf("Task t: cannot add artifact in terminal state '%s'", state), err.Error())
	}
}

func TestAddMessageAppends(t *testing.T) {
	r, store := newTestRegistry(&stubExecutor{})
	seedTask(t, store, "t", a2a.StateCompleted)

	got, err := r.AddMessage(context.Background(), "t", *a2a.AgentMessage("late note", nil))
	require.NoError(t, err)
	require.Len(t, got.History, 2)
	assert.Equal(t, a2a.RoleAgent, got.History[1].Role)

	_, err = r.AddMessage(context.Background(), "missing", userMessage("x"))
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestResumeOnlyFromInputRequired(t *testing.T) {
	r, _ := newTestRegistry(&stubExecutor{})
	ctx := context.Background()

	created, err := r.Create(ctx, userMessage("brief"), "")
	require.NoError(t, err)
	_, err = r.UpdateStatus(ctx, created.ID, a2a.StateWorking, nil)
	require.NoError(t, err)
	_, err = r.UpdateStatus(ctx, created.ID, a2a.StateInputRequired, nil)
	require.NoError(t, err)

	resumed, err := r.Resume(ctx, created.ID, userMessage("payment"), a2a.AgentMessage("resuming", nil))
	require.NoError(t, err)
	assert.Equal(t, a2a.StateWorking, resumed.Status.State)
	assert.Len(t, resumed.History, 2)

	_, err = r.Resume(ctx, created.ID, userMessage("second payment"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, fmt.Sprintf("Task %s: invalid transition from 'working' to 'working'", created.ID), err.Error())

	after, err := r.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, after.History, 2)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	for _, state := range a2a.AllStates() {
		r, store := newTestRegistry(&stubExecutor{})
		seedTask(t, store, "t", state)

		got, err := r.Cancel(ctx, "t")
		if state.IsTerminal() {
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTaskNotCancelable)
			assert.Equal(t, fmt.Sprintf("Task t is in terminal state: %s", state), err.Error())
			assert.Equal(t, a2a.RPCTaskNotCancelable, xerrors.RPCCodeOf(err))
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, a2a.StateCanceled, got.Status.State)
		assert.Nil(t, got.Status.Message)
	}
}

func TestProcessSuccess(t *testing.T) {
	exec := &stubExecutor{}
	r, _ := newTestRegistry(exec)
	ctx := context.Background()

	created, err := r.Create(ctx, userMessage("Launch", "an oat milk"), "")
	require.NoError(t, err)

	done, err := r.Process(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, a2a.StateCompleted, done.Status.State)
	assert.Equal(t, []string{"Task completed successfully."}, done.Status.Message.Texts())
	require.Equal(t, 1, exec.callCount())
	assert.Equal(t, "Launch\nan oat milk", exec.calls[0].Brief)

	artifact, ok := done.FindArtifact(ArtifactBrandAnalysis)
	require.True(t, ok)
	assert.Equal(t, "Strategic brand analysis from Danni", artifact.Description)
	require.Len(t, artifact.Parts, 2)
	assert.Equal(t, "Synthesis for Launch\nan oat milk", artifact.Parts[0].Text)
	var decoded swarm.Output
	require.NoError(t, artifact.Parts[1].DecodeData(&decoded))
	assert.Equal(t, 5, decoded.Metadata.AgentsUsed)
	assert.Equal(t, "application/json", artifact.Parts[1].MimeType)

	last := done.History[len(done.History)-1]
	assert.Equal(t, []string{"Analysis complete. Results attached as artifact."}, last.Texts())
}

func TestProcessAlreadyWorkingSkipsTransition(t *testing.T) {
	exec := &stubExecutor{}
	r, store := newTestRegistry(exec)
	seedTask(t, store, "t", a2a.StateWorking)

	done, err := r.Process(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, a2a.StateCompleted, done.Status.State)
	assert.Equal(t, 1, exec.callCount())
}

func TestProcessIgnoresAgentText(t *testing.T) {
	exec := &stubExecutor{}
	r, _ := newTestRegistry(exec)
	ctx := context.Background()

	created, err := r.Create(ctx, userMessage("user brief"), "")
	require.NoError(t, err)
	_, err = r.AddMessage(ctx, created.ID, *a2a.AgentMessage("agent chatter", nil))
	require.NoError(t, err)

	_, err = r.Process(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "user brief", exec.calls[0].Brief)
}

func TestProcessBlankBrief(t *testing.T) {
	exec := &stubExecutor{}
	r, _ := newTestRegistry(exec)
	ctx := context.Background()

	dataOnly := a2a.Message{Role: a2a.RoleUser, Parts: []a2a.Part{{Type: a2a.PartData, MimeType: "application/json", Data: []byte(`{}`)}}}
	created, err := r.Create(ctx, dataOnly, "")
	require.NoError(t, err)

	done, err := r.Process(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, a2a.StateFailed, done.Status.State)
	assert.Equal(t, []string{"Task failed: empty brief"}, done.Status.Message.Texts())
	assert.Equal(t, []string{"No text content found in user messages."}, done.History[len(done.History)-1].Texts())
	assert.Zero(t, exec.callCount())
}

func TestProcessExecutorFailure(t *testing.T) {
	exec := &stubExecutor{err: errors.New("Danni synthesis failed: boom")}
	alerts := &recordingAlerter{}
	r, _ := newTestRegistry(exec, WithAlerter(alerts))
	ctx := context.Background()

	created, err := r.Create(ctx, userMessage("brief"), "")
	require.NoError(t, err)

	done, err := r.Process(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, a2a.StateFailed, done.Status.State)
	assert.Equal(t, []string{"Task failed: Danni synthesis failed: boom"}, done.Status.Message.Texts())
	assert.Equal(t, []string{"Analysis failed: Danni synthesis failed: boom"}, done.History[len(done.History)-1].Texts())
	assert.Empty(t, done.Artifacts)

	require.Len(t, alerts.events, 1)
	assert.Equal(t, CodeTaskProcessing, alerts.events[0].Code)
	assert.Equal(t, created.ID, alerts.events[0].TaskID)
}

func TestProcessTerminalTaskReturnsCurrent(t *testing.T) {
	exec := &stubExecutor{}
	r, store := newTestRegistry(exec)
	seedTask(t, store, "t", a2a.StateCanceled)

	got, err := r.Process(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, a2a.StateCanceled, got.Status.State)
	assert.Zero(t, exec.callCount())
}

func TestProcessUnknownTask(t *testing.T) {
	r, _ := newTestRegistry(&stubExecutor{})
	_, err := r.Process(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestProcessCanceledDuringExecution(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	exec := &blockingExecutor{started: started, release: release}
	r, _ := newTestRegistry(exec)
	ctx := context.Background()

	created, err := r.Create(ctx, userMessage("brief"), "")
	require.NoError(t, err)

	done := make(chan *a2a.Task, 1)
	go func() {
		got, _ := r.Process(ctx, created.ID)
		done <- got
	}()
	<-started
	_, err = r.Cancel(ctx, created.ID)
	require.NoError(t, err)
	close(release)

	got := <-done
	assert.Equal(t, a2a.StateCanceled, got.Status.State)
	assert.Equal(t, []string{"Analysis failed: Task " + created.ID + ": cannot add artifact in terminal state 'canceled'"},
		got.History[len(got.History)-1].Texts())
}

type blockingExecutor struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingExecutor) Execute(_ context.Context, in swarm.Input, _ *tracker.Tracker) (*swarm.Output, error) {
	close(b.started)
	<-b.release
	return &swarm.Output{Brief: in.Brief}, nil
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedTask(t, store, "t", a2a.StateSubmitted)

	got, err := store.Get(ctx, "t")
	require.NoError(t, err)
	got.History = append(got.History, userMessage("mutated"))
	got.Status.State = a2a.StateFailed

	again, err := store.Get(ctx, "t")
	require.NoError(t, err)
	assert.Len(t, again.History, 1)
	assert.Equal(t, a2a.StateSubmitted, again.Status.State)
	assert.Equal(t, 1, store.Len())

	ok, err := store.IndexContext(ctx, "c", "t")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.IndexContext(ctx, "c", "other")
	require.NoError(t, err)
	assert.False(t, ok)
	id, found, err := store.LookupContext(ctx, "c")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "t", id)
}

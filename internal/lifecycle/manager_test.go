package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/dispatcher"
	queuememory "github.com/JakeFAU/insight-discovery/internal/queue/memory"
	"github.com/JakeFAU/insight-discovery/internal/storage/memory"
	"github.com/JakeFAU/insight-discovery/internal/upstream"
)

type fakeIDGen struct{ id string }

func (f fakeIDGen) NewID() (string, error) { return f.id, nil }

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

type fakeSource struct {
	discovery.Source
	probeErr error
	probed   int
}

func (f *fakeSource) Probe(context.Context, discovery.Credential) error {
	f.probed++
	return f.probeErr
}

type fakeTokens struct{ cancelled []string }

func (f *fakeTokens) Cancel(id string) bool {
	f.cancelled = append(f.cancelled, id)
	return true
}

type fixture struct {
	store   *memory.Store
	queue   *queuememory.Queue
	source  *fakeSource
	tokens  *fakeTokens
	manager *Manager
}

func newFixture(cred discovery.CredentialSource) *fixture {
	f := &fixture{
		store:  memory.NewStore(),
		queue:  queuememory.NewQueue(2),
		source: &fakeSource{},
		tokens: &fakeTokens{},
	}
	f.manager = New(f.store, cred, f.source, dispatcher.New(f.queue, nil), f.tokens, fakeIDGen{id: "task-1"},
		fakeClock{now: time.Unix(1700000000, 0).UTC()},
		Config{
			TargetCount: 30,
			Selection: discovery.ProviderSelection{
				Keyword: discovery.ProviderGemini, Reasoning: discovery.ProviderGemini,
				Embedding: discovery.ProviderGemini, Speed: discovery.SpeedMedium,
			},
			LogPath: "discovery.log",
		}, nil)
	return f
}

func validCreds() discovery.CredentialSource {
	return upstream.StaticSource{Credential: discovery.Credential{Token: "tok", Cookie: "c=1"}}
}

func TestCreateQueuesPendingTask(t *testing.T) {
	t.Parallel()
	f := newFixture(validCreds())

	id, err := f.manager.Create(context.Background(), discovery.CreateRequest{
		Prompt:    "  supply chain risk ",
		Selection: discovery.ProviderSelection{Reasoning: discovery.ProviderDeepSeek},
	})
	require.NoError(t, err)
	require.Equal(t, "task-1", id)

	task, err := f.store.GetTask(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, discovery.StatusPending, task.Status)
	require.Equal(t, "supply chain risk", task.Prompt)
	require.Equal(t, 30, task.TargetCount)

	item, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, id, item.TaskID)
	require.Equal(t, discovery.ProviderDeepSeek, item.Request.Selection.Reasoning)
	require.Equal(t, discovery.ProviderGemini, item.Request.Selection.Keyword)
	require.Equal(t, discovery.SpeedMedium, item.Request.Selection.Speed)
}

func TestCreateWithoutCredential(t *testing.T) {
	t.Parallel()
	f := newFixture(upstream.StaticSource{})

	_, err := f.manager.Create(context.Background(), discovery.CreateRequest{Prompt: "p"})
	require.ErrorIs(t, err, discovery.ErrAuthRequired)
	require.Zero(t, f.queue.Len())
	tasks, err := f.store.ListTasks(context.Background())
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestCreateFailedProbe(t *testing.T) {
	t.Parallel()
	f := newFixture(validCreds())
	f.source.probeErr = errors.New("connection reset")

	_, err := f.manager.Create(context.Background(), discovery.CreateRequest{Prompt: "p"})
	require.ErrorIs(t, err, discovery.ErrAuthInvalid)
	require.Zero(t, f.queue.Len())
}

func TestCreateValidatesInput(t *testing.T) {
	t.Parallel()
	f := newFixture(validCreds())

	_, err := f.manager.Create(context.Background(), discovery.CreateRequest{Prompt: " "})
	require.ErrorIs(t, err, discovery.ErrInvalidArgument)
	_, err = f.manager.Create(context.Background(), discovery.CreateRequest{Prompt: "p", TargetCount: -1})
	require.ErrorIs(t, err, discovery.ErrInvalidArgument)
	require.Zero(t, f.source.probed)
}

func TestCreateRejectsWhenQueueFull(t *testing.T) {
	t.Parallel()
	f := newFixture(validCreds())
	require.NoError(t, f.queue.TryEnqueue(discovery.QueueItem{TaskID: "a"}))
	require.NoError(t, f.queue.TryEnqueue(discovery.QueueItem{TaskID: "b"}))

	_, err := f.manager.Create(context.Background(), discovery.CreateRequest{Prompt: "p"})
	require.ErrorIs(t, err, queuememory.ErrQueueFull)

	task, err := f.store.GetTask(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, discovery.StatusFailed, task.Status)
	require.Contains(t, *task.CompletionReason, "task queue is full")
}

func TestCancelMarksCancellingAndFiresToken(t *testing.T) {
	t.Parallel()
	f := newFixture(validCreds())
	id, err := f.manager.Create(context.Background(), discovery.CreateRequest{Prompt: "p"})
	require.NoError(t, err)

	require.NoError(t, f.manager.Cancel(context.Background(), id))
	status, err := f.store.GetStatus(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, discovery.StatusCancelling, status)
	require.Equal(t, []string{id}, f.tokens.cancelled)
}

func TestCancelFinishedTaskIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(validCreds())
	require.NoError(t, f.store.CreateTask(context.Background(), discovery.Task{ID: "done", Status: discovery.StatusCompleted}))

	require.NoError(t, f.manager.Cancel(context.Background(), "done"))
	status, err := f.store.GetStatus(context.Background(), "done")
	require.NoError(t, err)
	require.Equal(t, discovery.StatusCompleted, status)
	require.Empty(t, f.tokens.cancelled)
}

func TestCancelUnknownTask(t *testing.T) {
	t.Parallel()
	f := newFixture(validCreds())
	require.ErrorIs(t, f.manager.Cancel(context.Background(), "missing"), discovery.ErrNotFound)
}

func TestDeleteAndGet(t *testing.T) {
	t.Parallel()
	f := newFixture(validCreds())
	id, err := f.manager.Create(context.Background(), discovery.CreateRequest{Prompt: "p"})
	require.NoError(t, err)

	detail, err := f.manager.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, detail.Task.ID)
	require.NotNil(t, detail.Articles)

	require.NoError(t, f.manager.Delete(context.Background(), id))
	require.Equal(t, []string{id}, f.tokens.cancelled)
	_, err = f.manager.Get(context.Background(), id)
	require.ErrorIs(t, err, discovery.ErrNotFound)
}

func TestSweep(t *testing.T) {
	t.Parallel()
	f := newFixture(validCreds())
	ctx := context.Background()
	require.NoError(t, f.store.CreateTask(ctx, discovery.Task{ID: "a", Status: discovery.StatusProcessing}))
	require.NoError(t, f.store.CreateTask(ctx, discovery.Task{ID: "b", Status: discovery.StatusCancelling}))
	require.NoError(t, f.store.CreateTask(ctx, discovery.Task{ID: "c", Status: discovery.StatusCompleted}))

	n, err := f.manager.Sweep(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	task, err := f.store.GetTask(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, discovery.StatusFailed, task.Status)
	require.Equal(t, discovery.ReasonInterrupted, *task.CompletionReason)
}

// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus/internal/models"
)

// MockStreamer implements models.Streamer with a per-model stream function
type MockStreamer struct {
	mu         sync.Mutex
	streamFunc map[string]func(ctx context.Context, req models.Request) <-chan models.Event
	calls      []models.Request
}

func NewMockStreamer() *MockStreamer {
	return &MockStreamer{
		streamFunc: make(map[string]func(ctx context.Context, req models.Request) <-chan models.Event),
	}
}

func (m *MockStreamer) On(modelID string, fn func(ctx context.Context, req models.Request) <-chan models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamFunc[modelID] = fn
}

func (m *MockStreamer) Stream(ctx context.Context, req models.Request) <-chan models.Event {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.streamFunc[req.ModelID]
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	// Default: return a simple response
	return events(models.Delta("Mock response from "+req.ModelID), models.Done())
}

func (m *MockStreamer) Calls() []models.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Request(nil), m.calls...)
}

// events returns a closed channel pre-filled with evs
func events(evs ...models.Event) <-chan models.Event {
	ch := make(chan models.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	return ch
}

func script(evs ...models.Event) func(context.Context, models.Request) <-chan models.Event {
	return func(context.Context, models.Request) <-chan models.Event {
		return events(evs...)
	}
}

// blockUntilCancel emits nothing and closes once ctx is done
func blockUntilCancel(started chan<- struct{}) func(context.Context, models.Request) <-chan models.Event {
	return func(ctx context.Context, _ models.Request) <-chan models.Event {
		ch := make(chan models.Event)
		go func() {
			defer close(ch)
			if started != nil {
				started <- struct{}{}
			}
			<-ctx.Done()
		}()
		return ch
	}
}

// gated signals started, then waits for release before emitting evs
func gated(started chan<- struct{}, release <-chan struct{}, evs ...models.Event) func(context.Context, models.Request) <-chan models.Event {
	return func(ctx context.Context, _ models.Request) <-chan models.Event {
		ch := make(chan models.Event)
		go func() {
			defer close(ch)
			if started != nil {
				started <- struct{}{}
			}
			select {
			case <-release:
			case <-ctx.Done():
				return
			}
			for _, ev := range evs {
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch
	}
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) observe(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

type recordingNotifier struct {
	mu        sync.Mutex
	started   []string
	failed    []string
	completed [][2]int
}

func (n *recordingNotifier) TurnStarted(turnID string, modelIDs []string, mode string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, turnID)
}

func (n *recordingNotifier) ModelFailed(turnID, modelID, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, modelID+": "+message)
}

func (n *recordingNotifier) TurnCompleted(turnID string, succeeded, failed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, [2]int{succeeded, failed})
}

func rateLimited() error {
	return &models.RequestError{Status: 429, Message: "Rate limit exceeded."}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
}

func TestSendCollectsEveryModel(t *testing.T) {
	streamer := NewMockStreamer()
	streamer.On("gpt-4o", script(
		models.Delta("Recursion"),
		models.Delta(" is"),
		models.Delta(" self-reference."),
		models.Done(),
	))
	streamer.On("claude-sonnet", script(models.Failed(rateLimited())))

	o := New(streamer)
	err := o.Send(context.Background(), "Explain recursion", []string{"gpt-4o", "claude-sonnet"}, "general")
	require.NoError(t, err)

	turn := o.Snapshot()
	assert.Equal(t, "Explain recursion", turn.Message)
	assert.Equal(t, []string{"gpt-4o", "claude-sonnet"}, turn.Models)
	assert.NotEmpty(t, turn.ID)
	assert.False(t, turn.Streaming())

	assert.Equal(t, &ResponseState{ModelID: "gpt-4o", Content: "Recursion is self-reference."}, turn.State("gpt-4o"))
	assert.Equal(t, &ResponseState{ModelID: "claude-sonnet", Error: "Rate limit exceeded."}, turn.State("claude-sonnet"))
}

func TestSendBuildsRequests(t *testing.T) {
	streamer := NewMockStreamer()
	o := New(streamer)
	require.NoError(t, o.Send(context.Background(), "hi", []string{"gpt-4o", "deepseek"}, "coding"))

	calls := streamer.Calls()
	require.Len(t, calls, 2)
	seen := map[string]bool{}
	for _, req := range calls {
		seen[req.ModelID] = true
		assert.Equal(t, "coding", req.Mode)
		assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "hi"}}, req.Messages)
	}
	assert.Equal(t, map[string]bool{"gpt-4o": true, "deepseek": true}, seen)
}

func TestSendMarksAllStreamingBeforeLaunch(t *testing.T) {
	rec := &recorder{}
	o := New(NewMockStreamer(), WithObserver(rec.observe))
	require.NoError(t, o.Send(context.Background(), "hi", []string{"gpt-4o", "claude-sonnet", "qwen3"}, "general"))

	updates := rec.all()
	require.GreaterOrEqual(t, len(updates), 3)
	for i, id := range []string{"gpt-4o", "claude-sonnet", "qwen3"} {
		assert.Equal(t, id, updates[i].State.ModelID)
		assert.True(t, updates[i].State.Pending())
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	streamer := NewMockStreamer()
	o := New(streamer)

	for _, msg := range []string{"", "   ", "\n\t"} {
		err := o.Send(context.Background(), msg, []string{"gpt-4o"}, "general")
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	assert.Empty(t, streamer.Calls())
	assert.Empty(t, o.Snapshot().ID)
}

func TestSendDeduplicatesModels(t *testing.T) {
	streamer := NewMockStreamer()
	o := New(streamer)
	require.NoError(t, o.Send(context.Background(), "hi", []string{"gpt-4o", " gpt-4o", "", "deepseek"}, "general"))

	assert.Equal(t, []string{"gpt-4o", "deepseek"}, o.Snapshot().Models)
	assert.Len(t, streamer.Calls(), 2)
}

func TestFailureDoesNotAffectSibling(t *testing.T) {
	streamer := NewMockStreamer()
	streamer.On("gpt-4o", script(models.Failed(&models.NetworkError{Err: context.DeadlineExceeded})))
	streamer.On("claude-sonnet", script(models.Delta("still "), models.Delta("here"), models.Done()))

	o := New(streamer)
	require.NoError(t, o.Send(context.Background(), "hi", []string{"gpt-4o", "claude-sonnet"}, "general"))

	turn := o.Snapshot()
	assert.True(t, turn.State("gpt-4o").Failed())
	assert.Equal(t, "still here", turn.State("claude-sonnet").Content)
	assert.False(t, turn.State("claude-sonnet").Failed())
}

func TestSlowModelDoesNotBlockFast(t *testing.T) {
	release := make(chan struct{})
	streamer := NewMockStreamer()
	streamer.On("slow", func(ctx context.Context, _ models.Request) <-chan models.Event {
		ch := make(chan models.Event)
		go func() {
			defer close(ch)
			<-release
			ch <- models.Delta("late")
			ch <- models.Done()
		}()
		return ch
	})
	streamer.On("fast", script(models.Delta("quick"), models.Done()))

	fastDone := make(chan struct{})
	var once sync.Once
	o := New(streamer, WithObserver(func(u Update) {
		if u.State.ModelID == "fast" && !u.State.IsStreaming {
			once.Do(func() { close(fastDone) })
		}
	}))

	sent := make(chan error, 1)
	go func() {
		sent <- o.Send(context.Background(), "hi", []string{"slow", "fast"}, "general")
	}()

	waitFor(t, fastDone)
	slow, _ := o.State("slow")
	assert.True(t, slow.IsStreaming)
	assert.True(t, o.Streaming())

	close(release)
	require.NoError(t, <-sent)
	slow, _ = o.State("slow")
	assert.Equal(t, "late", slow.Content)
	assert.False(t, o.Streaming())
}

func TestRetryOnlyTouchesTargetModel(t *testing.T) {
	streamer := NewMockStreamer()
	streamer.On("gpt-4o", script(models.Delta("Recursion is self-reference."), models.Done()))
	streamer.On("claude-sonnet", script(models.Failed(rateLimited())))

	o := New(streamer)
	require.NoError(t, o.Send(context.Background(), "Explain recursion", []string{"gpt-4o", "claude-sonnet"}, "general"))

	before := o.Snapshot()
	gptBefore := before.State("gpt-4o")

	streamer.On("claude-sonnet", script(models.Delta("A function calling itself."), models.Done()))
	require.NoError(t, o.Retry(context.Background(), "claude-sonnet"))

	after := o.Snapshot()
	assert.Same(t, gptBefore, after.State("gpt-4o"))
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, &ResponseState{ModelID: "claude-sonnet", Content: "A function calling itself."}, after.State("claude-sonnet"))

	calls := streamer.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "claude-sonnet", calls[2].ModelID)
	assert.Equal(t, "Explain recursion", calls[2].Messages[0].Content)
	assert.Equal(t, "general", calls[2].Mode)
}

func TestRetryClearsPreviousError(t *testing.T) {
	streamer := NewMockStreamer()
	streamer.On("deepseek", script(models.Failed(rateLimited())))

	rec := &recorder{}
	o := New(streamer, WithObserver(rec.observe))
	require.NoError(t, o.Send(context.Background(), "hi", []string{"deepseek"}, "general"))

	streamer.On("deepseek", script(models.Done()))
	require.NoError(t, o.Retry(context.Background(), "deepseek"))

	updates := rec.all()
	// pending, failed, pending again, done
	require.Len(t, updates, 4)
	assert.True(t, updates[2].State.Pending())
	assert.Empty(t, updates[2].State.Error)

	st, _ := o.State("deepseek")
	assert.False(t, st.IsStreaming)
	assert.Empty(t, st.Error)
	assert.Empty(t, st.Content)
}

func TestRetryWithoutTurn(t *testing.T) {
	o := New(NewMockStreamer())
	assert.ErrorIs(t, o.Retry(context.Background(), "gpt-4o"), ErrNoTurn)
}

func TestStaleAttemptEventsIgnored(t *testing.T) {
	stale := make(chan models.Event)
	launched := make(chan struct{})

	streamer := NewMockStreamer()
	// First attempt ignores cancellation so its events arrive after the retry
	streamer.On("gpt-4o", func(context.Context, models.Request) <-chan models.Event {
		close(launched)
		return stale
	})

	o := New(streamer)
	sent := make(chan error, 1)
	go func() {
		sent <- o.Send(context.Background(), "hi", []string{"gpt-4o"}, "general")
	}()
	waitFor(t, launched)

	streamer.On("gpt-4o", script(models.Delta("fresh"), models.Done()))
	require.NoError(t, o.Retry(context.Background(), "gpt-4o"))

	stale <- models.Delta("stale")
	stale <- models.Failed(rateLimited())
	close(stale)
	require.NoError(t, <-sent)

	st, _ := o.State("gpt-4o")
	assert.Equal(t, &ResponseState{ModelID: "gpt-4o", Content: "fresh"}, st)
}

func TestNewSendReplacesTurn(t *testing.T) {
	o := New(NewMockStreamer())
	require.NoError(t, o.Send(context.Background(), "first", []string{"gpt-4o", "deepseek"}, "general"))
	firstID := o.Snapshot().ID

	require.NoError(t, o.Send(context.Background(), "second", []string{"qwen3"}, "creative"))
	turn := o.Snapshot()

	assert.NotEqual(t, firstID, turn.ID)
	assert.Equal(t, "second", turn.Message)
	assert.Equal(t, "creative", turn.Mode)
	assert.Equal(t, []string{"qwen3"}, turn.Models)
	assert.Nil(t, turn.State("gpt-4o"))
}

func TestCancelStopsStreams(t *testing.T) {
	started := make(chan struct{}, 2)
	streamer := NewMockStreamer()
	streamer.On("gpt-4o", blockUntilCancel(started))
	streamer.On("claude-sonnet", blockUntilCancel(started))

	rec := &recorder{}
	o := New(streamer, WithObserver(rec.observe))
	sent := make(chan error, 1)
	go func() {
		sent <- o.Send(context.Background(), "hi", []string{"gpt-4o", "claude-sonnet"}, "general")
	}()
	waitFor(t, started)
	waitFor(t, started)

	o.Cancel()
	require.NoError(t, <-sent)

	turn := o.Snapshot()
	for _, id := range turn.Models {
		st := turn.State(id)
		assert.False(t, st.IsStreaming)
		assert.Equal(t, CancelledMessage, st.Error)
	}

	// Nothing after the cancellation updates
	updates := rec.all()
	require.Len(t, updates, 4)
	for _, u := range updates[2:] {
		assert.Equal(t, CancelledMessage, u.State.Error)
	}

	streamer.On("gpt-4o", script(models.Delta("back"), models.Done()))
	require.NoError(t, o.Retry(context.Background(), "gpt-4o"))
	st, _ := o.State("gpt-4o")
	assert.Equal(t, "back", st.Content)
}

func TestCancelWithoutTurn(t *testing.T) {
	o := New(NewMockStreamer())
	assert.NotPanics(t, o.Cancel)
}

func TestCallerContextCancelsStreams(t *testing.T) {
	started := make(chan struct{}, 1)
	streamer := NewMockStreamer()
	streamer.On("gpt-4o", blockUntilCancel(started))

	ctx, cancel := context.WithCancel(context.Background())
	o := New(streamer)
	sent := make(chan error, 1)
	go func() {
		sent <- o.Send(ctx, "hi", []string{"gpt-4o"}, "general")
	}()
	waitFor(t, started)
	cancel()
	require.NoError(t, <-sent)

	st, _ := o.State("gpt-4o")
	assert.False(t, st.IsStreaming)
	assert.Equal(t, CancelledMessage, st.Error)
}

func TestCallerContextCancelsRetry(t *testing.T) {
	streamer := NewMockStreamer()
	streamer.On("claude-sonnet", script(models.Failed(rateLimited())))

	o := New(streamer)
	require.NoError(t, o.Send(context.Background(), "hi", []string{"gpt-4o", "claude-sonnet"}, "general"))
	gpt, _ := o.State("gpt-4o")

	started := make(chan struct{}, 1)
	streamer.On("claude-sonnet", blockUntilCancel(started))

	ctx, cancel := context.WithCancel(context.Background())
	retried := make(chan error, 1)
	go func() {
		retried <- o.Retry(ctx, "claude-sonnet")
	}()
	waitFor(t, started)
	cancel()
	require.NoError(t, <-retried)

	st, _ := o.State("claude-sonnet")
	assert.Equal(t, &ResponseState{ModelID: "claude-sonnet", Error: CancelledMessage}, st)
	assert.False(t, o.Streaming())

	after, _ := o.State("gpt-4o")
	assert.Same(t, gpt, after)

	streamer.On("claude-sonnet", script(models.Delta("back"), models.Done()))
	require.NoError(t, o.Retry(context.Background(), "claude-sonnet"))
	st, _ = o.State("claude-sonnet")
	assert.Equal(t, "back", st.Content)
}

func TestTurnCompletedWaitsForRunningRetry(t *testing.T) {
	firstStarted := make(chan struct{}, 1)
	releaseGemini := make(chan struct{})
	streamer := NewMockStreamer()
	streamer.On("gpt-4o", blockUntilCancel(firstStarted))
	streamer.On("gemini-pro", gated(nil, releaseGemini, models.Delta("ok"), models.Done()))

	n := &recordingNotifier{}
	o := New(streamer, WithNotifier(n))
	sent := make(chan error, 1)
	go func() {
		sent <- o.Send(context.Background(), "hi", []string{"gpt-4o", "gemini-pro"}, "general")
	}()
	waitFor(t, firstStarted)

	retryStarted := make(chan struct{}, 1)
	releaseRetry := make(chan struct{})
	streamer.On("gpt-4o", gated(retryStarted, releaseRetry, models.Delta("again"), models.Done()))
	retried := make(chan error, 1)
	go func() {
		retried <- o.Retry(context.Background(), "gpt-4o")
	}()
	waitFor(t, retryStarted)

	close(releaseGemini)
	require.NoError(t, <-sent)

	n.mu.Lock()
	assert.Empty(t, n.completed, "turn must not complete while a retry runs")
	n.mu.Unlock()

	close(releaseRetry)
	require.NoError(t, <-retried)

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, [][2]int{{2, 0}}, n.completed)
}

func TestStreamClosedWithoutTerminalIsDone(t *testing.T) {
	streamer := NewMockStreamer()
	streamer.On("gpt-4o", script(models.Delta("no sentinel")))

	o := New(streamer)
	require.NoError(t, o.Send(context.Background(), "hi", []string{"gpt-4o"}, "general"))

	st, _ := o.State("gpt-4o")
	assert.Equal(t, &ResponseState{ModelID: "gpt-4o", Content: "no sentinel"}, st)
}

func TestEventsAfterTerminalIgnored(t *testing.T) {
	streamer := NewMockStreamer()
	streamer.On("gpt-4o", script(models.Delta("a"), models.Done(), models.Delta("b"), models.Failed(rateLimited())))

	rec := &recorder{}
	o := New(streamer, WithObserver(rec.observe))
	require.NoError(t, o.Send(context.Background(), "hi", []string{"gpt-4o"}, "general"))

	st, _ := o.State("gpt-4o")
	assert.Equal(t, "a", st.Content)
	assert.Empty(t, st.Error)
	assert.Len(t, rec.all(), 3)
}

func TestNotifierLifecycle(t *testing.T) {
	streamer := NewMockStreamer()
	streamer.On("claude-sonnet", script(models.Failed(rateLimited())))

	n := &recordingNotifier{}
	o := New(streamer, WithNotifier(n))
	require.NoError(t, o.Send(context.Background(), "hi", []string{"gpt-4o", "claude-sonnet"}, "general"))

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, []string{o.Snapshot().ID}, n.started)
	assert.Equal(t, []string{"claude-sonnet: Rate limit exceeded."}, n.failed)
	assert.Equal(t, [][2]int{{1, 1}}, n.completed)
}

func TestStaggerDelaysLaunches(t *testing.T) {
	var mu sync.Mutex
	launched := map[string]time.Time{}
	record := func(ctx context.Context, req models.Request) <-chan models.Event {
		mu.Lock()
		launched[req.ModelID] = time.Now()
		mu.Unlock()
		return events(models.Done())
	}
	streamer := NewMockStreamer()
	streamer.On("gpt-4o", record)
	streamer.On("deepseek", record)

	o := New(streamer, WithStagger(30*time.Millisecond))
	require.NoError(t, o.Send(context.Background(), "hi", []string{"gpt-4o", "deepseek"}, "general"))

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, launched["deepseek"].Sub(launched["gpt-4o"]), 20*time.Millisecond)
}

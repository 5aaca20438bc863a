// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"chorus/internal/models"
)

// Common error types
var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoTurn       = errors.New("no message has been sent yet")
)

// CancelledMessage is the error shown for streams stopped by Cancel
const CancelledMessage = "Cancelled"

// Turn is the read-only view of the current exchange
type Turn struct {
	ID        string
	Message   string
	Mode      string
	Models    []string // in display order
	States    map[string]*ResponseState
	StartedAt time.Time
}

// State returns the state for a model, nil when it is not part of the turn
func (t Turn) State(modelID string) *ResponseState {
	return t.States[modelID]
}

// Streaming reports whether any model in the turn is still streaming
func (t Turn) Streaming() bool {
	for _, st := range t.States {
		if st.IsStreaming {
			return true
		}
	}
	return false
}

// Update is delivered to the observer after every state change
type Update struct {
	TurnID string
	State  *ResponseState
}

// Observer receives updates. It is called from stream goroutines and must
// not block.
type Observer func(Update)

// Notifier receives turn lifecycle events
type Notifier interface {
	TurnStarted(turnID string, modelIDs []string, mode string)
	ModelFailed(turnID, modelID, message string)
	TurnCompleted(turnID string, succeeded, failed int)
}

// activeTurn is the orchestrator's private record of the current turn
type activeTurn struct {
	id        string
	message   string
	mode      string
	models    []string
	startedAt time.Time
	cancels   map[string]context.CancelFunc

	// inflight counts the Send and Retry calls still running for this
	// turn; completion is reported when it drops to zero
	inflight int
}

func (t *activeTurn) cancelAll() {
	for _, cancel := range t.cancels {
		cancel()
	}
}

// Orchestrator fans one message out to several models and tracks their
// responses
type Orchestrator struct {
	streamer models.Streamer
	store    *Store
	logger   *slog.Logger
	observer Observer
	notifier Notifier
	stagger  time.Duration

	mu   sync.Mutex
	turn *activeTurn
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers a callback for state changes
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithNotifier registers a lifecycle event sink
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithStagger delays each successive stream launch by d. Purely cosmetic.
func WithStagger(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.stagger = d
		}
	}
}

func New(streamer models.Streamer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		streamer: streamer,
		store:    NewStore(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Send starts a new turn: every selected model is marked streaming before
// any request goes out, then all streams run concurrently. Send returns
// once every stream has reached a terminal state; failures are recorded
// per model and never returned.
func (o *Orchestrator) Send(ctx context.Context, message string, modelIDs []string, mode string) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	ids := dedupe(modelIDs)

	turn := &activeTurn{
		id:        uuid.NewString(),
		message:   message,
		mode:      mode,
		models:    ids,
		startedAt: time.Now(),
		cancels:   make(map[string]context.CancelFunc, len(ids)),
		inflight:  1,
	}
	ctxs := make(map[string]context.Context, len(ids))
	for _, id := range ids {
		ctxs[id], turn.cancels[id] = context.WithCancel(ctx)
	}

	o.mu.Lock()
	if o.turn != nil {
		o.turn.cancelAll()
	}
	o.turn = turn
	attempts := o.store.Reset(turn.id, ids)
	o.mu.Unlock()

	logger := o.logger.With("turn", turn.id)
	logger.Info("turn started", "models", ids, "mode", mode)

	for _, id := range ids {
		if st, ok := o.store.Get(id); ok {
			o.publish(turn.id, st)
		}
	}
	if o.notifier != nil {
		o.notifier.TurnStarted(turn.id, ids, mode)
	}

	req := requestFor(message, mode)
	var g errgroup.Group
	for i, id := range ids {
		a := attempts[id]
		delay := time.Duration(i) * o.stagger
		r := req
		r.ModelID = id
		g.Go(func() error {
			o.run(ctxs[id], a, r, delay, logger)
			return nil
		})
	}
	_ = g.Wait()

	o.settle(turn, logger)
	return nil
}

// Retry re-runs a single model for the current turn, replacing its state.
// Other models are not touched. Retry returns when the new stream is
// terminal.
func (o *Orchestrator) Retry(ctx context.Context, modelID string) error {
	o.mu.Lock()
	turn := o.turn
	if turn == nil || turn.message == "" {
		o.mu.Unlock()
		return ErrNoTurn
	}
	if cancel, ok := turn.cancels[modelID]; ok {
		cancel()
	}
	attemptCtx, cancel := context.WithCancel(ctx)
	turn.cancels[modelID] = cancel
	turn.inflight++
	a := o.store.Begin(modelID)
	o.mu.Unlock()
	defer cancel()

	logger := o.logger.With("turn", turn.id)
	logger.Info("retrying model", "model", modelID)

	if st, ok := o.store.Get(modelID); ok {
		o.publish(turn.id, st)
	}

	req := requestFor(turn.message, turn.mode)
	req.ModelID = modelID
	o.run(attemptCtx, a, req, 0, logger)
	o.settle(turn, logger)
	return nil
}

// Cancel stops every stream of the current turn. Models that were still
// streaming end with CancelledMessage and can be retried.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	turn := o.turn
	if turn == nil {
		o.mu.Unlock()
		return
	}
	turn.cancelAll()
	changed := o.store.Abort(turn.id, CancelledMessage)
	o.mu.Unlock()

	o.logger.Info("turn cancelled", "turn", turn.id, "stopped", len(changed))
	for _, st := range changed {
		o.publish(turn.id, st)
	}
}

// Snapshot returns the current turn. The zero Turn is returned before the
// first Send.
func (o *Orchestrator) Snapshot() Turn {
	o.mu.Lock()
	turn := o.turn
	o.mu.Unlock()
	if turn == nil {
		return Turn{States: map[string]*ResponseState{}}
	}

	order, states := o.store.Snapshot()
	return Turn{
		ID:        turn.id,
		Message:   turn.message,
		Mode:      turn.mode,
		Models:    order,
		States:    states,
		StartedAt: turn.startedAt,
	}
}

// State returns one model's current state
func (o *Orchestrator) State(modelID string) (*ResponseState, bool) {
	return o.store.Get(modelID)
}

// Streaming reports whether any model is still streaming
func (o *Orchestrator) Streaming() bool {
	return o.store.Streaming()
}

// run consumes one attempt's events until the stream closes
func (o *Orchestrator) run(ctx context.Context, a attempt, req models.Request, delay time.Duration, logger *slog.Logger) {
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			o.cancelled(a, logger)
			return
		}
	}

	logger = logger.With("model", a.model)
	started := time.Now()
	terminal := false

	for ev := range o.streamer.Stream(ctx, req) {
		if terminal {
			continue
		}
		st, ok := o.store.Apply(a, ev)
		if ev.Terminal() {
			terminal = true
		}
		if !ok {
			continue
		}
		o.publish(a.turn, st)

		switch ev.Kind {
		case models.EventDone:
			logger.Info("model finished", "chars", st.Chars(), "elapsed", time.Since(started))
		case models.EventError:
			logger.Warn("model failed", "error", st.Error, "elapsed", time.Since(started))
			if o.notifier != nil {
				o.notifier.ModelFailed(a.turn, a.model, st.Error)
			}
		}
	}

	if terminal {
		return
	}
	if ctx.Err() != nil {
		o.cancelled(a, logger)
		return
	}
	// A stream that closes on its own without a terminal event counts as done
	if st, ok := o.store.Apply(a, models.Done()); ok {
		logger.Debug("stream closed without terminal event")
		o.publish(a.turn, st)
	}
}

// cancelled ends an attempt whose context was cancelled before a terminal
// event arrived. Attempts already superseded by a retry, a cancel or a new
// turn are left alone.
func (o *Orchestrator) cancelled(a attempt, logger *slog.Logger) {
	if st, ok := o.store.AbortAttempt(a, CancelledMessage); ok {
		logger.Info("model cancelled")
		o.publish(a.turn, st)
	}
}

// settle marks one Send or Retry call as finished and reports the turn
// once nothing is running for it any more
func (o *Orchestrator) settle(turn *activeTurn, logger *slog.Logger) {
	o.mu.Lock()
	turn.inflight--
	idle := turn.inflight == 0
	current := o.turn == turn
	o.mu.Unlock()

	switch {
	case !current:
		logger.Debug("turn superseded")
	case idle:
		o.finishTurn(turn.id, logger)
	}
}

func (o *Orchestrator) finishTurn(turnID string, logger *slog.Logger) {
	if o.store.TurnID() != turnID {
		logger.Debug("turn superseded")
		return
	}
	_, states := o.store.Snapshot()
	var succeeded, failed int
	for _, st := range states {
		switch {
		case st.Failed():
			failed++
		case !st.IsStreaming:
			succeeded++
		}
	}
	logger.Info("turn completed", "succeeded", succeeded, "failed", failed)
	if o.notifier != nil {
		o.notifier.TurnCompleted(turnID, succeeded, failed)
	}
}

func (o *Orchestrator) publish(turnID string, st *ResponseState) {
	if o.observer != nil {
		o.observer(Update{TurnID: turnID, State: st})
	}
}

// requestFor builds the single-exchange conversation for a message
func requestFor(message, mode string) models.Request {
	return models.Request{
		Messages: []models.Message{{Role: models.RoleUser, Content: message}},
		Mode:     mode,
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

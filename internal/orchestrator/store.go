package orchestrator

import (
	"strings"
	"sync"
	"unicode/utf8"

	"chorus/internal/models"
)

// ResponseState is one model's response for the current turn. Values are
// never modified after they are stored; every event installs a new one.
type ResponseState struct {
	ModelID     string
	Content     string
	IsStreaming bool
	Error       string
}

// Pending reports a started stream that has produced no text yet
func (s *ResponseState) Pending() bool {
	return s.IsStreaming && s.Content == ""
}

// Failed reports whether the stream ended with an error
func (s *ResponseState) Failed() bool {
	return s.Error != ""
}

// Words counts whitespace-separated words in the content
func (s *ResponseState) Words() int {
	return len(strings.Fields(s.Content))
}

// Chars counts runes in the content
func (s *ResponseState) Chars() int {
	return utf8.RuneCountInString(s.Content)
}

// attempt tags one launched stream. Events carrying a tag that is no
// longer current for its model are discarded.
type attempt struct {
	turn  string
	model string
	seq   uint64
}

// Store maps model identifiers to their response for one turn
type Store struct {
	mu      sync.RWMutex
	turnID  string
	states  map[string]*ResponseState
	order   []string
	current map[string]uint64
	seq     uint64
}

func NewStore() *Store {
	return &Store{
		states:  make(map[string]*ResponseState),
		current: make(map[string]uint64),
	}
}

// Reset discards the previous turn and marks every model as streaming
func (s *Store) Reset(turnID string, modelIDs []string) map[string]attempt {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turnID = turnID
	s.states = make(map[string]*ResponseState, len(modelIDs))
	s.current = make(map[string]uint64, len(modelIDs))
	s.order = s.order[:0]

	attempts := make(map[string]attempt, len(modelIDs))
	for _, id := range modelIDs {
		attempts[id] = s.beginLocked(id)
	}
	return attempts
}

// Begin replaces one model's state with a fresh streaming entry
func (s *Store) Begin(modelID string) attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked(modelID)
}

func (s *Store) beginLocked(modelID string) attempt {
	if _, ok := s.states[modelID]; !ok {
		s.order = append(s.order, modelID)
	}
	s.seq++
	s.current[modelID] = s.seq
	s.states[modelID] = &ResponseState{ModelID: modelID, IsStreaming: true}
	return attempt{turn: s.turnID, model: modelID, seq: s.seq}
}

// Apply folds one event into the model's state. It returns the new state
// and false when the attempt has been superseded or the event changes
// nothing.
func (s *Store) Apply(a attempt, ev models.Event) (*ResponseState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.turn != s.turnID || s.current[a.model] != a.seq {
		return nil, false
	}
	prev := s.states[a.model]
	if prev == nil || !prev.IsStreaming {
		return nil, false
	}

	var next *ResponseState
	switch ev.Kind {
	case models.EventDelta:
		if ev.Text == "" {
			return nil, false
		}
		next = &ResponseState{ModelID: a.model, Content: prev.Content + ev.Text, IsStreaming: true}
	case models.EventDone:
		next = &ResponseState{ModelID: a.model, Content: prev.Content, Error: prev.Error}
	case models.EventError:
		next = &ResponseState{ModelID: a.model, Error: ev.Message()}
	default:
		return nil, false
	}

	s.states[a.model] = next
	return next, true
}

// Abort ends every stream still running in the turn with the given error
// and invalidates their attempts
func (s *Store) Abort(turnID, message string) []*ResponseState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turnID != s.turnID {
		return nil
	}
	var changed []*ResponseState
	for _, id := range s.order {
		st := s.states[id]
		if st == nil || !st.IsStreaming {
			continue
		}
		s.seq++
		s.current[id] = s.seq
		next := &ResponseState{ModelID: id, Error: message}
		s.states[id] = next
		changed = append(changed, next)
	}
	return changed
}

// AbortAttempt ends a single attempt with the given error. It does nothing
// when the attempt is no longer current or has already finished.
func (s *Store) AbortAttempt(a attempt, message string) (*ResponseState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.turn != s.turnID || s.current[a.model] != a.seq {
		return nil, false
	}
	prev := s.states[a.model]
	if prev == nil || !prev.IsStreaming {
		return nil, false
	}
	s.seq++
	s.current[a.model] = s.seq
	next := &ResponseState{ModelID: a.model, Error: message}
	s.states[a.model] = next
	return next, true
}

// Get returns the current state of one model
func (s *Store) Get(modelID string) (*ResponseState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[modelID]
	return st, ok
}

// TurnID returns the id of the turn the store currently holds
func (s *Store) TurnID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turnID
}

// Snapshot copies the state map; the states themselves are shared
func (s *Store) Snapshot() (order []string, states map[string]*ResponseState) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order = append([]string(nil), s.order...)
	states = make(map[string]*ResponseState, len(s.states))
	for id, st := range s.states {
		states[id] = st
	}
	return order, states
}

// Streaming reports whether any model is still streaming
func (s *Store) Streaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.states {
		if st.IsStreaming {
			return true
		}
	}
	return false
}

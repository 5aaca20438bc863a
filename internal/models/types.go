// internal/models/types.go
package models

import "fmt"

// EventKind distinguishes the three stream events a model client emits
type EventKind int

const (
	EventDelta EventKind = iota
	EventDone
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one piece of a model's streaming response
type Event struct {
	Kind EventKind
	Text string // set for EventDelta
	Err  error  // set for EventError
}

// Delta builds a text event
func Delta(text string) Event {
	return Event{Kind: EventDelta, Text: text}
}

// Done builds the successful terminal event
func Done() Event {
	return Event{Kind: EventDone}
}

// Failed builds the error terminal event
func Failed(err error) Event {
	return Event{Kind: EventError, Err: err}
}

// Terminal reports whether the event ends a stream
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

// Message returns the human-readable error text of an EventError
func (e Event) Message() string {
	if e.Err == nil {
		return "Unknown error"
	}
	return e.Err.Error()
}

func (e Event) String() string {
	switch e.Kind {
	case EventDelta:
		return fmt.Sprintf("delta(%q)", e.Text)
	case EventError:
		return fmt.Sprintf("error(%s)", e.Message())
	default:
		return e.Kind.String()
	}
}

// Role of a conversation message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of the conversation sent to the relay
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request describes one model invocation
type Request struct {
	ModelID  string
	Messages []Message
	Mode     string // project mode id, selects the system prompt
}

// ModelInfo contains display information for a model
type ModelInfo struct {
	ID          string
	Name        string
	Provider    string
	Color       string // Hex color for UI
	Description string
}

// Mode is a project mode: a named system prompt
type Mode struct {
	ID           string
	Name         string
	Icon         string
	Description  string
	SystemPrompt string
}

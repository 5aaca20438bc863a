// internal/models/model.go
package models

import (
	"context"
)

// Streamer is the interface every model backend client implements
type Streamer interface {
	// Stream opens one streaming request and returns its events.
	// The channel carries zero or more deltas followed by exactly one
	// terminal event, then closes. Once ctx is done no further events
	// are delivered and the channel closes.
	Stream(ctx context.Context, req Request) <-chan Event
}

// StreamerFunc adapts a function to the Streamer interface
type StreamerFunc func(ctx context.Context, req Request) <-chan Event

func (f StreamerFunc) Stream(ctx context.Context, req Request) <-chan Event {
	return f(ctx, req)
}

// Package sse decodes the relay's line-oriented event stream into model
// stream events.
//
// The wire format is a subset of server-sent events: every event line
// starts with "data:", the payload is a chat-completion chunk whose
// incremental text sits at choices[0].delta.content, and the literal
// payload [DONE] ends the stream.
package sse

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"chorus/internal/models"
)

const (
	// DataPrefix starts every line that carries a payload
	DataPrefix = "data:"

	// DoneSentinel is the payload that terminates a stream
	DoneSentinel = "[DONE]"

	// ContentPath locates the incremental text inside a payload
	ContentPath = "choices.0.delta.content"

	// DefaultMaxPending bounds the held-back unparsed payload
	DefaultMaxPending = 1 << 20
)

// Decoder turns byte chunks into events. It is not safe for concurrent use;
// each stream gets its own decoder.
type Decoder struct {
	buf        []byte
	pending    string // payload that did not parse yet
	maxPending int
	done       bool
	logger     *slog.Logger
}

// Option configures a Decoder
type Option func(*Decoder)

// WithMaxPending sets the size limit for a held-back payload
func WithMaxPending(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxPending = n
		}
	}
}

// WithLogger sets the logger used for dropped payloads
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDecoder creates a decoder ready for the first chunk
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		maxPending: DefaultMaxPending,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Done reports whether the decoder has emitted its terminal event
func (d *Decoder) Done() bool {
	return d.done
}

// Feed consumes one chunk and returns the events completed by it.
// After Done, input is ignored.
func (d *Decoder) Feed(chunk []byte) []models.Event {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var events []models.Event
	start := 0
	for !d.done {
		i := bytes.IndexByte(d.buf[start:], '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[start : start+i])
		start += i + 1
		events = d.processLine(line, events)
	}

	if d.done {
		d.buf = nil
		return events
	}
	if start > 0 {
		n := copy(d.buf, d.buf[start:])
		d.buf = d.buf[:n]
	}
	return events
}

// Finish signals the end of input. A trailing unterminated line is
// processed, a held-back payload is dropped, and Done is emitted unless
// the sentinel was already seen.
func (d *Decoder) Finish() []models.Event {
	if d.done {
		return nil
	}

	var events []models.Event
	if len(d.buf) > 0 {
		line := string(d.buf)
		d.buf = nil
		events = d.processLine(line, events)
		if d.done {
			return events
		}
	}

	if d.pending != "" {
		d.drop("stream ended")
	}
	d.done = true
	return append(events, models.Done())
}

func (d *Decoder) processLine(line string, events []models.Event) []models.Event {
	line = strings.TrimSuffix(line, "\r")

	if strings.HasPrefix(line, ":") || strings.TrimSpace(line) == "" {
		return events
	}
	if !strings.HasPrefix(line, DataPrefix) {
		return events
	}

	payload := strings.TrimSpace(line[len(DataPrefix):])
	return d.processPayload(payload, events)
}

func (d *Decoder) processPayload(payload string, events []models.Event) []models.Event {
	if payload == DoneSentinel {
		if d.pending != "" {
			d.drop("sentinel received")
		}
		d.done = true
		return append(events, models.Done())
	}

	if d.pending != "" {
		joined := d.pending + payload
		if gjson.Valid(joined) {
			d.pending = ""
			return d.extract(joined, events)
		}
		if !gjson.Valid(payload) {
			d.hold(joined)
			return events
		}
		// the new payload stands on its own; the held one never completed
		d.drop("superseded by complete payload")
	}

	if !gjson.Valid(payload) {
		d.hold(payload)
		return events
	}
	return d.extract(payload, events)
}

func (d *Decoder) extract(payload string, events []models.Event) []models.Event {
	r := gjson.Get(payload, ContentPath)
	if r.Type != gjson.String || r.Str == "" {
		return events
	}
	return append(events, models.Delta(r.Str))
}

// hold keeps an unparsed payload until more input arrives
func (d *Decoder) hold(payload string) {
	if payload == "" {
		return
	}
	if len(payload) > d.maxPending {
		d.pending = payload
		d.drop("exceeds pending limit")
		return
	}
	d.pending = payload
}

func (d *Decoder) drop(reason string) {
	d.logger.Debug("dropping incomplete payload",
		"reason", reason,
		"bytes", len(d.pending))
	d.pending = ""
}

// Pump reads r in chunks of bufSize, feeding a fresh decoder and handing
// every event to emit. It stops when the terminal event is emitted or emit
// returns false. Read errors other than io.EOF are returned without a
// terminal event.
func Pump(r io.Reader, bufSize int, emit func(models.Event) bool, opts ...Option) error {
	if bufSize <= 0 {
		bufSize = 4096
	}
	d := NewDecoder(opts...)
	buf := make([]byte, bufSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, ev := range d.Feed(buf[:n]) {
				if !emit(ev) {
					return nil
				}
			}
			if d.Done() {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			for _, ev := range d.Finish() {
				if !emit(ev) {
					return nil
				}
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

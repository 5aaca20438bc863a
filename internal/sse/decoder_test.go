package sse

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus/internal/models"
)

func chunk(text string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`, text)
}

func wellFormedStream() string {
	return strings.Join([]string{
		": keep-alive",
		chunk("Recursion"),
		"",
		"event: ignored",
		chunk(" is"),
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
		chunk(" self-reference."),
		"data: [DONE]",
		"",
	}, "\n")
}

// decodeAll feeds every chunk and then signals the end of input
func decodeAll(chunks ...string) []models.Event {
	d := NewDecoder()
	var events []models.Event
	for _, c := range chunks {
		events = append(events, d.Feed([]byte(c))...)
	}
	return append(events, d.Finish()...)
}

func TestDecoderBasicStream(t *testing.T) {
	events := decodeAll(wellFormedStream())

	assert.Equal(t, []models.Event{
		models.Delta("Recursion"),
		models.Delta(" is"),
		models.Delta(" self-reference."),
		models.Done(),
	}, events)
}

func TestDecoderCRLF(t *testing.T) {
	stream := strings.ReplaceAll(wellFormedStream(), "\n", "\r\n")
	events := decodeAll(stream)

	require.Len(t, events, 4)
	assert.Equal(t, models.Delta("Recursion"), events[0])
	assert.Equal(t, models.Done(), events[3])
}

func TestDecoderIgnoresNonDataLines(t *testing.T) {
	stream := strings.Join([]string{
		":comment with data: inside",
		"id: 7",
		"retry: 1000",
		"   ",
		"DATA: " + `{"choices":[{"delta":{"content":"nope"}}]}`,
		chunk("yes"),
		"",
	}, "\n")

	assert.Equal(t, []models.Event{models.Delta("yes"), models.Done()}, decodeAll(stream))
}

func TestDecoderAcceptsPrefixWithoutSpace(t *testing.T) {
	stream := `data:{"choices":[{"delta":{"content":"tight"}}]}` + "\n"
	assert.Equal(t, []models.Event{models.Delta("tight"), models.Done()}, decodeAll(stream))
}

func TestDecoderSkipsEmptyAndMissingFragments(t *testing.T) {
	stream := strings.Join([]string{
		chunk(""),
		`data: {"choices":[]}`,
		`data: {"choices":[{"delta":{"content":null}}]}`,
		`data: {"choices":[{"delta":{"content":42}}]}`,
		`data: {"usage":{"total_tokens":12}}`,
		`data: "just a string"`,
		"data:",
		"data: [DONE]",
		"",
	}, "\n")

	assert.Equal(t, []models.Event{models.Done()}, decodeAll(stream))
}

func TestDecoderSentinelStopsConsumption(t *testing.T) {
	d := NewDecoder()
	events := d.Feed([]byte(chunk("a") + "\ndata: [DONE]\n" + chunk("after") + "\n"))
	assert.Equal(t, []models.Event{models.Delta("a"), models.Done()}, events)
	assert.True(t, d.Done())

	assert.Empty(t, d.Feed([]byte(chunk("later")+"\n")))
	assert.Empty(t, d.Finish())
}

func TestDecoderSentinelWithTrailingGarbage(t *testing.T) {
	stream := chunk("x") + "\ndata: [DONE]\n" + `data: {"choices":[{"delta":{"content":"y` + "\n" + "data: [DONE]\n"

	events := decodeAll(stream)
	done := 0
	for _, ev := range events {
		if ev.Kind == models.EventDone {
			done++
		}
	}
	assert.Equal(t, 1, done)
	assert.Equal(t, models.Done(), events[len(events)-1])
}

func TestDecoderFinishWithoutSentinel(t *testing.T) {
	events := decodeAll(chunk("only") + "\n")
	assert.Equal(t, []models.Event{models.Delta("only"), models.Done()}, events)
}

func TestDecoderFinishProcessesUnterminatedLine(t *testing.T) {
	assert.Equal(t,
		[]models.Event{models.Delta("a"), models.Delta("b"), models.Done()},
		decodeAll(chunk("a")+"\n"+chunk("b")))

	assert.Equal(t,
		[]models.Event{models.Delta("a"), models.Done()},
		decodeAll(chunk("a")+"\ndata: [DONE]"))
}

func TestDecoderEmptyInput(t *testing.T) {
	assert.Equal(t, []models.Event{models.Done()}, decodeAll())
	assert.Equal(t, []models.Event{models.Done()}, decodeAll("", "\n\n"))
}

func TestDecoderJSONSplitAcrossChunks(t *testing.T) {
	line := chunk("reconstructed exactly once") + "\n"
	mid := strings.Index(line, "exactly")

	d := NewDecoder()
	assert.Empty(t, d.Feed([]byte(line[:mid])), "partial line must not emit")
	events := d.Feed([]byte(line[mid:]))
	assert.Equal(t, []models.Event{models.Delta("reconstructed exactly once")}, events)
	assert.Equal(t, []models.Event{models.Done()}, d.Finish())
}

func TestDecoderMultibyteSplit(t *testing.T) {
	line := chunk("héllo wörld ✓") + "\n"
	raw := []byte(line)
	idx := strings.Index(line, "✓") + 1 // inside the rune

	events := decodeAll(string(raw[:idx]), string(raw[idx:]))
	assert.Equal(t, []models.Event{models.Delta("héllo wörld ✓"), models.Done()}, events)
}

func TestDecoderChunkSplitInvariance(t *testing.T) {
	stream := wellFormedStream() + chunk("ignored after done") + "\n"
	want := decodeAll(stream)

	for i := 0; i <= len(stream); i++ {
		got := decodeAll(stream[:i], stream[i:])
		require.Equal(t, want, got, "split at offset %d", i)
	}
}

func TestDecoderRandomSplitInvariance(t *testing.T) {
	stream := strings.ReplaceAll(wellFormedStream(), "\n", "\r\n")
	want := decodeAll(stream)
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		var chunks []string
		rest := stream
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			if n > 17 {
				n = 1 + rng.Intn(17)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		require.Equal(t, want, decodeAll(chunks...), "trial %d chunks %q", trial, chunks)
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	stream := wellFormedStream()
	chunks := make([]string, 0, len(stream))
	for i := range stream {
		chunks = append(chunks, stream[i:i+1])
	}
	assert.Equal(t, decodeAll(stream), decodeAll(chunks...))
}

func TestDecoderIdempotent(t *testing.T) {
	stream := wellFormedStream()
	assert.Equal(t, decodeAll(stream), decodeAll(stream))
}

func TestDecoderRecoversPayloadBrokenAcrossLines(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices":[{"delta":`,
		`data: {"content":"joined"}}]}`,
		chunk("next"),
		"",
	}, "\n")

	assert.Equal(t, []models.Event{
		models.Delta("joined"),
		models.Delta("next"),
		models.Done(),
	}, decodeAll(stream))
}

func TestDecoderDropsPendingWhenNextPayloadIsComplete(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"lost`,
		chunk("kept"),
		"data: [DONE]",
		"",
	}, "\n")

	assert.Equal(t, []models.Event{models.Delta("kept"), models.Done()}, decodeAll(stream))
}

func TestDecoderDropsPendingAtEnd(t *testing.T) {
	stream := chunk("a") + "\n" + `data: {"choices":[{"delta":{"content":"never closed` + "\n"
	assert.Equal(t, []models.Event{models.Delta("a"), models.Done()}, decodeAll(stream))
}

func TestDecoderMaxPending(t *testing.T) {
	d := NewDecoder(WithMaxPending(16))
	big := `data: {"choices":[{"delta":{"content":"` + strings.Repeat("x", 64) + "\n"

	assert.Empty(t, d.Feed([]byte(big)))
	assert.Empty(t, d.pending)

	// a continuation of the dropped payload is not valid alone
	assert.Empty(t, d.Feed([]byte(`data: "}}]}`+"\n")))
	assert.Equal(t, []models.Event{models.Delta("ok")}, d.Feed([]byte(chunk("ok")+"\n")))
}

func TestPump(t *testing.T) {
	var got []models.Event
	r := iotest.OneByteReader(strings.NewReader(wellFormedStream()))

	err := Pump(r, 8, func(ev models.Event) bool {
		got = append(got, ev)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, decodeAll(wellFormedStream()), got)
}

func TestPumpStopsWhenEmitDeclines(t *testing.T) {
	var got []models.Event
	err := Pump(strings.NewReader(wellFormedStream()), 0, func(ev models.Event) bool {
		got = append(got, ev)
		return false
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPumpReturnsReadError(t *testing.T) {
	boom := errors.New("connection reset by peer")
	r := io.MultiReader(strings.NewReader(chunk("partial")+"\n"), iotest.ErrReader(boom))

	var got []models.Event
	err := Pump(r, 64, func(ev models.Event) bool {
		got = append(got, ev)
		return true
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []models.Event{models.Delta("partial")}, got)
}

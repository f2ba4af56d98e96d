package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-labs/parley/pkg/models"
)

func encodeStream(t *testing.T, events func(w *Writer)) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	events(w)
	return buf.Bytes()
}

func sampleStream(t *testing.T) []byte {
	return encodeStream(t, func(w *Writer) {
		require.NoError(t, w.Token("Hel"))
		require.NoError(t, w.Token("lo, "))
		require.NoError(t, w.Token("world"))
		require.NoError(t, w.Final(FinalEvent{
			SessionID:       "s-1",
			PlayerTurnIndex: 0,
			NPCTurnIndex:    1,
			Response: models.StructuredPayload{
				NPCReply: "Hello, world",
			},
		}))
	})
}

func decodeAll(dec *Decoder, raw []byte, chunkSize int) []Event {
	var events []Event
	for off := 0; off < len(raw); off += chunkSize {
		end := off + chunkSize
		if end > len(raw) {
			end = len(raw)
		}
		events = append(events, dec.Feed(raw[off:end])...)
	}
	return events
}

func TestDecoderWholeStream(t *testing.T) {
	raw := sampleStream(t)
	dec := NewDecoder()

	events := dec.Feed(raw)
	require.Len(t, events, 4)
	assert.Equal(t, EventToken, events[0].Kind)
	assert.Equal(t, "Hel", events[0].Token.Content)
	assert.Equal(t, EventFinal, events[3].Kind)
	assert.Equal(t, "s-1", events[3].Final.SessionID)
	assert.Equal(t, "Hello, world", events[3].Final.Response.NPCReply)
	assert.True(t, dec.Finished())
	assert.NoError(t, dec.Close())
}

// Feeding the same byte sequence split at every possible offset, in every
// chunk size down to a single byte, must reconstruct the identical event
// sequence.
func TestDecoderArbitrarySplits(t *testing.T) {
	raw := sampleStream(t)

	reference := NewDecoder().Feed(raw)
	require.Len(t, reference, 4)

	// Two-chunk split at every byte offset.
	for off := 0; off <= len(raw); off++ {
		dec := NewDecoder()
		var events []Event
		events = append(events, dec.Feed(raw[:off])...)
		events = append(events, dec.Feed(raw[off:])...)
		require.Equal(t, reference, events, "split at offset %d", off)
		assert.NoError(t, dec.Close())
	}

	// Fixed small chunk sizes, including one byte at a time.
	for _, size := range []int{1, 2, 3, 7, 16} {
		dec := NewDecoder()
		events := decodeAll(dec, raw, size)
		require.Equal(t, reference, events, "chunk size %d", size)
		assert.NoError(t, dec.Close())
	}
}

func TestDecoderSkipsMalformedFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("event: token\ndata: {not json\n\n")
	buf.WriteString("event: token\ndata: {\"content\":\"ok\"}\n\n")
	buf.Write(encodeStream(t, func(w *Writer) {
		require.NoError(t, w.Final(FinalEvent{SessionID: "s-1"}))
	}))

	dec := NewDecoder()
	events := dec.Feed(buf.Bytes())
	require.Len(t, events, 2)
	assert.Equal(t, "ok", events[0].Token.Content)
	assert.Equal(t, EventFinal, events[1].Kind)
	assert.NoError(t, dec.Close())
}

func TestDecoderSkipsUnknownEvent(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("event: heartbeat\ndata: {}\n\n")
	buf.Write(encodeStream(t, func(w *Writer) {
		require.NoError(t, w.Error("boom"))
	}))

	dec := NewDecoder()
	events := dec.Feed(buf.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Kind)
	assert.Equal(t, "boom", events[0].Error.Message)
}

func TestDecoderMissingTerminal(t *testing.T) {
	raw := encodeStream(t, func(w *Writer) {
		require.NoError(t, w.Token("partial"))
	})

	dec := NewDecoder()
	events := dec.Feed(raw)
	require.Len(t, events, 1)
	assert.False(t, dec.Finished())
	assert.ErrorIs(t, dec.Close(), ErrNoTerminal)
}

func TestDecoderStopsAfterTerminal(t *testing.T) {
	raw := encodeStream(t, func(w *Writer) {
		require.NoError(t, w.Error("first failure"))
	})
	trailing := encodeStream(t, func(w *Writer) {
		require.NoError(t, w.Token("late"))
	})

	dec := NewDecoder()
	events := dec.Feed(append(raw, trailing...))
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Kind)

	// More bytes after the terminal are discarded.
	assert.Nil(t, dec.Feed([]byte("event: token\ndata: {\"content\":\"x\"}\n\n")))
}

func TestDecoderMultiLineData(t *testing.T) {
	// Data lines are joined with newlines before decoding; a JSON body
	// split across data lines must still decode.
	var buf bytes.Buffer
	buf.WriteString("event: token\ndata: {\"content\":\ndata: \"split\"}\n\n")
	buf.Write(encodeStream(t, func(w *Writer) {
		require.NoError(t, w.Final(FinalEvent{SessionID: "s-1"}))
	}))

	dec := NewDecoder()
	events := dec.Feed(buf.Bytes())
	require.Len(t, events, 2)
	assert.Equal(t, "split", events[0].Token.Content)
}

func TestWriterSingleTerminal(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Final(FinalEvent{SessionID: "s-1"}))
	require.NoError(t, w.Error("ignored"))
	require.NoError(t, w.Final(FinalEvent{SessionID: "s-2"}))

	dec := NewDecoder()
	events := dec.Feed(buf.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, EventFinal, events[0].Kind)
	assert.Equal(t, "s-1", events[0].Final.SessionID)
}

func TestWriterDropsTokensAfterTerminal(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Token("early"))
	require.NoError(t, w.Error("backend failed"))
	before := buf.Len()
	require.NoError(t, w.Token("late"))
	assert.Equal(t, before, buf.Len())

	dec := NewDecoder()
	events := dec.Feed(buf.Bytes())
	require.Len(t, events, 2)
	assert.Equal(t, EventToken, events[0].Kind)
	assert.Equal(t, EventError, events[1].Kind)
}

func TestDecoderCRLFTolerance(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("event: token\r\ndata: {\"content\":\"crlf\"}\r\n\n")
	buf.Write(encodeStream(t, func(w *Writer) {
		require.NoError(t, w.Final(FinalEvent{SessionID: "s-1"}))
	}))

	dec := NewDecoder()
	events := dec.Feed(buf.Bytes())
	require.Len(t, events, 2)
	assert.Equal(t, "crlf", events[0].Token.Content)
}

package stream

import (
	"bytes"
	"errors"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// ErrNoTerminal is returned by Close when the stream ended without ever
// producing a final or error frame.
var ErrNoTerminal = errors.New("stream ended without terminal frame")

var frameSep = []byte("\n\n")

// Decoder reconstructs protocol events from raw bytes fed in arbitrary
// chunks. Frame boundaries need not align with read boundaries: the
// decoder buffers partial frames, including mid-JSON splits, until the
// blank-line terminator arrives. A frame whose data fails to decode is
// logged and skipped. Once a terminal frame is decoded the decoder stops;
// further bytes are discarded.
type Decoder struct {
	buf      bytes.Buffer
	finished bool
}

// NewDecoder returns a decoder at the start of a stream.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends p to the internal buffer and returns all events completed
// by it, in order. After a terminal event is returned, subsequent calls
// return nil.
func (d *Decoder) Feed(p []byte) []Event {
	if d.finished {
		return nil
	}
	d.buf.Write(p)

	var events []Event
	for {
		raw := d.buf.Bytes()
		idx := bytes.Index(raw, frameSep)
		if idx < 0 {
			break
		}
		frame := make([]byte, idx)
		copy(frame, raw[:idx])
		d.buf.Next(idx + len(frameSep))

		ev, ok := parseFrame(frame)
		if !ok {
			continue
		}
		events = append(events, ev)
		if ev.Terminal() {
			d.finished = true
			d.buf.Reset()
			break
		}
	}
	return events
}

// Finished reports whether a terminal event has been decoded.
func (d *Decoder) Finished() bool {
	return d.finished
}

// Close signals end of input. It returns ErrNoTerminal if the stream
// ended without a final or error frame, which callers escalate to a hard
// upstream error.
func (d *Decoder) Close() error {
	if !d.finished {
		return ErrNoTerminal
	}
	return nil
}

// parseFrame decodes one frame (without its blank-line terminator).
// Multiple data lines are joined with newlines before JSON decoding.
func parseFrame(frame []byte) (Event, bool) {
	var name string
	var dataLines []string

	for _, line := range strings.Split(string(frame), "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case line == "":
			// stray blank inside a frame, ignore
		default:
			// unknown field, ignore per protocol
		}
	}

	if name == "" || len(dataLines) == 0 {
		log.Debug().Str("frame", string(frame)).Msg("Skipping frame without event name or data")
		return Event{}, false
	}

	data := []byte(strings.Join(dataLines, "\n"))
	switch name {
	case EventToken.String():
		var tok TokenEvent
		if err := json.Unmarshal(data, &tok); err != nil {
			log.Debug().Err(err).Msg("Skipping undecodable token frame")
			return Event{}, false
		}
		return Event{Kind: EventToken, Token: &tok}, true
	case EventFinal.String():
		var fin FinalEvent
		if err := json.Unmarshal(data, &fin); err != nil {
			log.Debug().Err(err).Msg("Skipping undecodable final frame")
			return Event{}, false
		}
		return Event{Kind: EventFinal, Final: &fin}, true
	case EventError.String():
		var ee ErrorEvent
		if err := json.Unmarshal(data, &ee); err != nil {
			log.Debug().Err(err).Msg("Skipping undecodable error frame")
			return Event{}, false
		}
		return Event{Kind: EventError, Error: &ee}, true
	default:
		log.Debug().Str("event", name).Msg("Skipping frame with unknown event name")
		return Event{}, false
	}
}

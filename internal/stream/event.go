// Package stream implements the framed text event protocol used by the
// streaming turn endpoint: an event-name line, one or more data lines,
// and a blank-line terminator per frame.
package stream

import (
	"github.com/parley-labs/parley/internal/checkpoint"
	"github.com/parley-labs/parley/pkg/models"
)

// EventKind discriminates the protocol's frame variants.
type EventKind int

const (
	// EventToken carries an incremental fragment of the NPC reply.
	EventToken EventKind = iota
	// EventFinal carries the terminal structured payload and ends the stream.
	EventFinal
	// EventError signals failure and ends the stream.
	EventError
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventToken:
		return "token"
	case EventFinal:
		return "final"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the kind ends the stream.
func (k EventKind) Terminal() bool {
	return k == EventFinal || k == EventError
}

// TokenEvent is the payload of a token frame.
type TokenEvent struct {
	Content string `json:"content"`
}

// FinalEvent is the payload of the terminal final frame.
type FinalEvent struct {
	SessionID       string                   `json:"sessionId"`
	PlayerTurnIndex int                      `json:"playerTurnIndex"`
	NPCTurnIndex    int                      `json:"npcTurnIndex"`
	Response        models.StructuredPayload `json:"response"`
	RawBackendText  string                   `json:"rawBackendText,omitempty"`
	AnalysisDue     *checkpoint.Checkpoints  `json:"analysisDue,omitempty"`
}

// ErrorEvent is the payload of the terminal error frame.
type ErrorEvent struct {
	Message string `json:"message"`
}

// Event is one decoded frame. Exactly one of Token, Final, Error is set,
// matching Kind.
type Event struct {
	Kind  EventKind
	Token *TokenEvent
	Final *FinalEvent
	Error *ErrorEvent
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind.Terminal()
}

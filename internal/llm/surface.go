package llm

import (
	"bytes"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// replyExtractor incrementally pulls the value of the "npcReply" string
// field out of a streaming JSON object so reply tokens can be surfaced
// while the rest of the payload is still being generated. The backend is
// prompted to put npcReply first in the object; the extractor tolerates
// any chunking, including escape sequences split across chunks.
type replyExtractor struct {
	state       extractorState
	prefix      bytes.Buffer // bytes seen while looking for the field opener
	esc         []byte       // partial escape sequence ("\" already consumed)
	pendingHigh rune         // decoded high surrogate awaiting its pair
}

type extractorState int

const (
	stateSearching extractorState = iota
	stateInValue
	stateDone
)

var replyFieldKey = []byte(`"npcReply"`)

// feed consumes the next raw chunk and returns the decoded reply text it
// completes, if any.
func (e *replyExtractor) feed(chunk string) string {
	switch e.state {
	case stateDone:
		return ""
	case stateSearching:
		e.prefix.WriteString(chunk)
		rest, ok := e.findOpener()
		if !ok {
			return ""
		}
		e.state = stateInValue
		return e.consumeValue(rest)
	default:
		return e.consumeValue(chunk)
	}
}

// done reports whether the closing quote of the reply value was seen.
func (e *replyExtractor) done() bool {
	return e.state == stateDone
}

// findOpener scans the accumulated prefix for `"npcReply"` followed by a
// colon and an opening quote, returning whatever follows the quote.
func (e *replyExtractor) findOpener() (string, bool) {
	raw := e.prefix.Bytes()
	idx := bytes.Index(raw, replyFieldKey)
	if idx < 0 {
		return "", false
	}
	i := idx + len(replyFieldKey)
	sawColon := false
	for ; i < len(raw); i++ {
		switch raw[i] {
		case ' ', '\t', '\n', '\r':
		case ':':
			if sawColon {
				return "", false
			}
			sawColon = true
		case '"':
			if !sawColon {
				return "", false
			}
			rest := string(raw[i+1:])
			e.prefix.Reset()
			return rest, true
		default:
			return "", false
		}
	}
	return "", false
}

// consumeValue decodes string-value bytes until the unescaped closing
// quote, carrying partial escapes across chunk boundaries.
func (e *replyExtractor) consumeValue(chunk string) string {
	var out []byte
	for i := 0; i < len(chunk); i++ {
		c := chunk[i]

		if e.esc != nil {
			e.esc = append(e.esc, c)
			if decoded, complete := decodeEscape(e.esc); complete {
				out = e.emitRune(out, decoded)
				e.esc = nil
			}
			continue
		}

		switch c {
		case '\\':
			e.esc = []byte{}
		case '"':
			e.state = stateDone
			return string(e.flushPending(out))
		default:
			if e.pendingHigh != 0 {
				out = e.flushPending(out)
			}
			out = append(out, c)
		}
	}
	return string(out)
}

// emitRune appends a decoded escape, pairing UTF-16 surrogates.
func (e *replyExtractor) emitRune(out []byte, r rune) []byte {
	if e.pendingHigh != 0 {
		if utf16.IsSurrogate(r) {
			combined := utf16.DecodeRune(e.pendingHigh, r)
			e.pendingHigh = 0
			return utf8.AppendRune(out, combined)
		}
		out = e.flushPending(out)
	}
	if utf16.IsSurrogate(r) {
		e.pendingHigh = r
		return out
	}
	return utf8.AppendRune(out, r)
}

func (e *replyExtractor) flushPending(out []byte) []byte {
	if e.pendingHigh != 0 {
		out = utf8.AppendRune(out, utf8.RuneError)
		e.pendingHigh = 0
	}
	return out
}

// decodeEscape decodes a JSON escape body (after the backslash). Returns
// complete=false while more bytes are needed.
func decodeEscape(esc []byte) (rune, bool) {
	switch esc[0] {
	case '"', '\\', '/':
		return rune(esc[0]), true
	case 'b':
		return '\b', true
	case 'f':
		return '\f', true
	case 'n':
		return '\n', true
	case 'r':
		return '\r', true
	case 't':
		return '\t', true
	case 'u':
		if len(esc) < 5 {
			return 0, false
		}
		v, err := strconv.ParseUint(string(esc[1:5]), 16, 32)
		if err != nil {
			return utf8.RuneError, true
		}
		return rune(v), true
	default:
		return utf8.RuneError, true
	}
}

package stream

import (
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

// ContentType is the media type of the framed event stream.
const ContentType = "text/event-stream"

// Writer frames events onto an underlying writer, flushing after every
// frame so tokens reach the client as they are produced. A Writer emits
// exactly one terminal frame; frames written after it are dropped.
type Writer struct {
	w        io.Writer
	flusher  http.Flusher
	finished bool
}

// NewWriter wraps w. If w implements http.Flusher each frame is flushed
// as soon as it is written.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// PrepareHeaders sets the response headers for a streaming HTTP response.
func PrepareHeaders(h http.Header) {
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Token writes a token frame. Tokens arriving after the terminal frame
// are dropped.
func (sw *Writer) Token(content string) error {
	if sw.finished {
		return nil
	}
	return sw.writeFrame(EventToken.String(), TokenEvent{Content: content})
}

// Final writes the terminal final frame.
func (sw *Writer) Final(ev FinalEvent) error {
	if sw.finished {
		return nil
	}
	sw.finished = true
	return sw.writeFrame(EventFinal.String(), ev)
}

// Error writes the terminal error frame.
func (sw *Writer) Error(message string) error {
	if sw.finished {
		return nil
	}
	sw.finished = true
	return sw.writeFrame(EventError.String(), ErrorEvent{Message: message})
}

// Finished reports whether a terminal frame has been written.
func (sw *Writer) Finished() bool {
	return sw.finished
}

func (sw *Writer) writeFrame(name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", name, err)
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write %s frame: %w", name, err)
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

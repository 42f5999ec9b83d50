// Package stream delivers scrape progress events to HTTP clients as
// Server-Sent Events.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-stores/models"
)

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("streaming unsupported by response writer")

// Writer frames progress events as SSE messages. It satisfies scraper.Sink
// and is safe for concurrent use, so heartbeats and events interleave
// without tearing frames.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	err     error
}

// NewWriter prepares w for an event stream and sends the response headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// Emit writes one event. After the first write error every later call is
// a no-op; Err reports it.
func (s *Writer) Emit(ev models.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.fail(fmt.Errorf("encode %s event: %w", ev.Type, err))
		return
	}
	s.write(func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		return err
	})
}

// Comment writes an SSE comment line, which clients ignore.
func (s *Writer) Comment(text string) {
	s.write(func(w io.Writer) error {
		_, err := fmt.Fprintf(w, ": %s\n\n", text)
		return err
	})
}

// Heartbeat writes a keep-alive comment every interval until ctx is done.
func (s *Writer) Heartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Comment("keep-alive")
			if s.Err() != nil {
				return
			}
		}
	}
}

// Err returns the first write error.
func (s *Writer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Writer) write(fn func(io.Writer) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if err := fn(s.w); err != nil {
		s.err = err
		return
	}
	s.flusher.Flush()
}

func (s *Writer) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

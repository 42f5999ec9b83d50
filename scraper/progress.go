package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-stores/models"
)

// Sink receives the progress events of one scrape, in order. Emit is never
// called concurrently for the same scrape.
type Sink interface {
	Emit(models.ProgressEvent)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(models.ProgressEvent)

// Emit calls f(e).
func (f SinkFunc) Emit(e models.ProgressEvent) { f(e) }

// emitter stamps and serializes events for one invocation. After a terminal
// event, or once ctx is done, it drops everything.
type emitter struct {
	ctx      context.Context
	sink     Sink
	scrapeID string
	now      func() time.Time

	mu   sync.Mutex
	done bool
}

func newEmitter(ctx context.Context, sink Sink, scrapeID string) *emitter {
	return &emitter{ctx: ctx, sink: sink, scrapeID: scrapeID, now: time.Now}
}

// emit delivers e and reports whether it was delivered.
func (e *emitter) emit(ev models.ProgressEvent) bool {
	if e == nil || e.sink == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done || e.ctx.Err() != nil {
		return false
	}
	if ev.Type.Terminal() {
		e.done = true
	}
	ev.ScrapeID = e.scrapeID
	ev.Time = e.now()
	e.sink.Emit(ev)
	return true
}

func (e *emitter) status(t models.EventType, msg string) {
	e.emit(models.ProgressEvent{Type: t, Message: msg})
}

func (e *emitter) page(n int, msg string) {
	e.emit(models.ProgressEvent{Type: models.EventPaginating, Page: n, Message: msg})
}

func (e *emitter) products(total int, items []models.Product) {
	if len(items) == 0 {
		return
	}
	e.emit(models.ProgressEvent{Type: models.EventBatch, Total: total, Products: items})
}

func (e *emitter) collections(total int, items []models.Collection) {
	if len(items) == 0 {
		return
	}
	e.emit(models.ProgressEvent{Type: models.EventBatch, Total: total, Collections: items})
}

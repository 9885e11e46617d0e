package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"cabinet-admin/internal/store"
)

// Recorder accepts audit events.
type Recorder interface {
	Record(event store.AuditEvent)
}

// Sink persists a batch of audit events.
type Sink interface {
	InsertAuditEvents(ctx context.Context, events []store.AuditEvent) error
}

// AuditBuffer collects events in memory and periodically flushes them
// to the sink in one batch.
type AuditBuffer struct {
	mu      sync.Mutex
	events  []store.AuditEvent
	sink    Sink
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	now     func() time.Time
}

// NewAuditBuffer creates a buffer that flushes on a timer or when full.
func NewAuditBuffer(sink Sink, maxSize int, flushIntervalMs int) *AuditBuffer {
	if maxSize <= 0 {
		maxSize = 100
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 500
	}
	ab := &AuditBuffer{
		sink:    sink,
		maxSize: maxSize,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	ab.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	go ab.run()
	return ab
}

func (ab *AuditBuffer) run() {
	for {
		select {
		case <-ab.done:
			return
		case <-ab.ticker.C:
			ab.Flush()
		}
	}
}

// Record adds an event to the buffer, assigning an id and timestamp when
// missing. If the buffer is full, a flush is triggered asynchronously.
func (ab *AuditBuffer) Record(event store.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = ab.now()
	}
	ab.mu.Lock()
	ab.events = append(ab.events, event)
	shouldFlush := len(ab.events) >= ab.maxSize
	ab.mu.Unlock()
	if shouldFlush {
		go ab.Flush()
	}
}

// Pending returns the number of buffered events.
func (ab *AuditBuffer) Pending() int {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return len(ab.events)
}

// Flush writes all buffered events to the sink.
func (ab *AuditBuffer) Flush() {
	ab.mu.Lock()
	if len(ab.events) == 0 {
		ab.mu.Unlock()
		return
	}
	batch := ab.events
	ab.events = nil
	ab.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ab.sink.InsertAuditEvents(ctx, batch); err != nil {
		log.WithField("events", len(batch)).Errorf("audit buffer flush: %v", err)
	}
}

// Stop halts the background ticker and flushes remaining events.
func (ab *AuditBuffer) Stop() {
	if ab.ticker != nil {
		ab.ticker.Stop()
	}
	close(ab.done)
	ab.Flush()
}

// NoopRecorder discards all events. Used when auditing is disabled.
type NoopRecorder struct{}

func (NoopRecorder) Record(store.AuditEvent) {}

package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid events to prevent index thrashing. Within a
// window, events for the same path merge: CREATED and MODIFIED events
// collapse into one event carrying the newest hash (a pending CREATED
// stays CREATED), and a DELETED cancels pending writes for that path
// (deletion dominates).
type Debouncer struct {
	window  time.Duration
	pending map[string]FileEvent
	mu      sync.Mutex
	output  chan []FileEvent
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given window and output
// buffer capacity (in batches).
func NewDebouncer(window time.Duration, bufferSize int) *Debouncer {
	if bufferSize <= 0 {
		bufferSize = 10
	}
	return &Debouncer{
		window:  window,
		pending: make(map[string]FileEvent),
		output:  make(chan []FileEvent, bufferSize),
	}
}

// Add merges an event into the pending batch and (re)arms the flush
// timer.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		d.pending[event.Path] = coalesce(existing, event)
	} else {
		d.pending[event.Path] = event
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges two events for the same path.
func coalesce(old, new FileEvent) FileEvent {
	// DELETED dominates any pending write.
	if new.Event == EventDeleted {
		return new
	}
	// A write after DELETED means the file was replaced.
	if old.Event == EventDeleted {
		new.Event = EventModified
		return new
	}
	// CREATED + MODIFIED stays CREATED; the hash is the newest one.
	if old.Event == EventCreated {
		old.NewHash = new.NewHash
		old.Timestamp = new.Timestamp
		return old
	}
	return new
}

// flush delivers the pending batch.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]FileEvent, 0, len(d.pending))
	for _, e := range d.pending {
		events = append(events, e)
	}
	d.pending = make(map[string]FileEvent)

	select {
	case d.output <- events:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(events)))
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop stops the debouncer and closes the output channel. Safe to call
// multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}

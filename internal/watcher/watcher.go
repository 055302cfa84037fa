// Package watcher detects source-file changes and delivers hash-gated,
// debounced event batches to the indexer. Two backends share the public
// surface: a native fsnotify backend and a polled fallback for
// networked or virtualized mounts where native events are unreliable.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Event is a filesystem change kind.
type Event int

const (
	// EventCreated indicates a new file.
	EventCreated Event = iota
	// EventModified indicates changed content.
	EventModified
	// EventDeleted indicates a removed file. Deletion dominates when a
	// batch carries multiple events for one path.
	EventDeleted
)

// String returns a human-readable representation of the event.
func (e Event) String() string {
	switch e {
	case EventCreated:
		return "CREATED"
	case EventModified:
		return "MODIFIED"
	case EventDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one delivered change: the relative path and, for writes,
// the freshly computed content hash.
type FileEvent struct {
	Event     Event
	Path      string // workspace-relative, forward slashes
	NewHash   string // empty for deletes
	Timestamp time.Time
}

// Watcher is the shared surface of both backends.
type Watcher interface {
	// Start begins watching. It errors if called twice.
	Start(ctx context.Context) error

	// Stop joins background work and releases OS resources. Always safe
	// to call, repeatedly.
	Stop() error

	// Events returns batched, per-path-deduplicated events. The channel
	// closes when the watcher stops.
	Events() <-chan []FileEvent

	// Errors returns non-fatal backend errors.
	Errors() <-chan error

	// UpdateHash records what the index now holds for a path. Called by
	// the indexer after a successful write.
	UpdateHash(path, newHash string)

	// RemoveHash drops a path from the gate map after index deletion.
	RemoveHash(path string)
}

// Options configures either backend.
type Options struct {
	// DebounceWindow batches events before delivery.
	DebounceWindow time.Duration

	// PollInterval is the fallback backend's scan period.
	PollInterval time.Duration

	// EventBufferSize is the delivery channel's capacity.
	EventBufferSize int

	// ShouldIgnore filters paths before debouncing (the ignore engine).
	ShouldIgnore func(relPath string) bool
}

// WithDefaults fills zero values.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow == 0 {
		o.DebounceWindow = 200 * time.Millisecond
	}
	if o.PollInterval == 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = 1000
	}
	return o
}

// tempFilePatterns are editor artifacts that never reach the debouncer.
var tempFilePatterns = []string{"*.tmp", "*~", ".#*", "*.swp", "*.swx", "4913"}

// isTempFile matches editor temp/swap artifacts by basename.
func isTempFile(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range tempFilePatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// NeedsPollingFallback decides whether the native backend can be
// trusted for the workspace root. The heuristic: a WSL-style kernel
// marker combined with a Windows-mount path prefix means inotify misses
// events for writes made on the host side.
func NeedsPollingFallback(root string) bool {
	marker, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	version := strings.ToLower(string(marker))
	if !strings.Contains(version, "microsoft") && !strings.Contains(version, "wsl") {
		return false
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	return strings.HasPrefix(abs, "/mnt/")
}

// New selects the backend for the workspace root: native unless the
// fallback heuristic (or forcePolling) says otherwise.
func New(root string, opts Options, forcePolling bool) (Watcher, error) {
	if forcePolling || NeedsPollingFallback(root) {
		return NewPollingWatcher(root, opts), nil
	}
	return NewNativeWatcher(root, opts)
}

package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ziongh/miller/internal/errors"
	"github.com/ziongh/miller/internal/extract"
)

// NativeWatcher wraps fsnotify. Events pass the ignore filter, the
// temp-file filter, and the hash gate (an event is suppressed unless the
// recomputed content hash differs from the last-known one) before
// reaching the debouncer.
type NativeWatcher struct {
	root      string
	opts      Options
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	errs      chan error

	hashMu sync.Mutex
	hashes map[string]string // path -> last-known content hash

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
}

var _ Watcher = (*NativeWatcher)(nil)

// NewNativeWatcher creates the fsnotify-backed watcher.
func NewNativeWatcher(root string, opts Options) (*NativeWatcher, error) {
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(errors.KindWatcher, err, "create fsnotify watcher")
	}

	return &NativeWatcher{
		root:      root,
		opts:      opts,
		fsWatcher: fsw,
		debouncer: NewDebouncer(opts.DebounceWindow, opts.EventBufferSize),
		errs:      make(chan error, 10),
		hashes:    make(map[string]string),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. Calling it a second time is an error.
func (w *NativeWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New(errors.KindWatcher, "watcher already started")
	}
	w.started = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return errors.Wrap(errors.KindWatcher, err, "watch workspace tree")
	}

	go w.loop(ctx)
	return nil
}

func (w *NativeWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr == nil && rel != "." && w.shouldIgnore(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *NativeWatcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- errors.Wrap(errors.KindWatcher, err, "fsnotify"):
			default:
			}
		}
	}
}

func (w *NativeWatcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	if isTempFile(rel) || w.shouldIgnore(rel) {
		return
	}

	info, statErr := os.Lstat(event.Name)
	isDir := statErr == nil && info.IsDir()

	switch {
	case event.Op&fsnotify.Create != 0:
		if isDir {
			_ = w.fsWatcher.Add(event.Name)
			return
		}
		w.gateAndAdd(rel, EventCreated)

	case event.Op&fsnotify.Write != 0:
		if isDir {
			return
		}
		w.gateAndAdd(rel, EventModified)

	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		w.debouncer.Add(FileEvent{Event: EventDeleted, Path: rel, Timestamp: time.Now()})
	}
}

// gateAndAdd recomputes the content hash and suppresses the event when
// it matches the last-known one (save-without-change).
func (w *NativeWatcher) gateAndAdd(rel string, event Event) {
	content, err := os.ReadFile(filepath.Join(w.root, filepath.FromSlash(rel)))
	if err != nil {
		return
	}
	newHash := extract.HashContent(content)

	w.hashMu.Lock()
	known, exists := w.hashes[rel]
	w.hashMu.Unlock()

	if exists && known == newHash {
		return
	}
	if !exists {
		event = EventCreated
	}

	w.debouncer.Add(FileEvent{Event: event, Path: rel, NewHash: newHash, Timestamp: time.Now()})
}

func (w *NativeWatcher) shouldIgnore(rel string) bool {
	return w.opts.ShouldIgnore != nil && w.opts.ShouldIgnore(rel)
}

// Events returns the debounced batch channel.
func (w *NativeWatcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns non-fatal backend errors.
func (w *NativeWatcher) Errors() <-chan error {
	return w.errs
}

// UpdateHash records what the index now holds. Lock scope is just the
// map write.
func (w *NativeWatcher) UpdateHash(path, newHash string) {
	w.hashMu.Lock()
	w.hashes[path] = newHash
	w.hashMu.Unlock()
}

// RemoveHash drops a path from the gate map.
func (w *NativeWatcher) RemoveHash(path string) {
	w.hashMu.Lock()
	delete(w.hashes, path)
	w.hashMu.Unlock()
}

// TrackedFiles returns the number of gated paths.
func (w *NativeWatcher) TrackedFiles() int {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	return len(w.hashes)
}

// Stop closes the backend and joins the event loop. Safe to call
// repeatedly.
func (w *NativeWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started := w.started
	w.mu.Unlock()

	err := w.fsWatcher.Close()
	if started {
		select {
		case <-w.done:
		case <-time.After(2 * time.Second):
			err = fmt.Errorf("watcher loop did not exit in time")
		}
	}
	w.debouncer.Stop()
	return err
}

package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ziongh/miller/internal/errors"
	"github.com/ziongh/miller/internal/extract"
)

// PollingWatcher scans the tree on an interval. It is the fallback for
// mounts where native notification is unreliable, so it trusts nothing:
// the content hash is recomputed on every detected write.
type PollingWatcher struct {
	root      string
	opts      Options
	debouncer *Debouncer
	errs      chan error

	hashMu sync.Mutex
	hashes map[string]string

	stateMu sync.Mutex
	mtimes  map[string]time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}
}

var _ Watcher = (*PollingWatcher)(nil)

// NewPollingWatcher creates the polled fallback backend.
func NewPollingWatcher(root string, opts Options) *PollingWatcher {
	opts = opts.WithDefaults()
	return &PollingWatcher{
		root:      root,
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow, opts.EventBufferSize),
		errs:      make(chan error, 10),
		hashes:    make(map[string]string),
		mtimes:    make(map[string]time.Time),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins polling. Calling it a second time is an error.
func (p *PollingWatcher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New(errors.KindWatcher, "watcher already started")
	}
	p.started = true
	p.mu.Unlock()

	// Baseline scan: record state without emitting events.
	p.scan(true)

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.opts.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.scan(false)
			}
		}
	}()
	return nil
}

// scan walks the tree, comparing mtimes first and hashes second.
func (p *PollingWatcher) scan(baseline bool) {
	current := make(map[string]time.Time)

	_ = filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(p.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if p.shouldIgnore(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if isTempFile(rel) || p.shouldIgnore(rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		current[rel] = info.ModTime()

		p.stateMu.Lock()
		prev, seen := p.mtimes[rel]
		p.stateMu.Unlock()

		if baseline {
			return nil
		}

		if !seen {
			p.hashAndEmit(rel, EventCreated)
		} else if !prev.Equal(info.ModTime()) {
			p.hashAndEmit(rel, EventModified)
		}
		return nil
	})

	p.stateMu.Lock()
	if !baseline {
		for rel := range p.mtimes {
			if _, exists := current[rel]; !exists {
				p.debouncer.Add(FileEvent{Event: EventDeleted, Path: rel, Timestamp: time.Now()})
			}
		}
	}
	p.mtimes = current
	p.stateMu.Unlock()
}

// hashAndEmit always recomputes the hash: on a polled mount the mtime
// alone cannot be trusted.
func (p *PollingWatcher) hashAndEmit(rel string, event Event) {
	content, err := os.ReadFile(filepath.Join(p.root, filepath.FromSlash(rel)))
	if err != nil {
		return
	}
	newHash := extract.HashContent(content)

	p.hashMu.Lock()
	known, exists := p.hashes[rel]
	p.hashMu.Unlock()

	if exists && known == newHash {
		return
	}
	if !exists {
		event = EventCreated
	}

	p.debouncer.Add(FileEvent{Event: event, Path: rel, NewHash: newHash, Timestamp: time.Now()})
}

func (p *PollingWatcher) shouldIgnore(rel string) bool {
	return p.opts.ShouldIgnore != nil && p.opts.ShouldIgnore(rel)
}

// Events returns the debounced batch channel.
func (p *PollingWatcher) Events() <-chan []FileEvent {
	return p.debouncer.Output()
}

// Errors returns non-fatal backend errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errs
}

// UpdateHash records what the index now holds.
func (p *PollingWatcher) UpdateHash(path, newHash string) {
	p.hashMu.Lock()
	p.hashes[path] = newHash
	p.hashMu.Unlock()
}

// RemoveHash drops a path from the gate map.
func (p *PollingWatcher) RemoveHash(path string) {
	p.hashMu.Lock()
	delete(p.hashes, path)
	p.hashMu.Unlock()
}

// Stop ends polling. Safe to call repeatedly.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	close(p.stopCh)
	p.mu.Unlock()

	if started {
		select {
		case <-p.done:
		case <-time.After(2 * time.Second):
		}
	}
	p.debouncer.Stop()
	return nil
}

package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/ziongh/miller/internal/buffer"
	"github.com/ziongh/miller/internal/config"
	"github.com/ziongh/miller/internal/embed"
	"github.com/ziongh/miller/internal/explore"
	"github.com/ziongh/miller/internal/extract"
	"github.com/ziongh/miller/internal/graph"
	"github.com/ziongh/miller/internal/ignore"
	"github.com/ziongh/miller/internal/indexer"
	"github.com/ziongh/miller/internal/search"
	"github.com/ziongh/miller/internal/store"
	"github.com/ziongh/miller/internal/trace"
	"github.com/ziongh/miller/internal/vecstore"
	"github.com/ziongh/miller/internal/watcher"
)

// Engine bundles one workspace's singletons.
type Engine struct {
	Root     string
	DataDir  string
	Config   *config.Config
	Metadata store.MetadataStore
	Vectors  *vecstore.Store
	Embedder embed.Embedder
	Ignore   *ignore.Engine
	Closure  *graph.Closure
	Indexer  *indexer.Indexer
	Router   *search.Router
	Trace    *trace.Engine
	Explorer *explore.Explorer

	lock    *flock.Flock
	watcher watcher.Watcher

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// Initialize constructs the full engine for a workspace root. The data
// directory is flock-guarded: one writer per workspace.
func Initialize(root string, cfg *config.Config) (*Engine, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if cfg == nil {
		cfg, err = config.Load(absRoot)
		if err != nil {
			return nil, err
		}
	}

	dataDir := filepath.Join(dataHome(), WorkspaceID(absRoot))
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dataDir, "miller.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire workspace lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("workspace %s is locked by another miller process", absRoot)
	}

	embedder := buildEmbedder(cfg)

	metadata, err := store.OpenMetadata(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	vectors, err := vecstore.Open(filepath.Join(dataDir, "vectors"), embedder)
	if err != nil {
		_ = metadata.Close()
		_ = lock.Unlock()
		return nil, err
	}

	ignoreEngine := ignore.NewEngine(absRoot, cfg.Paths.Exclude)
	closure := graph.New(metadata)
	adapter := extract.NewAdapter(absRoot)

	ix := indexer.New(indexer.Config{
		Root:          absRoot,
		Metadata:      metadata,
		Vectors:       vectors,
		Embedder:      embedder,
		Ignore:        ignoreEngine,
		Closure:       closure,
		FileBatchSize: cfg.Indexing.FileBatchSize,
		Thresholds: buffer.Thresholds{
			Symbols: cfg.Indexing.SymbolFlushThreshold,
			Files:   cfg.Indexing.FileFlushThreshold,
		},
		Workers: cfg.Indexing.Workers,
	}, adapter)

	router := search.NewRouter(vectors, metadata, closure, nil, cfg.Search.SemanticFallbackFloor)

	traceEngine := trace.New(metadata, vectors, embedder)
	traceEngine.SetSemanticThreshold(cfg.Trace.SemanticThreshold)
	traceEngine.SetFanOutCap(cfg.Trace.FanOutCap)

	return &Engine{
		Root:     absRoot,
		DataDir:  dataDir,
		Config:   cfg,
		Metadata: metadata,
		Vectors:  vectors,
		Embedder: embedder,
		Ignore:   ignoreEngine,
		Closure:  closure,
		Indexer:  ix,
		Router:   router,
		Trace:    traceEngine,
		Explorer: explore.New(metadata, vectors, closure),
		lock:     lock,
	}, nil
}

// dataHome is the root of all per-workspace index state:
// $MILLER_HOME, or ~/.miller.
func dataHome() string {
	if custom := os.Getenv("MILLER_HOME"); custom != "" {
		return custom
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "miller")
	}
	return filepath.Join(home, ".miller")
}

// buildEmbedder selects the provider, degrading to the static embedder
// when a remote provider is configured but unreachable.
func buildEmbedder(cfg *config.Config) embed.Embedder {
	if cfg.Embeddings.Provider == "ollama" {
		ollama := embed.NewOllamaEmbedder(embed.OllamaConfig{
			Host:       cfg.Embeddings.OllamaHost,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			BatchSize:  cfg.Embeddings.BatchSize,
			Timeout:    cfg.Embeddings.Timeout,
		})
		if ollama.Available(context.Background()) {
			return ollama
		}
		slog.Warn("ollama unavailable, falling back to static embedder",
			slog.String("host", cfg.Embeddings.OllamaHost))
		_ = ollama.Close()
	}
	return embed.NewStaticEmbedder()
}

// StartWatcher begins change detection and feeds events to the indexer.
func (e *Engine) StartWatcher(ctx context.Context) error {
	if e.watcher != nil {
		return fmt.Errorf("watcher already running")
	}

	w, err := watcher.New(e.Root, watcher.Options{
		DebounceWindow: e.Config.Watcher.DebounceWindow,
		PollInterval:   e.Config.Watcher.PollInterval,
		ShouldIgnore: func(rel string) bool {
			return e.Ignore.ShouldIgnore(rel, e.Root, false)
		},
	}, e.Config.Watcher.ForcePolling)
	if err != nil {
		return err
	}

	// Seed the hash gate with the indexed state.
	files, err := e.Metadata.ListFiles(ctx)
	if err == nil {
		for _, f := range files {
			w.UpdateHash(f.Path, f.ContentHash)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	if err := w.Start(watchCtx); err != nil {
		cancel()
		return err
	}

	e.watcher = w
	e.watchCancel = cancel
	e.watchDone = make(chan struct{})

	go func() {
		defer close(e.watchDone)
		e.Indexer.Run(watchCtx, w)
	}()
	return nil
}

// Health summarizes engine state for the manage_workspace health
// operation.
type Health struct {
	Root          string `json:"root"`
	Files         int    `json:"files"`
	VectorRows    int    `json:"vector_rows"`
	EmbedderModel string `json:"embedder_model"`
	EmbedderReady bool   `json:"embedder_ready"`
	Watching      bool   `json:"watching"`
	ClosureStale  bool   `json:"closure_stale"`
}

// Health reports the engine's current state.
func (e *Engine) Health(ctx context.Context) *Health {
	files, _ := e.Metadata.ListFiles(ctx)
	return &Health{
		Root:          e.Root,
		Files:         len(files),
		VectorRows:    e.Vectors.Count(),
		EmbedderModel: e.Embedder.ModelName(),
		EmbedderReady: e.Embedder.Available(ctx),
		Watching:      e.watcher != nil,
		ClosureStale:  e.Closure.IsStale(ctx),
	}
}

// Clean deletes the workspace's index data. The engine must be shut
// down and reinitialized afterwards.
func (e *Engine) Clean() error {
	if err := e.Shutdown(); err != nil {
		return err
	}
	return os.RemoveAll(e.DataDir)
}

// Shutdown tears everything down in one step. Safe to call once.
func (e *Engine) Shutdown() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if e.watchCancel != nil {
		e.watchCancel()
		<-e.watchDone
		e.watchCancel = nil
	}
	if e.watcher != nil {
		record(e.watcher.Stop())
		e.watcher = nil
	}
	if e.Vectors != nil {
		record(e.Vectors.Close())
	}
	if e.Metadata != nil {
		record(e.Metadata.Close())
	}
	if e.Embedder != nil {
		record(e.Embedder.Close())
	}
	if e.lock != nil {
		record(e.lock.Unlock())
	}
	return firstErr
}

// Manager caches engines per workspace for the tool surface.
type Manager struct {
	registry *Registry
	mu       sync.Mutex
	engines  map[string]*Engine
}

// NewManager creates a manager over the registry.
func NewManager(registry *Registry) *Manager {
	return &Manager{registry: registry, engines: make(map[string]*Engine)}
}

// Registry exposes the backing registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Engine returns the engine for a workspace path or ID, initializing on
// first use.
func (m *Manager) Engine(root string) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	id := WorkspaceID(abs)

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.engines[id]; ok {
		return e, nil
	}

	e, err := Initialize(abs, nil)
	if err != nil {
		return nil, err
	}
	m.engines[id] = e
	return e, nil
}

// Drop removes a cached engine after shutdown.
func (m *Manager) Drop(root string) {
	abs, _ := filepath.Abs(root)
	m.mu.Lock()
	delete(m.engines, WorkspaceID(abs))
	m.mu.Unlock()
}

// ShutdownAll tears down every cached engine.
func (m *Manager) ShutdownAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.engines {
		if err := e.Shutdown(); err != nil {
			slog.Warn("engine shutdown failed", slog.String("workspace", id),
				slog.String("error", err.Error()))
		}
		delete(m.engines, id)
	}
}

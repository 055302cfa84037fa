// Package indexer drives full workspace indexing and incremental
// updates: walk → extract → buffer → embed → dual-store flush.
package indexer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ziongh/miller/internal/buffer"
	"github.com/ziongh/miller/internal/embed"
	"github.com/ziongh/miller/internal/errors"
	"github.com/ziongh/miller/internal/extract"
	"github.com/ziongh/miller/internal/graph"
	"github.com/ziongh/miller/internal/ignore"
	"github.com/ziongh/miller/internal/store"
	"github.com/ziongh/miller/internal/vecstore"
)

// Config wires the indexer's collaborators.
type Config struct {
	Root     string
	Metadata store.MetadataStore
	Vectors  *vecstore.Store
	Embedder embed.Embedder
	Ignore   *ignore.Engine
	Closure  *graph.Closure

	// FileBatchSize groups files per extraction call.
	FileBatchSize int

	// Thresholds trigger buffer flushes.
	Thresholds buffer.Thresholds

	// Workers bounds the extraction pool; 0 means NumCPU.
	Workers int
}

// Stats summarizes one indexing pass.
type Stats struct {
	FilesScanned int
	FilesIndexed int
	FilesSkipped int
	Symbols      int
	Flushes      int
}

// Indexer owns one workspace's ingestion pipeline. Store writes are
// serialized through flushMu; extraction runs on a worker pool.
type Indexer struct {
	cfg     Config
	adapter *extract.Adapter

	flushMu sync.Mutex

	// onHashUpdate lets the watcher keep its gate map in sync with what
	// the index actually holds.
	onHashUpdate func(path, newHash string)
	onHashRemove func(path string)
}

// New creates an indexer.
func New(cfg Config, adapter *extract.Adapter) *Indexer {
	if cfg.FileBatchSize <= 0 {
		cfg.FileBatchSize = 8
	}
	if cfg.Thresholds.Symbols <= 0 || cfg.Thresholds.Files <= 0 {
		cfg.Thresholds = buffer.DefaultThresholds()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Indexer{cfg: cfg, adapter: adapter}
}

// SetHashCallbacks registers the watcher's hash-map maintenance hooks.
func (ix *Indexer) SetHashCallbacks(update func(path, newHash string), remove func(path string)) {
	ix.onHashUpdate = update
	ix.onHashRemove = remove
}

// IndexWorkspace runs a full pass: deterministic walk, grouped parallel
// extraction, threshold-driven flushes, one final flush, one pattern
// persistence step, and a staleness mark for the closure.
func (ix *Indexer) IndexWorkspace(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	paths, err := ix.walk()
	if err != nil {
		return stats, err
	}
	stats.FilesScanned = len(paths)

	// Hash gate: skip files whose stored hash matches current bytes.
	toIndex, skipped, err := ix.filterUnchanged(ctx, paths)
	if err != nil {
		return stats, err
	}
	stats.FilesSkipped = skipped

	buf := buffer.New(ix.cfg.Thresholds)
	groups := partition(toIndex, ix.cfg.FileBatchSize)

	for _, group := range groups {
		// Cancellation is honored between file groups; in-flight groups
		// complete and their buffer contribution is discarded with the pass.
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		batches, err := ix.extractGroup(ctx, group)
		if err != nil {
			return stats, err
		}
		for _, b := range batches {
			buf.AddBatch(b, existingPaths(ctx, ix.cfg.Metadata, pathsOf(b)))
		}

		if buf.ShouldFlush() {
			if err := ix.flush(ctx, buf, stats); err != nil {
				return stats, err
			}
		}
	}

	if !buf.IsEmpty() {
		if err := ix.flush(ctx, buf, stats); err != nil {
			return stats, err
		}
	}

	stats.FilesIndexed = len(toIndex)

	// One pattern-index persistence step per batch session, not per flush.
	if err := ix.cfg.Vectors.Flush(); err != nil {
		slog.Warn("vector store flush failed", slog.String("error", err.Error()))
	}

	ix.resolveCrossFileCalls(ctx)

	if err := ix.cfg.Closure.MarkStale(ctx); err != nil {
		slog.Warn("failed to mark reachability stale", slog.String("error", err.Error()))
	}

	return stats, nil
}

// walk yields the deterministic, ignore-filtered file list.
func (ix *Indexer) walk() ([]string, error) {
	var paths []string

	err := filepath.WalkDir(ix.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, relErr := filepath.Rel(ix.cfg.Root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if ix.cfg.Ignore.ShouldIgnore(rel, ix.cfg.Root, false) {
				return filepath.SkipDir
			}
			return nil
		}
		if ix.cfg.Ignore.ShouldIgnore(rel, ix.cfg.Root, true) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, err, "walk workspace")
	}

	sort.Strings(paths)
	return paths, nil
}

// filterUnchanged drops files whose content hash matches the stored row.
func (ix *Indexer) filterUnchanged(ctx context.Context, paths []string) (toIndex []string, skipped int, err error) {
	for _, rel := range paths {
		f, getErr := ix.cfg.Metadata.GetFile(ctx, rel)
		if getErr != nil {
			if errors.IsKind(getErr, errors.KindNotFound) {
				toIndex = append(toIndex, rel)
				continue
			}
			return nil, 0, getErr
		}

		content, readErr := os.ReadFile(filepath.Join(ix.cfg.Root, filepath.FromSlash(rel)))
		if readErr != nil {
			continue
		}
		if extract.HashContent(content) == f.ContentHash {
			skipped++
			continue
		}
		toIndex = append(toIndex, rel)
	}
	return toIndex, skipped, nil
}

// extractGroup runs the adapter over sub-slices of the group on the
// worker pool.
func (ix *Indexer) extractGroup(ctx context.Context, group []string) ([]*extract.Batch, error) {
	chunks := partition(group, maxInt(1, len(group)/ix.cfg.Workers))

	results := make([]*extract.Batch, len(chunks))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Workers)

	for i, chunk := range chunks {
		g.Go(func() error {
			b, err := ix.adapter.LoadFiles(chunk)
			if err != nil {
				return err
			}
			results[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// flush writes one buffered batch to both stores: embed, delete stale
// rows, insert files/symbols/identifiers/relationships into the metadata
// store, insert symbols+vectors into the vector store, clear the buffer.
// Deletes for a path always precede its inserts.
func (ix *Indexer) flush(ctx context.Context, buf *buffer.Buffer, stats *Stats) error {
	ix.flushMu.Lock()
	defer ix.flushMu.Unlock()

	texts := buf.EmbeddingTexts()
	vectors, err := ix.cfg.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		// Both stores must hold the same rows per file, so an embedder
		// failure drops the whole batch rather than writing metadata
		// without vectors. The pass continues; the files retry on the
		// next run because their hashes were never recorded.
		slog.Warn("embedding batch dropped",
			slog.String("error", err.Error()),
			slog.Int("symbols", len(texts)))
		buf.Clear()
		return nil
	}

	toClean := dedupe(buf.FilesToClean())
	if len(toClean) > 0 {
		if err := ix.cfg.Metadata.DeleteFiles(ctx, toClean); err != nil {
			return err
		}
		if err := ix.cfg.Vectors.DeleteFiles(ctx, toClean); err != nil {
			return err
		}
	}

	if err := ix.cfg.Metadata.AddFiles(ctx, buf.Files().Files()); err != nil {
		return err
	}
	if err := ix.cfg.Metadata.InsertSymbols(ctx, buf.Symbols()); err != nil {
		return err
	}
	if err := ix.cfg.Metadata.InsertIdentifiers(ctx, buf.Identifiers()); err != nil {
		return err
	}
	if err := ix.cfg.Metadata.InsertRelationships(ctx, buf.Relationships()); err != nil {
		return err
	}

	if err := ix.cfg.Vectors.AddSymbols(ctx, buf.Symbols(), vectors); err != nil {
		return err
	}

	// The watcher's gate map tracks what the index now holds.
	if ix.onHashUpdate != nil {
		files := buf.Files()
		for i := 0; i < files.Len(); i++ {
			ix.onHashUpdate(files.Path[i], files.ContentHash[i])
		}
	}

	stats.Symbols += buf.SymbolCount()
	stats.Flushes++
	buf.Clear()
	return nil
}

// RemoveFile deletes one path from both stores.
func (ix *Indexer) RemoveFile(ctx context.Context, relPath string) error {
	ix.flushMu.Lock()
	defer ix.flushMu.Unlock()

	if err := ix.cfg.Metadata.DeleteFiles(ctx, []string{relPath}); err != nil {
		return err
	}
	if err := ix.cfg.Vectors.DeleteFiles(ctx, []string{relPath}); err != nil {
		return err
	}
	if ix.onHashRemove != nil {
		ix.onHashRemove(relPath)
	}
	if err := ix.cfg.Closure.MarkStale(ctx); err != nil {
		slog.Warn("failed to mark reachability stale", slog.String("error", err.Error()))
	}
	return nil
}

// UpdateFile re-indexes one path (watcher path): extract, embed, replace
// rows in both stores.
func (ix *Indexer) UpdateFile(ctx context.Context, relPath string) error {
	content, err := os.ReadFile(filepath.Join(ix.cfg.Root, filepath.FromSlash(relPath)))
	if err != nil {
		if os.IsNotExist(err) {
			return ix.RemoveFile(ctx, relPath)
		}
		return errors.Wrap(errors.KindInternal, err, "read %s", relPath)
	}
	if extract.IsBinary(content) {
		return nil
	}

	buf := buffer.New(ix.cfg.Thresholds)
	batch, err := ix.adapter.LoadFiles([]string{relPath})
	if err != nil {
		return err
	}
	buf.AddBatch(batch, existingPaths(ctx, ix.cfg.Metadata, []string{relPath}))

	stats := &Stats{}
	if err := ix.flush(ctx, buf, stats); err != nil {
		return err
	}
	if err := ix.cfg.Vectors.Flush(); err != nil {
		slog.Warn("vector store flush failed", slog.String("error", err.Error()))
	}
	ix.resolveCrossFileCalls(ctx)
	return ix.cfg.Closure.MarkStale(ctx)
}

// crossFileResolver is implemented by stores that can link unresolved
// call identifiers to unique definitions after a flush.
type crossFileResolver interface {
	ResolveCrossFileCalls(ctx context.Context) (int, error)
}

func (ix *Indexer) resolveCrossFileCalls(ctx context.Context) {
	resolver, ok := ix.cfg.Metadata.(crossFileResolver)
	if !ok {
		return
	}
	if _, err := resolver.ResolveCrossFileCalls(ctx); err != nil {
		slog.Warn("cross-file call resolution failed", slog.String("error", err.Error()))
	}
}

// existingPaths returns the subset of paths already present in the
// metadata store.
func existingPaths(ctx context.Context, m store.MetadataStore, paths []string) []string {
	var out []string
	for _, p := range paths {
		if _, err := m.GetFile(ctx, p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func pathsOf(b *extract.Batch) []string {
	out := make([]string, b.Files.Len())
	copy(out, b.Files.Path)
	return out
}

func partition(items []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

package indexer

import (
	"context"
	"log/slog"

	"github.com/ziongh/miller/internal/watcher"
)

// HandleEvents applies one debounced watcher batch. The batch is already
// deduplicated per path with deletion dominant, so each event maps to
// exactly one index operation. Per-event failures are logged and the
// rest of the batch proceeds.
func (ix *Indexer) HandleEvents(ctx context.Context, events []watcher.FileEvent) {
	for _, event := range events {
		var err error
		switch event.Event {
		case watcher.EventDeleted:
			err = ix.RemoveFile(ctx, event.Path)
		case watcher.EventCreated, watcher.EventModified:
			err = ix.UpdateFile(ctx, event.Path)
		}
		if err != nil {
			slog.Warn("failed to process file event",
				slog.String("path", event.Path),
				slog.String("event", event.Event.String()),
				slog.String("error", err.Error()))
		}
	}
}

// Run consumes watcher batches until the context ends or the watcher's
// event channel closes.
func (ix *Indexer) Run(ctx context.Context, w watcher.Watcher) {
	ix.SetHashCallbacks(w.UpdateHash, w.RemoveHash)

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.Events():
			if !ok {
				return
			}
			ix.HandleEvents(ctx, batch)
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

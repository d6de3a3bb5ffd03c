package settings

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/GriffinCanCode/slidecapture/internal/crop"
)

// Watcher reloads the store when its file changes on disk and calls
// onChange with the new region.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	onChange func(context.Context, crop.Region)
}

// NewWatcher watches the store's directory; editors and Save replace the
// file rather than writing it in place.
func NewWatcher(store *Store, onChange func(context.Context, crop.Region)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(store.path)); err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{store: store, watcher: w, onChange: onChange}, nil
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	name := filepath.Clean(w.store.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("settings watcher error", "error", err)
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	c, changed, err := w.store.reload()
	if err != nil {
		slog.Warn("settings reload failed", "path", w.store.path, "error", err)
		return
	}
	if !changed {
		return
	}
	r, _ := c.Region()
	slog.Info("crop settings reloaded", "region", r.String())
	if w.onChange != nil {
		w.onChange(ctx, r)
	}
}

package pidfile

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// safetyInterval re-checks the file even when no inotify event arrived.
// Covers missed events on overlay filesystems and editor rename tricks.
const safetyInterval = 30 * time.Second

// RunNotify watches the PID file's directory with fsnotify and re-observes
// on every event touching the file, falling back to plain polling when the
// watch cannot be established. Event semantics are identical to Run.
func (w *Watcher) RunNotify(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn().Err(err).Msg("fsnotify unavailable, falling back to polling")
		return w.Run(ctx)
	}
	defer fw.Close()

	// Watch the directory, not the file: the file may not exist yet, and
	// watching the parent survives delete/recreate cycles.
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		w.logger.Warn().Err(err).Str("dir", dir).Msg("fsnotify watch failed, falling back to polling")
		return w.Run(ctx)
	}

	defer close(w.events)

	ticker := time.NewTicker(safetyInterval)
	defer ticker.Stop()

	w.tick(ctx)

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == filepath.Clean(w.path) {
				w.tick(ctx)
			}
		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(werr).Msg("fsnotify error")
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

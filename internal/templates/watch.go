package templates

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/hanpama/gqlhx/internal/logging"
)

// Watch drops compiled templates whenever a file under the engine's
// directories changes. It returns once the watcher is running; the watcher
// stops when ctx is done.
func (e *Engine) Watch(ctx context.Context) error {
	if len(e.dirs) == 0 {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("templates: watch: %w", err)
	}
	for _, dir := range e.dirs {
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return w.Add(p)
			}
			return nil
		})
		if err != nil {
			_ = w.Close()
			return fmt.Errorf("templates: watch %s: %w", dir, err)
		}
	}

	log := logging.New("templates")
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						_ = w.Add(ev.Name)
					}
				}
				log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("template changed")
				e.Invalidate()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("template watcher error")
			}
		}
	}()
	return nil
}

package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blue-kestrel/shipsentry/internal/storage"
)

// Watcher re-seeds alert configurations when the YAML file changes,
// so policy edits take effect without a restart.
type Watcher struct {
	path    string
	repo    storage.ConfigurationRepository
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a configuration file watcher. The parent
// directory is watched rather than the file itself, so editors that
// replace the file on save (rename + create) are handled.
func NewWatcher(path string, repo storage.ConfigurationRepository) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	return &Watcher{
		path:    absPath,
		repo:    repo,
		watcher: fw,
		done:    make(chan struct{}),
	}, nil
}

// Start launches the watch loop in the background. It runs until the
// context is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

// run consumes file events. Events are debounced: editors often emit
// several writes per save.
func (w *Watcher) run(ctx context.Context) {
	var reload <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				reload = time.After(250 * time.Millisecond)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("configuration watcher error: %v", err)
		case <-reload:
			reload = nil
			n, err := Seed(ctx, w.repo, w.path)
			if err != nil {
				// A bad edit must not take down the engine; the last
				// good configurations stay in effect.
				log.Printf("configuration reload failed, keeping previous: %v", err)
				continue
			}
			log.Printf("reloaded %d alert configurations from %s", n, w.path)
		}
	}
}

// Close stops the watch loop.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

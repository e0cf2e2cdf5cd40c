package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/entrhq/guardian/pkg/logging"
)

// Watcher reloads the manager when the config file changes on disk, so
// mutations made by other processes are observed like in-process ones.
type Watcher struct {
	fw   *fsnotify.Watcher
	mgr  *Manager
	log  *logging.Logger
	done chan struct{}
}

// WatchFile starts watching the manager's backing file. The parent directory
// is watched rather than the file itself because atomic saves replace the
// file via rename.
func WatchFile(mgr *Manager, log *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(mgr.Path())
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{fw: fw, mgr: mgr, log: log, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	target := filepath.Clean(w.mgr.Path())

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := w.mgr.Reload(); err != nil && w.log != nil {
				w.log.Warnf("config reload after %s failed: %v", event.Op, err)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warnf("config watcher error: %v", err)
			}
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}

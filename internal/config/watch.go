package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// #region watcher
// Watcher reloads a config file whenever it changes on disk.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// Watch calls onChange with the freshly loaded config after every write,
// create or rename of path. Invalid edits are logged and skipped, so the
// last good config stays in effect. The parent directory is watched because
// editors often replace the file instead of writing it in place.
func Watch(path string, onChange func(Config)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch config: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch config %s: %w", abs, err)
	}

	w := &Watcher{path: abs, watcher: fw, done: make(chan struct{})}
	go w.loop(onChange)
	log.Printf("[CONFIG] watching %s", abs)
	return w, nil
}

func (w *Watcher) loop(onChange func(Config)) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				log.Printf("[CONFIG] reload failed, keeping previous config: %v", err)
				continue
			}
			if onChange != nil {
				onChange(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[CONFIG] watcher error: %v", err)
		}
	}
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.done
	return err
}
// #endregion watcher

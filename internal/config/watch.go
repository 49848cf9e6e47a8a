package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DefaultReloadDebounce collapses the burst of events editors emit for a
// single save.
const DefaultReloadDebounce = 100 * time.Millisecond

// Watcher reloads a viper-backed configuration whenever its file changes.
// Every reload is validated; the callback receives either the new Config or
// the reason it was rejected.
type Watcher struct {
	watcher  *fsnotify.Watcher
	v        *viper.Viper
	path     string
	debounce time.Duration
	onChange func(*Config, error)

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher watches the config file v was read from. v must have read a
// config file already.
func NewWatcher(v *viper.Viper, onChange func(*Config, error)) (*Watcher, error) {
	path := v.ConfigFileUsed()
	if path == "" {
		return nil, fmt.Errorf("no config file to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: editors replace files on save, which drops a
	// watch held on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	return &Watcher{
		watcher:  watcher,
		v:        v,
		path:     filepath.Clean(path),
		debounce: DefaultReloadDebounce,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce changes the quiet period before a reload. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching in the background.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop stops watching and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
	<-w.done
}

func (w *Watcher) watchLoop() {
	defer close(w.done)

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial timer

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.onChange(nil, fmt.Errorf("watching %s: %w", w.path, err))
		}
	}
}

func (w *Watcher) reload() {
	if err := w.v.ReadInConfig(); err != nil {
		w.onChange(nil, fmt.Errorf("reading %s: %w", w.path, err))
		return
	}
	w.onChange(LoadFrom(w.v))
}

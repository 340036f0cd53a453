package rules

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is how long the watcher waits after the last change event
// before reloading.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a file-backed catalog when its file changes.
type Watcher struct {
	catalog  *Catalog
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu       sync.Mutex
	onReload func(*Catalog, error)
}

// NewWatcher prepares a watcher for c. The catalog must be file-backed.
func NewWatcher(c *Catalog, debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(c.Source())
	if err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{
		catalog:  c,
		path:     abs,
		debounce: debounce,
		watcher:  w,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// OnReload registers a callback run after every reload attempt.
func (w *Watcher) OnReload(fn func(*Catalog, error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = fn
}

// Start watches the catalog's directory. Editors often replace a file rather
// than write it in place, so the directory is watched, not the file.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	go w.loop()
	log.Info().Str("path", w.path).Msg("Watching rule catalog for changes")
	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()
	})
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Rule catalog watcher error")

		case <-w.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	err := w.catalog.Reload()
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("Rule catalog reload failed; keeping previous rules")
	}
	w.mu.Lock()
	fn := w.onReload
	w.mu.Unlock()
	if fn != nil {
		fn(w.catalog, err)
	}
}

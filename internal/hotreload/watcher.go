// Package hotreload watches a set of files for external edits and
// invokes a per-file callback when one changes, debounced against the
// write-then-rename sequence many editors and config-management tools
// use. Mirrors the teacher's internal/config file-watch concept
// (config.NewConfigWatcher, .env hot-reload on SIGHUP/fsnotify), scoped
// here to the rule/filter JSON files named in §6.
package hotreload

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/aiops/fleet-intel/internal/apperr"
)

// debounceWindow coalesces bursts of fs events for the same file (a
// single save can fire write+chmod+rename) into one callback.
const debounceWindow = 200 * time.Millisecond

// Watcher dispatches fsnotify events for registered files to callbacks.
type Watcher struct {
	fsw *fsnotify.Watcher
	log zerolog.Logger

	mu        sync.Mutex
	callbacks map[string]func()
	timers    map[string]*time.Timer
}

// New creates a Watcher. Call Watch for each file of interest, then Run
// to start dispatching.
func New(log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, "hotreload.New", "creating fsnotify watcher", err)
	}
	return &Watcher{
		fsw:       fsw,
		log:       log.With().Str("component", "hotreload").Logger(),
		callbacks: make(map[string]func()),
		timers:    make(map[string]*time.Timer),
	}, nil
}

// Watch registers onChange to fire (debounced) whenever path is
// written or recreated. fsnotify watches directories, not individual
// files, so the containing directory is added once per unique parent.
func (w *Watcher) Watch(path string, onChange func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "hotreload.Watch", "resolving path "+path, err)
	}

	w.mu.Lock()
	w.callbacks[abs] = onChange
	w.mu.Unlock()

	if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
		return apperr.Wrap(apperr.IO, "hotreload.Watch", "watching directory for "+abs, err)
	}
	return nil
}

// Run starts the dispatch loop in a background goroutine and returns
// immediately; the loop exits, closing the fsnotify watcher, when ctx
// is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	go func() {
		defer w.fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				w.scheduleDispatch(ev.Name)
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				w.log.Warn().Err(err).Msg("hotreload: watcher error")
			}
		}
	}()
}

func (w *Watcher) scheduleDispatch(name string) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cb, ok := w.callbacks[abs]
	if !ok {
		return
	}
	if t, exists := w.timers[abs]; exists {
		t.Stop()
	}
	w.timers[abs] = time.AfterFunc(debounceWindow, func() {
		w.log.Info().Str("path", abs).Msg("hotreload: file changed, reloading")
		cb()
	})
}

package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/FreePeak/cloudbridge/internal/infrastructure/logging"
)

// ReloadEvent reports that the settings file changed and was re-parsed.
type ReloadEvent struct {
	Settings Settings
}

// Watcher observes the settings file and feeds validated reloads into the
// store. A change that fails to parse leaves the previous settings active.
type Watcher struct {
	store  *Store
	log    *logging.Logger
	events chan ReloadEvent
}

// NewWatcher creates a watcher for the store's backing file.
func NewWatcher(store *Store, log *logging.Logger) *Watcher {
	if log == nil {
		log = logging.Default()
	}
	return &Watcher{
		store:  store,
		log:    log,
		events: make(chan ReloadEvent, 16),
	}
}

// Events returns the channel of applied reloads.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

// Start begins watching until the context is cancelled. It is a no-op for
// in-memory stores.
func (w *Watcher) Start(ctx context.Context) error {
	path := w.store.Path()
	if path == "" {
		close(w.events)
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the parent directory: the file may not exist yet, and editors
	// that replace it atomically would break a direct file watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return err
	}

	go func() {
		defer fsw.Close()
		defer close(w.events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				w.reload(path)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.log.Error("settings watcher error", logging.Fields{"error": err.Error()})
			}
		}
	}()
	return nil
}

func (w *Watcher) reload(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn("settings file unreadable, keeping previous settings", logging.Fields{"error": err.Error()})
		return
	}

	s := DefaultSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		w.log.Warn("settings file invalid, keeping previous settings", logging.Fields{"error": err.Error()})
		return
	}

	applyEnv(&s)
	w.store.Reload(s)
	w.log.Info("settings reloaded", logging.Fields{"path": path})

	select {
	case w.events <- ReloadEvent{Settings: w.store.Snapshot()}:
	default:
	}
}

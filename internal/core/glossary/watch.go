package glossary

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the curated glossary directory for *.json changes and
// triggers IncrementalUpdate, repurposing the teacher's MKV-folder watcher
// (internal/core/watcher/watcher.go) for glossary-file debouncing instead of
// container discovery.
type Watcher struct {
	fw          *fsnotify.Watcher
	store       *Store
	onChange    func()
	debounceMap map[string]*time.Timer
	mu          sync.Mutex
	done        chan struct{}
}

// WatchGlossaryDir starts watching the store's curated directory; on any
// create/write of a *.json file (debounced 3s, matching the teacher's
// debounce window) it re-runs IncrementalUpdate and, if that changed
// anything, calls onChange. Callers must call Stop to release resources.
func (s *Store) WatchGlossaryDir(onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &StorageError{Op: "create glossary watcher", Err: err}
	}
	if err := fw.Add(s.curatedDir); err != nil {
		fw.Close()
		return nil, &StorageError{Op: "watch curated dir", Err: err}
	}

	w := &Watcher{
		fw:          fw,
		store:       s,
		onChange:    onChange,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
	go w.eventLoop()
	return w, nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != fsnotify.Create && event.Op&fsnotify.Write != fsnotify.Write {
		return
	}
	if !strings.EqualFold(filepath.Ext(event.Name), ".json") {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, exists := w.debounceMap[event.Name]; exists {
		timer.Stop()
	}
	w.debounceMap[event.Name] = time.AfterFunc(3*time.Second, func() {
		w.mu.Lock()
		delete(w.debounceMap, event.Name)
		w.mu.Unlock()

		if n, err := w.store.IncrementalUpdate(nil); err == nil && n > 0 {
			if err := w.store.loadToMemory(); err == nil && w.onChange != nil {
				w.onChange()
			}
		}
	})
}

// Stop releases the underlying filesystem watch.
func (w *Watcher) Stop() {
	close(w.done)
	w.fw.Close()
}

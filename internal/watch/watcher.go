// Package watch monitors source documents on disk and emits debounced
// change notifications so a sync can be re-run while editing.
package watch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change names a source document that settled after one or more writes.
type Change struct {
	Path string
}

const defaultDebounce = 500 * time.Millisecond

// Options configures a Watcher. Zero values get defaults: a 500ms debounce
// window and Markdown extensions.
type Options struct {
	Debounce   time.Duration
	Extensions []string
}

// Watcher wraps fsnotify with per-path debouncing: editors fire bursts of
// writes for a single save, and a sync should run once per burst.
type Watcher struct {
	watcher  *fsnotify.Watcher
	changes  chan Change
	errors   chan error
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	debounce time.Duration
	exts     map[string]bool
}

func NewWatcher(opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	extensions := opts.Extensions
	if len(extensions) == 0 {
		extensions = []string{".md", ".markdown"}
	}
	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(ext)] = true
	}
	return &Watcher{
		watcher:  fsw,
		changes:  make(chan Change, 100),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
		debounce: debounce,
		exts:     exts,
	}, nil
}

// Start begins watching the given files or directories. Events for paths
// with unknown extensions are dropped.
func (w *Watcher) Start(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if len(paths) == 0 {
		return fmt.Errorf("no paths to watch")
	}

	var added []string
	for _, path := range paths {
		if err := w.watcher.Add(path); err != nil {
			for _, prev := range added {
				_ = w.watcher.Remove(prev)
			}
			return fmt.Errorf("watch %s: %w", path, err)
		}
		added = append(added, path)
	}

	w.running = true
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop shuts the watcher down and blocks until the event loop exits. The
// Changes and Errors channels are closed afterwards.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}
	w.wg.Wait()
	close(w.changes)
	close(w.errors)
	return nil
}

// Changes emits one notification per settled edit burst. Closed on Stop.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Errors emits watcher failures. Closed on Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if len(pending) == 0 {
				timer.Reset(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending[event.Name] = true

		case <-timer.C:
			for path := range pending {
				select {
				case w.changes <- Change{Path: path}:
				case <-w.done:
					return
				}
			}
			pending = make(map[string]bool)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return w.exts[strings.ToLower(filepath.Ext(event.Name))]
}

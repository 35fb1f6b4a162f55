package filewatch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FSNotifyWatcher is an OSWatcher backed by fsnotify.
//
// fsnotify loses track of a file that is deleted and recreated, so the
// watcher registers the parent directory of every file and filters events
// by name. Directories are refcounted across the files watched in them.
type FSNotifyWatcher struct {
	watcher *fsnotify.Watcher
	logger  *log.Logger

	mu      sync.Mutex
	dirs    map[string]int
	files   map[string][]*fsHandle
	running bool

	done chan struct{}
	wg   sync.WaitGroup
}

type fsHandle struct {
	w        *FSNotifyWatcher
	path     string
	key      string
	dir      string
	onChange func(path string)
	once     sync.Once
}

// NewFSNotifyWatcher creates a watcher and starts its event loop. A nil
// logger writes to stderr.
func NewFSNotifyWatcher(logger *log.Logger) (*FSNotifyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[filewatch] ", log.LstdFlags)
	}

	w := &FSNotifyWatcher{
		watcher: watcher,
		logger:  logger,
		dirs:    make(map[string]int),
		files:   make(map[string][]*fsHandle),
		running: true,
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.processEvents()
	return w, nil
}

// Watch starts watching path. The file does not need to exist yet, but its
// directory does.
func (w *FSNotifyWatcher) Watch(path string, onChange func(path string)) (Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil, ErrClosed
	}

	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}
	w.dirs[dir]++

	h := &fsHandle{w: w, path: abs, key: NormalizePath(abs), dir: dir, onChange: onChange}
	w.files[h.key] = append(w.files[h.key], h)
	return h, nil
}

// Close releases the handle. Closing twice is a no-op.
func (h *fsHandle) Close() error {
	var err error
	h.once.Do(func() { err = h.w.release(h) })
	return err
}

func (w *FSNotifyWatcher) release(h *fsHandle) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	handles := w.files[h.key]
	for i, other := range handles {
		if other == h {
			handles = append(handles[:i:i], handles[i+1:]...)
			break
		}
	}
	if len(handles) == 0 {
		delete(w.files, h.key)
	} else {
		w.files[h.key] = handles
	}

	w.dirs[h.dir]--
	if w.dirs[h.dir] > 0 {
		return nil
	}
	delete(w.dirs, h.dir)
	if !w.running {
		return nil
	}
	if err := w.watcher.Remove(h.dir); err != nil {
		return fmt.Errorf("failed to stop watching directory %s: %w", h.dir, err)
	}
	return nil
}

// Close stops the event loop and releases every watch.
// It blocks until the event processing goroutine has exited.
func (w *FSNotifyWatcher) Close() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)

	// Closing the underlying watcher unblocks the event loop.
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

// processEvents forwards fsnotify events for watched files to their handles.
func (w *FSNotifyWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			for _, h := range w.handlesFor(event.Name) {
				h.onChange(h.path)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watch error: %v", err)
		}
	}
}

func (w *FSNotifyWatcher) handlesFor(name string) []*fsHandle {
	abs, err := filepath.Abs(name)
	if err != nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[NormalizePath(abs)]
}

// relevant filters out chmod-only events.
func relevant(event fsnotify.Event) bool {
	return event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) ||
		event.Has(fsnotify.Rename)
}

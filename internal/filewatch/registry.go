package filewatch

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Handle is an OS-level watch on one file.
type Handle interface {
	io.Closer
}

// OSWatcher creates OS-level watches. onChange may be called from any
// goroutine, any number of times, until the returned handle is closed.
type OSWatcher interface {
	Watch(path string, onChange func(path string)) (Handle, error)
}

// Config holds configuration for a Registry.
type Config struct {
	// Debounce is how long a path must be quiet before subscribers hear
	// about a change to it.
	Debounce time.Duration

	// Logger for watch failures.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce: 5 * time.Second,
		Logger:   log.New(os.Stderr, "[filewatch] ", log.LstdFlags),
	}
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	// Identities is the number of identities holding a watch.
	Identities int
	// Paths is the number of distinct watched paths.
	Paths int
	// OSWatches is the number of live OS-level watches. It is lower than
	// Paths when some watches could not be created.
	OSWatches int
	// PendingNotifications is the number of paths with a running debounce timer.
	PendingNotifications int
}

type identityEntry struct {
	key   string
	count int
}

// pending is a running debounce timer for one path.
type pending struct {
	timer *time.Timer
}

type pathEntry struct {
	path   string
	handle Handle
	refs   int
}

// Registry is a refcounted set of file watches with debounced change
// notification. It is safe for concurrent use.
type Registry struct {
	os     OSWatcher
	config *Config

	mu         sync.Mutex
	identities map[string]*identityEntry
	paths      map[string]*pathEntry
	timers     map[string]*pending
	subs       []func(path string)
	closed     bool
}

// NewRegistry creates a registry that creates OS watches through os.
func NewRegistry(os OSWatcher, config *Config) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	return &Registry{
		os:         os,
		config:     config,
		identities: make(map[string]*identityEntry),
		paths:      make(map[string]*pathEntry),
		timers:     make(map[string]*pending),
	}
}

// NormalizePath returns the key under which path is watched. Paths are
// compared case-insensitively.
func NormalizePath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

// Subscribe registers fn to be called with the path of every debounced
// change. Calls happen on timer goroutines and may overlap for different
// paths.
func (r *Registry) Subscribe(fn func(path string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// StartWatching takes a reference on id, which watches path. The OS watch for
// path is created when its first identity is started.
//
// If the OS watch cannot be created the failure is logged and the path is
// treated as never changing; the identity is still tracked so that it can be
// released normally.
func (r *Registry) StartWatching(id, path string) error {
	if path == "" || !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	key := NormalizePath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	if entry, ok := r.identities[id]; ok {
		if entry.key != key {
			return fmt.Errorf("%w: %s watches %s", ErrPathMismatch, id, entry.key)
		}
		entry.count++
		return nil
	}

	pe, ok := r.paths[key]
	if !ok {
		pe = &pathEntry{path: path}
		handle, err := r.os.Watch(path, r.onRawChange)
		if err != nil {
			r.config.Logger.Printf("failed to watch %s: %v", path, err)
		} else {
			pe.handle = handle
		}
		r.paths[key] = pe
	}
	pe.refs++
	r.identities[id] = &identityEntry{key: key, count: 1}
	return nil
}

// StopWatching releases one reference on id. The identity is forgotten when
// its last reference is released, and the OS watch when the last identity
// watching its path is forgotten.
func (r *Registry) StopWatching(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.identities[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotWatched, id)
	}
	entry.count--
	if entry.count > 0 {
		return nil
	}
	delete(r.identities, id)

	pe := r.paths[entry.key]
	pe.refs--
	if pe.refs > 0 {
		return nil
	}
	delete(r.paths, entry.key)
	if p, ok := r.timers[entry.key]; ok {
		p.timer.Stop()
		delete(r.timers, entry.key)
	}
	if pe.handle != nil {
		if err := pe.handle.Close(); err != nil {
			r.config.Logger.Printf("failed to release watch on %s: %v", pe.path, err)
		}
	}
	return nil
}

// IsWatching reports whether id currently holds a watch.
func (r *Registry) IsWatching(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.identities[id]
	return ok
}

// Stats returns counts describing the registry.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{
		Identities:           len(r.identities),
		Paths:                len(r.paths),
		PendingNotifications: len(r.timers),
	}
	for _, pe := range r.paths {
		if pe.handle != nil {
			s.OSWatches++
		}
	}
	return s
}

// Close releases every OS watch and cancels pending notifications.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	for key, p := range r.timers {
		p.timer.Stop()
		delete(r.timers, key)
	}
	var firstErr error
	for key, pe := range r.paths {
		if pe.handle != nil {
			if err := pe.handle.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to release watch on %s: %w", pe.path, err)
			}
		}
		delete(r.paths, key)
	}
	clear(r.identities)
	return firstErr
}

// onRawChange restarts the debounce timer for path.
func (r *Registry) onRawChange(path string) {
	key := NormalizePath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if _, ok := r.paths[key]; !ok {
		return
	}
	if p, ok := r.timers[key]; ok {
		p.timer.Stop()
	}
	p := &pending{}
	p.timer = time.AfterFunc(r.config.Debounce, func() { r.fire(key, p) })
	r.timers[key] = p
}

// fire notifies subscribers unless p was superseded or the path was released.
func (r *Registry) fire(key string, p *pending) {
	r.mu.Lock()
	if r.timers[key] != p {
		r.mu.Unlock()
		return
	}
	delete(r.timers, key)
	pe, ok := r.paths[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	path := pe.path
	subs := r.subs
	r.mu.Unlock()

	for _, fn := range subs {
		fn(path)
	}
}

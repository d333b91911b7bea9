package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the session watcher waits for a burst of
// file events to settle before reporting a change.
const DefaultDebounce = 100 * time.Millisecond

// SessionFile persists the signed-in session as JSON so separate CLI
// invocations share one login.
type SessionFile struct {
	path string
}

// NewSessionFile returns a SessionFile stored at path.
func NewSessionFile(path string) *SessionFile {
	return &SessionFile{path: path}
}

// DefaultSessionPath returns ~/.taskboard/session.json.
func DefaultSessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".taskboard", "session.json"), nil
}

// Path returns the file location.
func (f *SessionFile) Path() string {
	return f.path
}

// Load reads the stored session. A missing file is not an error and yields
// a nil session.
func (f *SessionFile) Load() (*Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", f.path, err)
	}
	if sess.AccessToken == "" {
		return nil, nil
	}
	return &sess, nil
}

// Save writes sess atomically with owner-only permissions.
func (f *SessionFile) Save(sess *Session) error {
	if sess == nil {
		return f.Clear()
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set session file permissions: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear removes the stored session. Returns nil if there is none.
func (f *SessionFile) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// SessionWatcher reports changes to a SessionFile made by any process.
// It watches the containing directory so that atomic replaces and removals
// are seen.
type SessionWatcher struct {
	watcher  *fsnotify.Watcher
	name     string
	debounce time.Duration
	changes  chan struct{}
	errors   chan error
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// Watch starts watching the session file. The directory is created if
// needed. Stop must be called to release the watcher.
func (f *SessionFile) Watch(debounce time.Duration) (*SessionWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch session directory %s: %w", dir, err)
	}

	sw := &SessionWatcher{
		watcher:  watcher,
		name:     filepath.Base(f.path),
		debounce: debounce,
		changes:  make(chan struct{}, 1),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
		running:  true,
	}
	sw.wg.Add(1)
	go sw.processEvents()

	return sw, nil
}

// Changes emits once per settled burst of changes to the session file.
// The channel is closed when the watcher is stopped.
func (sw *SessionWatcher) Changes() <-chan struct{} {
	return sw.changes
}

// Errors returns watcher errors. The channel is closed on Stop.
func (sw *SessionWatcher) Errors() <-chan error {
	return sw.errors
}

// Stop releases the watcher and blocks until its goroutine exits.
func (sw *SessionWatcher) Stop() error {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return nil
	}
	sw.running = false
	sw.mu.Unlock()

	close(sw.done)

	if err := sw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	sw.wg.Wait()

	close(sw.changes)
	close(sw.errors)

	return nil
}

func (sw *SessionWatcher) processEvents() {
	defer sw.wg.Done()

	timer := time.NewTimer(sw.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-sw.done:
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != sw.name {
				continue
			}
			// Chmod carries no content change
			if event.Op == fsnotify.Chmod {
				continue
			}
			timer.Reset(sw.debounce)

		case <-timer.C:
			select {
			case sw.changes <- struct{}{}:
			default:
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case sw.errors <- err:
			case <-sw.done:
				return
			}
		}
	}
}

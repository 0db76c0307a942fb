// Package signal watches a signals directory for stop and pause files so
// running tasks can be interrupted from outside the process.
package signal

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	stopFile  = "stop"
	pauseFile = "pause"
)

// Watcher monitors a signals directory. A stop file cancels the bound
// task contexts; a pause file is surfaced to pollers. The filesystem is
// also checked directly on read in case the watcher missed an event.
type Watcher struct {
	signalsDir string

	mu          sync.RWMutex
	stopSignal  bool
	pauseSignal bool
	onStop      []func()

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// DefaultSignalsDir returns the default signals directory for a working
// directory.
func DefaultSignalsDir(workDir string) string {
	return filepath.Join(workDir, ".weft", "signals")
}

// NewWatcher creates a watcher over the given signals directory, creating
// it if needed. When the filesystem watcher cannot be set up the Watcher
// still works through the direct checks in ShouldStop/ShouldPause.
func NewWatcher(signalsDir string) (*Watcher, error) {
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		// Continue without watcher, polling fallback still works.
		return w, nil
	}
	if err := fsw.Add(signalsDir); err != nil {
		fsw.Close()
		return w, nil
	}
	w.watcher = fsw

	go w.watch()
	return w, nil
}

// OnStop registers a callback invoked once when the stop signal fires.
// Used to cancel task contexts.
func (w *Watcher) OnStop(fn func()) {
	w.mu.Lock()
	alreadyStopped := w.stopSignal
	if !alreadyStopped {
		w.onStop = append(w.onStop, fn)
	}
	w.mu.Unlock()

	if alreadyStopped {
		fn()
	}
}

// watch monitors the signals directory for stop/pause files.
func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 && event.Op&fsnotify.Write == 0 {
				continue
			}
			switch filepath.Base(event.Name) {
			case stopFile:
				w.fireStop()
			case pauseFile:
				w.mu.Lock()
				w.pauseSignal = true
				w.mu.Unlock()
			}
		case <-w.watcher.Errors:
			// Ignore errors, keep watching.
		}
	}
}

// fireStop latches the stop signal and runs the registered callbacks once.
func (w *Watcher) fireStop() {
	w.mu.Lock()
	if w.stopSignal {
		w.mu.Unlock()
		return
	}
	w.stopSignal = true
	callbacks := w.onStop
	w.onStop = nil
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// ShouldStop reports whether a stop signal has been received. The signal
// file is also checked directly in case the watcher missed it.
func (w *Watcher) ShouldStop() bool {
	if _, err := os.Stat(filepath.Join(w.signalsDir, stopFile)); err == nil {
		w.fireStop()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopSignal
}

// ShouldPause reports whether a pause signal has been received.
func (w *Watcher) ShouldPause() bool {
	if _, err := os.Stat(filepath.Join(w.signalsDir, pauseFile)); err == nil {
		w.mu.Lock()
		w.pauseSignal = true
		w.mu.Unlock()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pauseSignal
}

// SendStop creates the stop signal file.
func (w *Watcher) SendStop() error {
	path := filepath.Join(w.signalsDir, stopFile)
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// SendPause creates the pause signal file.
func (w *Watcher) SendPause() error {
	path := filepath.Join(w.signalsDir, pauseFile)
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Clear removes the signal files and resets the latched state.
func (w *Watcher) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopSignal = false
	w.pauseSignal = false
	os.Remove(filepath.Join(w.signalsDir, stopFile))
	os.Remove(filepath.Join(w.signalsDir, pauseFile))
}

// Close shuts the watcher down.
func (w *Watcher) Close() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	if w.watcher != nil {
		w.watcher.Close()
	}
}

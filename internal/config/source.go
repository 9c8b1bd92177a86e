package config

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 10 * time.Millisecond

// Source parses a document at a filesystem path into a Token tree and
// reports when the file has changed since the last observation.
type Source struct {
	path string

	mu      sync.Mutex
	root    Token
	modTime time.Time

	watcher   *fsnotify.Watcher
	pending   bool
	lastEvent time.Time
}

// Initialize reads path through a sidecar copy (copy-then-parse-then-
// delete), so a concurrent writer truncating the live file can't hand
// the parser a half-written document, then records the source's
// modification time and starts watching path for further changes.
func (s *Source) Initialize(path string) error {
	s.path = path

	root, modTime, err := readViaSidecar(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.root = root
	s.modTime = modTime
	s.mu.Unlock()

	return s.startWatch()
}

func readViaSidecar(path string) (Token, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Token{}, time.Time{}, err
	}

	sidecar := path + ".iris-sidecar"
	if err := copyFile(path, sidecar); err != nil {
		return Token{}, time.Time{}, err
	}
	defer os.Remove(sidecar)

	data, err := os.ReadFile(sidecar)
	if err != nil {
		return Token{}, time.Time{}, err
	}

	tok, err := parseDocument(data)
	if err != nil {
		return Token{}, time.Time{}, err
	}
	return tok, info.ModTime(), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func (s *Source) startWatch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return err
	}
	s.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				s.mu.Lock()
				s.pending = true
				s.lastEvent = time.Now()
				s.mu.Unlock()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// Root returns the document's root Token.
func (s *Source) Root() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Modified reports whether the underlying file has changed since the
// last call that returned true, debounced by ~10ms so a single editor
// save (which may emit several filesystem events) triggers it once.
func (s *Source) Modified() bool {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return false
	}
	if time.Since(s.lastEvent) < debounce {
		s.mu.Unlock()
		return false
	}
	s.pending = false
	s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !info.ModTime().After(s.modTime) {
		return false
	}
	s.modTime = info.ModTime()
	return true
}

// Reload re-parses the document at the source's path. Call after
// Modified reports true.
func (s *Source) Reload() error {
	root, modTime, err := readViaSidecar(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.root = root
	s.modTime = modTime
	s.mu.Unlock()
	return nil
}

// Reset discards parsed state and stops watching for changes.
func (s *Source) Reset() {
	s.mu.Lock()
	s.root = Token{}
	s.mu.Unlock()
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
}

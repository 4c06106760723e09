//go:build !darwin

package pathwatch

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// fsnotifySource adapts fsnotify to the event-source contract on platforms
// without vnode kqueues. Watches are keyed by path, and several registrations
// of one path share a single underlying OS watch.
//
// An event for a name is delivered with its own flags to watchers of that
// name, and as a plain write to watchers of its parent directory when an
// entry appears, disappears, or is renamed. That matches the view a
// directory descriptor has under kqueue.
//
// A second watcher covers the parent directory of every registered path.
// The open descriptor held for a registered path keeps its inode alive, so
// the kernel defers the watch's own delete notification past the unlink; the
// parent watch is the only place the removal of the name is visible, and a
// removal seen there is translated into a delete for the name's watchers.
type fsnotifySource struct {
	w        *fsnotify.Watcher // registered paths
	dirw     *fsnotify.Watcher // their parent directories
	events   chan sourceEvent
	quit     chan struct{}
	closeOne sync.Once

	mu    sync.Mutex
	paths map[string]map[uint64]bool // watched path -> registration tokens
	dirs  map[string]int             // parent directory -> registrations relying on it
}

func newEventSource() (eventSource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "fsnotify")
	}
	dirw, err := fsnotify.NewWatcher()
	if err != nil {
		w.Close()
		return nil, errors.Wrap(err, "fsnotify")
	}
	s := &fsnotifySource{
		w:      w,
		dirw:   dirw,
		events: make(chan sourceEvent, 128),
		quit:   make(chan struct{}),
		paths:  map[string]map[uint64]bool{},
		dirs:   map[string]int{},
	}
	go s.pump()
	return s, nil
}

func (s *fsnotifySource) Watch(token uint64, path string, f *os.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, ok := s.paths[path]
	if !ok {
		if err := s.w.Add(path); err != nil {
			return errors.Wrapf(err, "watch %q", path)
		}
		tokens = map[uint64]bool{}
		s.paths[path] = tokens
	}
	tokens[token] = true
	if dir := filepath.Dir(path); dir != path {
		if s.dirs[dir] == 0 {
			// Best effort: without the parent watch, removal of the path is
			// not observable while its descriptor is held open.
			if err := s.dirw.Add(dir); err != nil {
				debugLog.Printf("watch parent %q: %v", dir, err)
			}
		}
		s.dirs[dir]++
	}
	return nil
}

func (s *fsnotifySource) Unwatch(token uint64, path string, f *os.File) {
	s.mu.Lock()
	tokens := s.paths[path]
	delete(tokens, token)
	if len(tokens) == 0 {
		delete(s.paths, path)
		// The OS watch is already gone if the path was deleted or renamed.
		s.w.Remove(path)
	}
	if dir := filepath.Dir(path); dir != path {
		if n := s.dirs[dir]; n > 0 {
			if n == 1 {
				delete(s.dirs, dir)
				s.dirw.Remove(dir)
			} else {
				s.dirs[dir] = n - 1
			}
		}
	}
	s.mu.Unlock()
	f.Close()
}

func (s *fsnotifySource) Events() <-chan sourceEvent { return s.events }

func (s *fsnotifySource) Close() error {
	var err error
	s.closeOne.Do(func() {
		close(s.quit)
		err = s.w.Close()
		if err2 := s.dirw.Close(); err == nil {
			err = err2
		}
	})
	return err
}

func (s *fsnotifySource) pump() {
	defer close(s.events)
	for {
		select {
		case ev, ok := <-s.w.Events:
			if !ok {
				return
			}
			flags := fsnotifyFlags(ev.Op)
			if flags == 0 {
				continue
			}
			exact, parent := s.lookup(ev.Name)
			for _, token := range exact {
				if !s.send(sourceEvent{token: token, flags: flags}) {
					return
				}
			}
			if flags&(Create|Delete|Rename) != 0 {
				for _, token := range parent {
					if !s.send(sourceEvent{token: token, flags: Write}) {
						return
					}
				}
			}
		case ev, ok := <-s.dirw.Events:
			if !ok {
				return
			}
			// Only removals matter here; everything else about a registered
			// name is reported by the main watcher.
			if !ev.Op.Has(fsnotify.Remove) {
				continue
			}
			for _, token := range s.exactTokens(ev.Name) {
				if !s.send(sourceEvent{token: token, flags: Delete}) {
					return
				}
			}
		case err, ok := <-s.w.Errors:
			if !ok {
				return
			}
			debugLog.Println("fsnotify:", err)
		case err, ok := <-s.dirw.Errors:
			if !ok {
				return
			}
			debugLog.Println("fsnotify:", err)
		case <-s.quit:
			return
		}
	}
}

func (s *fsnotifySource) send(ev sourceEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.quit:
		return false
	}
}

// lookup collects the tokens registered for name itself and, separately, for
// its parent directory.
func (s *fsnotifySource) lookup(name string) (exact, parent []uint64) {
	name = filepath.Clean(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.paths[name] {
		exact = append(exact, t)
	}
	if dir := filepath.Dir(name); dir != name {
		for t := range s.paths[dir] {
			parent = append(parent, t)
		}
	}
	return exact, parent
}

func (s *fsnotifySource) exactTokens(name string) []uint64 {
	name = filepath.Clean(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	var tokens []uint64
	for t := range s.paths[name] {
		tokens = append(tokens, t)
	}
	return tokens
}

func fsnotifyFlags(op fsnotify.Op) Flags {
	var flags Flags
	if op.Has(fsnotify.Create) {
		flags |= Create
	}
	if op.Has(fsnotify.Write) {
		flags |= Write
	}
	if op.Has(fsnotify.Remove) {
		flags |= Delete
	}
	if op.Has(fsnotify.Rename) {
		flags |= Rename
	}
	if op.Has(fsnotify.Chmod) {
		flags |= Attrib
	}
	return flags
}

// openEvent opens path so its identity and current name stay resolvable while
// it is watched.
func openEvent(path string) (*os.File, error) {
	return os.Open(path)
}

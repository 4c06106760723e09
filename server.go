package pathwatch

import (
	"io"
	"log"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

var debugLog = log.New(io.Discard, "[pathwatch] ", log.LstdFlags)

// SetDebugOutput directs the package's diagnostic log to w. Diagnostics are
// discarded by default.
func SetDebugOutput(w io.Writer) {
	debugLog.SetOutput(w)
}

// ErrServerClosed is returned by Server.Watch after the server's last
// reference has been released.
var ErrServerClosed = errors.New("pathwatch: server closed")

// Callback receives one change notification. newPath is non-empty only when
// flags includes Rename, in which case it holds the path's new name. A
// Callback runs on whichever goroutine drives Server.Dispatch, never on the
// server's own goroutine.
type Callback func(flags Flags, newPath string)

// An Event is one pending change notification, read from Server.Events and
// delivered with Server.Dispatch.
type Event struct {
	clientID uint64

	Flags   Flags
	NewPath string
}

// command travels master to server. An empty path requests removal of the
// client; otherwise it requests a new watch on path.
type command struct {
	clientID uint64
	path     string
}

// A Server multiplexes any number of watches over one background goroutine.
// That goroutine owns every watch descriptor and performs all filesystem
// syscalls; registration and removal only take a short-held lock and write to
// a channel.
//
// A Server is reference counted. NewServer and Shared return it with one
// reference held, and each Watch holds another. Close releases the caller's
// reference; when the count reaches zero the background goroutine is shut
// down and joined.
type Server struct {
	mu      sync.Mutex
	clients map[uint64]Callback
	nextID  uint64
	refs    int

	commands chan command
	events   chan Event
	closing  chan struct{} // closed at teardown; unblocks server-side sends
	done     chan struct{} // closed when the server goroutine exits
}

// NewServer starts a new watch server. The returned server holds one
// reference, released by Close.
func NewServer() (*Server, error) {
	src, err := newEventSource()
	if err != nil {
		return nil, errors.Wrap(err, "pathwatch: create event source")
	}
	return newServer(src), nil
}

// newServer wires a server to src. Split from NewServer so tests can supply
// their own event source.
func newServer(src eventSource) *Server {
	s := &Server{
		clients:  map[uint64]Callback{},
		nextID:   1,
		refs:     1,
		commands: make(chan command, 128),
		events:   make(chan Event, 128),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run(src)
	return s
}

var (
	sharedMu  sync.Mutex
	sharedSrv *Server
)

// Shared returns a reference to a process-wide server, creating it on first
// use. The server is torn down when every reference obtained through Shared
// (and every Watch created on it) has been released; a subsequent call
// creates a fresh one.
func Shared() (*Server, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedSrv == nil || !sharedSrv.retain() {
		s, err := NewServer()
		if err != nil {
			return nil, err
		}
		sharedSrv = s
	}
	return sharedSrv, nil
}

// retain takes an additional reference. It fails if the count already reached
// zero, i.e. teardown has begun.
func (s *Server) retain() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return false
	}
	s.refs++
	return true
}

// Close releases one reference. Releasing the last reference signals the
// server goroutine to exit, waits for it, and closes the Events channel. No
// Watch may be created once the last reference is gone.
func (s *Server) Close() {
	s.mu.Lock()
	s.refs--
	last := s.refs == 0
	s.mu.Unlock()
	if !last {
		return
	}
	close(s.closing)
	close(s.commands)
	<-s.done
}

// Watch registers cb to be called whenever path changes. The path does not
// need to exist yet. Watch performs no filesystem calls and returns
// immediately; stop the watch by closing the returned handle.
func (s *Server) Watch(path string, cb Callback) (*Watch, error) {
	if cb == nil {
		return nil, errors.New("pathwatch: nil callback")
	}
	if !s.retain() {
		return nil, ErrServerClosed
	}
	path = filepath.Clean(path)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.clients[id] = cb
	s.mu.Unlock()
	// The caller's reference keeps the channel open for the send.
	s.commands <- command{clientID: id, path: path}
	debugLog.Println("watch", id, path)
	return &Watch{srv: s, id: id}, nil
}

// remove unregisters id on both sides of the channel. The server silently
// ignores ids it no longer knows.
func (s *Server) remove(id uint64) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
	s.commands <- command{clientID: id}
	debugLog.Println("unwatch", id)
}

// Events returns the channel carrying pending notifications. The embedding
// application selects on it from the goroutine that should run callbacks and
// passes each received event to Dispatch. The channel is closed when the
// server shuts down.
func (s *Server) Events() <-chan Event {
	return s.events
}

// Dispatch delivers ev to its watch's callback on the calling goroutine. If
// the watch was closed after the event was queued, the event is discarded;
// this is the sole point at which that race is reconciled.
func (s *Server) Dispatch(ev Event) {
	s.mu.Lock()
	cb := s.clients[ev.clientID]
	s.mu.Unlock()
	if cb != nil {
		cb(ev.Flags, ev.NewPath)
	}
}

// DispatchLoop dispatches events until the server shuts down. Callbacks run
// on the calling goroutine.
func (s *Server) DispatchLoop() {
	for ev := range s.events {
		s.Dispatch(ev)
	}
}

//go:build darwin

package pathwatch

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const noteAll = unix.NOTE_DELETE | unix.NOTE_WRITE | unix.NOTE_RENAME | unix.NOTE_ATTRIB

// kqueueSource delivers vnode events from a kqueue. Descriptors are
// registered with EV_CLEAR, so each state change is reported once and the
// registration re-arms itself. One end of a pipe is registered for
// readability; closing the other end wakes the pump for shutdown, and a
// single byte wakes it to close retired descriptors.
//
// Unwatch only retires a descriptor; the pump closes it after finishing the
// batch it is attributing. Closing it any earlier would let the kernel hand
// the same descriptor number to a new registration while events naming the
// old one are still in flight.
type kqueueSource struct {
	kq       int
	wakeR    int
	wakeW    int
	events   chan sourceEvent
	quit     chan struct{}
	closeOne sync.Once

	mu           sync.Mutex
	tokens       map[int]uint64 // watch descriptor -> registration token
	pendingClose []*os.File
}

func newEventSource() (eventSource, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, errors.Wrap(err, "kqueue")
	}
	var pipe [2]int
	if err := unix.Pipe(pipe[:]); err != nil {
		unix.Close(kq)
		return nil, errors.Wrap(err, "pipe")
	}
	kev := make([]unix.Kevent_t, 1)
	unix.SetKevent(&kev[0], pipe[0], unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE|unix.EV_CLEAR)
	if _, err := unix.Kevent(kq, kev, nil, nil); err != nil {
		unix.Close(kq)
		unix.Close(pipe[0])
		unix.Close(pipe[1])
		return nil, errors.Wrap(err, "kevent: register wake pipe")
	}
	s := &kqueueSource{
		kq:     kq,
		wakeR:  pipe[0],
		wakeW:  pipe[1],
		events: make(chan sourceEvent, 128),
		quit:   make(chan struct{}),
		tokens: map[int]uint64{},
	}
	go s.pump()
	return s, nil
}

func (s *kqueueSource) Watch(token uint64, path string, f *os.File) error {
	fd := int(f.Fd())
	kev := make([]unix.Kevent_t, 1)
	unix.SetKevent(&kev[0], fd, unix.EVFILT_VNODE, unix.EV_ADD|unix.EV_ENABLE|unix.EV_CLEAR)
	kev[0].Fflags = noteAll
	if _, err := unix.Kevent(s.kq, kev, nil, nil); err != nil {
		return errors.Wrapf(err, "kevent: add %q", path)
	}
	s.mu.Lock()
	s.tokens[fd] = token
	s.mu.Unlock()
	return nil
}

func (s *kqueueSource) Unwatch(token uint64, path string, f *os.File) {
	s.mu.Lock()
	delete(s.tokens, int(f.Fd()))
	s.pendingClose = append(s.pendingClose, f)
	s.mu.Unlock()
	unix.Write(s.wakeW, []byte{0})
}

func (s *kqueueSource) Events() <-chan sourceEvent { return s.events }

func (s *kqueueSource) Close() error {
	s.closeOne.Do(func() {
		close(s.quit)
		unix.Close(s.wakeW)
	})
	return nil
}

func (s *kqueueSource) pump() {
	defer func() {
		s.closeRetired()
		unix.Close(s.kq)
		unix.Close(s.wakeR)
		close(s.events)
	}()
	buf := make([]unix.Kevent_t, 16)
	var drain [4096]byte
	for {
		n, err := unix.Kevent(s.kq, nil, buf, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			debugLog.Println("kevent:", err)
			return
		}
		for _, kev := range buf[:n] {
			if int(kev.Ident) == s.wakeR {
				if kev.Flags&unix.EV_EOF != 0 {
					return
				}
				unix.Read(s.wakeR, drain[:])
				continue
			}
			if kev.Filter != unix.EVFILT_VNODE {
				continue
			}
			s.mu.Lock()
			token, ok := s.tokens[int(kev.Ident)]
			s.mu.Unlock()
			if !ok {
				continue // descriptor retired while this batch was in flight
			}
			flags := kqueueFlags(kev.Fflags)
			if flags == 0 {
				continue
			}
			select {
			case s.events <- sourceEvent{token: token, flags: flags}:
			case <-s.quit:
				return
			}
		}
		s.closeRetired()
	}
}

// closeRetired closes descriptors handed over by Unwatch. Runs only after a
// full batch has been attributed, so a closed number cannot be recycled under
// an event that still names it.
func (s *kqueueSource) closeRetired() {
	s.mu.Lock()
	files := s.pendingClose
	s.pendingClose = nil
	s.mu.Unlock()
	for _, f := range files {
		f.Close()
	}
}

func kqueueFlags(fflags uint32) Flags {
	var flags Flags
	if fflags&unix.NOTE_RENAME != 0 {
		flags |= Rename
	}
	if fflags&unix.NOTE_WRITE != 0 {
		flags |= Write
	}
	if fflags&unix.NOTE_DELETE != 0 {
		flags |= Delete
	}
	if fflags&unix.NOTE_ATTRIB != 0 {
		flags |= Attrib
	}
	return flags
}

// openEvent opens path for event notification only. O_EVTONLY does not grant
// read access and does not prevent the volume from unmounting.
func openEvent(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_EVTONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return os.NewFile(uintptr(fd), path), nil
}

package pathwatch

import (
	"os"
	"time"

	"github.com/benesch/pathwatch/pathutil"
)

// An editor that saves by renaming the file away and recreating it produces a
// rename event for a change that is really a write. The old path is polled
// for this long before the rename is believed.
const (
	renameRetries   = 100
	renamePollDelay = 10 * time.Microsecond
)

type watchInfo struct {
	path        string // the path the client asked for
	watchedPath string // == path while it exists, else its nearest existing ancestor
	file        *os.File
}

// serverState is the book-keeping owned by the server goroutine. No other
// goroutine touches it, so it needs no locking.
type serverState struct {
	srv     *Server
	src     eventSource
	watches map[uint64]*watchInfo
}

func (s *Server) run(src eventSource) {
	defer close(s.done)
	st := &serverState{srv: s, src: src, watches: map[uint64]*watchInfo{}}
	defer func() {
		for id, info := range st.watches {
			st.release(id, info)
		}
		src.Close()
		close(s.events)
	}()
	for {
		select {
		case cmd, ok := <-s.commands:
			if !ok {
				return // last reference released, time to quit
			}
			if cmd.path != "" {
				st.add(cmd.clientID, cmd.path)
			} else {
				st.remove(cmd.clientID)
			}
		case ev, ok := <-src.Events():
			if !ok {
				return
			}
			if !st.handleEvent(ev) {
				return
			}
		}
	}
}

func (st *serverState) add(id uint64, path string) {
	info := &watchInfo{path: path}
	st.watches[id] = info
	st.observe(id, info)
}

func (st *serverState) remove(id uint64) {
	info, ok := st.watches[id]
	if !ok {
		return // removal raced an event already in flight
	}
	st.release(id, info)
	delete(st.watches, id)
}

// release unregisters info's descriptor, if it has one. The source closes it.
func (st *serverState) release(id uint64, info *watchInfo) {
	if info.file == nil {
		return
	}
	st.src.Unwatch(id, info.watchedPath, info.file)
	info.file = nil
}

// observe points info at the nearest existing ancestor of its requested path
// and registers it with the event source. On failure the watch is left with
// no descriptor until a later retarget attempt; never fatal.
func (st *serverState) observe(id uint64, info *watchInfo) {
	info.watchedPath = pathutil.ExistingAncestor(info.path)
	f, err := openEvent(info.watchedPath)
	if err != nil {
		debugLog.Printf("watch %d: open %q: %v", id, info.watchedPath, err)
		return
	}
	if err := st.src.Watch(id, info.watchedPath, f); err != nil {
		debugLog.Printf("watch %d: register %q: %v", id, info.watchedPath, err)
		f.Close()
		return
	}
	info.file = f
}

// handleEvent runs the per-client state machine for one raw source event. It
// reports false when the master side is gone and the loop should terminate.
func (st *serverState) handleEvent(ev sourceEvent) bool {
	info, ok := st.watches[ev.token]
	if !ok {
		return true // client removed while the event was in flight
	}

	didExist := info.path == info.watchedPath
	doesExist := info.path == pathutil.ExistingAncestor(info.path)

	if didExist || doesExist {
		flags := Create
		if didExist {
			flags = ev.flags
		}
		// A bare delete on a path that exists again means the file was
		// replaced, not removed.
		if doesExist && ev.flags&(Delete|Write) == Delete {
			flags ^= Delete | Write
		}

		// Some programs rename the file away and create a new one at the old
		// path, which we want to report as a write; check whether the old
		// path reappears shortly after the rename. A case-only rename on a
		// case-insensitive filesystem leaves both spellings naming the same
		// file, so existence alone is not enough — the identity check keeps
		// that a plain rename.
		if flags&Rename != 0 && !pathutil.SameFile(info.path, pathutil.ForFile(info.file)) {
			for i := 0; i < renameRetries; i++ {
				if _, err := os.Stat(info.path); err == nil {
					flags = flags&^Rename | Write
					st.release(ev.token, info)
					st.observe(ev.token, info)
					break
				}
				time.Sleep(renamePollDelay)
			}
		}

		out := Event{clientID: ev.token, Flags: flags}
		if flags&Rename != 0 {
			out.NewPath = pathutil.ForFile(info.file)
		}
		debugLog.Printf("watch %d: %v %s", ev.token, flags, out.NewPath)
		select {
		case st.srv.events <- out:
		case <-st.srv.closing:
			return false // channel to master is gone, time to quit
		}
	}

	if ev.flags&Delete != 0 || info.watchedPath != pathutil.ExistingAncestor(info.path) {
		st.release(ev.token, info)
		st.observe(ev.token, info)
	}
	return true
}

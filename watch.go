package pathwatch

import "sync"

// A Watch is a standing request to be notified of changes to one path. It is
// created by Server.Watch and holds a reference to its server until closed.
// A Watch must not be copied.
type Watch struct {
	srv  *Server
	id   uint64
	once sync.Once
}

// Close stops the watch and releases its reference to the server. Close is
// idempotent. An event already in flight when Close begins is discarded at
// dispatch; the callback is never invoked afterwards.
func (w *Watch) Close() {
	w.once.Do(func() {
		w.srv.remove(w.id)
		w.srv.Close()
	})
}

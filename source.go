package pathwatch

import "os"

// A sourceEvent reports that the registration identified by token observed a
// change.
type sourceEvent struct {
	token uint64
	flags Flags
}

// An eventSource wraps the platform change-notification primitive. It is the
// only OS-specific surface in the package; newEventSource picks the backend
// at build time. Registrations auto re-arm after each delivery.
//
// The server goroutine is the sole caller of Watch and Unwatch. Unwatch takes
// ownership of f and closes it, possibly after events already read from the
// kernel have been attributed. Events is closed when the source shuts down or
// fails irrecoverably.
type eventSource interface {
	Watch(token uint64, path string, f *os.File) error
	Unwatch(token uint64, path string, f *os.File)
	Events() <-chan sourceEvent
	Close() error
}

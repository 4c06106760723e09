// Package pathwatch notifies clients about changes to filesystem paths.
//
// A client registers a path and a callback with a Server and receives a
// callback whenever the path is created, written, renamed, deleted, or has
// its attributes changed. The path does not need to exist when the watch is
// installed: the server watches the nearest existing ancestor and reports a
// create once the path appears, silently re-targeting as ancestors come and
// go.
//
// Each Server runs one private goroutine that owns all watch descriptors and
// performs all filesystem syscalls. Callbacks never run on that goroutine:
// the embedding application receives events from Server.Events and delivers
// them with Server.Dispatch (or Server.DispatchLoop) on a goroutine of its
// choosing. Watch and Close never block on the filesystem.
//
// Renames are disambiguated from the rename-then-recreate pattern used by
// atomic-save editors: if the original path reappears shortly after a rename,
// the change is reported as a plain write rather than a rename.
package pathwatch

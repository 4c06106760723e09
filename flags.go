package pathwatch

import "strings"

// Flags describes the changes observed for a watched path. Multiple flags may
// be set for a single event. A delivered event always has at least one flag
// set.
type Flags uint32

const (
	// Rename indicates the path was given a new name. Event.NewPath carries
	// the new name when it can be resolved.
	Rename Flags = 1 << iota
	// Write indicates the contents of the path changed.
	Write
	// Delete indicates the path was removed.
	Delete
	// Attrib indicates the path's metadata changed.
	Attrib
	// Create indicates the path came into existence.
	Create
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{Rename, "rename"},
	{Write, "write"},
	{Delete, "delete"},
	{Attrib, "attrib"},
	{Create, "create"},
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "|")
}

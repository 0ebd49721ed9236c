package change

import (
	"fmt"
	"time"
)

// Kind describes what happened to a path.
type Kind uint8

const (
	Unknown Kind = iota
	Create
	Write
	Remove
	Rename
	Attrib
	// Overflow means the backend lost events and the whole root must be recrawled.
	Overflow
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Write:
		return "write"
	case Remove:
		return "remove"
	case Rename:
		return "rename"
	case Attrib:
		return "attrib"
	case Overflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Event is a single raw change reported by a watcher backend.
type Event struct {
	Path string
	Kind Kind
	Time time.Time
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Kind, e.Path)
}

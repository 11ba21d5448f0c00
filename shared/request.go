package shared

import (
	"strings"
)

// CommandKind represents the kind of an inbound control command.
type CommandKind int

const (
	Unknown CommandKind = iota
	Start
	Stop
	Status
)

// String stringifies the provided command kind.
func (k CommandKind) String() string {
	switch k {
	case Start:
		return "/start"
	case Stop:
		return "/stop"
	case Status:
		return "/status"
	default:
		return "unknown"
	}
}

// Command represents an inbound control command.
type Command struct {
	Kind     CommandKind
	Identity string
	Cursor   int64
	Text     string
}

// ParseCommand parses the kind of a command from its text. Matching is case-insensitive
// and tolerates a trailing @botname suffix.
func ParseCommand(text string) CommandKind {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return Unknown
	}

	name, _, _ := strings.Cut(fields[0], "@")
	switch name {
	case "/start":
		return Start
	case "/stop":
		return Stop
	case "/status":
		return Status
	default:
		return Unknown
	}
}

// NewCommand initializes a new command from its text and sender identity.
func NewCommand(text string, identity string, cursor int64) Command {
	return Command{
		Kind:     ParseCommand(text),
		Identity: identity,
		Cursor:   cursor,
		Text:     text,
	}
}

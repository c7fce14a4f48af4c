package command

import (
	"github.com/scheerer/sparkle-lights/internal/state"
)

type Result int

const (
	Applied Result = iota
	SaveRequested
	Ignored
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case SaveRequested:
		return "save_requested"
	case Ignored:
		return "ignored"
	}
	return "unknown"
}

// Outcome reports what one message did. Err is the reason for Ignored, or
// the store failure for SaveRequested. FieldErrors lists the entries of a
// field mapping that were rejected while the rest were applied.
type Outcome struct {
	Result      Result
	Command     Command
	Err         error
	FieldErrors []error
}

// Saver persists the state on an explicit save command.
type Saver interface {
	Save(l state.Lighting) error
}

type Interpreter struct {
	saver Saver
}

// NewInterpreter returns an interpreter that saves through saver. A nil saver
// makes save a no-op that still reports SaveRequested.
func NewInterpreter(saver Saver) *Interpreter {
	return &Interpreter{saver: saver}
}

// Interpret parses raw and applies it to l. It never panics on bad input and
// never leaves l outside its documented ranges.
func (i *Interpreter) Interpret(raw []byte, l *state.Lighting) Outcome {
	cmd, err := Parse(raw)
	if err != nil {
		return Outcome{Result: Ignored, Err: err}
	}

	switch cmd.Kind {
	case Literal:
		if cmd.Token == saveToken {
			out := Outcome{Result: SaveRequested, Command: cmd}
			if i.saver != nil {
				out.Err = i.saver.Save(*l)
			}
			return out
		}
		literals[cmd.Token](l)
	case Hue:
		l.Mode = state.MonochromeMode(cmd.Hue)
	case SetFields:
		return Outcome{Result: Applied, Command: cmd, FieldErrors: state.ApplyFields(l, cmd.Fields)}
	}
	return Outcome{Result: Applied, Command: cmd}
}

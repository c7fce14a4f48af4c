// Package command turns inbound messages into edits of the lighting state.
//
// A message is tried, in order, as a literal token ("faster", "off", ...), a
// palette hue name, a JSON object of fields, and a shell-style list of
// key=value pairs. Matching is case-insensitive.
package command

import (
	"encoding/json"
	"strings"

	"github.com/google/shlex"
	"github.com/pkg/errors"

	"github.com/scheerer/sparkle-lights/internal/state"
)

var (
	ErrParse          = errors.New("malformed command payload")
	ErrUnknownCommand = errors.New("unknown command")
)

type Kind int

const (
	Literal Kind = iota
	Hue
	SetFields
)

func (k Kind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Hue:
		return "hue"
	case SetFields:
		return "set_fields"
	}
	return "unknown"
}

// Command is one parsed message. Only the members for its Kind are set.
type Command struct {
	Kind   Kind
	Token  string
	Hue    state.Hue
	Fields map[string]any
}

// Parse classifies raw without touching any state.
func Parse(raw []byte) (Command, error) {
	text := strings.TrimSpace(string(raw))
	token := strings.ToLower(text)
	if token == "" {
		return Command{}, errors.Wrap(ErrUnknownCommand, "empty message")
	}

	if _, ok := literals[token]; ok {
		return Command{Kind: Literal, Token: token}, nil
	}
	if token == saveToken {
		return Command{Kind: Literal, Token: token}, nil
	}
	if h, ok := state.LookupHue(token); ok {
		return Command{Kind: Hue, Token: token, Hue: h}, nil
	}

	if strings.HasPrefix(text, "{") {
		fields := map[string]any{}
		if err := json.Unmarshal([]byte(text), &fields); err != nil {
			return Command{}, errors.Wrap(ErrParse, err.Error())
		}
		return Command{Kind: SetFields, Fields: fields}, nil
	}

	if strings.Contains(text, "=") {
		fields, err := parsePairs(text)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: SetFields, Fields: fields}, nil
	}

	return Command{}, errors.Wrapf(ErrUnknownCommand, "%q", text)
}

// parsePairs reads `density=30 mode="monochrome:cyan"`. Values stay strings;
// the field setters coerce them.
func parsePairs(text string) (map[string]any, error) {
	words, err := shlex.Split(text)
	if err != nil {
		return nil, errors.Wrap(ErrParse, err.Error())
	}
	fields := make(map[string]any, len(words))
	for _, w := range words {
		name, value, ok := strings.Cut(w, "=")
		if !ok || name == "" {
			return nil, errors.Wrapf(ErrParse, "expected key=value, got %q", w)
		}
		fields[name] = value
	}
	return fields, nil
}

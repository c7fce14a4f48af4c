// Package state holds the lighting configuration record, its allow-listed
// field setter and the file store that persists it across restarts.
package state

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const (
	ColourMax = 64

	BoostDefault = 4
	BoostMax     = 4

	// Density is a numerator over DensityDenominator.
	DensityDefault     = 15
	DensityMin         = 2
	DensityMax         = 90
	DensityStep        = 3
	DensityDenominator = 256

	FadeMultiplier = 15
	FadeDivider    = 16
	FadeDividerMax = 256

	DelayMs     = 10
	DelayStepMs = 5
	DelayMaxMs  = 50

	WeightRed      = 5
	WeightGreen    = 3
	WeightBlue     = 3
	WeightMax      = 100
	DominantWeight = 10
)

type ModeKind int

const (
	Weighted ModeKind = iota
	Monochrome
	White
)

func (k ModeKind) String() string {
	switch k {
	case Weighted:
		return "weighted"
	case Monochrome:
		return "monochrome"
	case White:
		return "white"
	}
	return fmt.Sprintf("ModeKind(%d)", int(k))
}

// Hue is a palette entry. Each component is 0 or 1 and scales the random
// magnitude drawn for a monochrome pixel.
type Hue struct {
	Name    string
	R, G, B uint8
}

var palette = map[string]Hue{
	"red":     {Name: "red", R: 1},
	"green":   {Name: "green", G: 1},
	"blue":    {Name: "blue", B: 1},
	"yellow":  {Name: "yellow", R: 1, G: 1},
	"cyan":    {Name: "cyan", G: 1, B: 1},
	"magenta": {Name: "magenta", R: 1, B: 1},
	"purple":  {Name: "purple", R: 1, B: 1},
}

// LookupHue finds a palette entry by case-insensitive name.
func LookupHue(name string) (Hue, bool) {
	h, ok := palette[strings.ToLower(strings.TrimSpace(name))]
	return h, ok
}

func PaletteNames() []string {
	names := make([]string, 0, len(palette))
	for name := range palette {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mode selects how new pixels are coloured. Hue is only meaningful for Monochrome.
type Mode struct {
	Kind ModeKind
	Hue  Hue
}

func MonochromeMode(h Hue) Mode {
	return Mode{Kind: Monochrome, Hue: h}
}

func (m Mode) String() string {
	if m.Kind == Monochrome {
		return "monochrome:" + m.Hue.Name
	}
	return m.Kind.String()
}

var errUnknownMode = errors.New("unknown mode")

// ParseMode accepts "weighted", "white", "monochrome:<hue>" or a bare hue name.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "weighted", "colour", "color":
		return Mode{Kind: Weighted}, nil
	case "white":
		return Mode{Kind: White}, nil
	}
	name := strings.TrimPrefix(s, "monochrome:")
	if h, ok := LookupHue(name); ok {
		return MonochromeMode(h), nil
	}
	return Mode{}, errors.Wrapf(errUnknownMode, "%q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Mode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

func (m *Mode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return m.UnmarshalText([]byte(s))
}

// Lighting is the single source of truth for rendering and persistence.
type Lighting struct {
	LightsOn        bool `json:"lights_on" yaml:"lights_on"`
	Mode            Mode `json:"mode" yaml:"mode"`
	Red             int  `json:"red" yaml:"red"`
	Green           int  `json:"green" yaml:"green"`
	Blue            int  `json:"blue" yaml:"blue"`
	WeightRed       int  `json:"weight_red" yaml:"weight_red"`
	WeightGreen     int  `json:"weight_green" yaml:"weight_green"`
	WeightBlue      int  `json:"weight_blue" yaml:"weight_blue"`
	BoostMultiplier int  `json:"boost_multiplier" yaml:"boost_multiplier"`
	Density         int  `json:"density" yaml:"density"`
	DelayMs         int  `json:"delay_ms" yaml:"delay_ms"`
	FadeMultiplier  int  `json:"fade_multiplier" yaml:"fade_multiplier"`
	FadeDivider     int  `json:"fade_divider" yaml:"fade_divider"`
}

func Defaults() Lighting {
	return Lighting{
		LightsOn:        true,
		Mode:            Mode{Kind: Weighted},
		Red:             ColourMax,
		Green:           ColourMax,
		Blue:            ColourMax,
		WeightRed:       WeightRed,
		WeightGreen:     WeightGreen,
		WeightBlue:      WeightBlue,
		BoostMultiplier: BoostDefault,
		Density:         DensityDefault,
		DelayMs:         DelayMs,
		FadeMultiplier:  FadeMultiplier,
		FadeDivider:     FadeDivider,
	}
}

func (l Lighting) TotalWeight() int {
	return l.WeightRed + l.WeightGreen + l.WeightBlue
}

// Validate reports the first field that is outside its documented interval.
func (l Lighting) Validate() error {
	checks := []struct {
		name   string
		v      int
		lo, hi int
	}{
		{"red", l.Red, 0, ColourMax},
		{"green", l.Green, 0, ColourMax},
		{"blue", l.Blue, 0, ColourMax},
		{"weight_red", l.WeightRed, 0, WeightMax},
		{"weight_green", l.WeightGreen, 0, WeightMax},
		{"weight_blue", l.WeightBlue, 0, WeightMax},
		{"boost_multiplier", l.BoostMultiplier, 1, BoostMax},
		{"density", l.Density, DensityMin, DensityMax},
		{"delay_ms", l.DelayMs, 0, DelayMaxMs},
		{"fade_divider", l.FadeDivider, 1, FadeDividerMax},
		{"fade_multiplier", l.FadeMultiplier, 0, l.FadeDivider - 1},
	}
	for _, c := range checks {
		if c.v < c.lo || c.v > c.hi {
			return &FieldError{Field: c.name, Value: c.v, Err: errors.Wrapf(ErrOutOfRange, "want [%d, %d]", c.lo, c.hi)}
		}
	}
	if l.Mode.Kind == Monochrome {
		if _, ok := LookupHue(l.Mode.Hue.Name); !ok {
			return &FieldError{Field: "mode", Value: l.Mode.String(), Err: errors.Wrap(ErrInvalidValue, "hue not in palette")}
		}
	}
	return nil
}

func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

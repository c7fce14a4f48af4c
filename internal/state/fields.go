package state

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/scheerer/sparkle-lights/internal/util"
)

var (
	ErrUnknownField   = errors.New("unknown field")
	ErrOutOfRange     = errors.New("value out of range")
	ErrInvalidValue   = errors.New("invalid value")
	ErrDuplicateField = errors.New("field given more than once")
)

// FieldError reports one rejected entry of a field mapping.
type FieldError struct {
	Field string
	Value any
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q (%v): %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

type setter func(l *Lighting, value any) error

type field struct {
	name string
	set  setter
}

func intField(lo, hi func(*Lighting) int, target func(*Lighting) *int) setter {
	return func(l *Lighting, value any) error {
		v, err := util.ToInt64(value)
		if err != nil {
			return errors.Wrap(ErrInvalidValue, err.Error())
		}
		lower, upper := int64(lo(l)), int64(hi(l))
		if v < lower || v > upper {
			return errors.Wrapf(ErrOutOfRange, "want [%d, %d]", lower, upper)
		}
		*target(l) = int(v)
		return nil
	}
}

func constant(v int) func(*Lighting) int {
	return func(*Lighting) int { return v }
}

func setMode(l *Lighting, value any) error {
	s, ok := value.(string)
	if !ok {
		return errors.Wrapf(ErrInvalidValue, "mode must be a string, got %T", value)
	}
	m, err := ParseMode(s)
	if err != nil {
		return errors.Wrap(ErrInvalidValue, err.Error())
	}
	l.Mode = m
	return nil
}

// setWhite understands the boolean "white" key written by older controllers.
func setWhite(l *Lighting, value any) error {
	b, err := util.ToBool(value)
	if err != nil {
		return errors.Wrap(ErrInvalidValue, err.Error())
	}
	if b {
		l.Mode = Mode{Kind: White}
	} else if l.Mode.Kind == White {
		l.Mode = Mode{Kind: Weighted}
	}
	return nil
}

func setLightsOn(l *Lighting, value any) error {
	b, err := util.ToBool(value)
	if err != nil {
		return errors.Wrap(ErrInvalidValue, err.Error())
	}
	l.LightsOn = b
	return nil
}

// fields is the allow-list. ApplyFields walks it in this order, so
// fade_divider is settled before fade_multiplier is checked against it.
var fields = []field{
	{"lights_on", setLightsOn},
	{"mode", setMode},
	{"white", setWhite},
	{"red", intField(constant(0), constant(ColourMax), func(l *Lighting) *int { return &l.Red })},
	{"green", intField(constant(0), constant(ColourMax), func(l *Lighting) *int { return &l.Green })},
	{"blue", intField(constant(0), constant(ColourMax), func(l *Lighting) *int { return &l.Blue })},
	{"weight_red", intField(constant(0), constant(WeightMax), func(l *Lighting) *int { return &l.WeightRed })},
	{"weight_green", intField(constant(0), constant(WeightMax), func(l *Lighting) *int { return &l.WeightGreen })},
	{"weight_blue", intField(constant(0), constant(WeightMax), func(l *Lighting) *int { return &l.WeightBlue })},
	{"boost_multiplier", intField(constant(1), constant(BoostMax), func(l *Lighting) *int { return &l.BoostMultiplier })},
	{"colour_multiplier", intField(constant(1), constant(BoostMax), func(l *Lighting) *int { return &l.BoostMultiplier })},
	{"color_multiplier", intField(constant(1), constant(BoostMax), func(l *Lighting) *int { return &l.BoostMultiplier })},
	{"density", intField(constant(DensityMin), constant(DensityMax), func(l *Lighting) *int { return &l.Density })},
	{"delay_ms", intField(constant(0), constant(DelayMaxMs), func(l *Lighting) *int { return &l.DelayMs })},
	{"fade_divider", intField(func(l *Lighting) int { return l.FadeMultiplier + 1 }, constant(FadeDividerMax), func(l *Lighting) *int { return &l.FadeDivider })},
	{"fade_multiplier", intField(constant(0), func(l *Lighting) int { return l.FadeDivider - 1 }, func(l *Lighting) *int { return &l.FadeMultiplier })},
}

var fieldIndex = func() map[string]setter {
	m := make(map[string]setter, len(fields))
	for _, f := range fields {
		m[f.name] = f.set
	}
	return m
}()

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// FieldNames lists every accepted field name, aliases included.
func FieldNames() []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.name)
	}
	return names
}

// ApplyField sets one allow-listed field after checking its type and range.
// On error l is left untouched.
func ApplyField(l *Lighting, name string, value any) error {
	set, ok := fieldIndex[normalizeName(name)]
	if !ok {
		return &FieldError{Field: name, Value: value, Err: ErrUnknownField}
	}
	if err := set(l, value); err != nil {
		return &FieldError{Field: name, Value: value, Err: err}
	}
	return nil
}

// ApplyFields applies every entry of values independently, returning one
// error per rejected entry. Rejected entries never stop the rest.
func ApplyFields(l *Lighting, values map[string]any) []error {
	var errs []error

	spellings := make(map[string][]string, len(values))
	for name := range values {
		norm := normalizeName(name)
		if _, ok := fieldIndex[norm]; !ok {
			errs = append(errs, &FieldError{Field: name, Value: values[name], Err: ErrUnknownField})
			continue
		}
		spellings[norm] = append(spellings[norm], name)
	}

	// Keys that differ only in case or spacing are ambiguous; none of them
	// is applied.
	known := make(map[string]string, len(spellings))
	for norm, names := range spellings {
		if len(names) > 1 {
			sort.Strings(names)
			for _, name := range names {
				errs = append(errs, &FieldError{Field: name, Value: values[name], Err: ErrDuplicateField})
			}
			continue
		}
		known[norm] = names[0]
	}

	// A new fade ratio given as a pair is judged as a pair: lowering both
	// 15/16 -> 3/4 would otherwise fail whichever is applied first.
	multName, hasMult := known["fade_multiplier"]
	divName, hasDiv := known["fade_divider"]
	if hasMult && hasDiv {
		if err := applyFade(l, values[multName], values[divName]); err != nil {
			errs = append(errs, err)
		}
		delete(known, "fade_multiplier")
		delete(known, "fade_divider")
	}

	for _, f := range fields {
		name, ok := known[f.name]
		if !ok {
			continue
		}
		if err := ApplyField(l, name, values[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func applyFade(l *Lighting, mult, div any) error {
	trial := *l
	trial.FadeMultiplier = 0
	if err := ApplyField(&trial, "fade_divider", div); err != nil {
		return err
	}
	if err := ApplyField(&trial, "fade_multiplier", mult); err != nil {
		return err
	}
	l.FadeMultiplier, l.FadeDivider = trial.FadeMultiplier, trial.FadeDivider
	return nil
}

package command

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scheerer/sparkle-lights/internal/state"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind Kind
		err  error
	}{
		{"literal", "faster", Literal, nil},
		{"literal mixed case", "  BrIgHtEr\n", Literal, nil},
		{"save", "SAVE", Literal, nil},
		{"colour literal wins over palette", "red", Literal, nil},
		{"palette hue", "Cyan", Hue, nil},
		{"json", `{"density": 30}`, SetFields, nil},
		{"pairs", `density=30 mode="monochrome:cyan"`, SetFields, nil},
		{"broken json", "{not json", 0, ErrParse},
		{"json array", "[1, 2]", 0, ErrUnknownCommand},
		{"bare word in pairs", "density=30 loud", 0, ErrParse},
		{"unknown", "party", 0, ErrUnknownCommand},
		{"empty", "   ", 0, ErrUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Parse([]byte(tt.raw))
			if tt.err != nil {
				assert.True(t, errors.Is(err, tt.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, cmd.Kind)
		})
	}
}

func TestParsePairsKeepsQuotedValues(t *testing.T) {
	cmd, err := Parse([]byte(`mode='monochrome:cyan' lights_on=off`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"mode": "monochrome:cyan", "lights_on": "off"}, cmd.Fields)
}

func interpret(t *testing.T, l *state.Lighting, tokens ...string) Outcome {
	t.Helper()
	i := NewInterpreter(nil)
	var out Outcome
	for _, tok := range tokens {
		out = i.Interpret([]byte(tok), l)
	}
	return out
}

func TestBrightestThenDimmer(t *testing.T) {
	l := state.Defaults()
	l.BoostMultiplier = 1
	out := interpret(t, &l, "brightest", "dimmer")
	assert.Equal(t, Applied, out.Result)
	assert.Equal(t, state.BoostMax-1, l.BoostMultiplier)
}

func TestNumericLiteralsStayClamped(t *testing.T) {
	tokens := []string{"slower", "faster", "dimmer", "brighter", "sparser", "denser"}
	l := state.Defaults()
	i := NewInterpreter(nil)

	// walk every token many times in a shifting order so each field hits both ends
	for round := 0; round < 60; round++ {
		for k := range tokens {
			tok := tokens[(k*round+round)%len(tokens)]
			out := i.Interpret([]byte(tok), &l)
			require.Equal(t, Applied, out.Result)
			require.NoError(t, l.Validate(), "after %s in round %d", tok, round)
		}
	}

	l = state.Defaults()
	for n := 0; n < 30; n++ {
		interpret(t, &l, "slower", "brighter", "denser")
	}
	assert.Equal(t, state.DelayMaxMs, l.DelayMs)
	assert.Equal(t, state.BoostMax, l.BoostMultiplier)
	assert.Equal(t, state.DensityMax, l.Density)

	for n := 0; n < 30; n++ {
		interpret(t, &l, "faster", "dimmer", "sparser")
	}
	assert.Equal(t, 0, l.DelayMs)
	assert.Equal(t, 1, l.BoostMultiplier)
	assert.Equal(t, state.DensityMin, l.Density)
}

func TestAbsoluteLiterals(t *testing.T) {
	l := state.Defaults()

	interpret(t, &l, "slow")
	assert.Equal(t, state.DelayMaxMs, l.DelayMs)
	interpret(t, &l, "fast")
	assert.Equal(t, 0, l.DelayMs)
	interpret(t, &l, "sparse")
	assert.Equal(t, state.DensityMin, l.Density)
	interpret(t, &l, "dense")
	assert.Equal(t, state.DensityMax, l.Density)
	interpret(t, &l, "off")
	assert.False(t, l.LightsOn)
	interpret(t, &l, "on")
	assert.True(t, l.LightsOn)
	interpret(t, &l, "white")
	assert.Equal(t, state.White, l.Mode.Kind)
	interpret(t, &l, "colour")
	assert.Equal(t, state.Weighted, l.Mode.Kind)
	interpret(t, &l, "normal")
	assert.Equal(t, state.Defaults(), l)
}

func TestDominantColourLiteral(t *testing.T) {
	l := state.Defaults()
	l.LightsOn = false
	l.Red = 3
	l.Mode = state.Mode{Kind: state.White}

	interpret(t, &l, "green")

	assert.True(t, l.LightsOn)
	assert.Equal(t, state.Weighted, l.Mode.Kind)
	assert.Equal(t, []int{0, state.DominantWeight, 0}, []int{l.WeightRed, l.WeightGreen, l.WeightBlue})
	assert.Equal(t, []int{state.ColourMax, state.ColourMax, state.ColourMax}, []int{l.Red, l.Green, l.Blue})
}

func TestPaletteHueSwitchesToMonochrome(t *testing.T) {
	l := state.Defaults()
	out := interpret(t, &l, "magenta")
	assert.Equal(t, Applied, out.Result)
	assert.Equal(t, state.Monochrome, l.Mode.Kind)
	assert.Equal(t, "magenta", l.Mode.Hue.Name)
}

func TestMalformedJSONIsIgnored(t *testing.T) {
	l := state.Defaults()
	before := l

	out := interpret(t, &l, "{not json")

	assert.Equal(t, Ignored, out.Result)
	assert.True(t, errors.Is(out.Err, ErrParse))
	assert.Equal(t, before, l)
}

func TestUnknownCommandIsIgnored(t *testing.T) {
	l := state.Defaults()
	before := l

	out := interpret(t, &l, "disco")

	assert.Equal(t, Ignored, out.Result)
	assert.True(t, errors.Is(out.Err, ErrUnknownCommand))
	assert.Equal(t, before, l)
}

func TestFieldMappingAppliesValidEntriesOnly(t *testing.T) {
	l := state.Defaults()
	want := l
	want.Density = 40
	want.DelayMs = 25

	out := interpret(t, &l, `{"density": 40, "delay_ms": 25, "__globals__": 1}`)

	assert.Equal(t, Applied, out.Result)
	require.Len(t, out.FieldErrors, 1)
	assert.True(t, errors.Is(out.FieldErrors[0], state.ErrUnknownField))
	assert.Equal(t, want, l)
}

func TestFieldMappingRejectsOutOfRange(t *testing.T) {
	l := state.Defaults()
	out := interpret(t, &l, "density=1000 boost_multiplier=2")

	require.Len(t, out.FieldErrors, 1)
	assert.True(t, errors.Is(out.FieldErrors[0], state.ErrOutOfRange))
	assert.Equal(t, state.DensityDefault, l.Density)
	assert.Equal(t, 2, l.BoostMultiplier)
}

type recordingSaver struct {
	saved []state.Lighting
	err   error
}

func (s *recordingSaver) Save(l state.Lighting) error {
	s.saved = append(s.saved, l)
	return s.err
}

func TestSaveCallsStore(t *testing.T) {
	saver := &recordingSaver{}
	i := NewInterpreter(saver)
	l := state.Defaults()
	l.Density = 42

	out := i.Interpret([]byte("save"), &l)

	assert.Equal(t, SaveRequested, out.Result)
	assert.NoError(t, out.Err)
	require.Len(t, saver.saved, 1)
	assert.Equal(t, l, saver.saved[0])
}

func TestSaveReportsStoreFailure(t *testing.T) {
	saver := &recordingSaver{err: state.ErrPersistence}
	l := state.Defaults()

	out := NewInterpreter(saver).Interpret([]byte("save"), &l)

	assert.Equal(t, SaveRequested, out.Result)
	assert.True(t, errors.Is(out.Err, state.ErrPersistence))
}

func TestSaveThroughFileStore(t *testing.T) {
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	i := NewInterpreter(store)
	l := state.Defaults()

	interpret(t, &l, "cyan", "denser")
	out := i.Interpret([]byte("save"), &l)
	require.NoError(t, out.Err)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, l, loaded)
}

func TestTokensIncludeSave(t *testing.T) {
	assert.Contains(t, Tokens(), "save")
	assert.Contains(t, Tokens(), "brightest")
}

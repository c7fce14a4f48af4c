package command

import "github.com/scheerer/sparkle-lights/internal/state"

const saveToken = "save"

// literals maps each token to an in-place edit. Every numeric edit clamps.
var literals = map[string]func(l *state.Lighting){
	"on":  func(l *state.Lighting) { l.LightsOn = true },
	"off": func(l *state.Lighting) { l.LightsOn = false },

	"normal": func(l *state.Lighting) { *l = state.Defaults() },

	"slower": func(l *state.Lighting) {
		l.DelayMs = state.Clamp(l.DelayMs+state.DelayStepMs, 0, state.DelayMaxMs)
	},
	"faster": func(l *state.Lighting) {
		l.DelayMs = state.Clamp(l.DelayMs-state.DelayStepMs, 0, state.DelayMaxMs)
	},
	"slow": func(l *state.Lighting) { l.DelayMs = state.DelayMaxMs },
	"fast": func(l *state.Lighting) { l.DelayMs = 0 },

	"dimmer": func(l *state.Lighting) {
		l.BoostMultiplier = state.Clamp(l.BoostMultiplier-1, 1, state.BoostMax)
	},
	"brighter": func(l *state.Lighting) {
		l.BoostMultiplier = state.Clamp(l.BoostMultiplier+1, 1, state.BoostMax)
	},
	"brightest": func(l *state.Lighting) { l.BoostMultiplier = state.BoostMax },

	"sparser": func(l *state.Lighting) {
		l.Density = state.Clamp(l.Density-state.DensityStep, state.DensityMin, state.DensityMax)
	},
	"denser": func(l *state.Lighting) {
		l.Density = state.Clamp(l.Density+state.DensityStep, state.DensityMin, state.DensityMax)
	},
	"sparse": func(l *state.Lighting) { l.Density = state.DensityMin },
	"dense":  func(l *state.Lighting) { l.Density = state.DensityMax },

	"red":   dominant(func(l *state.Lighting) *int { return &l.WeightRed }),
	"green": dominant(func(l *state.Lighting) *int { return &l.WeightGreen }),
	"blue":  dominant(func(l *state.Lighting) *int { return &l.WeightBlue }),

	"white":  func(l *state.Lighting) { l.Mode = state.Mode{Kind: state.White} },
	"colour": func(l *state.Lighting) { l.Mode = state.Mode{Kind: state.Weighted} },
	"color":  func(l *state.Lighting) { l.Mode = state.Mode{Kind: state.Weighted} },
}

// dominant makes one channel the only weighted one, opens every ceiling and
// turns the lights on.
func dominant(weight func(l *state.Lighting) *int) func(l *state.Lighting) {
	return func(l *state.Lighting) {
		l.Mode = state.Mode{Kind: state.Weighted}
		l.WeightRed, l.WeightGreen, l.WeightBlue = 0, 0, 0
		*weight(l) = state.DominantWeight
		l.Red, l.Green, l.Blue = state.ColourMax, state.ColourMax, state.ColourMax
		l.LightsOn = true
	}
}

// Tokens lists the literal vocabulary, save included.
func Tokens() []string {
	tokens := make([]string, 0, len(literals)+1)
	for t := range literals {
		tokens = append(tokens, t)
	}
	return append(tokens, saveToken)
}

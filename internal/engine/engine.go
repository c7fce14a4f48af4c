// Package engine renders the sparkle-and-fade animation one frame at a time.
//
// Each tick fades every channel of every pixel by the configured ratio, then
// gives each dark pixel a density/256 chance to ignite with a freshly
// synthesised colour. Lit pixels are never re-ignited; they have to fade to
// black first, which bounds how many pixels are on at once.
package engine

import (
	"github.com/scheerer/sparkle-lights/internal/state"
	"github.com/scheerer/sparkle-lights/lights"
)

type Engine struct {
	src Source
}

func New(src Source) *Engine {
	return &Engine{src: src}
}

// Fade applies one step of exponential decay to a channel value.
func Fade(v uint8, mult, div int) uint8 {
	if v <= 1 || div <= 0 {
		return 0
	}
	return saturate(int(v) * mult / div)
}

// Tick advances buf by one frame. It allocates nothing and never blocks.
func (e *Engine) Tick(l *state.Lighting, buf lights.Buffer) {
	if !l.LightsOn {
		buf.Clear()
		return
	}

	for i, c := range buf {
		buf[i] = lights.Color{
			Red:   Fade(c.Red, l.FadeMultiplier, l.FadeDivider),
			Green: Fade(c.Green, l.FadeMultiplier, l.FadeDivider),
			Blue:  Fade(c.Blue, l.FadeMultiplier, l.FadeDivider),
		}
	}

	for i := range buf {
		roll := int(e.src.Byte())
		if roll < l.Density && buf[i].Dark() {
			buf[i] = e.synthesize(l)
		}
	}
}

func (e *Engine) synthesize(l *state.Lighting) lights.Color {
	switch l.Mode.Kind {
	case state.White:
		v := saturate((state.ColourMax - 1) * l.BoostMultiplier)
		return lights.Color{Red: v, Green: v, Blue: v}
	case state.Monochrome:
		m := randMax(e.src, state.ColourMax) * l.BoostMultiplier
		h := l.Mode.Hue
		return lights.Color{
			Red:   saturate(int(h.R) * m),
			Green: saturate(int(h.G) * m),
			Blue:  saturate(int(h.B) * m),
		}
	default:
		c, _ := e.weighted(l)
		return c
	}
}

// weighted draws one magnitude per channel below that channel's ceiling, then
// boosts each channel independently with probability weight/total.
func (e *Engine) weighted(l *state.Lighting) (lights.Color, [3]bool) {
	r := randMax(e.src, l.Red)
	g := randMax(e.src, l.Green)
	b := randMax(e.src, l.Blue)

	var boosted [3]bool
	total := l.TotalWeight()
	for ch, w := range [3]int{l.WeightRed, l.WeightGreen, l.WeightBlue} {
		boosted[ch] = randMax(e.src, total) < w
	}
	if boosted[0] {
		r *= l.BoostMultiplier
	}
	if boosted[1] {
		g *= l.BoostMultiplier
	}
	if boosted[2] {
		b *= l.BoostMultiplier
	}

	return lights.Color{Red: saturate(r), Green: saturate(g), Blue: saturate(b)}, boosted
}

func saturate(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

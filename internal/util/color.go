package util

import (
	"math"
	"sort"

	"github.com/scheerer/sparkle-lights/lights"
)

// ColorAlgo reduces a run of pixels to one colour.
type ColorAlgo func(pixels []lights.Color) lights.Color

func ColorAlgoByName(name string) (ColorAlgo, bool) {
	switch name {
	case "AVERAGE":
		return AverageColor, true
	case "SQUARED_AVERAGE":
		return SquaredAverageColor, true
	case "MEDIAN":
		return MedianColor, true
	case "MODE":
		return ModeColor, true
	}
	return nil, false
}

func AverageColor(pixels []lights.Color) lights.Color {
	if len(pixels) == 0 {
		return lights.Black
	}
	var sumR, sumG, sumB uint64
	for _, p := range pixels {
		sumR += uint64(p.Red)
		sumG += uint64(p.Green)
		sumB += uint64(p.Blue)
	}

	total := uint64(len(pixels))
	return lights.Color{
		Red:   uint8(sumR / total),
		Green: uint8(sumG / total),
		Blue:  uint8(sumB / total),
	}
}

// SquaredAverageColor averages in squared space so a few bright sparkles are
// not washed out by the dark pixels around them.
func SquaredAverageColor(pixels []lights.Color) lights.Color {
	if len(pixels) == 0 {
		return lights.Black
	}
	var sumR, sumG, sumB uint64
	for _, p := range pixels {
		sumR += uint64(p.Red) * uint64(p.Red)
		sumG += uint64(p.Green) * uint64(p.Green)
		sumB += uint64(p.Blue) * uint64(p.Blue)
	}

	total := uint64(len(pixels))
	return lights.Color{
		Red:   uint8(math.Sqrt(float64(sumR / total))),
		Green: uint8(math.Sqrt(float64(sumG / total))),
		Blue:  uint8(math.Sqrt(float64(sumB / total))),
	}
}

// MedianColor calculates the per-channel median
func MedianColor(pixels []lights.Color) lights.Color {
	if len(pixels) == 0 {
		return lights.Black
	}
	reds := make([]uint8, 0, len(pixels))
	greens := make([]uint8, 0, len(pixels))
	blues := make([]uint8, 0, len(pixels))
	for _, p := range pixels {
		reds = append(reds, p.Red)
		greens = append(greens, p.Green)
		blues = append(blues, p.Blue)
	}

	sort.Slice(reds, func(i, j int) bool { return reds[i] < reds[j] })
	sort.Slice(greens, func(i, j int) bool { return greens[i] < greens[j] })
	sort.Slice(blues, func(i, j int) bool { return blues[i] < blues[j] })

	median := func(values []uint8) uint8 {
		n := len(values)
		if n%2 == 0 {
			return uint8((int(values[n/2-1]) + int(values[n/2])) / 2)
		}
		return values[n/2]
	}

	return lights.Color{
		Red:   median(reds),
		Green: median(greens),
		Blue:  median(blues),
	}
}

// ModeColor returns the most common colour, ties going to the first seen.
func ModeColor(pixels []lights.Color) lights.Color {
	colorCount := make(map[lights.Color]int)
	var modeColor lights.Color
	maxCount := 0
	for _, c := range pixels {
		colorCount[c]++
		if colorCount[c] > maxCount {
			maxCount = colorCount[c]
			modeColor = c
		}
	}

	return modeColor
}

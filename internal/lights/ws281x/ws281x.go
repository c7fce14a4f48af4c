package ws281x

import (
	"strings"

	"github.com/scheerer/sparkle-lights/lights"
)

type Config struct {
	Pin        int
	LedCount   int
	Brightness int
	StripType  string
}

// pack converts a pixel to the 0x00RRGGBB word the ws2811 library expects;
// channel reordering for the strip happens in the library.
func pack(c lights.Color) uint32 {
	return uint32(c.Red)<<16 | uint32(c.Green)<<8 | uint32(c.Blue)
}

func normalizeStripType(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "GRB"
	}
	return s
}

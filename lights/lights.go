package lights

import (
	"context"
	"fmt"
)

type Color struct {
	Red   uint8
	Green uint8
	Blue  uint8
}

// Black is the dark sentinel: a pixel is dark iff it equals Black.
var Black = Color{}

func (c Color) Dark() bool {
	return c == Black
}

func (c Color) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c.Red, c.Green, c.Blue)
}

// Buffer is a fixed-length strip of pixels.
type Buffer []Color

func NewBuffer(pixels int) Buffer {
	return make(Buffer, pixels)
}

func (b Buffer) Fill(c Color) {
	for i := range b {
		b[i] = c
	}
}

func (b Buffer) Clear() {
	b.Fill(Black)
}

// Lit counts the pixels that are not dark.
func (b Buffer) Lit() int {
	n := 0
	for _, c := range b {
		if !c.Dark() {
			n++
		}
	}
	return n
}

// PixelBus is the output a Buffer is written to once per tick. Write must not
// retain the buffer after it returns.
type PixelBus interface {
	Open(ctx context.Context) error
	Write(buf Buffer) error
	Close() error
}

type discard struct{}

func (discard) Open(context.Context) error { return nil }
func (discard) Write(Buffer) error         { return nil }
func (discard) Close() error               { return nil }

// Discard is a PixelBus that drops every frame.
var Discard PixelBus = discard{}

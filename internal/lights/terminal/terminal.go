package terminal

import (
	"context"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/pkg/errors"

	"github.com/scheerer/sparkle-lights/lights"
)

const cell = '█'

// Bus previews the strip in a terminal, one block per pixel, wrapping at the
// screen width. Pressing q, Escape or Ctrl-C calls onQuit.
type Bus struct {
	screen tcell.Screen
	onQuit func()

	mu     sync.Mutex
	opened bool
	once   sync.Once
}

var _ lights.PixelBus = (*Bus)(nil)

// New creates a terminal bus. A nil screen means the process's own terminal.
func New(screen tcell.Screen, onQuit func()) *Bus {
	if onQuit == nil {
		onQuit = func() {}
	}
	return &Bus{screen: screen, onQuit: onQuit}
}

func (b *Bus) Open(ctx context.Context) error {
	if b.screen == nil {
		screen, err := tcell.NewScreen()
		if err != nil {
			return errors.Wrap(err, "create terminal screen")
		}
		b.screen = screen
	}
	if err := b.screen.Init(); err != nil {
		return errors.Wrap(err, "init terminal screen")
	}
	b.screen.HideCursor()
	b.screen.Clear()

	b.mu.Lock()
	b.opened = true
	b.mu.Unlock()

	go b.pollKeys()
	return nil
}

func (b *Bus) pollKeys() {
	for {
		ev := b.screen.PollEvent()
		switch ev := ev.(type) {
		case nil:
			return
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyCtrlC || ev.Key() == tcell.KeyEscape ||
				(ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
				b.onQuit()
			}
		case *tcell.EventResize:
			b.mu.Lock()
			b.screen.Sync()
			b.mu.Unlock()
		}
	}
}

func (b *Bus) Write(buf lights.Buffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.opened {
		return errors.New("terminal screen not open")
	}

	width, _ := b.screen.Size()
	if width <= 0 {
		width = 1
	}
	for i, c := range buf {
		color := tcell.NewRGBColor(int32(c.Red), int32(c.Green), int32(c.Blue))
		b.screen.SetContent(i%width, i/width, cell, nil, tcell.StyleDefault.Foreground(color))
	}
	b.screen.Show()
	return nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.opened {
		return nil
	}
	b.once.Do(b.screen.Fini)
	b.opened = false
	return nil
}

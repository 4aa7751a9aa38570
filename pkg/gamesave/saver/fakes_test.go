package saver_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/randalmurphal/gamesave/pkg/gamesave/saver"
	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
)

var errBoom = errors.New("boom")

// fakeEmulator implements every emulator capability; errors are injectable.
type fakeEmulator struct {
	state   []byte
	memory  []byte
	saveErr error
	loadErr error
	memErr  error
	loaded  []byte
}

func (e *fakeEmulator) SaveState() ([]byte, error) {
	if e.saveErr != nil {
		return nil, e.saveErr
	}
	return e.state, nil
}

func (e *fakeEmulator) LoadState(data []byte) error {
	if e.loadErr != nil {
		return e.loadErr
	}
	e.loaded = append([]byte(nil), data...)
	return nil
}

func (e *fakeEmulator) Memory() ([]byte, error) {
	if e.memErr != nil {
		return nil, e.memErr
	}
	return e.memory, nil
}

// memoryOnlyEmulator exposes only a memory dump.
type memoryOnlyEmulator struct {
	memory []byte
}

func (e *memoryOnlyEmulator) Memory() ([]byte, error) { return e.memory, nil }

type gameBoyGame struct {
	emu any
}

func (g *gameBoyGame) Emulator() any    { return g.emu }
func (g *gameBoyGame) GameName() string { return "tetris" }

// fakeBrowser records scripts and answers the capture script with result.
type fakeBrowser struct {
	mu       sync.Mutex
	result   any
	err      error
	scripts  []string
	lastArgs []any
}

func (b *fakeBrowser) Evaluate(ctx context.Context, script string, args ...any) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts = append(b.scripts, script)
	b.lastArgs = args
	if b.err != nil {
		return nil, b.err
	}
	if len(args) > 0 {
		return true, nil
	}
	return b.result, nil
}

type dosGame struct {
	browser saver.Browser
}

func (g *dosGame) Browser() saver.Browser { return g.browser }

type typedGame struct {
	gameBoyGame
	t state.GameType
}

func (g *typedGame) GameType() state.GameType { return g.t }

type screenGame struct {
	screen []byte
	err    error
}

func (g *screenGame) Screen(ctx context.Context) ([]byte, error) { return g.screen, g.err }

type imageGame struct {
	img image.Image
}

func (g *imageGame) ScreenImage(ctx context.Context) (image.Image, error) { return g.img, nil }

type observerGame struct {
	obs any
}

func (g *observerGame) Observe(ctx context.Context) (any, error) { return g.obs, nil }

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img
}

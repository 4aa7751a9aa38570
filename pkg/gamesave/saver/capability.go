package saver

import (
	"context"
	"image"

	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
)

// Typed is implemented by games that declare their type explicitly.
// It takes precedence over handle-based detection.
type Typed interface {
	GameType() state.GameType
}

// Named is implemented by games that report a human-readable name.
type Named interface {
	GameName() string
}

// ScreenCapturer returns the current screen as encoded bytes.
type ScreenCapturer interface {
	Screen(ctx context.Context) ([]byte, error)
}

// ImageCapturer returns the current screen as an image. It is PNG-encoded
// before being stored.
type ImageCapturer interface {
	ScreenImage(ctx context.Context) (image.Image, error)
}

// Observer returns the game's current observation. When the observation is
// a map with a "screen" field holding bytes or an image, that field is used
// as the screen of games that implement neither capturer.
type Observer interface {
	Observe(ctx context.Context) (any, error)
}

// EmulatorHost exposes an emulator handle. Games implementing it are
// detected as state.GameBoy.
type EmulatorHost interface {
	Emulator() any
}

// StateSaver is an emulator that produces a native save state.
type StateSaver interface {
	SaveState() ([]byte, error)
}

// StateLoader is an emulator that applies a native save state.
type StateLoader interface {
	LoadState(data []byte) error
}

// MemoryReader is an emulator that exposes a raw memory dump.
type MemoryReader interface {
	Memory() ([]byte, error)
}

// BrowserHost exposes a browser-automation handle. Games implementing it
// are detected as state.DOS.
type BrowserHost interface {
	Browser() Browser
}

// Browser evaluates a script in the page the game runs in. Args are passed
// to the script as its parameters; the result is whatever the script
// returns after JSON decoding, or a JSON string.
type Browser interface {
	Evaluate(ctx context.Context, script string, args ...any) (any, error)
}

// Detect returns the game type of game. An explicit, valid GameType() wins;
// otherwise an emulator handle means GameBoy and a browser handle means DOS.
func Detect(game any) state.GameType {
	if t, ok := game.(Typed); ok {
		if gt := t.GameType(); gt != "" && gt.Valid() {
			return gt
		}
	}
	if _, ok := game.(EmulatorHost); ok {
		return state.GameBoy
	}
	if _, ok := game.(BrowserHost); ok {
		return state.DOS
	}
	return state.Unknown
}

// GameName returns the game's name, or "unknown".
func GameName(game any) string {
	if n, ok := game.(Named); ok {
		if name := n.GameName(); name != "" {
			return name
		}
	}
	return string(state.Unknown)
}

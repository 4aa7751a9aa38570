// Package saver captures and restores the engine state of a running game.
//
// A game is an opaque value. What the package can do with it is decided by
// the small capability interfaces it implements:
//
//	type Game struct{ emu *Emulator }
//
//	func (g *Game) Emulator() any                          { return g.emu }
//	func (g *Game) Screen(ctx context.Context) ([]byte, error) { ... }
//
// Detect maps a game onto a state.GameType, and a Registry maps that type
// onto the Saver that knows how to snapshot it:
//
//	reg := saver.DefaultRegistry()
//	s, ok := reg.Get(saver.Detect(game))
//	if ok {
//	    blob, err := s.SaveState(ctx, game)
//	    // ...
//	}
//
// # Built-in savers
//
// GameBoySaver works with an emulator handle. It prefers the emulator's
// native save state and falls back to a raw memory dump.
//
// DOSSaver works with a browser-automation handle. It captures the page's
// local and session storage, its URL and the embedded emulator state as a
// JSON document and restores them through scripted evaluation.
//
// # Failure model
//
// Capture failures are returned as errors matching errors.ErrCapture. The
// caller is expected to degrade (store empty bytes) rather than abort.
// LoadState reports whether state was applied; a false result with a nil
// error means there was nothing to apply.
package saver

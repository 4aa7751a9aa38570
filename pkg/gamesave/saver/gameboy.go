package saver

import (
	"context"
	"errors"

	gserrors "github.com/randalmurphal/gamesave/pkg/gamesave/errors"
	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
)

// GameBoySaver handles games that expose an emulator handle.
type GameBoySaver struct{}

var _ Saver = GameBoySaver{}

// SaveState returns the emulator's native save state. If the emulator has
// none, or producing it fails, a raw memory dump is used instead.
func (GameBoySaver) SaveState(ctx context.Context, game any) ([]byte, error) {
	emu := emulator(game)
	if emu == nil {
		return []byte{}, nil
	}

	native, ok := emu.(StateSaver)
	if !ok {
		mem, err := memoryOf(emu)
		if err != nil {
			return []byte{}, gserrors.New(gserrors.KindCapture, "save_state", string(state.GameBoy), err)
		}
		return nonNil(mem), nil
	}

	data, saveErr := native.SaveState()
	if saveErr == nil {
		return nonNil(data), nil
	}

	mem, memErr := memoryOf(emu)
	if memErr != nil {
		return []byte{}, gserrors.New(gserrors.KindCapture, "save_state", string(state.GameBoy),
			errors.Join(saveErr, memErr))
	}
	return nonNil(mem), gserrors.New(gserrors.KindCapture, "save_state", string(state.GameBoy), saveErr)
}

// LoadState passes data to the emulator's native load call.
func (GameBoySaver) LoadState(ctx context.Context, game any, data []byte) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	loader, ok := emulator(game).(StateLoader)
	if !ok {
		return false, nil
	}
	if err := loader.LoadState(data); err != nil {
		return false, gserrors.New(gserrors.KindCapture, "load_state", string(state.GameBoy), err)
	}
	return true, nil
}

// MemorySnapshot returns the emulator's raw memory, or nil if it exposes none.
func (GameBoySaver) MemorySnapshot(ctx context.Context, game any) ([]byte, error) {
	mem, err := memoryOf(emulator(game))
	if err != nil {
		return nil, gserrors.New(gserrors.KindCapture, "memory_snapshot", string(state.GameBoy), err)
	}
	return mem, nil
}

func emulator(game any) any {
	host, ok := game.(EmulatorHost)
	if !ok {
		return nil
	}
	return host.Emulator()
}

func memoryOf(emu any) ([]byte, error) {
	reader, ok := emu.(MemoryReader)
	if !ok {
		return nil, nil
	}
	mem, err := reader.Memory()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(mem))
	copy(out, mem)
	return out, nil
}

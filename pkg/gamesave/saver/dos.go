package saver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gserrors "github.com/randalmurphal/gamesave/pkg/gamesave/errors"
	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
)

// PageState is the captured state of a browser-hosted DOS game. The storage
// fields hold the JSON text of the page's localStorage and sessionStorage.
type PageState struct {
	LocalStorage   string          `json:"localStorage"`
	SessionStorage string          `json:"sessionStorage"`
	URL            string          `json:"url"`
	DOSBoxState    json.RawMessage `json:"dosboxState"`
}

const captureScript = `() => {
	return {
		localStorage: JSON.stringify(localStorage),
		sessionStorage: JSON.stringify(sessionStorage),
		url: window.location.href,
		dosboxState: window.dosbox ? window.dosbox.getState() : null
	};
}`

const restoreScript = `(pageState) => {
	if (pageState.localStorage) {
		for (const [key, value] of Object.entries(JSON.parse(pageState.localStorage))) {
			localStorage.setItem(key, value);
		}
	}
	if (pageState.sessionStorage) {
		for (const [key, value] of Object.entries(JSON.parse(pageState.sessionStorage))) {
			sessionStorage.setItem(key, value);
		}
	}
	if (pageState.dosboxState && window.dosbox) {
		window.dosbox.setState(pageState.dosboxState);
	}
	return true;
}`

// DOSSaver handles games that run inside a browser page.
type DOSSaver struct{}

var _ Saver = DOSSaver{}

// SaveState evaluates a capture script in the page and returns the
// resulting PageState as JSON. A game without a browser yields empty bytes.
func (DOSSaver) SaveState(ctx context.Context, game any) ([]byte, error) {
	browser := browserOf(game)
	if browser == nil {
		return []byte{}, nil
	}

	result, err := browser.Evaluate(ctx, captureScript)
	if err != nil {
		return []byte{}, gserrors.New(gserrors.KindCapture, "save_state", string(state.DOS), err)
	}
	page, err := decodePageState(result)
	if err != nil {
		return []byte{}, gserrors.New(gserrors.KindCapture, "save_state", string(state.DOS), err)
	}
	data, err := json.Marshal(page)
	if err != nil {
		return []byte{}, gserrors.New(gserrors.KindCapture, "save_state", string(state.DOS), err)
	}
	return data, nil
}

// LoadState decodes a PageState and evaluates a restore script with it.
func (DOSSaver) LoadState(ctx context.Context, game any, data []byte) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	browser := browserOf(game)
	if browser == nil {
		return false, nil
	}

	var page PageState
	if err := json.Unmarshal(data, &page); err != nil {
		return false, gserrors.New(gserrors.KindCapture, "load_state", string(state.DOS),
			fmt.Errorf("decode page state: %w", err))
	}
	if _, err := browser.Evaluate(ctx, restoreScript, page); err != nil {
		return false, gserrors.New(gserrors.KindCapture, "load_state", string(state.DOS), err)
	}
	return true, nil
}

// MemorySnapshot is not supported for browser-hosted games and always
// returns nil.
func (DOSSaver) MemorySnapshot(ctx context.Context, game any) ([]byte, error) {
	return nil, nil
}

func browserOf(game any) Browser {
	host, ok := game.(BrowserHost)
	if !ok {
		return nil
	}
	return host.Browser()
}

// decodePageState accepts the evaluation result either as JSON text or as
// an already-decoded object.
func decodePageState(result any) (PageState, error) {
	var raw []byte
	switch v := result.(type) {
	case nil:
		return PageState{}, errors.New("capture script returned nothing")
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return PageState{}, fmt.Errorf("encode capture result: %w", err)
		}
		raw = b
	}

	var page PageState
	if err := json.Unmarshal(raw, &page); err != nil {
		return PageState{}, fmt.Errorf("decode capture result: %w", err)
	}
	return page, nil
}

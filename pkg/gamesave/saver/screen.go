package saver

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	gserrors "github.com/randalmurphal/gamesave/pkg/gamesave/errors"
)

// ScreenField is the observation field consulted by CaptureScreen.
const ScreenField = "screen"

// CaptureScreen returns the current screen of game as bytes. Games without
// a screen capability yield empty bytes and no error. The returned slice is
// never nil.
func CaptureScreen(ctx context.Context, game any) ([]byte, error) {
	switch g := game.(type) {
	case ScreenCapturer:
		b, err := g.Screen(ctx)
		if err != nil {
			return []byte{}, gserrors.New(gserrors.KindCapture, "screen", "", err)
		}
		return nonNil(b), nil
	case ImageCapturer:
		img, err := g.ScreenImage(ctx)
		if err != nil {
			return []byte{}, gserrors.New(gserrors.KindCapture, "screen", "", err)
		}
		return encodeImage(img)
	case Observer:
		obs, err := g.Observe(ctx)
		if err != nil {
			return []byte{}, gserrors.New(gserrors.KindCapture, "screen", "", err)
		}
		return screenFromObservation(obs)
	}
	return []byte{}, nil
}

func screenFromObservation(obs any) ([]byte, error) {
	if m, ok := obs.(map[string]any); ok {
		obs = m[ScreenField]
	}
	switch v := obs.(type) {
	case []byte:
		return nonNil(v), nil
	case image.Image:
		return encodeImage(v)
	}
	return []byte{}, nil
}

func encodeImage(img image.Image) ([]byte, error) {
	if img == nil {
		return []byte{}, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return []byte{}, gserrors.New(gserrors.KindCapture, "screen", "", fmt.Errorf("encode png: %w", err))
	}
	return buf.Bytes(), nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

//go:build !cgo || !ocr

package ocr

import (
	"context"
	"errors"
	"image"
	"log/slog"
)

// ErrGosseractUnavailable is returned when the binary was built without the ocr tag.
var ErrGosseractUnavailable = errors.New("in-process tesseract not compiled in; rebuild with -tags ocr")

// Gosseract is unavailable in this build.
type Gosseract struct{}

func NewGosseract(Config, *slog.Logger) (*Gosseract, error) {
	return nil, ErrGosseractUnavailable
}

func (*Gosseract) Recognize(context.Context, image.Image, Profile) (string, error) {
	return "", ErrGosseractUnavailable
}

//go:build cgo && ocr

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Gosseract recognizes in-process through libtesseract.
type Gosseract struct {
	cfg    Config
	logger *slog.Logger
	// libtesseract clients are not safe for concurrent use; one per call.
	newClient func() *gosseract.Client
}

// NewGosseract builds the in-process recognizer.
func NewGosseract(cfg Config, logger *slog.Logger) (*Gosseract, error) {
	return &Gosseract{cfg: cfg.withDefaults(), logger: loggerOrDefault(logger), newClient: gosseract.NewClient}, nil
}

func (g *Gosseract) Recognize(ctx context.Context, img image.Image, profile Profile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode page: %w", err)
	}

	client := g.newClient()
	defer func() {
		if err := client.Close(); err != nil {
			g.logger.Warn("failed to close tesseract client", "error", err)
		}
	}()

	if g.cfg.TessdataDir != "" {
		client.TessdataPrefix = g.cfg.TessdataDir
	}
	if err := client.SetLanguage(g.cfg.TesseractLang); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(profile.PageSegMode)); err != nil {
		return "", fmt.Errorf("set page seg mode: %w", err)
	}
	for _, v := range profile.Variables {
		if err := client.SetVariable(gosseract.SettableVariable(v.Name), v.Value); err != nil {
			return "", fmt.Errorf("set %s: %w", v.Name, err)
		}
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("gosseract (%s): %w", profile.Name, err)
	}
	return text, nil
}

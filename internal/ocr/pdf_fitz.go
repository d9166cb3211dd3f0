package ocr

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/gen2brain/go-fitz"
)

// FitzRasterizer renders in-process with MuPDF.
type FitzRasterizer struct {
	dpi    int
	logger *slog.Logger
}

func NewFitzRasterizer(cfg Config, logger *slog.Logger) *FitzRasterizer {
	cfg = cfg.withDefaults()
	return &FitzRasterizer{dpi: cfg.DPI, logger: loggerOrDefault(logger)}
}

func (f *FitzRasterizer) Name() string { return "fitz" }

func (f *FitzRasterizer) FirstPage(ctx context.Context, path string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	defer func() {
		if err := doc.Close(); err != nil {
			f.logger.Warn("failed to close pdf", "path", path, "error", err)
		}
	}()

	if doc.NumPage() == 0 {
		return nil, ErrNoPages
	}
	img, err := doc.ImageDPI(0, float64(f.dpi))
	if err != nil {
		return nil, fmt.Errorf("render page 1: %w", err)
	}
	f.logger.Debug("pdf page rasterized", "path", path, "dpi", f.dpi, "pages", doc.NumPage())
	return img, nil
}

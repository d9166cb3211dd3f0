package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// Rasterizer renders the first page of a PDF into a bitmap.
type Rasterizer interface {
	FirstPage(ctx context.Context, path string) (image.Image, error)
	Name() string
}

// PopplerRasterizer shells out to pdftoppm.
type PopplerRasterizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewPopplerRasterizer(cfg Config, runner Runner, logger *slog.Logger) *PopplerRasterizer {
	if runner == nil {
		runner = ExecRunner()
	}
	return &PopplerRasterizer{cfg: cfg.withDefaults(), runner: runner, logger: loggerOrDefault(logger)}
}

func (p *PopplerRasterizer) Name() string { return "poppler" }

func (p *PopplerRasterizer) FirstPage(ctx context.Context, path string) (image.Image, error) {
	tmpDir, err := os.MkdirTemp("", "rx-pp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func(dir string) {
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn("failed to remove temp dir", "dir", dir, "error", err)
		}
	}(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -f 1 -l 1 -r 300 -png -singlefile <in.pdf> <tmp/page>  ->  <tmp/page>.png
	_, errb, err := p.runner.Run(ctx, p.cfg.Pdftoppm, p.logger,
		"-f", "1", "-l", "1",
		"-r", strconv.Itoa(p.cfg.DPI),
		"-png", "-singlefile",
		path, prefix,
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	out := prefix + ".png"
	if _, err := os.Stat(out); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoPages
		}
		return nil, fmt.Errorf("stat rendered page: %w", err)
	}
	img, err := decodeFile(out)
	if err != nil {
		return nil, fmt.Errorf("decode rendered page: %w", err)
	}
	p.logger.Debug("pdf page rasterized", "path", path, "dpi", p.cfg.DPI,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return img, nil
}

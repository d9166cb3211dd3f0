package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// convertHEICtoPNG converts a HEIC/HEIF file to a temporary PNG using the chosen converter.
// converter: "heif-convert" | "magick" | "sips"
//
// Returns (outPath, cleanup, err). cleanup is non-nil whenever a temp dir was created.
func convertHEICtoPNG(ctx context.Context, r Runner, logger *slog.Logger, converter, in string) (string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "rx-heic-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}
	out := filepath.Join(tmpDir, "page.png")

	var errb []byte
	switch converter {
	case "heif-convert":
		_, errb, err = r.Run(ctx, "heif-convert", logger, in, out)
	case "magick":
		_, errb, err = r.Run(ctx, "magick", logger, in, out)
	case "sips":
		_, errb, err = r.Run(ctx, "sips", logger, "-s", "format", "png", in, "--out", out)
	default:
		return "", cleanup, fmt.Errorf("%w: HEIC needs HEIC_CONVERTER set to one of heif-convert | magick | sips", ErrUnsupportedFormat)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", cleanup, ctxErr
		}
		return "", cleanup, fmt.Errorf("%s failed: %w: %s", converter, err, truncate(string(errb), 512))
	}

	if _, statErr := os.Stat(out); statErr != nil {
		return "", cleanup, fmt.Errorf("HEIC conversion produced no output: %v", statErr)
	}
	logger.Debug("heic converted", "in", in, "converter", converter)
	return out, cleanup, nil
}

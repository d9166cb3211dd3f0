// Package ocr turns an uploaded document into a first-page bitmap and runs
// character recognition on bitmaps.
package ocr

import (
	"errors"
	"log/slog"
)

// Input classification failures. They are the caller's fault, not the engine's.
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrNoPages           = errors.New("document has no pages")
	ErrUndecodable       = errors.New("document could not be decoded")
)

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI, default 300
	TessdataDir   string

	HeicConverter string // heif-convert | magick | sips
}

func (c Config) withDefaults() Config {
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.TesseractLang == "" {
		c.TesseractLang = "eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.HeicConverter == "" {
		c.HeicConverter = "magick"
	}
	return c
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

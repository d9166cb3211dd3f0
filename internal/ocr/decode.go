package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/joseph-ayodele/rxscan/constants"
)

type docKind int

const (
	kindUnknown docKind = iota
	kindPDF
	kindRaster
	kindHEIC
)

func (k docKind) String() string {
	switch k {
	case kindPDF:
		return "pdf"
	case kindRaster:
		return "raster"
	case kindHEIC:
		return "heic"
	}
	return "unknown"
}

var heifBrands = map[string]bool{
	"heic": true, "heix": true, "hevc": true, "hevx": true,
	"heim": true, "heis": true, "mif1": true, "msf1": true,
}

// sniff classifies a document by its leading bytes.
func sniff(head []byte) docKind {
	switch {
	case bytes.HasPrefix(head, []byte("%PDF-")):
		return kindPDF
	case bytes.HasPrefix(head, []byte("\x89PNG\r\n\x1a\n")),
		bytes.HasPrefix(head, []byte{0xFF, 0xD8, 0xFF}),
		bytes.HasPrefix(head, []byte("II*\x00")),
		bytes.HasPrefix(head, []byte("MM\x00*")),
		bytes.HasPrefix(head, []byte("BM")):
		return kindRaster
	case len(head) >= 12 && string(head[4:8]) == "ftyp" && heifBrands[string(head[8:12])]:
		return kindHEIC
	}
	return kindUnknown
}

// Loader turns a stored upload into its first-page bitmap. PDFs go through
// the configured Rasterizer, raster images are decoded directly and HEIC
// photos are converted to PNG first.
type Loader struct {
	cfg    Config
	pdf    Rasterizer
	runner Runner
	logger *slog.Logger
}

func NewLoader(cfg Config, pdf Rasterizer, runner Runner, logger *slog.Logger) *Loader {
	cfg = cfg.withDefaults()
	if runner == nil {
		runner = ExecRunner()
	}
	logger = loggerOrDefault(logger)
	if pdf == nil {
		pdf = NewPopplerRasterizer(cfg, runner, logger)
	}
	return &Loader{cfg: cfg, pdf: pdf, runner: runner, logger: logger}
}

// FirstPage loads path as a bitmap. The file extension must be supported; the
// content decides how it is read when the two disagree.
func (l *Loader) FirstPage(ctx context.Context, path string) (image.Image, error) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	if constants.MapExtToFormat(ext) == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	head, err := readHead(path, 64)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if len(head) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUndecodable)
	}

	kind := sniff(head)
	if kind == kindUnknown && constants.IsHEICExt(ext) {
		kind = kindHEIC
	}
	l.logger.Debug("document classified", "path", path, "ext", ext, "kind", kind.String())

	switch kind {
	case kindPDF:
		return l.pdf.FirstPage(ctx, path)
	case kindRaster:
		img, err := decodeFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
		return img, nil
	case kindHEIC:
		out, cleanup, err := convertHEICtoPNG(ctx, l.runner, l.logger, l.cfg.HeicConverter, path)
		if cleanup != nil {
			defer cleanup()
		}
		if err != nil {
			return nil, err
		}
		img, err := decodeFile(out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized content for .%s", ErrUndecodable, ext)
	}
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("page has no pixels")
	}
	return img, nil
}

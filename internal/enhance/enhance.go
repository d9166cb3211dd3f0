// Package enhance prepares a page bitmap for character recognition.
//
// The pipeline is fixed: grayscale, non-local-means denoising, tiled
// histogram equalization (CLAHE) and a Gaussian adaptive threshold. The
// output is always a two-level image with the input's dimensions.
package enhance

import (
	"image"
	"log/slog"
	"runtime"
	"time"

	"github.com/disintegration/imaging"
)

// Options tunes the enhancement stages. The zero value of a field means "use the default".
type Options struct {
	// Non-local means.
	Strength       float64 // h
	TemplateRadius int     // 3 -> 7x7 patches
	SearchRadius   int     // 10 -> 21x21 window
	BandRows       int
	Workers        int // 0 -> GOMAXPROCS

	// CLAHE.
	ClipLimit float64
	TileGrid  int

	// Adaptive threshold.
	BlockSize int // odd neighbourhood size
	Offset    float64
}

// DefaultOptions mirror OpenCV's fastNlMeansDenoising(h=10), createCLAHE(2.0, 8x8)
// and adaptiveThreshold(GAUSSIAN_C, 61, 11).
func DefaultOptions() Options {
	return Options{
		Strength:       10,
		TemplateRadius: 3,
		SearchRadius:   10,
		BandRows:       32,
		ClipLimit:      2.0,
		TileGrid:       8,
		BlockSize:      61,
		Offset:         11,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Strength <= 0 {
		o.Strength = d.Strength
	}
	if o.TemplateRadius <= 0 {
		o.TemplateRadius = d.TemplateRadius
	}
	if o.SearchRadius <= 0 {
		o.SearchRadius = d.SearchRadius
	}
	if o.BandRows <= 0 {
		o.BandRows = d.BandRows
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.ClipLimit <= 0 {
		o.ClipLimit = d.ClipLimit
	}
	if o.TileGrid <= 0 {
		o.TileGrid = d.TileGrid
	}
	if o.BlockSize <= 1 {
		o.BlockSize = d.BlockSize
	}
	if o.BlockSize%2 == 0 {
		o.BlockSize++
	}
	if o.Offset == 0 {
		o.Offset = d.Offset
	}
	return o
}

// Enhancer is safe for concurrent use.
type Enhancer struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Enhancer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enhancer{opts: opts.withDefaults(), logger: logger}
}

// Enhance never fails: every decoded bitmap, including an empty one, yields
// a 0/255 bitmap of the same width and height.
func (e *Enhancer) Enhance(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return image.NewGray(image.Rect(0, 0, max(w, 0), max(h, 0)))
	}

	start := time.Now()
	gray := toGray(imaging.Grayscale(img))
	t0 := time.Since(start)

	den := denoise(gray, e.opts)
	t1 := time.Since(start)

	eq := clahe(den, e.opts.ClipLimit, e.opts.TileGrid)
	t2 := time.Since(start)

	out := adaptiveThreshold(eq, e.opts.BlockSize, e.opts.Offset)

	e.logger.Debug("page enhanced",
		"width", w, "height", h,
		"grayscale_ms", t0.Milliseconds(),
		"denoise_ms", (t1 - t0).Milliseconds(),
		"clahe_ms", (t2 - t1).Milliseconds(),
		"threshold_ms", (time.Since(start) - t2).Milliseconds(),
	)
	return out
}

// toGray keeps the red channel; imaging.Grayscale sets R=G=B.
func toGray(src *image.NRGBA) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		out := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			out[x] = row[x*4]
		}
	}
	return dst
}

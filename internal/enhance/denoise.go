package enhance

import (
	"image"
	"math"

	"golang.org/x/sync/errgroup"
)

// weights below this are dropped, as OpenCV does
const weightThreshold = 0.001

// nlmLUT maps a mean squared patch distance to its weight exp(-d/h^2).
func nlmLUT(h float64) []float64 {
	h2 := h * h
	var lut []float64
	for d := 0; ; d++ {
		w := math.Exp(-float64(d) / h2)
		if w < weightThreshold {
			return lut
		}
		lut = append(lut, w)
	}
}

// padded is the source image with a replicated border of r pixels on every side.
type padded struct {
	pix    []int32
	stride int
	r      int
}

func pad(src *image.Gray, r int) padded {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	stride := w + 2*r
	pix := make([]int32, stride*(h+2*r))
	for py := 0; py < h+2*r; py++ {
		sy := clamp(py-r, 0, h-1)
		row := src.Pix[sy*src.Stride:]
		for px := 0; px < stride; px++ {
			pix[py*stride+px] = int32(row[clamp(px-r, 0, w-1)])
		}
	}
	return padded{pix: pix, stride: stride, r: r}
}

// at takes coordinates in source space; they may reach r pixels outside it.
func (p padded) at(x, y int) int32 {
	return p.pix[(y+p.r)*p.stride+x+p.r]
}

// denoise runs non-local means over horizontal bands in parallel. Each
// output row depends only on the padded source, so banding does not change
// the result.
func denoise(src *image.Gray, opts Options) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	tr, sr := opts.TemplateRadius, opts.SearchRadius
	p := pad(src, tr+sr)
	lut := nlmLUT(opts.Strength)
	area := int64((2*tr + 1) * (2*tr + 1))

	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for y0 := 0; y0 < h; y0 += opts.BandRows {
		y0, y1 := y0, min(y0+opts.BandRows, h)
		g.Go(func() error {
			denoiseBand(p, dst, w, y0, y1, tr, sr, lut, area)
			return nil
		})
	}
	_ = g.Wait()
	return dst
}

// denoiseBand fills dst rows [y0, y1). For every search offset it builds an
// integral image of squared differences over the band plus a template-radius
// margin, then reads each pixel's patch distance in O(1).
func denoiseBand(p padded, dst *image.Gray, w, y0, y1, tr, sr int, lut []float64, area int64) {
	bh := y1 - y0
	rw, rh := w+2*tr, bh+2*tr
	is := rw + 1
	integral := make([]int64, is*(rh+1))
	sumW := make([]float64, w*bh)
	sumWV := make([]float64, w*bh)
	t := 2*tr + 1

	for dy := -sr; dy <= sr; dy++ {
		for dx := -sr; dx <= sr; dx++ {
			for i := 0; i < rh; i++ {
				y := y0 - tr + i
				var rowSum int64
				for j := 0; j < rw; j++ {
					x := j - tr
					d := int64(p.at(x, y) - p.at(x+dx, y+dy))
					rowSum += d * d
					integral[(i+1)*is+j+1] = integral[i*is+j+1] + rowSum
				}
			}

			for y := y0; y < y1; y++ {
				i0 := y - y0
				for x := 0; x < w; x++ {
					ssd := integral[(i0+t)*is+x+t] - integral[i0*is+x+t] -
						integral[(i0+t)*is+x] + integral[i0*is+x]
					dist := ssd / area
					if dist >= int64(len(lut)) {
						continue
					}
					wt := lut[dist]
					k := (y-y0)*w + x
					sumW[k] += wt
					sumWV[k] += wt * float64(p.at(x+dx, y+dy))
				}
			}
		}
	}

	for y := y0; y < y1; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			k := (y-y0)*w + x
			row[x] = uint8(clamp(int(math.Round(sumWV[k]/sumW[k])), 0, 255))
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

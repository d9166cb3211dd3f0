package enhance

import (
	"image"

	"github.com/disintegration/imaging"
)

// adaptiveThreshold whitens a pixel iff it is brighter than its
// Gaussian-weighted neighbourhood mean minus offset. Sigma follows OpenCV's
// rule for a blockSize kernel.
func adaptiveThreshold(src *image.Gray, blockSize int, offset float64) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	sigma := 0.3*(float64(blockSize-1)*0.5-1) + 0.8
	mean := imaging.Blur(src, sigma)

	for y := 0; y < h; y++ {
		srow := src.Pix[y*src.Stride:]
		mrow := mean.Pix[y*mean.Stride:]
		drow := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			if float64(srow[x]) > float64(mrow[x*4])-offset {
				drow[x] = 255
			}
		}
	}
	return dst
}

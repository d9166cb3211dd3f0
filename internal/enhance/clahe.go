package enhance

import (
	"image"
	"math"
)

const histBins = 256

// clahe equalizes contrast per tile with a clipped histogram and blends the
// tile lookup tables bilinearly. Tiles past the image edge see replicated
// border pixels, so every tile has the same area.
func clahe(src *image.Gray, clipLimit float64, grid int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	gx, gy := min(grid, w), min(grid, h)
	tw, th := (w+gx-1)/gx, (h+gy-1)/gy
	area := tw * th

	limit := max(int(clipLimit*float64(area)/histBins), 1)

	luts := make([][histBins]uint8, gx*gy)
	for ty := 0; ty < gy; ty++ {
		for tx := 0; tx < gx; tx++ {
			var hist [histBins]int
			for y := ty * th; y < (ty+1)*th; y++ {
				row := src.Pix[clamp(y, 0, h-1)*src.Stride:]
				for x := tx * tw; x < (tx+1)*tw; x++ {
					hist[row[clamp(x, 0, w-1)]]++
				}
			}
			clipHistogram(&hist, limit)
			luts[ty*gx+tx] = tileLUT(&hist, area)
		}
	}

	invTW, invTH := 1/float64(tw), 1/float64(th)
	for y := 0; y < h; y++ {
		tyf := float64(y)*invTH - 0.5
		ty1 := int(math.Floor(tyf))
		ty2 := ty1 + 1
		ya := tyf - float64(ty1)
		ya1 := 1 - ya
		ty1, ty2 = max(ty1, 0), min(ty2, gy-1)

		srow := src.Pix[y*src.Stride:]
		drow := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			txf := float64(x)*invTW - 0.5
			tx1 := int(math.Floor(txf))
			tx2 := tx1 + 1
			xa := txf - float64(tx1)
			xa1 := 1 - xa
			tx1, tx2 = max(tx1, 0), min(tx2, gx-1)

			v := srow[x]
			top := float64(luts[ty1*gx+tx1][v])*xa1 + float64(luts[ty1*gx+tx2][v])*xa
			bot := float64(luts[ty2*gx+tx1][v])*xa1 + float64(luts[ty2*gx+tx2][v])*xa
			drow[x] = uint8(clamp(int(math.Round(top*ya1+bot*ya)), 0, 255))
		}
	}
	return dst
}

// clipHistogram caps every bin at limit and hands the excess back evenly,
// spreading the remainder with a fixed stride from bin 0.
func clipHistogram(hist *[histBins]int, limit int) {
	clipped := 0
	for i := range hist {
		if hist[i] > limit {
			clipped += hist[i] - limit
			hist[i] = limit
		}
	}

	batch := clipped / histBins
	residual := clipped - batch*histBins
	for i := range hist {
		hist[i] += batch
	}
	if residual > 0 {
		step := max(histBins/residual, 1)
		for i := 0; i < histBins && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}
}

func tileLUT(hist *[histBins]int, area int) [histBins]uint8 {
	var lut [histBins]uint8
	scale := 255 / float64(area)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = uint8(clamp(int(math.Round(float64(sum)*scale)), 0, 255))
	}
	return lut
}

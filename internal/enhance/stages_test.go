package enhance

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenoise_BandingIndependent(t *testing.T) {
	src := noisy(33, 29, 5)
	base := DefaultOptions()
	base.Workers = 1
	base.BandRows = 1000
	want := denoise(src, base)

	for _, rows := range []int{1, 3, 7, 16} {
		o := base
		o.BandRows = rows
		o.Workers = 4
		assert.Equal(t, want.Pix, denoise(src, o).Pix, "band rows %d", rows)
	}
}

func TestDenoise_UniformUnchanged(t *testing.T) {
	o := DefaultOptions()
	o.Workers = 2
	out := denoise(uniform(20, 15, 137), o)
	for _, v := range out.Pix {
		require.Equal(t, uint8(137), v)
	}
}

func TestDenoise_SmoothsIsolatedSpeck(t *testing.T) {
	src := uniform(30, 30, 200)
	src.Pix[15*src.Stride+15] = 150
	o := DefaultOptions()
	o.Workers = 1
	out := denoise(src, o)
	assert.Greater(t, out.Pix[15*out.Stride+15], uint8(150))
}

func TestNLMLUT(t *testing.T) {
	lut := nlmLUT(10)
	require.NotEmpty(t, lut)
	assert.Equal(t, 1.0, lut[0])
	for i := 1; i < len(lut); i++ {
		assert.Less(t, lut[i], lut[i-1])
	}
	assert.GreaterOrEqual(t, lut[len(lut)-1], weightThreshold)
}

func TestClipHistogram_PreservesMass(t *testing.T) {
	var hist [histBins]int
	hist[0] = 900
	hist[255] = 124
	clipHistogram(&hist, 20)

	total := 0
	for _, v := range hist {
		total += v
	}
	assert.Equal(t, 1024, total)
	assert.LessOrEqual(t, hist[0], 20+1024/histBins+1)
}

func TestTileLUT_Monotone(t *testing.T) {
	var hist [histBins]int
	hist[10], hist[100], hist[240] = 5, 10, 5
	lut := tileLUT(&hist, 20)
	assert.Equal(t, uint8(255), lut[255])
	for i := 1; i < histBins; i++ {
		assert.GreaterOrEqual(t, lut[i], lut[i-1])
	}
}

func TestCLAHE_TinyImages(t *testing.T) {
	for _, size := range [][2]int{{1, 1}, {3, 2}, {9, 9}, {17, 5}} {
		out := clahe(noisy(size[0], size[1], 9), 2.0, 8)
		assert.Equal(t, image.Rect(0, 0, size[0], size[1]), out.Bounds())
	}
}

func TestAdaptiveThreshold_Uniform(t *testing.T) {
	out := adaptiveThreshold(uniform(10, 10, 0), 61, 11)
	for _, v := range out.Pix {
		require.Equal(t, uint8(255), v, "pixel equal to its mean is above mean-C")
	}
}

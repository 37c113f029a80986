/**
 * OCR Preprocessor Tests
 */

package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessOutputDimensionsMatchInput(t *testing.T) {
	src := solidImage(120, 80, color.White)

	for _, enhanced := range []bool{true, false} {
		out := Preprocess(src, enhanced)
		assert.Equal(t, 120, out.Bounds().Dx())
		assert.Equal(t, 80, out.Bounds().Dy())
	}
}

func TestPreprocessOutputIsBinary(t *testing.T) {
	// Gradient exercises both sides of the threshold.
	src := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8((x * 255) / 63)
			src.Set(x, y, color.Gray{Y: v})
		}
	}

	for _, enhanced := range []bool{true, false} {
		out := Preprocess(src, enhanced)
		for y := 0; y < 64; y++ {
			for x := 0; x < 64; x++ {
				v := out.GrayAt(x, y).Y
				require.True(t, v == 0 || v == 255, "pixel (%d,%d) = %d, want 0 or 255", x, y, v)
			}
		}
	}
}

func TestGlobalThresholdInversion(t *testing.T) {
	// Dark ink on a light page: ink becomes foreground white.
	src := image.NewGray(image.Rect(0, 0, 4, 1))
	src.SetGray(0, 0, color.Gray{Y: 0})   // ink
	src.SetGray(1, 0, color.Gray{Y: 100}) // ink
	src.SetGray(2, 0, color.Gray{Y: 200}) // paper
	src.SetGray(3, 0, color.Gray{Y: 255}) // paper

	out := globalThresholdInv(src, 150)
	assert.Equal(t, uint8(255), out.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), out.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(0), out.GrayAt(2, 0).Y)
	assert.Equal(t, uint8(0), out.GrayAt(3, 0).Y)
}

func TestGlobalThresholdBoundary(t *testing.T) {
	// Exactly at the cutoff counts as ink (threshold is strictly greater).
	src := image.NewGray(image.Rect(0, 0, 2, 1))
	src.SetGray(0, 0, color.Gray{Y: 150})
	src.SetGray(1, 0, color.Gray{Y: 151})

	out := globalThresholdInv(src, 150)
	assert.Equal(t, uint8(255), out.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), out.GrayAt(1, 0).Y)
}

func TestAdaptiveThresholdMarksDarkTextOnLightBackground(t *testing.T) {
	// A dark stroke through a light field. The stroke must come out as
	// foreground even though the global mean is high.
	src := image.NewGray(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			src.SetGray(x, y, color.Gray{Y: 230})
		}
	}
	for x := 5; x < 35; x++ {
		src.SetGray(x, 20, color.Gray{Y: 20})
	}

	out := adaptiveThresholdInv(src, adaptiveWindow, adaptiveOffset)
	for x := 10; x < 30; x++ {
		assert.Equal(t, uint8(255), out.GrayAt(x, 20).Y, "stroke pixel at x=%d", x)
	}
	// Background far from the stroke stays background.
	assert.Equal(t, uint8(0), out.GrayAt(2, 2).Y)
}

func TestMedianDenoiseRemovesIsolatedNoise(t *testing.T) {
	// Single salt pixel in a uniform field disappears under a 3x3 median.
	src := image.NewGray(image.Rect(0, 0, 9, 9))
	for y := 0; y < 9; y++ {
		for x := 0; x < 9; x++ {
			src.SetGray(x, y, color.Gray{Y: 40})
		}
	}
	src.SetGray(4, 4, color.Gray{Y: 255})

	out := medianDenoise(src)
	assert.Equal(t, uint8(40), out.GrayAt(4, 4).Y)
}

func TestGrayscaleDimensions(t *testing.T) {
	src := solidImage(33, 17, color.RGBA{R: 200, G: 50, B: 50, A: 255})
	out := Grayscale(src)
	assert.Equal(t, 33, out.Bounds().Dx())
	assert.Equal(t, 17, out.Bounds().Dy())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, clamp(-5, 0, 10))
	assert.Equal(t, 10, clamp(15, 0, 10))
	assert.Equal(t, 7, clamp(7, 0, 10))
}

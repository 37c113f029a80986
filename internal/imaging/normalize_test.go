/**
 * Image Normalizer Tests
 */

package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/formlens/schema-worker/internal/errors"
)

func encodeTestPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestNormalizeRejectsSmallImages(t *testing.T) {
	testCases := []struct {
		name   string
		width  int
		height int
	}{
		{"both dimensions too small", 50, 50},
		{"width too small", 80, 400},
		{"height too small", 400, 99},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := encodeTestPNG(t, solidImage(tc.width, tc.height, color.White))

			_, err := Normalize("job-1", data, DefaultNormalizeOptions())
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrorImageTooSmall, apperrors.CodeOf(err))
		})
	}
}

func TestNormalizeAcceptsMinimumSize(t *testing.T) {
	data := encodeTestPNG(t, solidImage(100, 100, color.White))

	result, err := Normalize("job-1", data, DefaultNormalizeOptions())
	require.NoError(t, err)
	assert.Equal(t, 100, result.Width)
	assert.Equal(t, 100, result.Height)
	assert.False(t, result.Downscaled)
	assert.Empty(t, result.Warnings)
}

func TestNormalizeRejectsUndecodableData(t *testing.T) {
	_, err := Normalize("job-1", []byte("not an image"), DefaultNormalizeOptions())
	require.Error(t, err)
}

func TestNormalizeDownscalesOversizedImages(t *testing.T) {
	// 600x400 image exceeds a 100k pixel cap; longer side must come
	// down to the configured bound with aspect ratio preserved.
	opts := NormalizeOptions{
		MinDimension: 100,
		MaxPixels:    100_000,
		MaxDimension: 300,
	}
	data := encodeTestPNG(t, solidImage(600, 400, color.White))

	result, err := Normalize("job-1", data, opts)
	require.NoError(t, err)
	assert.True(t, result.Downscaled)
	assert.Equal(t, 300, result.Width)
	assert.Equal(t, 200, result.Height)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "downscaled")
}

func TestNormalizeFormIDIsDeterministic(t *testing.T) {
	data := encodeTestPNG(t, solidImage(200, 150, color.White))

	first, err := Normalize("job-1", data, DefaultNormalizeOptions())
	require.NoError(t, err)
	second, err := Normalize("job-2", data, DefaultNormalizeOptions())
	require.NoError(t, err)

	assert.Equal(t, first.FormID, second.FormID)
	assert.Equal(t, first.JPEG, second.JPEG)
	assert.Len(t, first.FormID, 32)
}

func TestNormalizeFormIDDistinguishesContent(t *testing.T) {
	white := encodeTestPNG(t, solidImage(200, 150, color.White))
	gray := encodeTestPNG(t, solidImage(200, 150, color.Gray{Y: 128}))

	a, err := Normalize("job-1", white, DefaultNormalizeOptions())
	require.NoError(t, err)
	b, err := Normalize("job-1", gray, DefaultNormalizeOptions())
	require.NoError(t, err)

	assert.NotEqual(t, a.FormID, b.FormID)
}

func TestScaleToFitPreservesSmallImages(t *testing.T) {
	src := solidImage(200, 100, color.White)
	out := scaleToFit(src, 300)
	assert.Equal(t, src.Bounds(), out.Bounds())
}

func TestScaleToFitPortrait(t *testing.T) {
	src := solidImage(400, 800, color.White)
	out := scaleToFit(src, 200)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 200, out.Bounds().Dy())
}

/**
 * OCR Preprocessor
 *
 * Converts a normalized color image into a binary text-vs-background
 * representation. Enhanced mode (median denoise + adaptive local threshold)
 * tolerates uneven lighting on scanned forms; simple mode is a cheap global
 * threshold for speed-sensitive runs.
 */

package imaging

import (
	"image"
	"image/color"
	"sort"
)

const (
	adaptiveWindow  = 11  // neighborhood size for the local threshold
	adaptiveOffset  = 2   // constant subtracted from the local mean
	globalThreshold = 150 // simple-mode cutoff
)

// Preprocess produces the binary image fed to the OCR engine. Text pixels
// come out white (255) on a black background, matching an inverted
// threshold. The output has the same dimensions as the input.
func Preprocess(src image.Image, enhanced bool) *image.Gray {
	gray := Grayscale(src)
	if enhanced {
		denoised := medianDenoise(gray)
		return adaptiveThresholdInv(denoised, adaptiveWindow, adaptiveOffset)
	}
	return globalThresholdInv(gray, globalThreshold)
}

// Grayscale converts any image to 8-bit grayscale using the standard
// luminance weights.
func Grayscale(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(src.At(x, y)))
		}
	}
	return dst
}

// medianDenoise applies a 3x3 median filter. Scanner salt-and-pepper noise
// is what tends to break word segmentation, and a median pass removes it
// without softening glyph edges the way a blur would.
func medianDenoise(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(b)

	window := make([]byte, 0, 9)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := clamp(x+dx, 0, w-1), clamp(y+dy, 0, h-1)
					window = append(window, src.GrayAt(nx, ny).Y)
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			dst.SetGray(x, y, color.Gray{Y: window[4]})
		}
	}
	return dst
}

// adaptiveThresholdInv binarizes with a per-pixel threshold computed as the
// mean of a window x window neighborhood minus offset, inverted so text is
// foreground. A summed-area table keeps it linear in pixel count.
func adaptiveThresholdInv(src *image.Gray, window, offset int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(b)

	// integral[y][x] = sum of src over [0,x) x [0,y)
	integral := make([][]int64, h+1)
	for y := range integral {
		integral[y] = make([]int64, w+1)
	}
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(src.GrayAt(x, y).Y)
			integral[y+1][x+1] = integral[y][x+1] + rowSum
		}
	}

	half := window / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x1, y1 := clamp(x-half, 0, w-1), clamp(y-half, 0, h-1)
			x2, y2 := clamp(x+half, 0, w-1), clamp(y+half, 0, h-1)

			count := int64((x2 - x1 + 1) * (y2 - y1 + 1))
			sum := integral[y2+1][x2+1] - integral[y1][x2+1] - integral[y2+1][x1] + integral[y1][x1]
			threshold := sum/count - int64(offset)

			if int64(src.GrayAt(x, y).Y) > threshold {
				dst.SetGray(x, y, color.Gray{Y: 0})
			} else {
				dst.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return dst
}

// globalThresholdInv binarizes with a fixed cutoff, inverted.
func globalThresholdInv(src *image.Gray, cutoff uint8) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if src.GrayAt(x, y).Y > cutoff {
				dst.SetGray(x, y, color.Gray{Y: 0})
			} else {
				dst.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return dst
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

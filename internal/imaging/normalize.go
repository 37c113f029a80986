/**
 * Image Normalizer
 *
 * Validates and rescales uploaded form images into a canonical color
 * representation with bounded dimensions, and derives a deterministic
 * content identifier from the canonical JPEG encoding.
 */

package imaging

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/formlens/schema-worker/internal/errors"
)

const canonicalJPEGQuality = 95

// NormalizeOptions bounds the accepted image geometry
type NormalizeOptions struct {
	MinDimension int // reject below this (width or height)
	MaxPixels    int // downscale above this total pixel count
	MaxDimension int // downscale target bound for the longer side
}

// DefaultNormalizeOptions mirrors the worker configuration defaults
func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{
		MinDimension: 100,
		MaxPixels:    50_000_000,
		MaxDimension: 3000,
	}
}

// NormalizedImage is the canonical pipeline input
type NormalizedImage struct {
	Image      image.Image
	JPEG       []byte // canonical encoding, source of FormID
	FormID     string // md5 hex of JPEG
	Width      int
	Height     int
	Downscaled bool
	Warnings   []string
}

// Normalize decodes raw image bytes and produces the canonical image.
// Images below the minimum dimension fail with IMAGE_TOO_SMALL; oversized
// images are downscaled preserving aspect ratio, which only adds a warning.
func Normalize(jobID string, data []byte, opts NormalizeOptions) (*NormalizedImage, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width < opts.MinDimension || height < opts.MinDimension {
		return nil, errors.NewImageTooSmallError(jobID, width, height, opts.MinDimension)
	}

	var warnings []string
	downscaled := false

	if width*height > opts.MaxPixels {
		src = scaleToFit(src, opts.MaxDimension)
		b := src.Bounds()
		warnings = append(warnings, fmt.Sprintf(
			"large image downscaled from %dx%d to %dx%d", width, height, b.Dx(), b.Dy()))
		width = b.Dx()
		height = b.Dy()
		downscaled = true
	}

	canonical, err := encodeCanonicalJPEG(src)
	if err != nil {
		return nil, fmt.Errorf("failed to encode canonical image (source format %s): %w", format, err)
	}

	sum := md5.Sum(canonical)

	return &NormalizedImage{
		Image:      src,
		JPEG:       canonical,
		FormID:     hex.EncodeToString(sum[:]),
		Width:      width,
		Height:     height,
		Downscaled: downscaled,
		Warnings:   warnings,
	}, nil
}

// scaleToFit shrinks src so both dimensions fit within maxDim, preserving
// aspect ratio. Catmull-Rom resampling keeps thin form strokes legible.
func scaleToFit(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}

	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// encodeCanonicalJPEG produces the fixed-quality encoding used both for the
// content hash and for the bytes forwarded to the remote vision model.
// Fixed encoder settings keep the form id stable across runs.
func encodeCanonicalJPEG(src image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: canonicalJPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

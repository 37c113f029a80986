/**
 * OCR Extractor
 *
 * Runs the detection engine over a preprocessed binary image and applies the
 * confidence and size filtering policy. Pure function of (image, threshold):
 * same input always yields the same token list in the detector's native
 * order.
 */

package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"unicode/utf8"

	"github.com/formlens/schema-worker/internal/errors"
	"github.com/formlens/schema-worker/internal/logging"
)

const (
	// Boxes at or below this size are treated as noise and discarded.
	minBoxWidth  = 5
	minBoxHeight = 5

	// Tokens of a single character after trimming are discarded.
	minTextLength = 2
)

// Extractor filters engine detections into TextTokens
type Extractor struct {
	engine Engine
	logger *logging.Logger
}

// NewExtractor creates an extractor around a detection engine
func NewExtractor(engine Engine) *Extractor {
	return &Extractor{
		engine: engine,
		logger: logging.NewLogger("OCRExtractor"),
	}
}

// Extract detects text in the binary image and keeps tokens with
// confidence strictly above threshold, more than one character of trimmed
// text, and a bounding box larger than the noise floor. An engine failure
// is reported as OCR_ENGINE_FAILURE with an empty (not nil) token list;
// the caller treats it as recoverable.
func (e *Extractor) Extract(ctx context.Context, binary *image.Gray, threshold int) ([]TextToken, error) {
	encoded, err := encodePNG(binary)
	if err != nil {
		return []TextToken{}, errors.NewOCREngineFailureError("", err)
	}

	detections, err := e.engine.Detect(ctx, encoded)
	if err != nil {
		e.logger.Warn("OCR engine failed", "error", err)
		return []TextToken{}, errors.NewOCREngineFailureError("", err)
	}

	tokens := FilterDetections(detections, threshold)
	e.logger.Info("OCR extraction complete",
		"detected", len(detections),
		"kept", len(tokens),
		"threshold", threshold)
	return tokens, nil
}

// FilterDetections applies the token retention policy, preserving the
// detector's native ordering.
func FilterDetections(detections []Detection, threshold int) []TextToken {
	tokens := make([]TextToken, 0, len(detections))
	for _, d := range detections {
		confidence := int(d.Confidence)
		if confidence <= threshold {
			continue
		}

		// Length is counted in characters, not bytes, so a lone accented
		// glyph is still noise.
		text := strings.TrimSpace(d.Text)
		if utf8.RuneCountInString(text) < minTextLength {
			continue
		}

		w := d.Box.Dx()
		h := d.Box.Dy()
		if w <= minBoxWidth || h <= minBoxHeight {
			continue
		}

		tokens = append(tokens, TextToken{
			Text:       text,
			Bbox:       [4]int{d.Box.Min.X, d.Box.Min.Y, d.Box.Max.X, d.Box.Max.Y},
			Confidence: confidence,
			LineNum:    d.LineNum,
			BlockNum:   d.BlockNum,
			PageNum:    d.PageNum,
			Width:      w,
			Height:     h,
		})
	}
	return tokens
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

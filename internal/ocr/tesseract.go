/**
 * Tesseract OCR Engine
 *
 * Word-level text detection with layout numbers via gosseract. The engine
 * wrapper is a process-wide singleton; a fresh gosseract client is created
 * per call since clients are not safe for concurrent reuse.
 */

package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Engine detects text regions in an encoded image.
type Engine interface {
	Detect(ctx context.Context, imageData []byte) ([]Detection, error)
}

// TesseractEngine runs local Tesseract OCR
type TesseractEngine struct {
	language string
}

// NewTesseractEngine creates a reusable Tesseract engine
func NewTesseractEngine(language string) *TesseractEngine {
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{language: language}
}

// Detect runs a detection pass and returns raw word-level regions in the
// engine's native order (page, block, paragraph, line, word).
func (t *TesseractEngine) Detect(ctx context.Context, imageData []byte) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return nil, fmt.Errorf("failed to set language %q: %w", t.language, err)
	}

	if err := client.SetImageFromBytes(imageData); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("tesseract detection failed: %w", err)
	}

	detections := make([]Detection, 0, len(boxes))
	for _, box := range boxes {
		detections = append(detections, Detection{
			Text:       box.Word,
			Box:        box.Box,
			Confidence: box.Confidence,
			BlockNum:   box.BlockNum,
			ParNum:     box.ParNum,
			LineNum:    box.LineNum,
			PageNum:    1, // single image per pass
		})
	}

	return detections, nil
}

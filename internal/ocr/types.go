/**
 * OCR Types - Shared data structures for OCR operations
 *
 * TextToken is the unit the rest of the pipeline consumes; Detection is the
 * raw engine output before filtering. JSON field names match the prompt
 * contract consumed by the remote vision model.
 */

package ocr

import "image"

// TextToken is one filtered OCR detection with geometry and confidence.
// Bbox is [x1, y1, x2, y2] in pixel coordinates with x1<x2 and y1<y2.
type TextToken struct {
	Text       string `json:"text"`
	Bbox       [4]int `json:"bbox"`
	Confidence int    `json:"confidence"`
	LineNum    int    `json:"line_num"`
	BlockNum   int    `json:"block_num"`
	PageNum    int    `json:"page_num"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// Detection is a raw text region as reported by the OCR engine, before
// confidence and size filtering.
type Detection struct {
	Text       string
	Box        image.Rectangle
	Confidence float64 // 0-100
	BlockNum   int
	ParNum     int
	LineNum    int
	PageNum    int
}

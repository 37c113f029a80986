/**
 * PDF Converter
 *
 * Turns a PDF upload into pipeline input. Primary path renders the first
 * page to PNG with pdftoppm (poppler-utils); when rendering is unavailable
 * or fails, a direct text extraction fallback produces synthetic tokens
 * with a fixed confidence so the prompt stage can still run. Only when
 * both paths fail does conversion report a terminal failure.
 */

package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/formlens/schema-worker/internal/errors"
	"github.com/formlens/schema-worker/internal/logging"
	"github.com/formlens/schema-worker/internal/ocr"
)

// Confidence assigned to tokens recovered through direct text extraction;
// there is no detector score to report.
const directExtractionConfidence = 95

// Synthetic geometry for direct-extraction tokens. Bounding boxes must
// stay well-formed (x1<x2, y1<y2) even without real coordinates.
const (
	syntheticLineHeight = 20
	syntheticCharWidth  = 8
)

// ConvertResult is either a rasterized first page or a direct-text token
// list, never both.
type ConvertResult struct {
	ImageData  []byte          // first-page PNG when rasterization succeeded
	Tokens     []ocr.TextToken // fallback tokens when it did not
	Text       string          // concatenated text for the fallback path
	DirectText bool
	Warnings   []string
}

// Converter handles PDF-to-pipeline-input conversion
type Converter struct {
	tempDir string
	logger  *logging.Logger
}

// NewConverter creates a converter writing render scratch files to tempDir
func NewConverter(tempDir string) *Converter {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Converter{
		tempDir: tempDir,
		logger:  logging.NewLogger("Converter"),
	}
}

// Convert runs the fallback chain: raster conversion, then direct text
// extraction, then a terminal DOCUMENT_CONVERSION_FAILURE.
func (c *Converter) Convert(ctx context.Context, jobID string, data []byte) (*ConvertResult, error) {
	if _, err := api.PageCount(bytes.NewReader(data), nil); err != nil {
		return nil, errors.NewDocumentConversionFailureError(jobID,
			fmt.Errorf("not a readable PDF: %w", err))
	}

	imageData, rasterErr := c.rasterizeFirstPage(ctx, jobID, data)
	if rasterErr == nil {
		return &ConvertResult{ImageData: imageData}, nil
	}
	c.logger.Warn("First-page rasterization failed, falling back to direct text extraction",
		"jobID", jobID, "error", rasterErr)

	tokens, text, textErr := extractTextDirect(data)
	if textErr == nil && len(tokens) > 0 {
		return &ConvertResult{
			Tokens:     tokens,
			Text:       text,
			DirectText: true,
			Warnings: []string{
				"PDF rasterization failed; field geometry is synthetic (direct text extraction)",
			},
		}, nil
	}

	return nil, errors.NewDocumentConversionFailureError(jobID,
		fmt.Errorf("rasterization failed (%v) and direct text extraction yielded nothing (%v)",
			rasterErr, textErr))
}

// rasterizeFirstPage renders page 1 to PNG via pdftoppm. 200 DPI keeps
// small form labels above the OCR noise floor.
func (c *Converter) rasterizeFirstPage(ctx context.Context, jobID string, data []byte) ([]byte, error) {
	scratch, err := os.MkdirTemp(c.tempDir, "formlens-pdf-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	pdfPath := filepath.Join(scratch, "input.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write scratch PDF: %w", err)
	}

	prefix := filepath.Join(scratch, "page1")
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", "1",
		"-l", "1",
		"-r", "200",
		"-singlefile",
		pdfPath,
		prefix,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	rendered, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}

	c.logger.Info("Rendered first PDF page", "jobID", jobID, "bytes", len(rendered))
	return rendered, nil
}

// extractTextDirect pulls embedded text out of the PDF and shapes it into
// tokens. Confidence is fixed and page/line/block numbers default to 1;
// geometry is a synthetic line stack.
func extractTextDirect(data []byte) ([]ocr.TextToken, string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var full strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		full.WriteString(content)
		full.WriteString("\n")
	}

	text := full.String()
	tokens := tokensFromText(text)
	if len(tokens) == 0 {
		return nil, text, fmt.Errorf("no extractable text in PDF")
	}
	return tokens, text, nil
}

func tokensFromText(text string) []ocr.TextToken {
	var tokens []ocr.TextToken
	row := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		chars := utf8.RuneCountInString(line)
		if chars < 2 {
			continue
		}

		width := chars * syntheticCharWidth
		y1 := row * syntheticLineHeight
		tokens = append(tokens, ocr.TextToken{
			Text:       line,
			Bbox:       [4]int{0, y1, width, y1 + syntheticLineHeight - 2},
			Confidence: directExtractionConfidence,
			LineNum:    1,
			BlockNum:   1,
			PageNum:    1,
			Width:      width,
			Height:     syntheticLineHeight - 2,
		})
		row++
	}
	return tokens
}

/**
 * Prompt Builder
 *
 * Serializes form metadata and the filtered token list into the instruction
 * document sent to the remote vision model. The output is byte-deterministic
 * for identical input so prompts are testable and results cacheable, and the
 * full token list is always embedded without truncation or sampling.
 */

package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/formlens/schema-worker/internal/ocr"
)

// FormMetadata is the read-only header embedded in the prompt. Field order
// here fixes the serialized order.
type FormMetadata struct {
	FormID               string `json:"form_id"`
	ImageWidth           int    `json:"image_width"`
	ImageHeight          int    `json:"image_height"`
	NumOCREntries        int    `json:"num_ocr_entries"`
	ConfidenceThreshold  int    `json:"confidence_threshold"`
	PreprocessingEnabled bool   `json:"preprocessing_enabled"`
}

const formSchemaTaskHeader = `
You are a Vision LLM helping extract structured form schema from OCR data.

OCR data was extracted from a blank form template. Your goal is to:
✅ Identify fields that a human would be expected to fill in
✅ Provide the field name (as labeled on the form)
✅ Determine the data type (string, number, date, email, phone, etc.)
✅ Return the exact bounding box that represents the user-input area — not the label
✅ Assign a logical section name based on headings, titles, or spatial grouping
✅ Identify field relationships (e.g., required fields, dependent fields)

Guidelines:
❌ Do NOT return bounding boxes for labels only (e.g., 'Patient Name')
❌ Do NOT include decorative text, titles, or instructions
❌ Do NOT guess values — only infer where input is expected
❌ Exclude legal disclaimers, instructions, or footer text
✅ Look for common form patterns: underlines, boxes, checkboxes, signature lines
✅ Group related fields logically (Personal Info, Address, Emergency Contact, etc.)
`

// BuildFormSchemaPrompt produces the complete instruction document for one
// form. Calling it twice with equal arguments yields identical strings.
func BuildFormSchemaPrompt(meta FormMetadata, tokens []ocr.TextToken) (string, error) {
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize form metadata: %w", err)
	}

	if tokens == nil {
		tokens = []ocr.TextToken{}
	}
	tokensJSON, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize OCR tokens: %w", err)
	}

	return fmt.Sprintf(`%s
Form Metadata:
%s

OCR Results (%d items):
%s

Return your output as a JSON object with this structure:
{
  "form_schema": {
    "form_id": "%s",
    "sections": [
      {
        "section_name": "string",
        "fields": [
          {
            "field_name": "string",
            "data_type": "string|number|date|email|phone|boolean|select",
            "bounding_box": [x1, y1, x2, y2],
            "required": boolean,
            "validation_rules": "string (optional)",
            "placeholder": "string (optional)"
          }
        ]
      }
    ]
  }
}
`, formSchemaTaskHeader, metaJSON, len(tokens), tokensJSON, meta.FormID), nil
}

/**
 * Prompt Builder Tests
 */

package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formlens/schema-worker/internal/ocr"
)

func sampleMetadata() FormMetadata {
	return FormMetadata{
		FormID:               "a3f5c9e1b2d4f6a8c0e2b4d6f8a0c2e4",
		ImageWidth:           1654,
		ImageHeight:          2339,
		NumOCREntries:        2,
		ConfidenceThreshold:  60,
		PreprocessingEnabled: true,
	}
}

func sampleTokens() []ocr.TextToken {
	return []ocr.TextToken{
		{Text: "Patient Name:", Bbox: [4]int{100, 200, 280, 230}, Confidence: 92, LineNum: 1, BlockNum: 1, PageNum: 1, Width: 180, Height: 30},
		{Text: "Date of Birth:", Bbox: [4]int{100, 260, 270, 290}, Confidence: 88, LineNum: 2, BlockNum: 1, PageNum: 1, Width: 170, Height: 30},
	}
}

func TestBuildFormSchemaPromptIsDeterministic(t *testing.T) {
	meta := sampleMetadata()
	tokens := sampleTokens()

	first, err := BuildFormSchemaPrompt(meta, tokens)
	require.NoError(t, err)
	second, err := BuildFormSchemaPrompt(meta, tokens)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildFormSchemaPromptEmbedsAllTokens(t *testing.T) {
	promptText, err := BuildFormSchemaPrompt(sampleMetadata(), sampleTokens())
	require.NoError(t, err)

	assert.Contains(t, promptText, "Patient Name:")
	assert.Contains(t, promptText, "Date of Birth:")
	assert.Contains(t, promptText, "OCR Results (2 items):")
}

func TestBuildFormSchemaPromptMetadataSection(t *testing.T) {
	promptText, err := BuildFormSchemaPrompt(sampleMetadata(), sampleTokens())
	require.NoError(t, err)

	assert.Contains(t, promptText, `"form_id": "a3f5c9e1b2d4f6a8c0e2b4d6f8a0c2e4"`)
	assert.Contains(t, promptText, `"image_width": 1654`)
	assert.Contains(t, promptText, `"image_height": 2339`)
	assert.Contains(t, promptText, `"confidence_threshold": 60`)
	assert.Contains(t, promptText, `"preprocessing_enabled": true`)
}

func TestBuildFormSchemaPromptContainsGuidelines(t *testing.T) {
	promptText, err := BuildFormSchemaPrompt(sampleMetadata(), sampleTokens())
	require.NoError(t, err)

	assert.Contains(t, promptText, "Identify fields that a human would be expected to fill in")
	assert.Contains(t, promptText, "Do NOT return bounding boxes for labels only")
	assert.Contains(t, promptText, "underlines, boxes, checkboxes, signature lines")
}

func TestBuildFormSchemaPromptOutputContract(t *testing.T) {
	promptText, err := BuildFormSchemaPrompt(sampleMetadata(), sampleTokens())
	require.NoError(t, err)

	// The literal response template names the schema keys and repeats the
	// form id inside the contract.
	assert.Contains(t, promptText, `"form_schema"`)
	assert.Contains(t, promptText, `"sections"`)
	assert.Contains(t, promptText, `"bounding_box": [x1, y1, x2, y2]`)
	assert.Equal(t, 2, strings.Count(promptText, "a3f5c9e1b2d4f6a8c0e2b4d6f8a0c2e4"))
}

func TestBuildFormSchemaPromptNilTokens(t *testing.T) {
	meta := sampleMetadata()
	meta.NumOCREntries = 0

	promptText, err := BuildFormSchemaPrompt(meta, nil)
	require.NoError(t, err)

	assert.Contains(t, promptText, "OCR Results (0 items):")
	assert.Contains(t, promptText, "[]")
}

func TestBuildFormSchemaPromptTokenSerializationRoundTrips(t *testing.T) {
	promptText, err := BuildFormSchemaPrompt(sampleMetadata(), sampleTokens())
	require.NoError(t, err)

	// The embedded OCR block must stay valid JSON with the wire field names.
	start := strings.Index(promptText, "OCR Results (2 items):\n")
	require.GreaterOrEqual(t, start, 0)
	rest := promptText[start+len("OCR Results (2 items):\n"):]
	end := strings.Index(rest, "\n\nReturn your output")
	require.GreaterOrEqual(t, end, 0)

	var decoded []ocr.TextToken
	require.NoError(t, json.Unmarshal([]byte(rest[:end]), &decoded))
	assert.Equal(t, sampleTokens(), decoded)
}

func TestBuildEntityPromptMentionsChunkAndTagSet(t *testing.T) {
	promptText := BuildEntityPrompt(3, "Acme Corp builds the Billing System.")

	assert.Contains(t, promptText, "Acme Corp builds the Billing System.")
	assert.Contains(t, promptText, "ORGANIZATION")
	assert.Contains(t, promptText, "TECHNOLOGY")
	assert.Contains(t, promptText, "Chunk 3:")
}

func TestBuildRelationshipPromptEmbedsKnownEntities(t *testing.T) {
	promptText, err := BuildRelationshipPrompt(0, "Acme Corp uses Postgres.", []string{"Acme Corp", "Postgres"})
	require.NoError(t, err)

	assert.Contains(t, promptText, `"Acme Corp"`)
	assert.Contains(t, promptText, `"Postgres"`)
	assert.Contains(t, promptText, "DEPENDS_ON")
	assert.Contains(t, promptText, "PART_OF")
}

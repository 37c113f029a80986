/**
 * Knowledge-graph prompts
 *
 * Deterministic per-chunk instruction documents for entity and relationship
 * extraction. Same serialization rules as the form-schema prompt: fixed
 * template, canonical JSON, no truncation of the embedded lists.
 */

package prompt

import (
	"encoding/json"
	"fmt"
)

// BuildEntityPrompt asks the completion model to extract typed entities
// from one chunk of source text.
func BuildEntityPrompt(chunkIndex int, chunkText string) string {
	return fmt.Sprintf(`You are extracting a knowledge graph from a document processed in chunks.

Extract the named entities from the chunk below. Allowed entity types:
PERSON, ORGANIZATION, SYSTEM, TECHNOLOGY, FEATURE, CONCEPT, PRODUCT

Rules:
- Only report entities literally present in the text.
- Assign exactly one type from the allowed set.
- Report a confidence between 0 and 100.
- Do not invent entities, do not merge distinct names.

Chunk %d:
%s

Return ONLY a JSON object with this structure:
{
  "entities": [
    {"name": "string", "type": "PERSON|ORGANIZATION|SYSTEM|TECHNOLOGY|FEATURE|CONCEPT|PRODUCT", "confidence": 0}
  ]
}
`, chunkIndex, chunkText)
}

// BuildRelationshipPrompt asks the completion model for relationships
// between already-known entities that co-occur in one chunk. The known
// entity names are embedded as canonical JSON so the prompt stays
// byte-identical for equal input.
func BuildRelationshipPrompt(chunkIndex int, chunkText string, entityNames []string) (string, error) {
	if entityNames == nil {
		entityNames = []string{}
	}
	namesJSON, err := json.MarshalIndent(entityNames, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize entity names: %w", err)
	}

	return fmt.Sprintf(`You are extracting a knowledge graph from a document processed in chunks.

Identify relationships between the known entities listed below, using only
evidence from this chunk. Allowed relation types:
USES, MANAGES, CONTAINS, REQUIRES, CREATES, PART_OF, DEPENDS_ON

Rules:
- source and target must both be names from the known entity list.
- source must differ from target.
- Only report relationships supported by this chunk's text.

Known entities:
%s

Chunk %d:
%s

Return ONLY a JSON object with this structure:
{
  "relationships": [
    {"source": "string", "target": "string", "relation": "USES|MANAGES|CONTAINS|REQUIRES|CREATES|PART_OF|DEPENDS_ON"}
  ]
}
`, namesJSON, chunkIndex, chunkText), nil
}

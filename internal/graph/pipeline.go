/**
 * Multi-chunk entity/relationship extraction pipeline
 *
 * The knowledge-graph variant of the extraction core: chunk the source
 * text, issue one blocking completion call per chunk (sequentially, no
 * batching), then merge the per-chunk results into a canonical graph.
 *
 * Call order per invocation:
 *   1. entity pass over every chunk
 *   2. first-seen-wins entity dedupe
 *   3. relationship pass over chunks containing >= 2 known entity names
 *   4. endpoint validation + relationship dedupe
 */

package graph

import (
	"context"
	"fmt"
	"log"

	"github.com/formlens/schema-worker/internal/errors"
	"github.com/formlens/schema-worker/internal/prompt"
)

// CompletionCaller issues one blocking prompt to the remote completion
// model and returns its parsed JSON envelope.
type CompletionCaller interface {
	Complete(ctx context.Context, jobID string, promptText string) (map[string]interface{}, error)
}

// Pipeline runs the chunked graph extraction
type Pipeline struct {
	client    CompletionCaller
	chunkSize int
}

// NewPipeline creates a graph extraction pipeline
func NewPipeline(client CompletionCaller, chunkSize int) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = 2000
	}
	return &Pipeline{client: client, chunkSize: chunkSize}
}

// Extract builds the deduplicated knowledge graph for one document.
func (p *Pipeline) Extract(ctx context.Context, jobID string, text string) (*Graph, error) {
	chunks := SplitChunks(text, p.chunkSize)
	log.Printf("[Job %s] Graph extraction: %d chunks (chunkSize=%d)", jobID, len(chunks), p.chunkSize)

	// Pass 1: entities, chunk by chunk
	var rawEntities []Entity
	for i, chunk := range chunks {
		entityPrompt := prompt.BuildEntityPrompt(i, chunk)

		resp, err := p.client.Complete(ctx, jobID, entityPrompt)
		if err != nil {
			return nil, fmt.Errorf("entity extraction failed on chunk %d: %w", i, err)
		}

		entities, err := parseEntities(resp, i)
		if err != nil {
			return nil, errors.NewRemoteError(errors.ErrorRemoteInvalidResponse, jobID,
				fmt.Sprintf("malformed entity response on chunk %d", i), err)
		}
		log.Printf("[Job %s] Chunk %d: %d entities", jobID, i, len(entities))
		rawEntities = append(rawEntities, entities...)
	}

	entities := DedupeEntities(rawEntities)
	log.Printf("[Job %s] Entity merge: %d raw -> %d canonical", jobID, len(rawEntities), len(entities))

	// Pass 2: relationships, only for chunks where at least two known
	// entity names literally appear
	var rawRels []Relationship
	for i, chunk := range chunks {
		present := EntityNamesInText(entities, chunk)
		if len(present) < 2 {
			log.Printf("[Job %s] Chunk %d: skipped relationship pass (%d known entities present)",
				jobID, i, len(present))
			continue
		}

		relPrompt, err := prompt.BuildRelationshipPrompt(i, chunk, present)
		if err != nil {
			return nil, fmt.Errorf("failed to build relationship prompt for chunk %d: %w", i, err)
		}

		resp, err := p.client.Complete(ctx, jobID, relPrompt)
		if err != nil {
			return nil, fmt.Errorf("relationship extraction failed on chunk %d: %w", i, err)
		}

		rels, err := parseRelationships(resp, i)
		if err != nil {
			return nil, errors.NewRemoteError(errors.ErrorRemoteInvalidResponse, jobID,
				fmt.Sprintf("malformed relationship response on chunk %d", i), err)
		}
		log.Printf("[Job %s] Chunk %d: %d relationships", jobID, i, len(rels))
		rawRels = append(rawRels, rels...)
	}

	relationships := FilterRelationships(rawRels, entities)
	log.Printf("[Job %s] Relationship merge: %d raw -> %d canonical", jobID, len(rawRels), len(relationships))

	return &Graph{Entities: entities, Relationships: relationships}, nil
}

// parseEntities validates the expected envelope keys explicitly rather
// than assuming field presence in the model's JSON.
func parseEntities(resp map[string]interface{}, chunk int) ([]Entity, error) {
	raw, ok := resp["entities"]
	if !ok {
		return nil, fmt.Errorf("response missing \"entities\" key")
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("\"entities\" is not an array")
	}

	entities := make([]Entity, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("entity entry is not an object")
		}

		name, _ := obj["name"].(string)
		typ, _ := obj["type"].(string)
		if name == "" || !ValidEntityType(typ) {
			// Out-of-vocabulary or empty entries are dropped, not fatal:
			// the model occasionally free-associates a type.
			continue
		}

		confidence := 0
		if c, ok := obj["confidence"].(float64); ok {
			confidence = int(c)
		}

		entities = append(entities, Entity{
			Name:       name,
			Type:       typ,
			Confidence: confidence,
			Chunk:      chunk,
		})
	}
	return entities, nil
}

func parseRelationships(resp map[string]interface{}, chunk int) ([]Relationship, error) {
	raw, ok := resp["relationships"]
	if !ok {
		return nil, fmt.Errorf("response missing \"relationships\" key")
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("\"relationships\" is not an array")
	}

	rels := make([]Relationship, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("relationship entry is not an object")
		}

		source, _ := obj["source"].(string)
		target, _ := obj["target"].(string)
		relation, _ := obj["relation"].(string)
		if source == "" || target == "" || !ValidRelationType(relation) {
			continue
		}

		rels = append(rels, Relationship{
			Source:   source,
			Target:   target,
			Relation: relation,
			Chunk:    chunk,
		})
	}
	return rels, nil
}

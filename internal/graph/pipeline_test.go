/**
 * Graph Pipeline Tests
 *
 * Drives the chunked extraction with a scripted completion caller so the
 * two-pass protocol is observable without a remote model.
 */

package graph

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/formlens/schema-worker/internal/errors"
)

// scriptedCaller answers entity prompts and relationship prompts from
// canned responses, recording every prompt it sees.
type scriptedCaller struct {
	entityResponses   []map[string]interface{}
	relationResponses []map[string]interface{}
	err               error
	prompts           []string
	entityCalls       int
	relationCalls     int
}

func (s *scriptedCaller) Complete(ctx context.Context, jobID string, promptText string) (map[string]interface{}, error) {
	s.prompts = append(s.prompts, promptText)
	if s.err != nil {
		return nil, s.err
	}
	if strings.Contains(promptText, `"entities"`) {
		resp := s.entityResponses[s.entityCalls%len(s.entityResponses)]
		s.entityCalls++
		return resp, nil
	}
	resp := s.relationResponses[s.relationCalls%len(s.relationResponses)]
	s.relationCalls++
	return resp, nil
}

func entityResponse(entities ...map[string]interface{}) map[string]interface{} {
	items := make([]interface{}, len(entities))
	for i, e := range entities {
		items[i] = e
	}
	return map[string]interface{}{"entities": items}
}

func relationResponse(rels ...map[string]interface{}) map[string]interface{} {
	items := make([]interface{}, len(rels))
	for i, r := range rels {
		items[i] = r
	}
	return map[string]interface{}{"relationships": items}
}

func TestPipelineExtractSingleChunk(t *testing.T) {
	caller := &scriptedCaller{
		entityResponses: []map[string]interface{}{
			entityResponse(
				map[string]interface{}{"name": "Acme Corp", "type": "ORGANIZATION", "confidence": float64(90)},
				map[string]interface{}{"name": "Postgres", "type": "TECHNOLOGY", "confidence": float64(85)},
			),
		},
		relationResponses: []map[string]interface{}{
			relationResponse(
				map[string]interface{}{"source": "Acme Corp", "target": "Postgres", "relation": "USES"},
			),
		},
	}

	p := NewPipeline(caller, 2000)
	g, err := p.Extract(context.Background(), "job-1", "Acme Corp stores everything in Postgres.")
	require.NoError(t, err)

	require.Len(t, g.Entities, 2)
	require.Len(t, g.Relationships, 1)
	assert.Equal(t, "USES", g.Relationships[0].Relation)
	assert.Equal(t, 1, caller.entityCalls)
	assert.Equal(t, 1, caller.relationCalls)
}

func TestPipelineMergesAcrossChunks(t *testing.T) {
	// Two chunks report the same organization under different casing;
	// the first chunk's spelling must win.
	caller := &scriptedCaller{
		entityResponses: []map[string]interface{}{
			entityResponse(map[string]interface{}{"name": "ACME CORP", "type": "ORGANIZATION", "confidence": float64(70)}),
			entityResponse(
				map[string]interface{}{"name": "Acme Corp", "type": "ORGANIZATION", "confidence": float64(95)},
				map[string]interface{}{"name": "Billing", "type": "SYSTEM", "confidence": float64(80)},
			),
		},
		relationResponses: []map[string]interface{}{
			relationResponse(map[string]interface{}{"source": "Acme Corp", "target": "Billing", "relation": "MANAGES"}),
		},
	}

	text := "ACME CORP uses Billing daily. Acme Corp ships Billing updates."
	p := NewPipeline(caller, 30)

	g, err := p.Extract(context.Background(), "job-1", text)
	require.NoError(t, err)

	require.Len(t, g.Entities, 2)
	assert.Equal(t, "ACME CORP", g.Entities[0].Name)
	assert.Equal(t, 70, g.Entities[0].Confidence)

	// Relationship endpoints resolve case-insensitively against the
	// canonical entity set.
	require.Len(t, g.Relationships, 1)
	assert.Equal(t, "Acme Corp", g.Relationships[0].Source)
}

func TestPipelineSkipsRelationshipPassBelowTwoEntities(t *testing.T) {
	caller := &scriptedCaller{
		entityResponses: []map[string]interface{}{
			entityResponse(map[string]interface{}{"name": "Postgres", "type": "TECHNOLOGY", "confidence": float64(90)}),
		},
		relationResponses: []map[string]interface{}{relationResponse()},
	}

	p := NewPipeline(caller, 2000)
	g, err := p.Extract(context.Background(), "job-1", "Postgres is mentioned alone here.")
	require.NoError(t, err)

	assert.Len(t, g.Entities, 1)
	assert.Empty(t, g.Relationships)
	assert.Equal(t, 0, caller.relationCalls)
}

func TestPipelineDropsOutOfVocabularyEntries(t *testing.T) {
	caller := &scriptedCaller{
		entityResponses: []map[string]interface{}{
			entityResponse(
				map[string]interface{}{"name": "Paris", "type": "LOCATION", "confidence": float64(99)},
				map[string]interface{}{"name": "", "type": "PERSON", "confidence": float64(99)},
				map[string]interface{}{"name": "Alice", "type": "PERSON", "confidence": float64(88)},
			),
		},
		relationResponses: []map[string]interface{}{relationResponse()},
	}

	p := NewPipeline(caller, 2000)
	g, err := p.Extract(context.Background(), "job-1", "Alice visited Paris.")
	require.NoError(t, err)

	require.Len(t, g.Entities, 1)
	assert.Equal(t, "Alice", g.Entities[0].Name)
}

func TestPipelineMalformedEnvelope(t *testing.T) {
	caller := &scriptedCaller{
		entityResponses: []map[string]interface{}{
			{"wrong_key": []interface{}{}},
		},
	}

	p := NewPipeline(caller, 2000)
	_, err := p.Extract(context.Background(), "job-1", "some text")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorRemoteInvalidResponse, apperrors.CodeOf(err))
}

func TestPipelineRemoteFailureAborts(t *testing.T) {
	caller := &scriptedCaller{err: fmt.Errorf("connection refused")}

	p := NewPipeline(caller, 2000)
	_, err := p.Extract(context.Background(), "job-1", "some text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity extraction failed on chunk 0")
}

/**
 * Deduplicator Tests
 */

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeEntitiesFirstSeenWins(t *testing.T) {
	entities := []Entity{
		{Name: "ACME CORP", Type: "ORGANIZATION", Confidence: 70, Chunk: 0},
		{Name: "Acme Corp", Type: "ORGANIZATION", Confidence: 95, Chunk: 1},
		{Name: "Postgres", Type: "TECHNOLOGY", Confidence: 90, Chunk: 1},
	}

	out := DedupeEntities(entities)
	require.Len(t, out, 2)

	// The chunk-0 spelling and confidence survive even though the later
	// duplicate scored higher.
	assert.Equal(t, "ACME CORP", out[0].Name)
	assert.Equal(t, 70, out[0].Confidence)
	assert.Equal(t, 0, out[0].Chunk)
	assert.Equal(t, "Postgres", out[1].Name)
}

func TestDedupeEntitiesIdempotent(t *testing.T) {
	entities := []Entity{
		{Name: "Alice", Type: "PERSON"},
		{Name: "Billing System", Type: "SYSTEM"},
	}

	once := DedupeEntities(entities)
	twice := DedupeEntities(once)
	assert.Equal(t, once, twice)
}

func TestDedupeEntitiesEmpty(t *testing.T) {
	assert.Empty(t, DedupeEntities(nil))
	assert.Empty(t, DedupeEntities([]Entity{}))
}

func TestFilterRelationships(t *testing.T) {
	entities := []Entity{
		{Name: "Acme Corp", Type: "ORGANIZATION"},
		{Name: "Postgres", Type: "TECHNOLOGY"},
		{Name: "Billing System", Type: "SYSTEM"},
	}

	testCases := []struct {
		name string
		rel  Relationship
		kept bool
	}{
		{
			name: "valid relationship kept",
			rel:  Relationship{Source: "Acme Corp", Target: "Postgres", Relation: "USES"},
			kept: true,
		},
		{
			name: "case-insensitive endpoint match",
			rel:  Relationship{Source: "acme corp", Target: "POSTGRES", Relation: "USES"},
			kept: true,
		},
		{
			name: "unknown source dropped",
			rel:  Relationship{Source: "Globex", Target: "Postgres", Relation: "USES"},
			kept: false,
		},
		{
			name: "unknown target dropped",
			rel:  Relationship{Source: "Acme Corp", Target: "MongoDB", Relation: "USES"},
			kept: false,
		},
		{
			name: "self relation dropped",
			rel:  Relationship{Source: "Postgres", Target: "postgres", Relation: "DEPENDS_ON"},
			kept: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := FilterRelationships([]Relationship{tc.rel}, entities)
			if tc.kept {
				assert.Len(t, out, 1)
			} else {
				assert.Empty(t, out)
			}
		})
	}
}

func TestFilterRelationshipsDeduplicates(t *testing.T) {
	entities := []Entity{
		{Name: "Acme Corp", Type: "ORGANIZATION"},
		{Name: "Postgres", Type: "TECHNOLOGY"},
	}
	rels := []Relationship{
		{Source: "Acme Corp", Target: "Postgres", Relation: "USES", Chunk: 0},
		{Source: "acme corp", Target: "postgres", Relation: "USES", Chunk: 2},
		{Source: "Acme Corp", Target: "Postgres", Relation: "MANAGES", Chunk: 2},
	}

	out := FilterRelationships(rels, entities)
	require.Len(t, out, 2)
	assert.Equal(t, 0, out[0].Chunk)
	assert.Equal(t, "USES", out[0].Relation)
	assert.Equal(t, "MANAGES", out[1].Relation)
}

func TestEntityNamesInText(t *testing.T) {
	entities := []Entity{
		{Name: "Acme Corp", Type: "ORGANIZATION"},
		{Name: "Postgres", Type: "TECHNOLOGY"},
		{Name: "Billing System", Type: "SYSTEM"},
	}

	present := EntityNamesInText(entities, "ACME CORP migrated its billing system to postgres last year")
	assert.Equal(t, []string{"Acme Corp", "Postgres", "Billing System"}, present)

	present = EntityNamesInText(entities, "nothing relevant here")
	assert.Empty(t, present)
}

func TestValidTagSets(t *testing.T) {
	assert.True(t, ValidEntityType("PERSON"))
	assert.True(t, ValidEntityType("PRODUCT"))
	assert.False(t, ValidEntityType("LOCATION"))
	assert.False(t, ValidEntityType("person"))

	assert.True(t, ValidRelationType("DEPENDS_ON"))
	assert.False(t, ValidRelationType("KNOWS"))
	assert.False(t, ValidRelationType("uses"))
}

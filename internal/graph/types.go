/**
 * Knowledge-graph types
 *
 * Entities and relationships recovered from chunked document text. Fixed
 * tag sets; anything outside them is rejected at parse time.
 */

package graph

// Entity is a named, typed item extracted from one chunk.
type Entity struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Confidence int    `json:"confidence"`
	Chunk      int    `json:"chunk"`
}

// Relationship links two entities by name.
type Relationship struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
	Chunk    int    `json:"chunk"`
}

// Graph is the merged, deduplicated output of the multi-chunk pipeline.
type Graph struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

var entityTypes = map[string]bool{
	"PERSON":       true,
	"ORGANIZATION": true,
	"SYSTEM":       true,
	"TECHNOLOGY":   true,
	"FEATURE":      true,
	"CONCEPT":      true,
	"PRODUCT":      true,
}

var relationTypes = map[string]bool{
	"USES":       true,
	"MANAGES":    true,
	"CONTAINS":   true,
	"REQUIRES":   true,
	"CREATES":    true,
	"PART_OF":    true,
	"DEPENDS_ON": true,
}

// ValidEntityType reports whether t is in the fixed entity tag set.
func ValidEntityType(t string) bool {
	return entityTypes[t]
}

// ValidRelationType reports whether t is in the fixed relation tag set.
func ValidRelationType(t string) bool {
	return relationTypes[t]
}

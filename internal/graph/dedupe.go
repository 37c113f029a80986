/**
 * Deduplicator / Aggregator
 *
 * Merges entity and relationship lists recovered independently across
 * chunks into one canonical set. The policy is strictly first-seen-wins:
 * later duplicates are discarded, never merged or enriched, so the merge
 * is order-dependent and reproducible.
 */

package graph

import "strings"

// DedupeEntities keeps the first occurrence of each case-insensitive name,
// in input order. Applying it to an already-deduplicated list is a no-op.
func DedupeEntities(entities []Entity) []Entity {
	seen := make(map[string]bool, len(entities))
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		key := strings.ToLower(e.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// FilterRelationships drops relationships whose endpoints are not present
// in the deduplicated entity set or that point at themselves, then
// deduplicates the survivors by (lowercased source, lowercased target,
// relation), first occurrence winning.
func FilterRelationships(rels []Relationship, entities []Entity) []Relationship {
	known := make(map[string]bool, len(entities))
	for _, e := range entities {
		known[strings.ToLower(e.Name)] = true
	}

	seen := make(map[string]bool, len(rels))
	out := make([]Relationship, 0, len(rels))
	for _, r := range rels {
		src := strings.ToLower(r.Source)
		tgt := strings.ToLower(r.Target)

		if src == tgt {
			continue
		}
		if !known[src] || !known[tgt] {
			continue
		}

		key := src + "\x00" + tgt + "\x00" + r.Relation
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// EntityNamesInText returns the entity names textually present in text
// (case-insensitive substring match), preserving entity order. Used to
// decide whether a chunk warrants a relationship extraction attempt.
func EntityNamesInText(entities []Entity, text string) []string {
	lower := strings.ToLower(text)
	var present []string
	for _, e := range entities {
		if e.Name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(e.Name)) {
			present = append(present, e.Name)
		}
	}
	return present
}

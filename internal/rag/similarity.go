package rag

import (
	"math"
	"sort"
)

// cosineSimilarity returns the cosine of the angle between a and b.
// Returns 0 when either vector has zero magnitude or the lengths differ —
// callers validate dimensions before scoring, so the length guard is only a
// safety net.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// matchesFilter reports whether a record's metadata satisfies every filter
// condition exactly. A key missing from the metadata, or a value of a type
// that cannot be compared, fails the match silently — filters never raise.
func matchesFilter(metadata map[string]any, filter Filter) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if !scalarEqual(got, want) {
			return false
		}
	}
	return true
}

// scalarEqual compares two scalar metadata values. Strings and bools compare
// directly; numeric types are normalized to float64 first so an int filter
// value matches the float64 a JSON snapshot round-trip produces. Anything
// else is non-matching.
func scalarEqual(got, want any) bool {
	switch w := want.(type) {
	case string:
		g, ok := got.(string)
		return ok && g == w
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	}

	gf, gok := toFloat64(got)
	wf, wok := toFloat64(want)
	return gok && wok && gf == wf
}

// toFloat64 normalizes the numeric types that survive JSON and Qdrant payload
// round trips.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// rankRecords scores every record against the query vector and returns the
// limit best, descending by score. Ties keep their original storage order
// (stable sort). The caller has already applied any filter.
func rankRecords(records []Record, query []float32, limit int) []Result {
	scored := make([]Result, 0, len(records))
	for _, rec := range records {
		scored = append(scored, Result{
			ID:       rec.ID,
			Score:    cosineSimilarity(query, rec.Embedding),
			Text:     rec.Text,
			Metadata: rec.Metadata,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// filterRecords returns the subset of records matching the filter, applying
// the fallback policy: with FilterSoft an empty match set falls back to the
// full unfiltered input so a query never dead-ends on zero results.
func filterRecords(records []Record, filter Filter, policy FilterPolicy) []Record {
	if len(filter) == 0 {
		return records
	}

	matched := make([]Record, 0, len(records))
	for _, rec := range records {
		if matchesFilter(rec.Metadata, filter) {
			matched = append(matched, rec)
		}
	}

	if len(matched) == 0 && policy == FilterSoft {
		return records
	}
	return matched
}

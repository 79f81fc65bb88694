package rag

import (
	"math"
	"testing"
)

// TestCosineSimilarity_Identical verifies that a vector compared with itself
// scores 1 within float tolerance.
func TestCosineSimilarity_Identical(t *testing.T) {
	t.Parallel()

	v := []float32{0.3, -0.5, 0.8, 0.1}
	got := cosineSimilarity(v, v)
	if math.Abs(float64(got)-1) > 1e-6 {
		t.Errorf("expected similarity 1, got %v", got)
	}
}

// TestCosineSimilarity_Orthogonal verifies that perpendicular vectors score 0.
func TestCosineSimilarity_Orthogonal(t *testing.T) {
	t.Parallel()

	got := cosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if math.Abs(float64(got)) > 1e-6 {
		t.Errorf("expected similarity 0, got %v", got)
	}
}

// TestCosineSimilarity_Opposite verifies that opposite vectors score -1.
func TestCosineSimilarity_Opposite(t *testing.T) {
	t.Parallel()

	got := cosineSimilarity([]float32{1, 2, 3}, []float32{-1, -2, -3})
	if math.Abs(float64(got)+1) > 1e-6 {
		t.Errorf("expected similarity -1, got %v", got)
	}
}

// TestCosineSimilarity_ZeroVector verifies the zero-magnitude guard.
func TestCosineSimilarity_ZeroVector(t *testing.T) {
	t.Parallel()

	if got := cosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}); got != 0 {
		t.Errorf("expected 0 for zero-magnitude vector, got %v", got)
	}
	if got := cosineSimilarity([]float32{1, 2, 3}, []float32{0, 0, 0}); got != 0 {
		t.Errorf("expected 0 for zero-magnitude vector, got %v", got)
	}
}

// TestCosineSimilarity_LengthMismatch verifies the length safety net.
func TestCosineSimilarity_LengthMismatch(t *testing.T) {
	t.Parallel()

	if got := cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Errorf("expected 0 for mismatched lengths, got %v", got)
	}
}

// TestScalarEqual covers the cross-type numeric normalization: an int filter
// value must match the float64 a JSON round trip produces, and the int64 a
// Qdrant payload produces.
func TestScalarEqual(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		got  any
		want any
		eq   bool
	}{
		{"string match", "checkout", "checkout", true},
		{"string mismatch", "checkout", "payments", false},
		{"string vs int", "3", 3, false},
		{"bool match", true, true, true},
		{"bool mismatch", true, false, false},
		{"int vs float64", float64(3), 3, true},
		{"int vs int64", int64(3), 3, true},
		{"float mismatch", 3.5, 3, false},
		{"unsupported type", []string{"a"}, []string{"a"}, false},
	}

	for _, tc := range cases {
		if got := scalarEqual(tc.got, tc.want); got != tc.eq {
			t.Errorf("%s: scalarEqual(%v, %v) = %v, want %v", tc.name, tc.got, tc.want, got, tc.eq)
		}
	}
}

// TestMatchesFilter verifies AND semantics and the missing-key rule.
func TestMatchesFilter(t *testing.T) {
	t.Parallel()

	md := map[string]any{"service": "checkout", "severity": "critical"}

	if !matchesFilter(md, Filter{"service": "checkout"}) {
		t.Error("single condition should match")
	}
	if !matchesFilter(md, Filter{"service": "checkout", "severity": "critical"}) {
		t.Error("all conditions should match")
	}
	if matchesFilter(md, Filter{"service": "checkout", "severity": "warning"}) {
		t.Error("one failing condition should fail the match")
	}
	if matchesFilter(md, Filter{"region": "us-east-1"}) {
		t.Error("missing metadata key should fail the match")
	}
	if !matchesFilter(md, Filter{}) {
		t.Error("empty filter should match everything")
	}
}

// TestRankRecords_OrderAndLimit verifies descending score order and limit
// trimming.
func TestRankRecords_OrderAndLimit(t *testing.T) {
	t.Parallel()

	records := []Record{
		{ID: "far", Embedding: []float32{0, 1}},
		{ID: "near", Embedding: []float32{1, 0.01}},
		{ID: "mid", Embedding: []float32{1, 1}},
	}
	query := []float32{1, 0}

	results := rankRecords(records, query, 2)
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
	if results[0].ID != "near" || results[1].ID != "mid" {
		t.Errorf("want [near mid], got [%s %s]", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not in descending score order: %v < %v", results[0].Score, results[1].Score)
	}
}

// TestRankRecords_ZeroLimit verifies that limit 0 returns everything.
func TestRankRecords_ZeroLimit(t *testing.T) {
	t.Parallel()

	records := []Record{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b", Embedding: []float32{0, 1}},
	}

	results := rankRecords(records, []float32{1, 0}, 0)
	if len(results) != 2 {
		t.Errorf("want all records with limit 0, got %d", len(results))
	}
}

// TestFilterRecords_HardEmpty verifies that a hard over-restrictive filter
// yields an empty candidate set.
func TestFilterRecords_HardEmpty(t *testing.T) {
	t.Parallel()

	records := []Record{
		{ID: "a", Metadata: map[string]any{"service": "checkout"}},
	}

	matched := filterRecords(records, Filter{"service": "payments"}, FilterHard)
	if len(matched) != 0 {
		t.Errorf("want 0 matches under hard policy, got %d", len(matched))
	}
}

// TestFilterRecords_SoftFallback verifies that a soft over-restrictive filter
// falls back to the full record set.
func TestFilterRecords_SoftFallback(t *testing.T) {
	t.Parallel()

	records := []Record{
		{ID: "a", Metadata: map[string]any{"service": "checkout"}},
		{ID: "b", Metadata: map[string]any{"service": "auth"}},
	}

	matched := filterRecords(records, Filter{"service": "payments"}, FilterSoft)
	if len(matched) != 2 {
		t.Errorf("want full fallback set under soft policy, got %d", len(matched))
	}
}

// TestFilterRecords_SoftWithMatches verifies that the soft fallback only fires
// when the match set is empty.
func TestFilterRecords_SoftWithMatches(t *testing.T) {
	t.Parallel()

	records := []Record{
		{ID: "a", Metadata: map[string]any{"service": "checkout"}},
		{ID: "b", Metadata: map[string]any{"service": "auth"}},
	}

	matched := filterRecords(records, Filter{"service": "auth"}, FilterSoft)
	if len(matched) != 1 || matched[0].ID != "b" {
		t.Errorf("soft policy must not widen a non-empty match set: got %v", matched)
	}
}

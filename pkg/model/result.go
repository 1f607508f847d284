package model

import "time"

// AggregationResult is the tally of one completed run for a group.
// It is replaced wholesale by the next successful run, never merged.
type AggregationResult struct {
	PerCategoryCounts map[Category]int    `json:"perCategoryCounts"`
	DerivedCounts     map[DerivedKind]int `json:"derivedCounts"`
	TotalParents      int                 `json:"totalParents"`
	SampledParents    int                 `json:"sampledParents"`
	CompletedAt       time.Time           `json:"completedAt"`
}

// NewAggregationResult returns a result with every count present and zero.
func NewAggregationResult(totalParents int) *AggregationResult {
	r := &AggregationResult{
		PerCategoryCounts: make(map[Category]int, len(AllCategories)),
		DerivedCounts:     make(map[DerivedKind]int, len(AllDerivedKinds)),
		TotalParents:      totalParents,
	}
	for _, c := range AllCategories {
		r.PerCategoryCounts[c] = 0
	}
	for _, k := range AllDerivedKinds {
		r.DerivedCounts[k] = 0
	}
	return r
}

// Count returns the device count of category c.
func (r *AggregationResult) Count(c Category) int {
	return r.PerCategoryCounts[c]
}

// Derived returns the derived count of kind k.
func (r *AggregationResult) Derived(k DerivedKind) int {
	return r.DerivedCounts[k]
}

// SameTally reports whether r and o hold identical counts, ignoring
// CompletedAt.
func (r *AggregationResult) SameTally(o *AggregationResult) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.TotalParents != o.TotalParents || r.SampledParents != o.SampledParents {
		return false
	}
	if len(r.PerCategoryCounts) != len(o.PerCategoryCounts) || len(r.DerivedCounts) != len(o.DerivedCounts) {
		return false
	}
	for c, n := range r.PerCategoryCounts {
		if o.PerCategoryCounts[c] != n {
			return false
		}
	}
	for k, n := range r.DerivedCounts {
		if o.DerivedCounts[k] != n {
			return false
		}
	}
	return true
}

// Package entity holds the types shared by every entity parser: the
// occurrence model, the Parser contract and the request cache.
package entity

import "sort"

// Range is a half-open [Start, End) span of character offsets.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of characters covered by the range.
func (r Range) Len() int { return r.End - r.Start }

// Overlaps reports whether two ranges share at least one character.
func (r Range) Overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

// Occurrence is one entity found in a text.
type Occurrence struct {
	Value            string `json:"value"`
	ResolvedValue    string `json:"resolved_value"`
	Range            Range  `json:"range"`
	EntityIdentifier string `json:"entity_identifier"`
}

// Parser is implemented by the custom and builtin entity parsers.
type Parser interface {
	// Fitted reports whether the parser can serve Parse calls.
	Fitted() bool
	// Parse returns the occurrences found in text, ordered by start offset.
	// A nil scope means every entity known to the parser is eligible.
	Parse(text string, scope []string, useCache bool) ([]Occurrence, error)
}

// FilterScope keeps the occurrences whose entity is part of scope.
// A nil scope keeps everything.
func FilterScope(occs []Occurrence, scope []string) []Occurrence {
	if scope == nil {
		return occs
	}
	allowed := make(map[string]struct{}, len(scope))
	for _, s := range scope {
		allowed[s] = struct{}{}
	}
	filtered := make([]Occurrence, 0, len(occs))
	for _, o := range occs {
		if _, ok := allowed[o.EntityIdentifier]; ok {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

// SortByStart orders occurrences by ascending start offset, then by end and
// entity identifier so equal starts stay deterministic.
func SortByStart(occs []Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		a, b := occs[i], occs[j]
		if a.Range.Start != b.Range.Start {
			return a.Range.Start < b.Range.Start
		}
		if a.Range.End != b.Range.End {
			return a.Range.End < b.Range.End
		}
		return a.EntityIdentifier < b.EntityIdentifier
	})
}

func clone(occs []Occurrence) []Occurrence {
	if occs == nil {
		return nil
	}
	out := make([]Occurrence, len(occs))
	copy(out, occs)
	return out
}

package gazetteer

import (
	"math"
	"sort"
	"strings"

	"github.com/cognicore/gazette/pkg/gazette/entity"
)

// ratioEpsilon absorbs float rounding when comparing a ratio to a threshold.
const ratioEpsilon = 1e-9

type candidate struct {
	entry       int
	first, last int // token indexes, inclusive
	rng         entity.Range
	ratio       float64
}

// Match returns the occurrences of indexed vocabulary entries in text,
// ordered by ascending start offset. Overlapping candidates are resolved by
// (higher ratio, longer span, earlier start, smaller entity identifier,
// smaller raw value) and the losers are dropped.
func (idx *Index) Match(text string) []entity.Occurrence {
	occs := make([]entity.Occurrence, 0)
	if len(idx.vocab) == 0 {
		return occs
	}
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return occs
	}

	cands := idx.exactCandidates(tokens, nil)
	for i, tok := range tokens {
		for _, v := range idx.postings[tok.Text] {
			cands = idx.scan(tokens, i, v, cands)
		}
	}
	if len(cands) == 0 {
		return occs
	}

	runes := []rune(text)
	for _, c := range idx.resolve(cands, len(tokens)) {
		e := idx.vocab[c.entry]
		occs = append(occs, entity.Occurrence{
			Value:            string(runes[c.rng.Start:c.rng.End]),
			ResolvedValue:    e.resolved,
			Range:            c.rng,
			EntityIdentifier: idx.entities[e.entity],
		})
	}
	return occs
}

// scan grows windows starting at token i against vocabulary entry v and
// records every window whose ratio reaches the entity threshold. The LCS
// table is extended one window token at a time, so each step costs
// O(len(entry)).
func (idx *Index) scan(tokens []Token, i, v int, cands []candidate) []candidate {
	e := &idx.vocab[v]
	threshold := idx.thresholds[e.entity]
	m := len(e.tokens)
	limit := windowLimit(m, threshold)

	prev := make([]int, m+1)
	cur := make([]int, m+1)
	for j := i; j < len(tokens) && j-i < limit; j++ {
		word := tokens[j].Text
		for k := 1; k <= m; k++ {
			if word == e.tokens[k-1] {
				cur[k] = prev[k-1] + 1
			} else if prev[k] >= cur[k-1] {
				cur[k] = prev[k]
			} else {
				cur[k] = cur[k-1]
			}
		}
		prev, cur = cur, prev

		// Windows never end on a token foreign to the entry.
		if _, ok := e.tokenSet[word]; !ok {
			continue
		}
		ratio := Ratio(prev[m], j-i+1, m)
		if ratio+ratioEpsilon < threshold {
			continue
		}
		cands = append(cands, candidate{
			entry: v,
			first: i,
			last:  j,
			rng:   entity.Range{Start: tokens[i].Start, End: tokens[j].End},
			ratio: ratio,
		})
	}
	return cands
}

// exactCandidates finds the entries of exact entities whose tokens occur
// verbatim in tokens. Every overlapping occurrence is reported so that
// conflicts are resolved by the same order as fuzzy candidates.
func (idx *Index) exactCandidates(tokens []Token, cands []candidate) []candidate {
	if idx.exact == nil {
		return cands
	}

	var hay strings.Builder
	starts := make(map[int]int, len(tokens)) // offset of the space before token i
	ends := make(map[int]int, len(tokens))   // offset past the space after token i
	hay.WriteByte(' ')
	for i, tok := range tokens {
		starts[hay.Len()-1] = i
		hay.WriteString(tok.Text)
		hay.WriteByte(' ')
		ends[hay.Len()] = i
	}

	for _, m := range idx.exact.FindAllOverlapping([]byte(hay.String())) {
		first, ok := starts[m.Start]
		if !ok {
			continue
		}
		last, ok := ends[m.End]
		if !ok {
			continue
		}
		for _, v := range idx.exactEntries[m.PatternID] {
			cands = append(cands, candidate{
				entry: v,
				first: first,
				last:  last,
				rng:   entity.Range{Start: tokens[first].Start, End: tokens[last].End},
				ratio: 1,
			})
		}
	}
	return cands
}

// resolve keeps the best non-overlapping candidates and returns them ordered
// by start offset.
func (idx *Index) resolve(cands []candidate, nTokens int) []candidate {
	sort.Slice(cands, func(a, b int) bool {
		return idx.better(cands[a], cands[b])
	})

	covered := make([]bool, nTokens)
	var kept []candidate
	for _, c := range cands {
		free := true
		for t := c.first; t <= c.last; t++ {
			if covered[t] {
				free = false
				break
			}
		}
		if !free {
			continue
		}
		for t := c.first; t <= c.last; t++ {
			covered[t] = true
		}
		kept = append(kept, c)
	}

	sort.Slice(kept, func(a, b int) bool {
		return kept[a].rng.Start < kept[b].rng.Start
	})
	return kept
}

// better is a total order over candidates.
func (idx *Index) better(a, b candidate) bool {
	if a.ratio != b.ratio {
		return a.ratio > b.ratio
	}
	if a.rng.Len() != b.rng.Len() {
		return a.rng.Len() > b.rng.Len()
	}
	if a.rng.Start != b.rng.Start {
		return a.rng.Start < b.rng.Start
	}
	ea, eb := idx.vocab[a.entry], idx.vocab[b.entry]
	if ea.entity != eb.entity {
		// entities are sorted, so the index order is the identifier order
		return ea.entity < eb.entity
	}
	if ea.raw != eb.raw {
		return ea.raw < eb.raw
	}
	return a.entry < b.entry
}

// Ratio is the token-sequence Dice coefficient: twice the longest common
// subsequence over the total number of tokens. It is 1 only when both
// sequences are identical.
func Ratio(lcs, windowLen, entryLen int) float64 {
	if windowLen+entryLen == 0 {
		return 0
	}
	return 2 * float64(lcs) / float64(windowLen+entryLen)
}

// windowLimit bounds the window length for an entry of m tokens: a window
// longer than m*(2/t-1) cannot reach ratio t. Tiny thresholds leave the
// window unbounded; the scan stops at the end of the text anyway.
func windowLimit(m int, threshold float64) int {
	if threshold <= 0 {
		return math.MaxInt32
	}
	f := float64(m)*(2/threshold-1) + ratioEpsilon
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	if f < 1 {
		return 1
	}
	return int(f)
}

// Similarity returns the ratio between two strings after tokenization.
func Similarity(a, b string) float64 {
	ta, tb := tokenTexts(a), tokenTexts(b)
	return Ratio(lcs(ta, tb), len(ta), len(tb))
}

func lcs(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

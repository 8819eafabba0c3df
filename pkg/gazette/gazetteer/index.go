// Package gazetteer compiles entity vocabularies into an immutable index and
// finds fuzzy occurrences of vocabulary entries in free text.
package gazetteer

import (
	"crypto/rand"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/coregx/ahocorasick"
	"github.com/oklog/ulid/v2"

	"github.com/cognicore/gazette/pkg/gazette/internalerr"
)

// EntityConfig is the vocabulary of a single entity.
type EntityConfig struct {
	// Threshold is the minimum match ratio in [0, 1]. 1 requires an exact
	// match of the normalized tokens.
	Threshold float64
	// Utterances maps raw surface values to their resolved value.
	Utterances map[string]string
}

// vocabEntry is one normalized raw value of one entity.
type vocabEntry struct {
	entity   int
	raw      string
	resolved string
	tokens   []string
	tokenSet map[string]struct{}
}

// Index is a compiled gazetteer covering one or more entities. It is never
// modified after Build.
type Index struct {
	id         string
	entities   []string // sorted
	thresholds []float64
	configs    map[string]EntityConfig
	vocab      []vocabEntry
	postings   map[string][]int // token -> fuzzy vocab entries containing it

	// Entries of entities with threshold 1 are found by an automaton over
	// space-delimited token patterns.
	exact        *ahocorasick.Automaton
	exactEntries [][]int // pattern id -> vocab entries
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// Build compiles the given entity configurations. It performs no I/O.
func Build(configs map[string]EntityConfig) (*Index, error) {
	return build(newID(), configs)
}

func build(id string, configs map[string]EntityConfig) (*Index, error) {
	idx := &Index{
		id:       id,
		configs:  make(map[string]EntityConfig, len(configs)),
		postings: make(map[string][]int),
	}

	for name := range configs {
		idx.entities = append(idx.entities, name)
	}
	sort.Strings(idx.entities)

	for ei, name := range idx.entities {
		cfg := configs[name]
		if math.IsNaN(cfg.Threshold) || cfg.Threshold < 0 || cfg.Threshold > 1 {
			return nil, fmt.Errorf("%w: entity %q has threshold %v outside [0, 1]",
				internalerr.ErrInvalidConfig, name, cfg.Threshold)
		}
		idx.thresholds = append(idx.thresholds, cfg.Threshold)
		idx.configs[name] = copyConfig(cfg)
		idx.addEntity(ei, cfg.Utterances)
	}

	if err := idx.buildExact(); err != nil {
		return nil, fmt.Errorf("%w: build exact matcher: %v", internalerr.ErrInvalidConfig, err)
	}
	return idx, nil
}

// addEntity indexes the utterances of one entity. Raw values are visited in
// sorted order so that, when two raw values normalize to the same tokens, the
// smaller one wins regardless of map iteration order.
func (idx *Index) addEntity(ei int, utterances map[string]string) {
	raws := make([]string, 0, len(utterances))
	for raw := range utterances {
		raws = append(raws, raw)
	}
	sort.Strings(raws)

	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		tokens := tokenTexts(raw)
		if len(tokens) == 0 {
			continue
		}
		key := strings.Join(tokens, "\x00")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		entry := vocabEntry{
			entity:   ei,
			raw:      raw,
			resolved: utterances[raw],
			tokens:   tokens,
			tokenSet: make(map[string]struct{}, len(tokens)),
		}
		for _, tok := range tokens {
			entry.tokenSet[tok] = struct{}{}
		}

		id := len(idx.vocab)
		idx.vocab = append(idx.vocab, entry)
		if idx.isExact(ei) {
			continue
		}
		for tok := range entry.tokenSet {
			idx.postings[tok] = append(idx.postings[tok], id)
		}
	}
}

func (idx *Index) isExact(entity int) bool {
	return idx.thresholds[entity] >= 1
}

// buildExact compiles the entries of exact entities into the automaton.
// Entries of different entities sharing tokens share one pattern.
func (idx *Index) buildExact() error {
	var patterns []string
	ids := make(map[string]int)
	for v, e := range idx.vocab {
		if !idx.isExact(e.entity) {
			continue
		}
		p := exactPattern(e.tokens)
		id, ok := ids[p]
		if !ok {
			id = len(patterns)
			ids[p] = id
			patterns = append(patterns, p)
			idx.exactEntries = append(idx.exactEntries, nil)
		}
		idx.exactEntries[id] = append(idx.exactEntries[id], v)
	}
	if len(patterns) == 0 {
		return nil
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		Build()
	if err != nil {
		return err
	}
	idx.exact = automaton
	return nil
}

// exactPattern delimits tokens with spaces on both sides, so a pattern only
// matches on token boundaries of a haystack built the same way.
func exactPattern(tokens []string) string {
	return " " + strings.Join(tokens, " ") + " "
}

// ID returns the build identifier of the index.
func (idx *Index) ID() string { return idx.id }

// Entities returns the sorted entity identifiers covered by the index.
func (idx *Index) Entities() []string {
	return append([]string{}, idx.entities...)
}

// Configs returns a copy of the configurations the index was built from.
func (idx *Index) Configs() map[string]EntityConfig {
	out := make(map[string]EntityConfig, len(idx.configs))
	for name, cfg := range idx.configs {
		out[name] = copyConfig(cfg)
	}
	return out
}

// Size returns the number of indexed vocabulary entries.
func (idx *Index) Size() int { return len(idx.vocab) }

// Merge builds a new index covering the entities of every given index.
// Entity identifiers must not collide.
func Merge(indexes ...*Index) (*Index, error) {
	configs := make(map[string]EntityConfig)
	for _, idx := range indexes {
		for name, cfg := range idx.configs {
			if _, dup := configs[name]; dup {
				return nil, fmt.Errorf("%w: entity %q present in several indexes",
					internalerr.ErrInvalidConfig, name)
			}
			configs[name] = cfg
		}
	}
	return Build(configs)
}

func copyConfig(cfg EntityConfig) EntityConfig {
	utterances := make(map[string]string, len(cfg.Utterances))
	for k, v := range cfg.Utterances {
		utterances[k] = v
	}
	return EntityConfig{Threshold: cfg.Threshold, Utterances: utterances}
}

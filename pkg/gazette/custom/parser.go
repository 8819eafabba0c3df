// Package custom implements the parser for dataset-defined entities.
package custom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync/atomic"

	"github.com/cognicore/gazette/pkg/gazette/dataset"
	"github.com/cognicore/gazette/pkg/gazette/entity"
	"github.com/cognicore/gazette/pkg/gazette/gazetteer"
	"github.com/cognicore/gazette/pkg/gazette/internalerr"
	"github.com/cognicore/gazette/pkg/gazette/ontology"
	"github.com/cognicore/gazette/pkg/gazette/stem"
)

// UnitName identifies a persisted custom entity parser.
const UnitName = "custom_entity_parser"

const (
	modelFileName    = "custom_entity_parser.json"
	metadataFileName = "metadata.json"
	indexDirName     = "parser"
)

var _ entity.Parser = (*Parser)(nil)

// Parser finds occurrences of custom entities. It is unfit until Fit
// succeeds; a later Fit replaces the whole fitted state at once.
type Parser struct {
	usage    Usage
	stemmer  stem.Stemmer
	ontology *ontology.Ontology
	logger   *slog.Logger

	state atomic.Pointer[fitState]
	cache entity.Cache
	match func(idx *gazetteer.Index, text string) []entity.Occurrence
}

type fitState struct {
	index    *gazetteer.Index
	entities []string // sorted
}

// Option configures a Parser.
type Option func(*Parser)

// WithStemmer sets the stemmer used by the stemming usages.
func WithStemmer(s stem.Stemmer) Option {
	return func(p *Parser) { p.stemmer = s }
}

// WithOntology sets the catalogue used to recognize builtin entities.
func WithOntology(o *ontology.Ontology) Option {
	return func(p *Parser) { p.ontology = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) { p.logger = l }
}

// New creates an unfit parser.
func New(usage Usage, opts ...Option) *Parser {
	p := &Parser{usage: usage, match: (*gazetteer.Index).Match}
	for _, opt := range opts {
		opt(p)
	}
	if p.stemmer == nil {
		p.stemmer = stem.NewSnowball(0)
	}
	if p.ontology == nil {
		p.ontology = ontology.Default()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Usage returns the parser usage.
func (p *Parser) Usage() Usage { return p.usage }

// Fitted implements entity.Parser.
func (p *Parser) Fitted() bool { return p.state.Load() != nil }

// Entities returns the sorted entities the parser was fit on, or nil when
// it is unfit.
func (p *Parser) Entities() []string {
	st := p.state.Load()
	if st == nil {
		return nil
	}
	return append([]string{}, st.entities...)
}

// Index returns the compiled index, or nil when the parser is unfit.
func (p *Parser) Index() *gazetteer.Index {
	st := p.state.Load()
	if st == nil {
		return nil
	}
	return st.index
}

// Fit compiles the custom entities of ds. Builtin entities are skipped. The
// dataset is not modified.
func (p *Parser) Fit(ds *dataset.Dataset) (*Parser, error) {
	if _, err := p.usage.Tag(); err != nil {
		return nil, fmt.Errorf("a parser usage must be defined in order to fit a custom entity parser: %w", err)
	}

	configs := make(map[string]gazetteer.EntityConfig)
	for name, ent := range ds.Entities {
		if p.ontology.IsBuiltin(name) {
			continue
		}
		configs[name] = gazetteer.EntityConfig{
			Threshold:  ent.Threshold(),
			Utterances: p.vocabulary(ent.Utterances, ds.Language),
		}
	}

	idx, err := gazetteer.Build(configs)
	if err != nil {
		return nil, fmt.Errorf("build custom gazetteer: %w", err)
	}

	p.state.Store(&fitState{index: idx, entities: idx.Entities()})
	p.cache.Reset()

	p.logger.Debug("custom entity parser fitted",
		"language", ds.Language,
		"usage", p.usage.String(),
		"entities", len(configs),
		"vocabulary", idx.Size(),
		"index_id", idx.ID())
	return p, nil
}

// vocabulary derives the raw → resolved map of one entity for the parser
// usage. Raw values are visited in sorted order and the first writer of a
// key wins, so colliding stems resolve deterministically.
func (p *Parser) vocabulary(utterances map[string]string, language string) map[string]string {
	raws := make([]string, 0, len(utterances))
	for raw := range utterances {
		raws = append(raws, raw)
	}
	sort.Strings(raws)

	out := make(map[string]string, len(utterances))
	add := func(raw, resolved string) {
		if raw == "" {
			return
		}
		if _, taken := out[raw]; !taken {
			out[raw] = resolved
		}
	}

	switch p.usage {
	case WithoutStems:
		for _, raw := range raws {
			add(raw, utterances[raw])
		}
	case WithStems:
		for _, raw := range raws {
			add(p.stemmer.Stem(raw, language), utterances[raw])
		}
	case WithAndWithoutStems:
		for _, raw := range raws {
			add(raw, utterances[raw])
		}
		for _, raw := range raws {
			add(p.stemmer.Stem(raw, language), utterances[raw])
		}
	default:
		panic(fmt.Sprintf("custom: unhandled parser usage %d", p.usage))
	}
	return out
}

// Parse implements entity.Parser. Matching always runs over every fitted
// entity; scope only filters the result.
func (p *Parser) Parse(text string, scope []string, useCache bool) ([]entity.Occurrence, error) {
	if !p.Fitted() {
		return nil, fmt.Errorf("custom entity parser must be fitted: %w", internalerr.ErrNotTrained)
	}
	return p.cache.Parse(text, scope, useCache, func() ([]entity.Occurrence, error) {
		// Loaded here, after the cache captured its generation.
		st := p.state.Load()
		return entity.FilterScope(p.match(st.index, text), scope), nil
	})
}

// CacheLen returns the number of memoized parse results.
func (p *Parser) CacheLen() int { return p.cache.Len() }

type model struct {
	Entities    *[]string `json:"entities"`
	Parser      *string   `json:"parser"`
	ParserUsage int       `json:"parser_usage"`
}

type metadata struct {
	UnitName string `json:"unit_name"`
}

// Persist writes the parser, fitted or not, into path. The parser is
// written to a sibling directory first and replaces path only once
// complete, so no earlier content of path survives.
func (p *Parser) Persist(ctx context.Context, path string) error {
	tag, err := p.usage.Tag()
	if err != nil {
		return err
	}

	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create parser dir: %w", err)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("create parser dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := p.write(ctx, tmp, tag); err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("replace parser dir: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace parser dir: %w", err)
	}
	return nil
}

func (p *Parser) write(ctx context.Context, dir string, tag int) error {
	if err := os.Chmod(dir, 0o755); err != nil {
		return err
	}

	m := model{ParserUsage: tag}
	if st := p.state.Load(); st != nil {
		name := indexDirName
		if err := gazetteer.Save(ctx, filepath.Join(dir, name), st.index); err != nil {
			return fmt.Errorf("persist gazetteer: %w", err)
		}
		entities := append([]string{}, st.entities...)
		m.Parser = &name
		m.Entities = &entities
	}

	if err := writeJSON(filepath.Join(dir, modelFileName), m); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, metadataFileName), metadata{UnitName: UnitName})
}

// FromPath loads a parser written by Persist.
func FromPath(ctx context.Context, path string, opts ...Option) (*Parser, error) {
	var meta metadata
	switch err := readJSON(filepath.Join(path, metadataFileName), &meta); {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	case meta.UnitName != UnitName:
		return nil, fmt.Errorf("%w: expected unit %q, found %q", internalerr.ErrSerialization, UnitName, meta.UnitName)
	}

	var m model
	if err := readJSON(filepath.Join(path, modelFileName), &m); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", internalerr.ErrSerialization, err)
		}
		return nil, err
	}
	usage, err := UsageFromTag(m.ParserUsage)
	if err != nil {
		return nil, err
	}

	p := New(usage, opts...)
	if (m.Parser == nil) != (m.Entities == nil) {
		return nil, fmt.Errorf("%w: entities and parser must both be set or both be null", internalerr.ErrSerialization)
	}
	if m.Parser == nil {
		return p, nil
	}

	name := *m.Parser
	if name == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("%w: invalid parser directory %q", internalerr.ErrSerialization, name)
	}
	idx, err := gazetteer.Load(ctx, filepath.Join(path, name))
	if err != nil {
		return nil, err
	}

	entities := append([]string{}, *m.Entities...)
	sort.Strings(entities)
	if !reflect.DeepEqual(entities, idx.Entities()) {
		return nil, fmt.Errorf("%w: entities %v do not match the persisted gazetteer %v",
			internalerr.ErrSerialization, entities, idx.Entities())
	}

	p.state.Store(&fitState{index: idx, entities: entities})
	return p, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// readJSON passes os.ErrNotExist through untouched and reports any other
// failure as a serialization error.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", internalerr.ErrSerialization, path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", internalerr.ErrSerialization, path, err)
	}
	return nil
}

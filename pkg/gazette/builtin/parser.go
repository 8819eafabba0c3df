// Package builtin serves builtin entities (numbers, dates, gazetteer-backed
// music and place names) from language resources, and keeps a registry of
// ready parsers per language and entity scope.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cognicore/gazette/pkg/gazette/entity"
	"github.com/cognicore/gazette/pkg/gazette/gazetteer"
	"github.com/cognicore/gazette/pkg/gazette/internalerr"
	"github.com/cognicore/gazette/pkg/gazette/ontology"
)

// UnitName identifies a persisted builtin entity parser.
const UnitName = "builtin_entity_parser"

const (
	metadataFileName   = "metadata.json"
	gazetteerParserDir = "gazetteer_entity_parser"

	// ResourcesEnv names the variable holding the default resource root.
	ResourcesEnv = "GAZETTE_RESOURCES"
)

// Grammar recognizes grammar entities (numbers, dates, durations...). It is
// provided by the host; the package ships no grammar.
type Grammar interface {
	Recognize(text, language string) ([]entity.Occurrence, error)
}

// Options carries the collaborators of a builtin parser.
type Options struct {
	Ontology *ontology.Ontology
	Finder   ResourceFinder
	Grammar  Grammar
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Ontology == nil {
		o.Ontology = ontology.Default()
	}
	if o.Finder == nil {
		o.Finder = Finder{Root: os.Getenv(ResourcesEnv)}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

var _ entity.Parser = (*Parser)(nil)

// Parser recognizes the builtin entities of one language: every grammar
// entity the grammar serves plus a fixed set of gazetteer entities.
type Parser struct {
	language          string
	gazetteerEntities []string          // sorted
	sources           map[string]string // entity -> bundle directory on disk
	index             *gazetteer.Index  // merged bundles, nil without gazetteer entities
	grammar           Grammar
	ontology          *ontology.Ontology

	cache entity.Cache
}

type parserMetadata struct {
	Language        string  `json:"language"`
	GazetteerParser *string `json:"gazetteer_parser"`
}

type gazetteerMetadata struct {
	ParsersMetadata []entityParserMetadata `json:"parsers_metadata"`
}

type entityParserMetadata struct {
	EntityIdentifier string `json:"entity_identifier"`
	EntityParser     string `json:"entity_parser"`
}

// NewParser builds a parser for language and the given gazetteer entities.
// Each entity must be a gazetteer entity supported in the language and its
// resource bundle must be locatable through opts.Finder.
func NewParser(ctx context.Context, language string, gazetteerEntities []string, opts Options) (*Parser, error) {
	opts = opts.withDefaults()
	if err := validateScope(opts.Ontology, language, gazetteerEntities); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "gazette-builtin-")
	if err != nil {
		return nil, fmt.Errorf("create build dir: %w", err)
	}
	defer os.RemoveAll(dir)

	sources, err := buildParserDir(dir, language, gazetteerEntities, opts)
	if err != nil {
		return nil, err
	}
	p, err := load(ctx, dir, opts)
	if err != nil {
		return nil, err
	}
	p.sources = sources
	return p, nil
}

// FromPath loads a parser written by Persist.
func FromPath(ctx context.Context, path string, opts Options) (*Parser, error) {
	return load(ctx, path, opts.withDefaults())
}

func validateScope(o *ontology.Ontology, language string, entities []string) error {
	for _, ent := range entities {
		if !o.IsGazetteer(ent) || !o.Supports(language, ent) {
			return &internalerr.UnsupportedEntityError{Language: language, Entity: ent}
		}
	}
	return nil
}

// buildParserDir lays out a parser directory in target, copying each
// entity's resource bundle verbatim under its lower-cased short name. It
// returns the resource directory of each entity.
func buildParserDir(target, language string, gazetteerEntities []string, opts Options) (map[string]string, error) {
	meta := parserMetadata{Language: strings.ToUpper(language)}
	sources := make(map[string]string, len(gazetteerEntities))

	if len(gazetteerEntities) > 0 {
		entities := sortedUnique(gazetteerEntities)
		gazDir := filepath.Join(target, gazetteerParserDir)
		var gazMeta gazetteerMetadata
		for _, ent := range entities {
			src, err := opts.Finder.FindGazetteerEntityDataPath(language, ent)
			if err != nil {
				return nil, err
			}
			shortName, err := opts.Ontology.ShortName(ent)
			if err != nil {
				return nil, err
			}
			shortName = strings.ToLower(shortName)
			if err := copyDir(src, filepath.Join(gazDir, shortName)); err != nil {
				return nil, fmt.Errorf("copy resource of %q: %w", ent, err)
			}
			sources[ent] = src
			gazMeta.ParsersMetadata = append(gazMeta.ParsersMetadata, entityParserMetadata{
				EntityIdentifier: ent,
				EntityParser:     shortName,
			})
		}
		if err := writeJSON(filepath.Join(gazDir, metadataFileName), gazMeta); err != nil {
			return nil, err
		}
		name := gazetteerParserDir
		meta.GazetteerParser = &name
	}

	return sources, writeJSON(filepath.Join(target, metadataFileName), meta)
}

func load(ctx context.Context, path string, opts Options) (*Parser, error) {
	var meta parserMetadata
	if err := readJSON(filepath.Join(path, metadataFileName), &meta); err != nil {
		return nil, err
	}
	if meta.Language == "" {
		return nil, fmt.Errorf("%w: builtin parser metadata has no language", internalerr.ErrSerialization)
	}

	p := &Parser{
		language: strings.ToLower(meta.Language),
		sources:  make(map[string]string),
		grammar:  opts.Grammar,
		ontology: opts.Ontology,
	}
	if meta.GazetteerParser == nil {
		return p, nil
	}

	gazDir, err := subdir(path, *meta.GazetteerParser)
	if err != nil {
		return nil, err
	}
	var gazMeta gazetteerMetadata
	if err := readJSON(filepath.Join(gazDir, metadataFileName), &gazMeta); err != nil {
		return nil, err
	}

	configs := make(map[string]gazetteer.EntityConfig, len(gazMeta.ParsersMetadata))
	for _, pm := range gazMeta.ParsersMetadata {
		bundleDir, err := subdir(gazDir, pm.EntityParser)
		if err != nil {
			return nil, err
		}
		bundle, err := gazetteer.Load(ctx, bundleDir)
		if err != nil {
			return nil, fmt.Errorf("load gazetteer of %q: %w", pm.EntityIdentifier, err)
		}
		cfg, ok := bundle.Configs()[pm.EntityIdentifier]
		if !ok {
			return nil, fmt.Errorf("%w: resource %q does not cover entity %q",
				internalerr.ErrSerialization, pm.EntityParser, pm.EntityIdentifier)
		}
		p.sources[pm.EntityIdentifier] = bundleDir
		p.gazetteerEntities = append(p.gazetteerEntities, pm.EntityIdentifier)
		configs[pm.EntityIdentifier] = cfg
	}
	sort.Strings(p.gazetteerEntities)

	if p.index, err = gazetteer.Build(configs); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrSerialization, err)
	}

	opts.Logger.Debug("builtin entity parser loaded",
		"language", p.language,
		"gazetteer_entities", p.gazetteerEntities)
	return p, nil
}

func subdir(parent, name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: invalid directory name %q", internalerr.ErrSerialization, name)
	}
	return filepath.Join(parent, name), nil
}

// Language returns the lower-case language code of the parser.
func (p *Parser) Language() string { return p.language }

// GazetteerEntities returns the sorted gazetteer entities of the parser.
func (p *Parser) GazetteerEntities() []string {
	return append([]string{}, p.gazetteerEntities...)
}

// Fitted implements entity.Parser. A builtin parser is ready once built.
func (p *Parser) Fitted() bool { return true }

// Parse implements entity.Parser.
func (p *Parser) Parse(text string, scope []string, useCache bool) ([]entity.Occurrence, error) {
	return p.cache.Parse(text, scope, useCache, func() ([]entity.Occurrence, error) {
		return p.recognize(text, scope)
	})
}

func (p *Parser) recognize(text string, scope []string) ([]entity.Occurrence, error) {
	occs := make([]entity.Occurrence, 0)
	if p.index != nil {
		occs = append(occs, p.index.Match(text)...)
	}
	if p.grammar != nil {
		found, err := p.grammar.Recognize(text, p.language)
		if err != nil {
			return nil, fmt.Errorf("grammar recognizer: %w", err)
		}
		for _, o := range found {
			if p.ontology.IsGrammar(o.EntityIdentifier) {
				occs = append(occs, o)
			}
		}
	}
	occs = entity.FilterScope(occs, scope)
	entity.SortByStart(occs)
	return occs, nil
}

// Persist writes the parser into path. Resource bundles are copied verbatim
// from the directories the parser was built or loaded from, so those must
// still exist.
func (p *Parser) Persist(ctx context.Context, path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create parser dir: %w", err)
	}
	meta := parserMetadata{Language: strings.ToUpper(p.language)}

	if len(p.gazetteerEntities) > 0 {
		gazDir := filepath.Join(path, gazetteerParserDir)
		var gazMeta gazetteerMetadata
		for _, ent := range p.gazetteerEntities {
			if err := ctx.Err(); err != nil {
				return err
			}
			shortName, err := p.ontology.ShortName(ent)
			if err != nil {
				return err
			}
			shortName = strings.ToLower(shortName)
			if err := persistBundle(p.sources[ent], filepath.Join(gazDir, shortName)); err != nil {
				return fmt.Errorf("persist gazetteer of %q: %w", ent, err)
			}
			gazMeta.ParsersMetadata = append(gazMeta.ParsersMetadata, entityParserMetadata{
				EntityIdentifier: ent,
				EntityParser:     shortName,
			})
		}
		if err := writeJSON(filepath.Join(gazDir, metadataFileName), gazMeta); err != nil {
			return err
		}
		name := gazetteerParserDir
		meta.GazetteerParser = &name
	}

	return writeJSON(filepath.Join(path, metadataFileName), meta)
}

// persistBundle copies the bundle in src to dst. Persisting a parser onto
// the directory it was loaded from leaves the bundle in place.
func persistBundle(src, dst string) error {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	if absSrc == absDst {
		return nil
	}
	if _, err := os.Stat(absSrc); err != nil {
		return fmt.Errorf("%w: resource bundle: %v", internalerr.ErrSerialization, err)
	}
	if err := os.RemoveAll(absDst); err != nil {
		return err
	}
	return copyDir(absSrc, absDst)
}

func sortedUnique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

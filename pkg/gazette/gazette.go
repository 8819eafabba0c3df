// Package gazette ties the builtin and custom entity parsers together into
// an Engine that is fitted on a dataset, parses text with both parsers and
// persists them side by side.
package gazette

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cognicore/gazette/pkg/gazette/builtin"
	"github.com/cognicore/gazette/pkg/gazette/custom"
	"github.com/cognicore/gazette/pkg/gazette/dataset"
	"github.com/cognicore/gazette/pkg/gazette/entity"
	"github.com/cognicore/gazette/pkg/gazette/internalerr"
	"github.com/cognicore/gazette/pkg/gazette/ontology"
	"github.com/cognicore/gazette/pkg/gazette/stem"
)

// UnitName identifies a persisted engine.
const UnitName = "entity_engine"

const (
	metadataFileName = "metadata.json"
	builtinDir       = builtin.UnitName
	customDir        = custom.UnitName
)

// Options configures an Engine.
type Options struct {
	// Registry provides builtin parsers. A private registry is created
	// from Builtin when nil.
	Registry *builtin.Registry
	Builtin  builtin.Options

	// Usage selects how custom entities are stemmed. UsageUnset disables
	// the custom parser.
	Usage   custom.Usage
	Stemmer stem.Stemmer

	// BuiltinParser and CustomParser are parsers already fitted by another
	// engine. They are used as-is by the first Fit and replaced on refit.
	BuiltinParser *builtin.Parser
	CustomParser  *custom.Parser

	Logger *slog.Logger
}

// Engine recognizes builtin and custom entities.
type Engine struct {
	registry *builtin.Registry
	usage    custom.Usage
	stemmer  stem.Stemmer
	ontology *ontology.Ontology
	logger   *slog.Logger

	mu       sync.RWMutex
	fitted   bool
	language string
	builtin  *builtin.Parser
	custom   *custom.Parser
}

type metadata struct {
	UnitName string `json:"unit_name"`
	Language string `json:"language"`
}

// New creates an unfitted engine.
func New(opts Options) *Engine {
	if opts.Builtin.Ontology == nil {
		opts.Builtin.Ontology = ontology.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Builtin.Logger == nil {
		opts.Builtin.Logger = opts.Logger
	}
	if opts.Registry == nil {
		opts.Registry = builtin.NewRegistry(opts.Builtin)
	}
	if opts.Stemmer == nil {
		opts.Stemmer = stem.NewSnowball(stem.DefaultCacheSize)
	}
	e := &Engine{
		registry: opts.Registry,
		usage:    opts.Usage,
		stemmer:  opts.Stemmer,
		ontology: opts.Builtin.Ontology,
		logger:   opts.Logger,
		builtin:  opts.BuiltinParser,
		custom:   opts.CustomParser,
	}
	if e.builtin != nil {
		e.language = e.builtin.Language()
	}
	return e
}

// Fit prepares both parsers for ds. A parser shared through Options is kept
// on the first fit; once the engine has been fitted every Fit rebuilds its
// parsers. The custom parser is only fitted when a usage is configured.
func (e *Engine) Fit(ctx context.Context, ds *dataset.Dataset) error {
	e.mu.RLock()
	fitted, bp, cp := e.fitted, e.builtin, e.custom
	e.mu.RUnlock()

	if bp == nil || fitted {
		var err error
		if bp, err = e.registry.ForDataset(ctx, ds); err != nil {
			return fmt.Errorf("fit builtin entity parser: %w", err)
		}
	}

	if e.usage != custom.UsageUnset && (cp == nil || fitted) {
		var err error
		cp, err = custom.New(e.usage,
			custom.WithStemmer(e.stemmer),
			custom.WithOntology(e.ontology),
			custom.WithLogger(e.logger),
		).Fit(ds)
		if err != nil {
			return fmt.Errorf("fit custom entity parser: %w", err)
		}
	}

	e.mu.Lock()
	e.fitted = true
	e.language = bp.Language()
	e.builtin = bp
	e.custom = cp
	e.mu.Unlock()

	e.logger.Info("entity engine fitted",
		"language", bp.Language(),
		"builtin_gazetteer_entities", len(bp.GazetteerEntities()),
		"custom", cp != nil)
	return nil
}

// Fitted reports whether Fit has completed.
func (e *Engine) Fitted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fitted
}

// Language returns the language of the builtin parser, or "" before fit.
func (e *Engine) Language() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.language
}

// Builtin returns the current builtin parser.
func (e *Engine) Builtin() *builtin.Parser {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.builtin
}

// Custom returns the current custom parser, nil when no usage is set.
func (e *Engine) Custom() *custom.Parser {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.custom
}

// ParseAll runs both parsers over text and returns their occurrences
// ordered by start offset.
func (e *Engine) ParseAll(text string, scope []string, useCache bool) ([]entity.Occurrence, error) {
	e.mu.RLock()
	bp, cp := e.builtin, e.custom
	e.mu.RUnlock()
	if bp == nil {
		return nil, fmt.Errorf("%w: entity engine must be fitted before parsing", internalerr.ErrNotTrained)
	}

	occs, err := bp.Parse(text, scope, useCache)
	if err != nil {
		return nil, fmt.Errorf("builtin entity parser: %w", err)
	}
	if cp != nil {
		found, err := cp.Parse(text, scope, useCache)
		if err != nil {
			return nil, fmt.Errorf("custom entity parser: %w", err)
		}
		occs = append(occs, found...)
	}
	entity.SortByStart(occs)
	return occs, nil
}

// Persist writes the engine into dir.
func (e *Engine) Persist(ctx context.Context, dir string) error {
	e.mu.RLock()
	bp, cp, language := e.builtin, e.custom, e.language
	e.mu.RUnlock()
	if bp == nil {
		return fmt.Errorf("%w: cannot persist an unfitted entity engine", internalerr.ErrNotTrained)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create engine dir: %w", err)
	}
	if err := bp.Persist(ctx, filepath.Join(dir, builtinDir)); err != nil {
		return err
	}
	if cp != nil {
		if err := cp.Persist(ctx, filepath.Join(dir, customDir)); err != nil {
			return err
		}
	}
	return writeJSON(filepath.Join(dir, metadataFileName), metadata{UnitName: UnitName, Language: language})
}

// FromPath loads an engine written by Persist. opts supplies the
// collaborators (ontology, grammar, stemmer, logger) of the loaded parsers.
func FromPath(ctx context.Context, dir string, opts Options) (*Engine, error) {
	var meta metadata
	if err := readJSON(filepath.Join(dir, metadataFileName), &meta); err != nil {
		return nil, err
	}
	if meta.UnitName != UnitName {
		return nil, fmt.Errorf("%w: expected unit %q, found %q", internalerr.ErrSerialization, UnitName, meta.UnitName)
	}

	e := New(opts)
	bopts := opts.Builtin
	bopts.Ontology = e.ontology
	bopts.Logger = e.logger
	bp, err := builtin.FromPath(ctx, filepath.Join(dir, builtinDir), bopts)
	if err != nil {
		return nil, fmt.Errorf("load builtin entity parser: %w", err)
	}

	var cp *custom.Parser
	customPath := filepath.Join(dir, customDir)
	if _, err := os.Stat(customPath); err == nil {
		cp, err = custom.FromPath(ctx, customPath,
			custom.WithStemmer(e.stemmer),
			custom.WithOntology(e.ontology),
			custom.WithLogger(e.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("load custom entity parser: %w", err)
		}
		e.usage = cp.Usage()
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	e.fitted = true
	e.language = bp.Language()
	e.builtin = bp
	e.custom = cp
	return e, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", internalerr.ErrSerialization, path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", internalerr.ErrSerialization, path, err)
	}
	return nil
}

// Package config loads the engine settings, dataset and ontology from disk
// and turns them into ready-to-use components.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cognicore/gazette/pkg/gazette"
	"github.com/cognicore/gazette/pkg/gazette/builtin"
	"github.com/cognicore/gazette/pkg/gazette/custom"
	"github.com/cognicore/gazette/pkg/gazette/dataset"
	"github.com/cognicore/gazette/pkg/gazette/internalerr"
	"github.com/cognicore/gazette/pkg/gazette/ontology"
	"github.com/cognicore/gazette/pkg/gazette/stem"
)

// Loader loads all configuration files and constructs components. Explicit
// fields override the values of the settings file.
type Loader struct {
	SettingsPath  string
	DatasetPath   string
	OntologyPath  string
	ResourcesPath string
	Usage         string
}

// Components holds all loaded configuration components
type Components struct {
	Dataset  *dataset.Dataset // nil without DatasetPath
	Ontology *ontology.Ontology
	Finder   builtin.Finder
	Stemmer  stem.Stemmer
	Usage    custom.Usage
	Logger   *slog.Logger
}

// Load reads all configuration files and returns initialized components
func (l *Loader) Load() (*Components, error) {
	settings := &Settings{}
	if l.SettingsPath != "" {
		s, err := LoadSettings(l.SettingsPath)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		settings = s
	}

	comp := &Components{}

	level, err := parseLevel(settings.LogLevel)
	if err != nil {
		return nil, err
	}
	comp.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	usage := first(l.Usage, settings.Usage)
	if usage != "" {
		if comp.Usage, err = custom.ParseUsage(usage); err != nil {
			return nil, fmt.Errorf("parse usage: %w", err)
		}
	}

	// Ontology
	if path := first(l.OntologyPath, settings.Ontology); path != "" {
		if comp.Ontology, err = ontology.Load(path); err != nil {
			return nil, fmt.Errorf("load ontology: %w", err)
		}
	} else {
		comp.Ontology = ontology.Default()
	}

	comp.Finder = builtin.Finder{Root: first(l.ResourcesPath, settings.Resources, os.Getenv(builtin.ResourcesEnv))}
	comp.Stemmer = stem.NewSnowball(settings.StemCacheSize)

	if l.DatasetPath != "" {
		if comp.Dataset, err = dataset.Load(l.DatasetPath); err != nil {
			return nil, fmt.Errorf("load dataset: %w", err)
		}
	}

	return comp, nil
}

// EngineOptions returns the engine options wired to the loaded components.
func (c *Components) EngineOptions(grammar builtin.Grammar) gazette.Options {
	return gazette.Options{
		Builtin: builtin.Options{
			Ontology: c.Ontology,
			Finder:   c.Finder,
			Grammar:  grammar,
			Logger:   c.Logger,
		},
		Usage:   c.Usage,
		Stemmer: c.Stemmer,
		Logger:  c.Logger,
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w: unknown log level %q", internalerr.ErrInvalidConfig, s)
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

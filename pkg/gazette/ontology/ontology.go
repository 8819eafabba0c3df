// Package ontology describes the builtin entities known to the parsers and
// the languages each of them supports.
package ontology

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/gazette/pkg/gazette/internalerr"
)

//go:embed data/builtin_entities.yaml
var defaultCatalogue []byte

// Kind tells which recognizer serves a builtin entity.
type Kind string

const (
	Grammar   Kind = "grammar"
	Gazetteer Kind = "gazetteer"
)

// Entity is one builtin entity of the catalogue.
type Entity struct {
	Name      string   `yaml:"name"`
	Kind      Kind     `yaml:"kind"`
	ShortName string   `yaml:"short_name"`
	Languages []string `yaml:"languages"`
}

// Ontology indexes the builtin entity catalogue.
type Ontology struct {
	entities map[string]Entity
	byLang   map[string]map[string]struct{}
}

// Default returns the ontology shipped with the package.
func Default() *Ontology {
	o, err := Parse(defaultCatalogue)
	if err != nil {
		panic(fmt.Sprintf("ontology: embedded catalogue: %v", err))
	}
	return o
}

// Load reads a catalogue from a YAML file.
func Load(path string) (*Ontology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse builds an ontology from a YAML catalogue.
func Parse(data []byte) (*Ontology, error) {
	var catalogue struct {
		Entities []Entity `yaml:"entities"`
	}
	if err := yaml.Unmarshal(data, &catalogue); err != nil {
		return nil, fmt.Errorf("%w: parse catalogue: %v", internalerr.ErrInvalidConfig, err)
	}

	o := &Ontology{
		entities: make(map[string]Entity, len(catalogue.Entities)),
		byLang:   make(map[string]map[string]struct{}),
	}
	for _, e := range catalogue.Entities {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: catalogue entry without name", internalerr.ErrInvalidConfig)
		}
		if e.Kind != Grammar && e.Kind != Gazetteer {
			return nil, fmt.Errorf("%w: entity %q has unknown kind %q", internalerr.ErrInvalidConfig, e.Name, e.Kind)
		}
		if _, dup := o.entities[e.Name]; dup {
			return nil, fmt.Errorf("%w: entity %q listed twice", internalerr.ErrInvalidConfig, e.Name)
		}
		if e.ShortName == "" {
			e.ShortName = deriveShortName(e.Name)
		}
		o.entities[e.Name] = e
		for _, lang := range e.Languages {
			lang = strings.ToLower(lang)
			if o.byLang[lang] == nil {
				o.byLang[lang] = make(map[string]struct{})
			}
			o.byLang[lang][e.Name] = struct{}{}
		}
	}
	return o, nil
}

// IsBuiltin reports whether name is a builtin entity in any language.
func (o *Ontology) IsBuiltin(name string) bool {
	_, ok := o.entities[name]
	return ok
}

// IsGazetteer reports whether name is a resource-backed builtin entity.
func (o *Ontology) IsGazetteer(name string) bool {
	e, ok := o.entities[name]
	return ok && e.Kind == Gazetteer
}

// IsGrammar reports whether name is a grammar builtin entity.
func (o *Ontology) IsGrammar(name string) bool {
	e, ok := o.entities[name]
	return ok && e.Kind == Grammar
}

// Supports reports whether the entity is available in the language.
func (o *Ontology) Supports(language, name string) bool {
	_, ok := o.byLang[strings.ToLower(language)][name]
	return ok
}

// SupportedEntities returns the sorted builtin entities of a language.
func (o *Ontology) SupportedEntities(language string) []string {
	return o.filter(language, func(Entity) bool { return true })
}

// SupportedGazetteerEntities returns the sorted gazetteer entities of a language.
func (o *Ontology) SupportedGazetteerEntities(language string) []string {
	return o.filter(language, func(e Entity) bool { return e.Kind == Gazetteer })
}

// SupportedGrammarEntities returns the sorted grammar entities of a language.
func (o *Ontology) SupportedGrammarEntities(language string) []string {
	return o.filter(language, func(e Entity) bool { return e.Kind == Grammar })
}

// ShortName returns the canonical short name of a builtin entity, e.g.
// "MusicAlbum" for "snips/musicAlbum".
func (o *Ontology) ShortName(name string) (string, error) {
	e, ok := o.entities[name]
	if !ok {
		return "", fmt.Errorf("%w: %q is not a builtin entity", internalerr.ErrNotFound, name)
	}
	return e.ShortName, nil
}

func (o *Ontology) filter(language string, keep func(Entity) bool) []string {
	var names []string
	for name := range o.byLang[strings.ToLower(language)] {
		if keep(o.entities[name]) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func deriveShortName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

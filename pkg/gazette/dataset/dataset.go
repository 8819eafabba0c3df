// Package dataset models the part of an NLU dataset the entity parsers
// consume: its language and its entity vocabularies.
package dataset

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/gazette/pkg/gazette/internalerr"
)

// DefaultParserThreshold is used when an entity does not set one.
const DefaultParserThreshold = 1.0

// Dataset holds the entities of an assistant for one language.
type Dataset struct {
	Language string            `yaml:"language" json:"language"`
	Entities map[string]Entity `yaml:"entities" json:"entities"`
}

// Value is a canonical entity value with its synonyms.
type Value struct {
	Value    string   `yaml:"value" json:"value"`
	Synonyms []string `yaml:"synonyms" json:"synonyms"`
}

// Entity is the vocabulary of one entity. Builtin entities are usually
// listed with an empty body.
type Entity struct {
	Data                    []Value           `yaml:"data,omitempty" json:"data,omitempty"`
	UseSynonyms             bool              `yaml:"use_synonyms,omitempty" json:"use_synonyms,omitempty"`
	AutomaticallyExtensible bool              `yaml:"automatically_extensible,omitempty" json:"automatically_extensible,omitempty"`
	ParserThreshold         *float64          `yaml:"parser_threshold,omitempty" json:"parser_threshold,omitempty"`
	Utterances              map[string]string `yaml:"utterances,omitempty" json:"utterances,omitempty"`
}

// Threshold returns the parser threshold, defaulting to DefaultParserThreshold.
func (e Entity) Threshold() float64 {
	if e.ParserThreshold == nil {
		return DefaultParserThreshold
	}
	return *e.ParserThreshold
}

// Load reads a dataset from a YAML or JSON file and formats it.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML or JSON dataset and formats it.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("%w: decode dataset: %v", internalerr.ErrInvalidInput, err)
	}
	if ds.Language == "" {
		return nil, fmt.Errorf("%w: dataset has no language", internalerr.ErrInvalidInput)
	}
	ds.Format()
	return &ds, nil
}

// Format fills the utterances of every entity that has data but no
// utterances yet: each value maps to itself and, when synonyms are used,
// each synonym maps to its value.
func (d *Dataset) Format() {
	for name, ent := range d.Entities {
		if len(ent.Utterances) > 0 || len(ent.Data) == 0 {
			continue
		}
		ent.Utterances = make(map[string]string)
		for _, v := range ent.Data {
			if v.Value == "" {
				continue
			}
			ent.Utterances[v.Value] = v.Value
			if !ent.UseSynonyms {
				continue
			}
			for _, syn := range v.Synonyms {
				if syn == "" {
					continue
				}
				if _, taken := ent.Utterances[syn]; !taken {
					ent.Utterances[syn] = v.Value
				}
			}
		}
		d.Entities[name] = ent
	}
}

// EntityNames returns the sorted entity identifiers of the dataset.
func (d *Dataset) EntityNames() []string {
	names := make([]string, 0, len(d.Entities))
	for name := range d.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Language: d.Language,
		Entities: make(map[string]Entity, len(d.Entities)),
	}
	for name, ent := range d.Entities {
		c := Entity{
			UseSynonyms:             ent.UseSynonyms,
			AutomaticallyExtensible: ent.AutomaticallyExtensible,
		}
		if ent.ParserThreshold != nil {
			th := *ent.ParserThreshold
			c.ParserThreshold = &th
		}
		for _, v := range ent.Data {
			c.Data = append(c.Data, Value{Value: v.Value, Synonyms: append([]string(nil), v.Synonyms...)})
		}
		if ent.Utterances != nil {
			c.Utterances = make(map[string]string, len(ent.Utterances))
			for k, v := range ent.Utterances {
				c.Utterances[k] = v
			}
		}
		out.Entities[name] = c
	}
	return out
}

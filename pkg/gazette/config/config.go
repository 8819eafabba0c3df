package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/gazette/pkg/gazette/internalerr"
)

// Settings represents the engine settings file
type Settings struct {
	// Usage is the custom parser usage: with_stems, without_stems,
	// with_and_without_stems, or empty to skip custom entities.
	Usage         string `yaml:"usage"`
	Resources     string `yaml:"resources"`
	Ontology      string `yaml:"ontology"`
	StemCacheSize int    `yaml:"stem_cache_size"`
	LogLevel      string `yaml:"log_level"`
}

// LoadSettings loads settings from a YAML file
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: decode settings: %v", internalerr.ErrInvalidConfig, err)
	}
	if s.StemCacheSize < 0 {
		return nil, fmt.Errorf("%w: stem_cache_size must not be negative", internalerr.ErrInvalidConfig)
	}

	return &s, nil
}

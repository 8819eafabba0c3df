package builtin

import (
	"context"
	"strings"
	"sync"

	"github.com/cognicore/gazette/pkg/gazette/dataset"
)

// Registry hands out one shared Parser per (language, gazetteer scope).
// Builtin parsers are expensive to build and read-only once built, so a
// registry is meant to be created at process or session start and shared;
// Clear drops every entry, e.g. between tests.
type Registry struct {
	opts Options

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	mu     sync.Mutex
	parser *Parser
}

// NewRegistry creates an empty registry building parsers with opts.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:    opts.withDefaults(),
		entries: make(map[string]*registryEntry),
	}
}

// Get returns the parser for language and scope, building it on first use.
// Every entity of scope must be a gazetteer entity supported in language.
// A failed build is not cached and leaves no entry behind.
func (r *Registry) Get(ctx context.Context, language string, scope []string) (*Parser, error) {
	if err := validateScope(r.opts.Ontology, language, scope); err != nil {
		return nil, err
	}

	key := cachingKey(language, scope)
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &registryEntry{}
		r.entries[key] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.parser != nil {
		return e.parser, nil
	}

	p, err := NewParser(ctx, language, scope, r.opts)
	if err != nil {
		r.mu.Lock()
		if r.entries[key] == e {
			delete(r.entries, key)
		}
		r.mu.Unlock()
		return nil, err
	}
	e.parser = p
	r.opts.Logger.Info("builtin entity parser built",
		"language", strings.ToLower(language),
		"gazetteer_entities", p.GazetteerEntities())
	return p, nil
}

// ForDataset returns the parser covering the gazetteer entities of ds.
func (r *Registry) ForDataset(ctx context.Context, ds *dataset.Dataset) (*Parser, error) {
	var scope []string
	for _, name := range ds.EntityNames() {
		if r.opts.Ontology.IsGazetteer(name) {
			scope = append(scope, name)
		}
	}
	return r.Get(ctx, ds.Language, scope)
}

// Clear drops every cached parser.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*registryEntry)
}

// Len returns the number of built parsers held by the registry.
func (r *Registry) Len() int {
	r.mu.Lock()
	entries := make([]*registryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	n := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.parser != nil {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// cachingKey is the language followed by the sorted, de-duplicated scope.
func cachingKey(language string, scope []string) string {
	parts := append([]string{strings.ToLower(language)}, sortedUnique(scope)...)
	return strings.Join(parts, "\x00")
}

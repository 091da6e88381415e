package model

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry maps model ids to descriptors. It is populated once before any
// transcription is dispatched; Reload swaps the whole mapping, entries are
// never mutated in place.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Descriptor
}

type catalogFile struct {
	Models []Descriptor `yaml:"models"`
}

// New builds a registry from the given descriptors, validating ids and types.
func New(descriptors []Descriptor) (*Registry, error) {
	models, err := index(descriptors)
	if err != nil {
		return nil, err
	}
	return &Registry{models: models}, nil
}

// Load builds a registry from the builtin set plus an optional YAML catalog.
// Catalog entries shadow builtin entries with the same id.
func Load(catalogPath string) (*Registry, error) {
	descriptors := Builtin()
	if catalogPath != "" {
		data, err := os.ReadFile(catalogPath)
		if err != nil {
			return nil, fmt.Errorf("read model catalog: %w", err)
		}
		var catalog catalogFile
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			return nil, fmt.Errorf("parse model catalog: %w", err)
		}
		descriptors = merge(descriptors, catalog.Models)
	}
	return New(descriptors)
}

func merge(base, overlay []Descriptor) []Descriptor {
	byID := make(map[string]int, len(base))
	for i, d := range base {
		byID[d.ID] = i
	}
	for _, d := range overlay {
		if i, ok := byID[d.ID]; ok {
			base[i] = d
			continue
		}
		byID[d.ID] = len(base)
		base = append(base, d)
	}
	return base
}

func index(descriptors []Descriptor) (map[string]Descriptor, error) {
	models := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("model descriptor with empty id")
		}
		if !d.Type.Valid() {
			return nil, fmt.Errorf("model %q has unknown type %q", d.ID, d.Type)
		}
		if _, exists := models[d.ID]; exists {
			return nil, fmt.Errorf("duplicate model id %q", d.ID)
		}
		models[d.ID] = d
	}
	return models, nil
}

// Lookup returns the descriptor for id or a NotFoundError.
func (r *Registry) Lookup(id string) (Descriptor, error) {
	r.mu.RLock()
	d, ok := r.models[id]
	r.mu.RUnlock()
	if !ok {
		return Descriptor{}, &NotFoundError{ID: id}
	}
	return d, nil
}

// Reload replaces the whole mapping. The swap is all-or-nothing: a validation
// failure leaves the previous mapping in place.
func (r *Registry) Reload(descriptors []Descriptor) error {
	models, err := index(descriptors)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.models = models
	r.mu.Unlock()
	return nil
}

// List returns all descriptors ordered by id.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.models))
	for _, d := range r.models {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports how many models are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

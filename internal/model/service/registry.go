package service

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyRegistry is returned when no services are configured.
var ErrEmptyRegistry = errors.New("service registry is empty")

// Store exposes service lookup for the router and HTTP handlers.
type Store interface {
	List() []Descriptor
	Lookup(tag string) (Descriptor, bool)
}

// Registry is the immutable, ordered service table. Iteration order is the
// order the services were registered in and decides keyword tie-breaks.
type Registry struct {
	items []Descriptor
	index map[string]int
}

// NewRegistry validates items and returns a registry holding private copies.
// Tags and keywords are trimmed and lower-cased.
func NewRegistry(items []Descriptor) (*Registry, error) {
	if len(items) == 0 {
		return nil, ErrEmptyRegistry
	}

	r := &Registry{
		items: make([]Descriptor, 0, len(items)),
		index: make(map[string]int, len(items)),
	}
	for i, item := range items {
		d := item.clone()
		d.Tag = strings.ToLower(strings.TrimSpace(d.Tag))
		if d.Tag == "" {
			return nil, fmt.Errorf("service #%d: tag is required", i)
		}
		if d.Tag == "general" {
			return nil, fmt.Errorf("service #%d: tag %q is reserved", i, d.Tag)
		}
		if _, dup := r.index[d.Tag]; dup {
			return nil, fmt.Errorf("service %q registered twice", d.Tag)
		}

		keywords := make([]string, 0, len(d.Keywords))
		for _, kw := range d.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("service %q: at least one keyword is required", d.Tag)
		}
		d.Keywords = keywords

		r.index[d.Tag] = len(r.items)
		r.items = append(r.items, d)
	}
	return r, nil
}

// MustRegistry is NewRegistry for static tables known to be valid.
func MustRegistry(items []Descriptor) *Registry {
	r, err := NewRegistry(items)
	if err != nil {
		panic(err)
	}
	return r
}

// List returns the services in registry order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.items))
	for i, d := range r.items {
		out[i] = d.clone()
	}
	return out
}

// Lookup finds a service by tag (case-insensitive).
func (r *Registry) Lookup(tag string) (Descriptor, bool) {
	idx, ok := r.index[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return Descriptor{}, false
	}
	return r.items[idx].clone(), true
}

// Tags returns the registered tags in registry order.
func (r *Registry) Tags() []string {
	tags := make([]string, len(r.items))
	for i, d := range r.items {
		tags[i] = d.Tag
	}
	return tags
}

type registryFile struct {
	Services []Descriptor `yaml:"services"`
}

// LoadFile reads a YAML service table. An empty path yields Seed().
func LoadFile(path string) ([]Descriptor, error) {
	if path == "" {
		return Seed(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services file: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse services file %s: %w", path, err)
	}
	if len(file.Services) == 0 {
		return nil, fmt.Errorf("services file %s: %w", path, ErrEmptyRegistry)
	}
	return file.Services, nil
}

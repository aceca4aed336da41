package memstore

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/commerce-router/internal/model/profile"
)

// ProfileStore serves profiles from a preloaded table.
type ProfileStore struct {
	items map[string]profile.Profile
}

// NewProfileStore returns a ProfileStore preloaded with the supplied profiles.
func NewProfileStore(items []profile.Profile) *ProfileStore {
	s := &ProfileStore{items: make(map[string]profile.Profile, len(items))}
	for _, p := range items {
		if id := strings.TrimSpace(p.ID); id != "" {
			s.items[id] = p
		}
	}
	return s
}

// LoadProfiles builds a store from ReadProfiles. An empty path yields an
// empty store.
func LoadProfiles(path string) (*ProfileStore, error) {
	items, err := ReadProfiles(path)
	if err != nil {
		return nil, err
	}
	return NewProfileStore(items), nil
}

// ReadProfiles parses a YAML document of the form `profiles: [...]`.
func ReadProfiles(path string) ([]profile.Profile, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	var file struct {
		Profiles []profile.Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse profiles file %s: %w", path, err)
	}
	return file.Profiles, nil
}

// Get returns a copy of the profile, or nil when the user has none.
func (s *ProfileStore) Get(_ context.Context, userID string) (*profile.Profile, error) {
	p, ok := s.items[userID]
	if !ok {
		return nil, nil
	}
	if p.Address != nil {
		addr := *p.Address
		p.Address = &addr
	}
	return &p, nil
}

// Len reports how many profiles are loaded.
func (s *ProfileStore) Len() int {
	return len(s.items)
}

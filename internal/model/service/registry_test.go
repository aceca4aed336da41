package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedRegistryOrder(t *testing.T) {
	reg := MustRegistry(Seed())
	assert.Equal(t, []string{"dominos", "opentable", "uber"}, reg.Tags())

	for _, d := range reg.List() {
		assert.True(t, d.ToolsEnabled(), d.Tag)
		assert.NotEmpty(t, d.Description, d.Tag)
		assert.NotEmpty(t, d.SystemPrompt, d.Tag)
	}
}

func TestRegistryNormalizesAndCopies(t *testing.T) {
	items := []Descriptor{{Tag: " Pizza ", Keywords: []string{" PIZZA ", ""}, Description: "p"}}
	reg, err := NewRegistry(items)
	require.NoError(t, err)

	d, ok := reg.Lookup("PIZZA")
	require.True(t, ok)
	assert.Equal(t, "pizza", d.Tag)
	assert.Equal(t, []string{"pizza"}, d.Keywords)

	// Mutating caller-owned or returned slices must not leak into the registry.
	items[0].Keywords[0] = "changed"
	d.Keywords[0] = "changed"
	again, _ := reg.Lookup("pizza")
	assert.Equal(t, []string{"pizza"}, again.Keywords)
}

func TestRegistryValidation(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.ErrorIs(t, err, ErrEmptyRegistry)

	_, err = NewRegistry([]Descriptor{{Tag: "", Keywords: []string{"x"}}})
	assert.Error(t, err)

	_, err = NewRegistry([]Descriptor{{Tag: "general", Keywords: []string{"x"}}})
	assert.Error(t, err)

	_, err = NewRegistry([]Descriptor{{Tag: "a", Keywords: []string{"x"}}, {Tag: "A", Keywords: []string{"y"}}})
	assert.Error(t, err)

	_, err = NewRegistry([]Descriptor{{Tag: "a", Keywords: []string{"  "}}})
	assert.Error(t, err)
}

func TestLookupMissing(t *testing.T) {
	reg := MustRegistry(Seed())
	_, ok := reg.Lookup("lyft")
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.yaml")
	doc := `
services:
  - tag: florist
    keywords: [flowers, bouquet]
    description: Flower delivery
    system_prompt: You sell flowers.
    tool_provider:
      type: url
      url: https://example.com/mcp
      name: florist-mcp
      authorization_token: secret
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	items, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "florist", items[0].Tag)
	require.NotNil(t, items[0].ToolProvider)
	assert.Equal(t, "secret", items[0].ToolProvider.AuthorizationToken)

	seeded, err := LoadFile("")
	require.NoError(t, err)
	assert.Len(t, seeded, 3)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

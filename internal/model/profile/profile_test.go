package profile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAddressDecodesBothShapes(t *testing.T) {
	var structured Profile
	require.NoError(t, json.Unmarshal([]byte(`{"id":"u1","address":{"street":"1 Main St","city":"Springfield"}}`), &structured))
	require.NotNil(t, structured.Address)
	assert.True(t, structured.Address.Structured())
	assert.Equal(t, "1 Main St, Springfield", structured.Address.String())

	var text Profile
	require.NoError(t, json.Unmarshal([]byte(`{"id":"u2","address":"42 Elm Rd"}`), &text))
	require.NotNil(t, text.Address)
	assert.False(t, text.Address.Structured())
	assert.Equal(t, "42 Elm Rd", text.Address.String())
}

func TestAddressPartialStructuredKeepsSeparator(t *testing.T) {
	addr := &Address{City: "Paris"}
	assert.Equal(t, ", Paris", addr.String())
}

func TestAddressJSONRoundTripKeepsTextForm(t *testing.T) {
	data, err := json.Marshal(Profile{ID: "u", Address: &Address{Text: "somewhere"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u","address":"somewhere"}`, string(data))
}

func TestAddressYAML(t *testing.T) {
	var profiles []Profile
	doc := `
- id: a
  full_name: Ann
  address: 5 Oak Ave
- id: b
  address:
    street: 9 Pine Ln
    city: Austin
`
	require.NoError(t, yaml.Unmarshal([]byte(doc), &profiles))
	require.Len(t, profiles, 2)
	assert.Equal(t, "5 Oak Ave", profiles[0].Address.String())
	assert.Equal(t, "9 Pine Ln, Austin", profiles[1].Address.String())
}

func TestParseAddress(t *testing.T) {
	assert.Nil(t, ParseAddress(""))
	assert.Nil(t, ParseAddress("null"))
	assert.Nil(t, ParseAddress(`{}`))
	assert.Equal(t, "1 A St, B", ParseAddress(`{"street":"1 A St","city":"B"}`).String())
	assert.Equal(t, "quoted", ParseAddress(`"quoted"`).String())
	assert.Equal(t, "bare text", ParseAddress("bare text").String())
}

func TestHasAddress(t *testing.T) {
	var nilProfile *Profile
	assert.False(t, nilProfile.HasAddress())
	assert.False(t, (&Profile{}).HasAddress())
	assert.True(t, (&Profile{Address: &Address{Text: "x"}}).HasAddress())
}

func TestSummarizeRedactsContactDetails(t *testing.T) {
	p := &Profile{ID: "u1", FullName: "John Smith", Phone: "555-1234", Email: "j@example.com"}
	s := p.Summarize()

	assert.Equal(t, Summary{Name: "John Smith", Email: "j@example.com", HasPhone: true, ProfileID: "u1"}, s)
}

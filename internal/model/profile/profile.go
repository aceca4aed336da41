// Package profile holds the externally owned customer profile the router
// reads to personalize commerce conversations. Profiles are never mutated here.
package profile

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is a user's stored contact details. Empty strings mean "not provided".
type Profile struct {
	ID       string   `json:"id" yaml:"id"`
	FullName string   `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	Phone    string   `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email    string   `json:"email,omitempty" yaml:"email,omitempty"`
	Address  *Address `json:"address,omitempty" yaml:"address,omitempty"`
}

// HasAddress reports whether a renderable address is present.
func (p *Profile) HasAddress() bool {
	return p != nil && p.Address != nil && !p.Address.IsZero()
}

// Summary is the redacted view exposed for debugging: phone and address are
// reported only as present or absent.
type Summary struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	HasPhone   bool   `json:"has_phone"`
	HasAddress bool   `json:"has_address"`
	ProfileID  string `json:"profile_id"`
}

// Summarize returns the redacted view of p.
func (p *Profile) Summarize() Summary {
	return Summary{
		Name:       p.FullName,
		Email:      p.Email,
		HasPhone:   p.Phone != "",
		HasAddress: p.HasAddress(),
		ProfileID:  p.ID,
	}
}

// Address is stored either as free text or as a structured street/city value.
type Address struct {
	Street string `json:"street,omitempty" yaml:"street,omitempty"`
	City   string `json:"city,omitempty" yaml:"city,omitempty"`
	Text   string `json:"-" yaml:"-"`
}

// IsZero reports whether the address carries nothing to render.
func (a *Address) IsZero() bool {
	return a == nil || (a.Text == "" && a.Street == "" && a.City == "")
}

// Structured reports whether the address came in street/city form.
func (a *Address) Structured() bool {
	return a != nil && a.Text == "" && (a.Street != "" || a.City != "")
}

// String renders "street, city" for structured addresses and the raw text otherwise.
func (a *Address) String() string {
	if a == nil {
		return ""
	}
	if a.Structured() {
		return fmt.Sprintf("%s, %s", a.Street, a.City)
	}
	return a.Text
}

// MarshalJSON writes text addresses back as plain strings.
func (a Address) MarshalJSON() ([]byte, error) {
	if a.Text != "" {
		return json.Marshal(a.Text)
	}
	type plain Address
	return json.Marshal(plain(a))
}

// UnmarshalJSON accepts both a JSON string and a {street, city} object.
func (a *Address) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*a = Address{}
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*a = Address{Text: text}
		return nil
	}

	type plain Address
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	*a = Address(p)
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for the profiles seed file.
func (a *Address) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*a = Address{Text: node.Value}
		return nil
	}

	type plain Address
	var p plain
	if err := node.Decode(&p); err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	*a = Address(p)
	return nil
}

// ParseAddress decodes an address column that may hold a JSON object, a JSON
// string or bare text. Blank input yields nil.
func ParseAddress(raw string) *Address {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, `"`) {
		var addr Address
		if err := json.Unmarshal([]byte(trimmed), &addr); err == nil {
			if addr.IsZero() {
				return nil
			}
			return &addr
		}
	}
	return &Address{Text: trimmed}
}

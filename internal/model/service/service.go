package service

// ToolProvider describes the remote MCP server attached to a model call for
// one commerce service.
type ToolProvider struct {
	Type string `json:"type" yaml:"type"`
	URL  string `json:"url" yaml:"url"`
	Name string `json:"name" yaml:"name"`
	// AuthorizationToken is resolved from the live registry and never persisted.
	AuthorizationToken string `json:"-" yaml:"authorization_token,omitempty" bson:"-"`
}

// Descriptor captures one supported commerce service.
type Descriptor struct {
	Tag          string        `json:"tag" yaml:"tag"`
	Keywords     []string      `json:"keywords" yaml:"keywords"`
	ToolProvider *ToolProvider `json:"tool_provider,omitempty" yaml:"tool_provider,omitempty"`
	Description  string        `json:"description" yaml:"description"`
	SystemPrompt string        `json:"system_prompt" yaml:"system_prompt"`
}

// ToolsEnabled reports whether model calls for this service get a tool provider.
func (d Descriptor) ToolsEnabled() bool {
	return d.ToolProvider != nil && d.ToolProvider.URL != ""
}

func (d Descriptor) clone() Descriptor {
	out := d
	out.Keywords = append([]string(nil), d.Keywords...)
	if d.ToolProvider != nil {
		tp := *d.ToolProvider
		out.ToolProvider = &tp
	}
	return out
}

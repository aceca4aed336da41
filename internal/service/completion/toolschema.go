package completion

import (
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/commerce-router/internal/mcp"
)

// toolInfo converts an MCP tool's JSON schema into eino parameter info.
func toolInfo(def mcp.ToolDefinition) *schema.ToolInfo {
	info := &schema.ToolInfo{Name: def.Name, Desc: def.Description}
	if params := objectParams(def.InputSchema); len(params) > 0 {
		info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
	}
	return info
}

func objectParams(node map[string]any) map[string]*schema.ParameterInfo {
	props, _ := node["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}

	required := map[string]bool{}
	if list, ok := node["required"].([]any); ok {
		for _, r := range list {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	out := make(map[string]*schema.ParameterInfo, len(props))
	for name, raw := range props {
		prop, _ := raw.(map[string]any)
		p := paramInfo(prop)
		p.Required = required[name]
		out[name] = p
	}
	return out
}

func paramInfo(node map[string]any) *schema.ParameterInfo {
	p := &schema.ParameterInfo{Type: dataType(node["type"])}
	if desc, ok := node["description"].(string); ok {
		p.Desc = desc
	}
	if enum, ok := node["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				p.Enum = append(p.Enum, s)
			}
		}
	}
	switch p.Type {
	case schema.Array:
		items, _ := node["items"].(map[string]any)
		p.ElemInfo = paramInfo(items)
	case schema.Object:
		p.SubParams = objectParams(node)
	}
	return p
}

func dataType(v any) schema.DataType {
	t, _ := v.(string)
	if list, ok := v.([]any); ok {
		// ["string", "null"] style unions: take the first non-null type.
		for _, item := range list {
			if s, ok := item.(string); ok && s != "null" {
				t = s
				break
			}
		}
	}
	switch t {
	case "integer":
		return schema.Integer
	case "number":
		return schema.Number
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	case "null":
		return schema.Null
	default:
		return schema.String
	}
}

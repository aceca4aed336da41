// Package mcp speaks MCP (Model Context Protocol) JSON-RPC 2.0 over
// streamable HTTP in both directions.
//
// The client side connects to a commerce service's tool provider so that
// models without a hosted MCP connector can still call its tools. The server
// side exposes the router itself as MCP tools to the calling assistant.
package mcp

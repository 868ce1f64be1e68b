// Package a2a implements the agent-to-agent wire protocol: the agent card
// descriptor, the JSON-RPC 2.0 envelope used by POST /execute, an outbound
// client for invoking skills, and a server harness for exposing them.
package a2a

import "encoding/json"

// Version is the JSON-RPC protocol version carried by every envelope.
const Version = "2.0"

// Well-known agent endpoints.
const (
	AgentCardPath = "/agent-card"
	ExecutePath   = "/execute"
)

// AgentCard describes an agent: where it lives and which skills it serves.
// Cards are published to the artifact registry as JSON and consumed by
// discovery; agents also serve their own card at GET /agent-card.
type AgentCard struct {
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	Version     string       `json:"version"`
	Description string       `json:"description,omitempty"`
	Skills      []AgentSkill `json:"skills"`
}

// AgentSkill is one named capability. Schemas are plain JSON Schema
// documents; they are advisory for the engine and enforced only by agents.
type AgentSkill struct {
	ID           string         `json:"id"`
	Description  string         `json:"description,omitempty"`
	InputSchema  map[string]any `json:"input_schema,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty"`
}

// HasSkill reports whether the card declares the given skill id.
func (c *AgentCard) HasSkill(skillID string) bool {
	for _, s := range c.Skills {
		if s.ID == skillID {
			return true
		}
	}
	return false
}

// JSONRPCRequest is the request envelope. Method carries the skill id.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse is the response envelope. Exactly one of Result and Error
// is populated.
type JSONRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC 2.0 error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

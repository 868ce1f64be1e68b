package a2a

import "fmt"

// AgentError is a JSON-RPC error returned by an agent. The message is the
// agent's verbatim text.
type AgentError struct {
	Code    int
	Message string
	Data    any
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent error %d: %s", e.Code, e.Message)
}

// TransportError reports an HTTP-level failure talking to an agent: the
// request reached the server but did not produce a JSON-RPC response.
type TransportError struct {
	URL    string
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("agent transport error: %s returned HTTP %d: %s", e.URL, e.Status, e.Body)
}

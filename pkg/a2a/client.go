package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/maestro-flow/maestro/pkg/observability"
)

// Doer is the subset of http.Client the A2A client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client invokes agent skills over HTTP+JSON. It is safe for concurrent use.
type Client struct {
	httpClient Doer
}

// ClientConfig configures the A2A client. A nil HTTPClient falls back to a
// pooled http.Client with no overall timeout; per-call deadlines come from
// the timeout passed to CallSkill.
type ClientConfig struct {
	HTTPClient Doer
}

func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient}
}

// CallSkill sends a JSON-RPC request for skillID to the agent at agentURL
// and returns the result value. A positive timeout bounds the whole call;
// expiry surfaces as the context error so callers can map it to their own
// timeout type. An agent-signaled failure returns *AgentError, an HTTP
// failure *TransportError.
func (c *Client) CallSkill(ctx context.Context, agentURL, skillID string, params map[string]any, timeout time.Duration) (any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := c.callSkill(ctx, agentURL, skillID, params)
	observability.GetGlobalMetrics().RecordAgentCall(ctx, skillID, time.Since(start), err)
	return result, err
}

func (c *Client) callSkill(ctx context.Context, agentURL, skillID string, params map[string]any) (any, error) {
	if params == nil {
		params = map[string]any{}
	}
	paramsBytes, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params for skill %s: %w", skillID, err)
	}

	rpcReq := JSONRPCRequest{
		JSONRPC: Version,
		ID:      uuid.NewString(),
		Method:  skillID,
		Params:  paramsBytes,
	}
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	executeURL := agentURL + ExecutePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, executeURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call agent at %s: %w", executeURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &TransportError{
			URL:    executeURL,
			Status: resp.StatusCode,
			Body:   string(respBody),
		}
	}

	var rpcResp JSONRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", executeURL, err)
	}

	if rpcResp.Error != nil {
		return nil, &AgentError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
			Data:    rpcResp.Error.Data,
		}
	}

	if rpcResp.Result == nil {
		return map[string]any{}, nil
	}
	return rpcResp.Result, nil
}

// FetchAgentCard retrieves an agent's self-served card from GET /agent-card.
// Publishing tooling uses this to capture a live agent's descriptor before
// pushing it to the registry.
func (c *Client) FetchAgentCard(ctx context.Context, agentURL string) (*AgentCard, error) {
	cardURL := agentURL + AgentCardPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agent card: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &TransportError{
			URL:    cardURL,
			Status: resp.StatusCode,
			Body:   string(respBody),
		}
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("failed to decode agent card: %w", err)
	}
	return &card, nil
}

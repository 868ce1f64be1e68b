package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xeipuuv/gojsonschema"

	"github.com/maestro-flow/maestro/pkg/logger"
)

// HandlerFunc executes one skill invocation. Returning *AgentError controls
// the JSON-RPC error code; any other error maps to InternalError.
type HandlerFunc func(ctx context.Context, params map[string]any) (any, error)

// Agent bundles a card with the handlers that back its skills.
type Agent struct {
	name        string
	version     string
	description string
	skills      []AgentSkill
	handlers    map[string]HandlerFunc
	validators  map[string]*gojsonschema.Schema
}

func NewAgent(name, version string) *Agent {
	return &Agent{
		name:       name,
		version:    version,
		handlers:   make(map[string]HandlerFunc),
		validators: make(map[string]*gojsonschema.Schema),
	}
}

func (a *Agent) WithDescription(desc string) *Agent {
	a.description = desc
	return a
}

// AddSkill registers a skill. input and output are sample Go values used to
// generate the card's schemas; pass nil to omit a schema. When an input
// schema exists, incoming params are validated against it before the handler
// runs.
func (a *Agent) AddSkill(id, description string, input, output any, fn HandlerFunc) error {
	if id == "" {
		return fmt.Errorf("skill id cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("skill %s: handler cannot be nil", id)
	}
	if _, exists := a.handlers[id]; exists {
		return fmt.Errorf("skill %s already registered on agent %s", id, a.name)
	}

	inputSchema, err := SchemaFor(input)
	if err != nil {
		return fmt.Errorf("skill %s: %w", id, err)
	}
	outputSchema, err := SchemaFor(output)
	if err != nil {
		return fmt.Errorf("skill %s: %w", id, err)
	}

	if inputSchema != nil {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(inputSchema))
		if err != nil {
			return fmt.Errorf("skill %s: failed to compile input schema: %w", id, err)
		}
		a.validators[id] = compiled
	}

	a.skills = append(a.skills, AgentSkill{
		ID:           id,
		Description:  description,
		InputSchema:  inputSchema,
		OutputSchema: outputSchema,
	})
	a.handlers[id] = fn
	return nil
}

// Card materializes the agent's card with the given base URL.
func (a *Agent) Card(url string) *AgentCard {
	skills := make([]AgentSkill, len(a.skills))
	copy(skills, a.skills)
	return &AgentCard{
		Name:        a.name,
		URL:         url,
		Version:     a.version,
		Description: a.description,
		Skills:      skills,
	}
}

// ServerConfig configures the harness. BaseURL is the public URL advertised
// in cards; it defaults to http://<host>:<port>.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

// Server hosts one or more agents over the A2A HTTP surface:
//
//	GET  /agents                       directory of hosted cards
//	GET  /agents/{name}/agent-card     card for one agent
//	POST /agents/{name}/execute        JSON-RPC skill invocation
//	GET  /agent-card, POST /execute    root aliases when exactly one agent is hosted
type Server struct {
	host       string
	port       int
	baseURL    string
	router     chi.Router
	httpServer *http.Server
	log        *slog.Logger

	mu     sync.RWMutex
	agents map[string]*Agent
}

func NewServer(cfg *ServerConfig) *Server {
	if cfg == nil {
		cfg = &ServerConfig{}
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 8080
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", host, port)
	}

	s := &Server{
		host:    host,
		port:    port,
		baseURL: baseURL,
		agents:  make(map[string]*Agent),
		log:     logger.GetLogger(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/agents", s.handleDirectory)
	r.Get("/agents/{name}"+AgentCardPath, s.handleAgentCard)
	r.Post("/agents/{name}"+ExecutePath, s.handleExecute)

	// Root aliases serve the sole hosted agent, matching the common
	// one-agent-per-process deployment.
	r.Get(AgentCardPath, s.handleAgentCard)
	r.Post(ExecutePath, s.handleExecute)

	return r
}

// Router exposes the underlying mux so hosts can mount extra endpoints
// (the CLI mounts /metrics here).
func (s *Server) Router() chi.Router {
	return s.router
}

// RegisterAgent adds an agent to the server. The agent's advertised URL is
// derived from the server base URL.
func (s *Server) RegisterAgent(agent *Agent) error {
	if agent == nil || agent.name == "" {
		return fmt.Errorf("agent must have a name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[agent.name]; exists {
		return fmt.Errorf("agent %s already registered", agent.name)
	}
	s.agents[agent.name] = agent
	return nil
}

// RemoveAllAgents drops every hosted agent. Used by config hot reload.
func (s *Server) RemoveAllAgents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = make(map[string]*Agent)
}

// HostedCard returns the card of a hosted agent with its public URL filled
// in, or nil when no such agent is registered.
func (s *Server) HostedCard(name string) *AgentCard {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[name]
	if !ok {
		return nil
	}
	return agent.Card(s.AgentURL(name))
}

// AgentURL returns the public URL for a hosted agent.
func (s *Server) AgentURL(name string) string {
	return fmt.Sprintf("%s/agents/%s", s.baseURL, name)
}

// Start serves until Shutdown or listener failure.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("a2a server listening",
		"addr", s.httpServer.Addr,
		"agents", len(s.agents))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("a2a server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// resolveAgent picks the agent addressed by the request: the {name} route
// parameter when present, else the sole hosted agent.
func (s *Server) resolveAgent(r *http.Request) (*Agent, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if name := chi.URLParam(r, "name"); name != "" {
		agent, ok := s.agents[name]
		return agent, name, ok
	}
	if len(s.agents) == 1 {
		for name, agent := range s.agents {
			return agent, name, true
		}
	}
	return nil, "", false
}

func (s *Server) handleDirectory(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	cards := make([]AgentCard, 0, len(s.agents))
	for name, agent := range s.agents {
		cards = append(cards, *agent.Card(s.AgentURL(name)))
	}
	s.mu.RUnlock()

	respondJSON(w, http.StatusOK, map[string]any{
		"agents": cards,
		"total":  len(cards),
	})
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	agent, name, ok := s.resolveAgent(r)
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	url := s.AgentURL(name)
	if chi.URLParam(r, "name") == "" {
		url = s.baseURL
	}
	respondJSON(w, http.StatusOK, agent.Card(url))
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	agent, _, ok := s.resolveAgent(r)
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.sendError(w, nil, ParseError, "failed to read request body", nil)
		return
	}
	defer r.Body.Close()

	var rpcReq JSONRPCRequest
	if err := json.Unmarshal(body, &rpcReq); err != nil {
		s.sendError(w, nil, ParseError, "invalid JSON", nil)
		return
	}
	if rpcReq.JSONRPC != Version {
		s.sendError(w, rpcReq.ID, InvalidRequest, "invalid JSON-RPC version", nil)
		return
	}

	handler, exists := agent.handlers[rpcReq.Method]
	if !exists {
		s.sendError(w, rpcReq.ID, MethodNotFound, fmt.Sprintf("method not found: %s", rpcReq.Method), nil)
		return
	}

	params := map[string]any{}
	if len(rpcReq.Params) > 0 && string(rpcReq.Params) != "null" {
		if err := json.Unmarshal(rpcReq.Params, &params); err != nil {
			s.sendError(w, rpcReq.ID, InvalidParams, "params must be an object", nil)
			return
		}
	}

	if schema, hasSchema := agent.validators[rpcReq.Method]; hasSchema {
		result, err := schema.Validate(gojsonschema.NewGoLoader(params))
		if err != nil {
			s.sendError(w, rpcReq.ID, InvalidParams, fmt.Sprintf("params validation failed: %v", err), nil)
			return
		}
		if !result.Valid() {
			details := make([]string, 0, len(result.Errors()))
			for _, ve := range result.Errors() {
				details = append(details, ve.String())
			}
			s.sendError(w, rpcReq.ID, InvalidParams, "invalid params", details)
			return
		}
	}

	s.log.Debug("executing skill", "agent", agent.name, "skill", rpcReq.Method)

	result, err := handler(r.Context(), params)
	if err != nil {
		var agentErr *AgentError
		if errors.As(err, &agentErr) {
			s.sendError(w, rpcReq.ID, agentErr.Code, agentErr.Message, agentErr.Data)
			return
		}
		s.sendError(w, rpcReq.ID, InternalError, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusOK, JSONRPCResponse{
		JSONRPC: Version,
		ID:      rpcReq.ID,
		Result:  result,
	})
}

func (s *Server) sendError(w http.ResponseWriter, id any, code int, message string, data any) {
	respondJSON(w, http.StatusOK, JSONRPCResponse{
		JSONRPC: Version,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

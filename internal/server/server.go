// Package server speaks MCP over stdio: newline-delimited JSON-RPC requests
// on stdin, responses on stdout. Logs go to stderr so the protocol stream
// stays clean.
package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nanobanana/imagemcp/internal/config"
	"github.com/nanobanana/imagemcp/internal/lifecycle"
	"github.com/nanobanana/imagemcp/internal/maintenance"
	"github.com/nanobanana/imagemcp/internal/orchestrator"
	"github.com/nanobanana/imagemcp/internal/resolution"
	"github.com/nanobanana/imagemcp/internal/storage"
	"github.com/nanobanana/imagemcp/internal/store"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "imagemcp"
	serverVersion   = "0.1.0"
)

type Server struct {
	cfg      *config.Config
	orch     *orchestrator.Orchestrator
	tracker  *lifecycle.Tracker
	maint    *maintenance.Service
	store    *store.Store
	storage  *storage.Storage
	resolver *resolution.Resolver
	log      zerolog.Logger

	in  io.Reader
	out io.Writer

	writeMu sync.Mutex
	calls   sync.WaitGroup
}

type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type MCPResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *MCPError `json:"error,omitempty"`
}

type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func New(cfg *config.Config, orch *orchestrator.Orchestrator, tracker *lifecycle.Tracker,
	maint *maintenance.Service, st *store.Store, sto *storage.Storage,
	resolver *resolution.Resolver, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		orch:     orch,
		tracker:  tracker,
		maint:    maint,
		store:    st,
		storage:  sto,
		resolver: resolver,
		log:      log.With().Str("component", "server").Logger(),
		in:       os.Stdin,
		out:      os.Stdout,
	}
}

// Run processes requests until stdin closes. Tool invocations run on their
// own goroutines so a slow backend call cannot stall unrelated requests;
// everything else is answered inline.
func (s *Server) Run() error {
	scanner := bufio.NewScanner(s.in)
	// Inline image arguments can be large.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 64*1024*1024)

	encoder := json.NewEncoder(s.out)

	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		// Params aliases the line buffer, which the scanner reuses on the
		// next Scan, so the line must be copied before dispatch.
		line := append([]byte(nil), scanner.Bytes()...)

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warn().Err(err).Msg("failed to parse request")
			continue
		}

		if req.Method == "tools/call" {
			s.calls.Add(1)
			go func() {
				defer s.calls.Done()
				s.writeResponse(encoder, s.handleRequest(&req))
			}()
			continue
		}
		s.writeResponse(encoder, s.handleRequest(&req))
	}

	s.calls.Wait()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

func (s *Server) writeResponse(encoder *json.Encoder, resp *MCPResponse) {
	if resp == nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := encoder.Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	s.log.Debug().Str("method", req.Method).Msg("handling request")

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "prompts/list":
		return s.handlePromptsList(req)
	case "prompts/get":
		return s.handlePromptsGet(req)
	case "resources/list":
		return s.handleResourcesList(req)
	case "resources/read":
		return s.handleResourcesRead(req)
	case "ping":
		return &MCPResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools":     map[string]any{},
				"prompts":   map[string]any{},
				"resources": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    serverName,
				"version": serverVersion,
			},
		},
	}
}

func (s *Server) errorResponse(id any, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

func textResult(id any, v any) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": marshalJSON(v)},
			},
		},
	}
}

func marshalJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const resourceScheme = "imagemcp://images/"

// Generated images are exposed as resources so clients can browse and fetch
// them without a tool call. URIs carry the index row id.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

func (s *Server) handleResourcesList(req *MCPRequest) *MCPResponse {
	records, err := s.store.ListAll(context.Background())
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Resource listing failed", err.Error())
	}

	resources := make([]Resource, 0, len(records))
	for _, rec := range records {
		desc := ""
		if prompt, ok := rec.Metadata["prompt"].(string); ok {
			desc = prompt
		}
		resources = append(resources, Resource{
			URI:         fmt.Sprintf("%s%d", resourceScheme, rec.ID),
			Name:        rec.Path,
			Description: desc,
			MimeType:    rec.MimeType,
		})
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  map[string]any{"resources": resources},
	}
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleResourcesRead(req *MCPRequest) *MCPResponse {
	var params resourcesReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	idStr, ok := strings.CutPrefix(params.URI, resourceScheme)
	if !ok {
		return s.errorResponse(req.ID, -32602, "Invalid params", "unknown resource URI: "+params.URI)
	}
	var id int64
	if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", "bad resource id: "+idStr)
	}

	rec, err := s.store.GetByID(context.Background(), id)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Resource read failed", err.Error())
	}
	if rec == nil {
		return s.errorResponse(req.ID, -32002, "Resource not found", params.URI)
	}

	data, err := os.ReadFile(rec.Path)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Resource read failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"contents": []map[string]any{
				{
					"uri":      params.URI,
					"mimeType": rec.MimeType,
					"blob":     base64.StdEncoding.EncodeToString(data),
				},
			},
		},
	}
}

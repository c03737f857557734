package server

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Prompt templates help clients phrase generation requests for common
// use cases. Each template renders into a single user message.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

type promptTemplate struct {
	Prompt
	render func(args map[string]string) string
}

func promptTemplates() []promptTemplate {
	return []promptTemplate{
		{
			Prompt: Prompt{
				Name:        "photorealistic_shot",
				Description: "A photography-style prompt with camera and lighting details filled in",
				Arguments: []PromptArgument{
					{Name: "subject", Description: "What the photo shows", Required: true},
					{Name: "lighting", Description: "Lighting setup, e.g. golden hour, softbox", Required: false},
					{Name: "lens", Description: "Lens or framing, e.g. 85mm portrait, wide angle", Required: false},
				},
			},
			render: func(args map[string]string) string {
				lighting := orDefault(args["lighting"], "natural light")
				lens := orDefault(args["lens"], "50mm")
				return fmt.Sprintf(
					"A photorealistic photograph of %s. Shot on a %s lens with %s. "+
						"High detail, accurate colors, realistic textures.",
					args["subject"], lens, lighting)
			},
		},
		{
			Prompt: Prompt{
				Name:        "product_mockup",
				Description: "A clean studio product rendering for design work",
				Arguments: []PromptArgument{
					{Name: "product", Description: "The product to render", Required: true},
					{Name: "background", Description: "Backdrop style, e.g. white seamless, gradient", Required: false},
				},
			},
			render: func(args map[string]string) string {
				bg := orDefault(args["background"], "white seamless backdrop")
				return fmt.Sprintf(
					"Studio product photograph of %s on a %s. Soft even lighting, "+
						"subtle shadow, centered composition, commercial quality.",
					args["product"], bg)
			},
		},
		{
			Prompt: Prompt{
				Name:        "logo_design",
				Description: "A flat vector-style logo concept",
				Arguments: []PromptArgument{
					{Name: "brand", Description: "Brand or product name", Required: true},
					{Name: "style", Description: "Visual style, e.g. minimalist, geometric, retro", Required: false},
				},
			},
			render: func(args map[string]string) string {
				style := orDefault(args["style"], "minimalist")
				return fmt.Sprintf(
					"A %s flat vector logo for %q. Simple shapes, strong silhouette, "+
						"works at small sizes, solid background.",
					style, args["brand"])
			},
		},
	}
}

func (s *Server) handlePromptsList(req *MCPRequest) *MCPResponse {
	templates := promptTemplates()
	prompts := make([]Prompt, 0, len(templates))
	for _, t := range templates {
		prompts = append(prompts, t.Prompt)
	}
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  map[string]any{"prompts": prompts},
	}
}

type promptsGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

func (s *Server) handlePromptsGet(req *MCPRequest) *MCPResponse {
	var params promptsGetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	for _, t := range promptTemplates() {
		if t.Name != params.Name {
			continue
		}

		var missing []string
		for _, arg := range t.Arguments {
			if arg.Required && params.Arguments[arg.Name] == "" {
				missing = append(missing, arg.Name)
			}
		}
		if len(missing) > 0 {
			return s.errorResponse(req.ID, -32602, "Invalid params",
				"missing required arguments: "+strings.Join(missing, ", "))
		}

		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]any{
				"description": t.Description,
				"messages": []map[string]any{
					{
						"role": "user",
						"content": map[string]any{
							"type": "text",
							"text": t.render(params.Arguments),
						},
					},
				},
			},
		}
	}
	return s.errorResponse(req.ID, -32602, "Invalid params", "unknown prompt: "+params.Name)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

package server

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPromptsList(t *testing.T) {
	s, _ := newTestServer(t)

	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "prompts/list"})
	if resp.Error != nil {
		t.Fatalf("prompts/list error = %+v", resp.Error)
	}
	prompts := resp.Result.(map[string]any)["prompts"].([]Prompt)
	if len(prompts) == 0 {
		t.Fatal("no prompts listed")
	}

	names := make(map[string]bool)
	for _, p := range prompts {
		names[p.Name] = true
	}
	for _, want := range []string{"photorealistic_shot", "product_mockup", "logo_design"} {
		if !names[want] {
			t.Errorf("missing prompt %s", want)
		}
	}
}

func getPrompt(t *testing.T, s *Server, name string, args map[string]string) *MCPResponse {
	t.Helper()
	params, err := json.Marshal(promptsGetParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "prompts/get", Params: params})
}

func TestPromptsGetRendersArguments(t *testing.T) {
	s, _ := newTestServer(t)

	resp := getPrompt(t, s, "photorealistic_shot", map[string]string{
		"subject":  "an old fishing boat",
		"lighting": "golden hour",
	})
	if resp.Error != nil {
		t.Fatalf("prompts/get error = %+v", resp.Error)
	}

	messages := resp.Result.(map[string]any)["messages"].([]map[string]any)
	text := messages[0]["content"].(map[string]any)["text"].(string)
	if !strings.Contains(text, "an old fishing boat") {
		t.Errorf("subject not rendered: %s", text)
	}
	if !strings.Contains(text, "golden hour") {
		t.Errorf("lighting not rendered: %s", text)
	}
}

func TestPromptsGetMissingRequiredArgument(t *testing.T) {
	s, _ := newTestServer(t)

	resp := getPrompt(t, s, "logo_design", map[string]string{})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("error = %+v, want -32602", resp.Error)
	}
}

func TestPromptsGetUnknownName(t *testing.T) {
	s, _ := newTestServer(t)

	resp := getPrompt(t, s, "no_such_prompt", nil)
	if resp.Error == nil {
		t.Error("expected error for unknown prompt")
	}
}

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/papertrail-ai/papertrail/backend/pkg/ai"
)

func newTestServer(t *testing.T, content string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &bodies
}

func TestGenerateCompletionWithFormat(t *testing.T) {
	srv, bodies := newTestServer(t, `{"name": "Acme",}`)

	client, err := NewGraphOpenAIClient(NewGraphOpenAIClientParams{
		Model:             "test-model",
		ChatURL:           srv.URL + "/v1",
		ChatKey:           "key",
		RequestsPerSecond: 50,
	})
	if err != nil {
		t.Fatalf("NewGraphOpenAIClient() error = %v", err)
	}

	var out struct {
		Name string `json:"name"`
	}
	if err := client.GenerateCompletionWithFormat(context.Background(), "entity", "an entity", "prompt", &out); err != nil {
		t.Fatalf("GenerateCompletionWithFormat() error = %v", err)
	}
	if out.Name != "Acme" {
		t.Fatalf("GenerateCompletionWithFormat() name = %q, want Acme", out.Name)
	}

	if len(*bodies) != 1 {
		t.Fatalf("requests = %d, want 1", len(*bodies))
	}
	format, ok := (*bodies)[0]["response_format"].(map[string]any)
	if !ok || format["type"] != "json_schema" {
		t.Fatalf("response_format = %v, want json_schema", (*bodies)[0]["response_format"])
	}

	m := client.GetMetrics()
	if m.InputTokens != 7 || m.OutputTokens != 3 || m.TotalTokens != 10 {
		t.Fatalf("GetMetrics() = %+v", m)
	}
	client.ResetMetrics()
	if client.GetMetrics().TotalTokens != 0 {
		t.Fatalf("ResetMetrics() did not clear metrics")
	}
}

func TestGenerateCompletion(t *testing.T) {
	srv, bodies := newTestServer(t, "plain answer")

	client, err := NewGraphOpenAIClient(NewGraphOpenAIClientParams{
		Model:   "test-model",
		ChatURL: srv.URL + "/v1",
		ChatKey: "key",
	})
	if err != nil {
		t.Fatalf("NewGraphOpenAIClient() error = %v", err)
	}

	got, err := client.GenerateCompletion(context.Background(), "hello")
	if err != nil {
		t.Fatalf("GenerateCompletion() error = %v", err)
	}
	if got != "plain answer" {
		t.Fatalf("GenerateCompletion() = %q", got)
	}
	msgs, _ := (*bodies)[0]["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
}

func TestGenerateCompletionOptions(t *testing.T) {
	srv, bodies := newTestServer(t, "ok")

	client, err := NewGraphOpenAIClient(NewGraphOpenAIClientParams{
		Model:   "test-model",
		ChatURL: srv.URL + "/v1",
		ChatKey: "key",
	})
	if err != nil {
		t.Fatalf("NewGraphOpenAIClient() error = %v", err)
	}

	_, err = client.GenerateCompletion(
		context.Background(),
		"hello",
		ai.WithModel("other-model"),
		ai.WithSystemPrompts("be brief"),
		ai.WithMaxTokens(64),
	)
	if err != nil {
		t.Fatalf("GenerateCompletion() error = %v", err)
	}

	body := (*bodies)[0]
	if body["model"] != "other-model" {
		t.Fatalf("model = %v, want other-model", body["model"])
	}
	if body["max_completion_tokens"] != float64(64) {
		t.Fatalf("max_completion_tokens = %v, want 64", body["max_completion_tokens"])
	}
	if msgs, _ := body["messages"].([]any); len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
}

func TestNewGraphOpenAIClientRequiresKey(t *testing.T) {
	if _, err := NewGraphOpenAIClient(NewGraphOpenAIClientParams{Model: "m"}); err == nil {
		t.Fatalf("NewGraphOpenAIClient() expected error without api key")
	}
}

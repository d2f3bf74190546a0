package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateCompletionWithFormat(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             "llama",
			"message":           map[string]any{"role": "assistant", "content": `{"name":"Acme"}`},
			"done":              true,
			"prompt_eval_count": 5,
			"eval_count":        2,
			"total_duration":    2000000,
		})
	}))
	defer srv.Close()

	client, err := NewGraphOllamaClient(NewGraphOllamaClientParams{
		Model:                 "llama",
		BaseURL:               srv.URL,
		ApiKey:                "secret",
		MaxConcurrentRequests: 2,
	})
	if err != nil {
		t.Fatalf("NewGraphOllamaClient() error = %v", err)
	}

	var out struct {
		Name string `json:"name"`
	}
	if err := client.GenerateCompletionWithFormat(context.Background(), "entity", "", "prompt", &out); err != nil {
		t.Fatalf("GenerateCompletionWithFormat() error = %v", err)
	}
	if out.Name != "Acme" {
		t.Fatalf("name = %q, want Acme", out.Name)
	}
	if auth != "Bearer secret" {
		t.Fatalf("Authorization = %q", auth)
	}
	if got["format"] == nil {
		t.Fatalf("request carried no format schema")
	}
	if m := client.GetMetrics(); m.TotalTokens != 7 || m.DurationMs != 2 {
		t.Fatalf("GetMetrics() = %+v", m)
	}
}

func TestGenerateCompletionWithFormatRejectsNonPointer(t *testing.T) {
	client, err := NewGraphOllamaClient(NewGraphOllamaClientParams{Model: "llama"})
	if err != nil {
		t.Fatalf("NewGraphOllamaClient() error = %v", err)
	}
	var out struct{}
	if err := client.GenerateCompletionWithFormat(context.Background(), "x", "", "p", out); err == nil {
		t.Fatalf("expected error for non-pointer out")
	}
}

package vllm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/resilience"
)

const completionBody = `{
  "id": "cmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "affiliation-lora",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "` + "```json\\n[{\\\"name\\\": \\\"MIT\\\"}]\\n```" + `"}
  }]
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCompleteSendsDeterministicChatRequest(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer server.Close()

	client := New(server.URL+"/", Options{MaxTokens: 64, Logger: discardLogger()})
	content, err := client.Complete(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "parse affiliations"},
		{Role: domain.RoleUser, Content: "Jane Doe, MIT"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if content != "```json\n[{\"name\": \"MIT\"}]\n```" {
		t.Fatalf("unexpected content: %q", content)
	}

	if payload["model"] != DefaultModel {
		t.Fatalf("expected default model, got %v", payload["model"])
	}
	if payload["temperature"] != float64(0) {
		t.Fatalf("expected temperature 0, got %v", payload["temperature"])
	}
	if payload["max_tokens"] != float64(64) {
		t.Fatalf("expected max_tokens 64, got %v", payload["max_tokens"])
	}
	messages, _ := payload["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %v", payload["messages"])
	}
	first, _ := messages[0].(map[string]any)
	second, _ := messages[1].(map[string]any)
	if first["role"] != "system" || first["content"] != "parse affiliations" {
		t.Fatalf("unexpected system message: %v", first)
	}
	if second["role"] != "user" || second["content"] != "Jane Doe, MIT" {
		t.Fatalf("unexpected user message: %v", second)
	}
}

func TestCompleteRejectsEmptyConversation(t *testing.T) {
	client := New("http://127.0.0.1:1", Options{Logger: discardLogger()})
	_, err := client.Complete(context.Background(), nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCompleteClientErrorIsNotTemporary(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
	client := New(server.URL, Options{Logger: discardLogger(), ResilienceExecutor: exec})
	_, err := client.Complete(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "x"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("400 must not be temporary, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestCompleteRetriesUnavailableServer(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
	client := New(server.URL, Options{Logger: discardLogger(), ResilienceExecutor: exec})
	if _, err := client.Complete(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "x"}}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestLoadAdapterPostsNameAndPath(t *testing.T) {
	var payload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/load_lora_adapter" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte("Success: LoRA adapter 'affiliation-lora' added successfully."))
	}))
	defer server.Close()

	client := New(server.URL, Options{Logger: discardLogger()})
	if err := client.LoadAdapter(context.Background(), "affiliation-lora", "/models/lora"); err != nil {
		t.Fatalf("LoadAdapter() error = %v", err)
	}
	if payload["lora_name"] != "affiliation-lora" || payload["lora_path"] != "/models/lora" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestLoadAdapterIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "runtime lora updating disabled", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, Options{Logger: discardLogger()})
	err := client.LoadAdapter(context.Background(), "a", "/p")
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", statusErr.StatusCode)
	}
	if !strings.Contains(err.Error(), "runtime lora updating disabled") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestLoadAdapterRequiresNameAndPath(t *testing.T) {
	client := New("http://127.0.0.1:1", Options{Logger: discardLogger()})
	if err := client.LoadAdapter(context.Background(), " ", "/p"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestClassifyVLLMError(t *testing.T) {
	if class := classifyVLLMError(&HTTPStatusError{StatusCode: 502}); !class.Retryable {
		t.Fatalf("expected 502 to be retryable")
	}
	if class := classifyVLLMError(&HTTPStatusError{StatusCode: 422}); class.Retryable || class.RecordFailure {
		t.Fatalf("expected 422 to be permanent and not trip the breaker, got %+v", class)
	}
	if class := classifyVLLMError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("expected cancellation to be ignored, got %+v", class)
	}
}

func TestLoadPromptTemplateTrims(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.txt")
	if err := os.WriteFile(path, []byte("\n  Parse the affiliations.\n\n"), 0o644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	prompt, err := LoadPromptTemplate(path)
	if err != nil {
		t.Fatalf("LoadPromptTemplate() error = %v", err)
	}
	if prompt != "Parse the affiliations." {
		t.Fatalf("unexpected prompt: %q", prompt)
	}

	if _, err := LoadPromptTemplate(filepath.Join(dir, "missing.txt")); err == nil || !strings.Contains(err.Error(), "load prompt template") {
		t.Fatalf("expected wrapped load error, got %v", err)
	}
}

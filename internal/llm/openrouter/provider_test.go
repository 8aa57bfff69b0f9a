package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kingsmanrocky-max/account-intelligence/internal/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*Provider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := New(Config{
		APIKey:  "test-key",
		Model:   "meta-llama/llama-3.1-70b-instruct",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return provider, server
}

func TestCompleteSuccess(t *testing.T) {
	var captured map[string]any
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": "meta-llama/llama-3.1-70b-instruct",
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "generated section"}},
			},
			"usage": map[string]int{
				"prompt_tokens":     120,
				"completion_tokens": 340,
				"total_tokens":      460,
			},
		})
	})

	resp, err := provider.Complete(context.Background(), llm.Request{
		System:    "you are an analyst",
		Prompt:    "describe the company",
		MaxTokens: 2048,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "generated section" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Provider != "openrouter" {
		t.Errorf("provider = %q", resp.Provider)
	}
	if resp.Usage.TotalTokens != 460 {
		t.Errorf("total tokens = %d, want 460", resp.Usage.TotalTokens)
	}
	if captured["model"] != "meta-llama/llama-3.1-70b-instruct" {
		t.Errorf("request model = %v", captured["model"])
	}
	if captured["max_tokens"] != float64(2048) {
		t.Errorf("request max_tokens = %v", captured["max_tokens"])
	}
}

func TestCompleteRateLimitCarriesRetryAfter(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := provider.Complete(context.Background(), llm.Request{Prompt: "hi"})
	var llmErr *llm.Error
	if !errors.As(err, &llmErr) {
		t.Fatalf("error = %v, want *llm.Error", err)
	}
	if llmErr.Code != llm.CodeRateLimited {
		t.Errorf("code = %q, want rate_limited", llmErr.Code)
	}
	if !llmErr.Retryable {
		t.Error("rate limit should be retryable")
	}
	if llmErr.RetryAfter != 12*time.Second {
		t.Errorf("retry after = %v, want 12s", llmErr.RetryAfter)
	}
}

func TestCompleteStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  string
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, llm.CodeAuth, false},
		{"forbidden", http.StatusForbidden, llm.CodeAuth, false},
		{"bad request", http.StatusBadRequest, llm.CodeInvalidRequest, false},
		{"server error", http.StatusInternalServerError, llm.CodeServerError, true},
		{"bad gateway", http.StatusBadGateway, llm.CodeServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := provider.Complete(context.Background(), llm.Request{Prompt: "hi"})
			var llmErr *llm.Error
			if !errors.As(err, &llmErr) {
				t.Fatalf("error = %v, want *llm.Error", err)
			}
			if llmErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", llmErr.Code, tt.wantCode)
			}
			if llmErr.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", llmErr.Retryable, tt.retryable)
			}
		})
	}
}

func TestCompleteFragmentedContent(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": []any{
					map[string]any{"type": "text", "text": "part one"},
					map[string]any{"type": "text", "text": "part two"},
				}}},
			},
		})
	})

	resp, err := provider.Complete(context.Background(), llm.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "part one\npart two" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(Config{Model: "m"}); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Error("expected error without model")
	}
}

package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kingsmanrocky-max/account-intelligence/internal/llm"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Config holds OpenRouter client settings.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	AppName    string
}

// Provider implements llm.Provider against the OpenRouter chat
// completions API. Retries are owned by the caller; each Complete call
// issues exactly one request.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	appName    string
}

// New constructs an OpenRouter provider.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("LLM_FALLBACK_MODEL is required for OpenRouter")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if strings.TrimSpace(cfg.AppName) == "" {
		cfg.AppName = "account-intelligence"
	}
	return &Provider{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      strings.TrimSpace(cfg.Model),
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
		appName:    strings.TrimSpace(cfg.AppName),
	}, nil
}

// Name returns the provider id used in accounting and logs.
func (p *Provider) Name() string { return "openrouter" }

// Complete executes one chat completion call.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.model
	}

	messages := make([]map[string]string, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, map[string]string{
			"role":    "system",
			"content": req.System,
		})
	}
	messages = append(messages, map[string]string{
		"role":    "user",
		"content": req.Prompt,
	})

	payload := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return llm.Response{}, fmt.Errorf("marshal openrouter payload: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		timeoutCtx,
		http.MethodPost,
		p.baseURL+"/chat/completions",
		bytes.NewReader(encoded),
	)
	if err != nil {
		return llm.Response{}, fmt.Errorf("create openrouter request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Title", p.appName)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return llm.Response{}, &llm.Error{
			Provider:  p.Name(),
			Code:      llm.CodeNetwork,
			Message:   err.Error(),
			Retryable: true,
			Err:       err,
		}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return llm.Response{}, &llm.Error{
			Provider:  p.Name(),
			Code:      llm.CodeNetwork,
			Message:   fmt.Sprintf("read body: %v", err),
			Retryable: true,
			Err:       err,
		}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return llm.Response{}, p.statusError(httpResp, body)
	}

	var raw chatCompletionsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return llm.Response{}, &llm.Error{
			Provider:  p.Name(),
			Code:      llm.CodeServerError,
			Message:   fmt.Sprintf("decode response: %v", err),
			Retryable: true,
			Err:       err,
		}
	}

	text := extractText(raw)
	if text == "" {
		return llm.Response{}, &llm.Error{
			Provider:  p.Name(),
			Code:      llm.CodeServerError,
			Message:   "response without text output",
			Retryable: true,
		}
	}

	respModel := strings.TrimSpace(raw.Model)
	if respModel == "" {
		respModel = model
	}
	return llm.Response{
		Text:     text,
		Model:    respModel,
		Provider: p.Name(),
		Usage: llm.TokenUsage{
			PromptTokens:     raw.Usage.PromptTokens,
			CompletionTokens: raw.Usage.CompletionTokens,
			TotalTokens:      raw.Usage.TotalTokens,
		},
	}, nil
}

func (p *Provider) statusError(resp *http.Response, body []byte) error {
	message := strings.TrimSpace(string(body))
	if len(message) > 700 {
		message = message[:700]
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &llm.Error{Provider: p.Name(), Code: llm.CodeAuth, Message: message, Retryable: false}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &llm.Error{
			Provider:   p.Name(),
			Code:       llm.CodeRateLimited,
			Message:    message,
			Retryable:  true,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return &llm.Error{Provider: p.Name(), Code: llm.CodeServerError, Message: message, Retryable: true}
	default:
		return &llm.Error{Provider: p.Name(), Code: llm.CodeInvalidRequest, Message: message, Retryable: false}
	}
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

type chatCompletionsResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func extractText(resp chatCompletionsResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	switch typed := resp.Choices[0].Message.Content.(type) {
	case string:
		return strings.TrimSpace(typed)
	case []any:
		fragments := make([]string, 0, len(typed))
		for _, item := range typed {
			fragment, ok := item.(map[string]any)
			if !ok {
				continue
			}
			textValue, _ := fragment["text"].(string)
			if strings.TrimSpace(textValue) == "" {
				continue
			}
			fragments = append(fragments, strings.TrimSpace(textValue))
		}
		return strings.TrimSpace(strings.Join(fragments, "\n"))
	default:
		return ""
	}
}

var _ llm.Provider = (*Provider)(nil)

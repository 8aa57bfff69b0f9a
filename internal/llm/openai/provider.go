package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kingsmanrocky-max/account-intelligence/internal/llm"
)

// Provider implements llm.Provider using the OpenAI Chat Completions API.
type Provider struct {
	client *goopenai.Client
	model  string
}

// New constructs an OpenAI provider.
func New(apiKey, model string) (*Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	return &Provider{
		client: goopenai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Name returns the provider id used in accounting and logs.
func (p *Provider) Name() string { return "openai" }

// Complete executes one chat completion call.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = p.model
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return llm.Response{}, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, &llm.Error{
			Provider:  p.Name(),
			Code:      llm.CodeServerError,
			Message:   "response missing choices",
			Retryable: true,
		}
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return llm.Response{}, &llm.Error{
			Provider:  p.Name(),
			Code:      llm.CodeServerError,
			Message:   "response empty content",
			Retryable: true,
		}
	}

	return llm.Response{
		Text:     text,
		Model:    resp.Model,
		Provider: p.Name(),
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (p *Provider) classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return &llm.Error{Provider: p.Name(), Code: llm.CodeAuth, Message: apiErr.Message, Retryable: false, Err: err}
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &llm.Error{Provider: p.Name(), Code: llm.CodeRateLimited, Message: apiErr.Message, Retryable: true, Err: err}
		case apiErr.HTTPStatusCode >= 500:
			return &llm.Error{Provider: p.Name(), Code: llm.CodeServerError, Message: apiErr.Message, Retryable: true, Err: err}
		default:
			return &llm.Error{Provider: p.Name(), Code: llm.CodeInvalidRequest, Message: apiErr.Message, Retryable: false, Err: err}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &llm.Error{Provider: p.Name(), Code: llm.CodeNetwork, Message: "request timeout", Retryable: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &llm.Error{Provider: p.Name(), Code: llm.CodeNetwork, Message: netErr.Error(), Retryable: true, Err: err}
	}
	return &llm.Error{Provider: p.Name(), Code: llm.CodeNetwork, Message: err.Error(), Retryable: true, Err: err}
}

// Speech renders text to audio via the OpenAI speech endpoint. Used by the
// podcast pipeline; kept here so all OpenAI API access shares one client.
func (p *Provider) Speech(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	if speed <= 0 {
		speed = 1.0
	}
	resp, err := p.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model: goopenai.TTSModel1,
		Input: text,
		Voice: goopenai.SpeechVoice(voice),
		Speed: speed,
	})
	if err != nil {
		return nil, p.classify(err)
	}
	defer resp.Close()

	buf := make([]byte, 0, 1<<20)
	tmp := make([]byte, 32*1024)
	for {
		n, readErr := resp.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if readErr != nil {
			break
		}
	}
	if len(buf) == 0 {
		return nil, &llm.Error{Provider: p.Name(), Code: llm.CodeServerError, Message: "empty audio response", Retryable: true}
	}
	return buf, nil
}

var _ llm.Provider = (*Provider)(nil)

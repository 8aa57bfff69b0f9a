package llm

import "context"

// Request describes one completion call.
type Request struct {
	System      string
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// TokenUsage reports token accounting from a provider response.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a successful completion.
type Response struct {
	Text     string
	Model    string
	Provider string
	Usage    TokenUsage
}

// Provider executes completion requests against one vendor API.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

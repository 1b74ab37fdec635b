package out

import "context"

// CompletionRequest is a single system+user chat turn.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32
}

type CompletionResult struct {
	Text         string
	Model        string
	PromptTokens int
	OutputTokens int
}

// LLMClient generates text from a prompt.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

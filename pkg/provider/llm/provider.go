// Package llm defines the text-completion provider interface used by the
// dialogue enhancement batch. One request in, one complete response out —
// the enhancement contract needs the whole JSON array at once, so streaming
// is deliberately not part of this interface.
package llm

import "context"

// CompletionRequest is one completion invocation.
type CompletionRequest struct {
	// SystemPrompt primes the model. Optional.
	SystemPrompt string

	// Prompt is the user-role content.
	Prompt string

	// Temperature, when non-zero, overrides the provider default.
	Temperature float64

	// MaxTokens caps the response length. 0 uses the provider default.
	MaxTokens int
}

// Usage reports token accounting when the provider supplies it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the provider's complete answer.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider produces text completions.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

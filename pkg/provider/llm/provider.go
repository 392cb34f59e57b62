// Package llm defines the completion gateway used by the clustering engine.
//
// The engine is written against the Provider interface so that concrete
// backends (OpenAI-compatible endpoints, the any-llm router, test mocks) are
// interchangeable. Implementations live in subpackages and are selected by
// configuration at startup.
package llm

import "context"

// Message is a single conversational message sent to a completion backend.
type Message struct {
	// Role identifies the author: "system", "user" or "assistant".
	Role string `json:"role"`
	// Content is the plain-text body of the message.
	Content string `json:"content"`
}

// Usage reports token consumption for a single completion call.
type Usage struct {
	// PromptTokens is the number of tokens in the submitted prompt.
	PromptTokens int
	// CompletionTokens is the number of tokens in the generated reply.
	CompletionTokens int
	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest describes one completion call.
type CompletionRequest struct {
	// SystemPrompt is prepended as the system message when non-empty.
	SystemPrompt string
	// Messages is the ordered conversation to complete.
	Messages []Message
	// Temperature controls sampling randomness. Zero means the provider default.
	Temperature float64
	// MaxTokens caps the length of the generated reply. Zero means the
	// provider default.
	MaxTokens int
}

// CompletionResponse is the reply to a CompletionRequest.
type CompletionResponse struct {
	// Content is the full generated text.
	Content string
	// Usage reports token consumption, if the backend supplies it.
	Usage Usage
}

// ModelCapabilities describes limits of the configured model.
type ModelCapabilities struct {
	// ContextWindow is the maximum total tokens (prompt + completion) the
	// model accepts.
	ContextWindow int
	// MaxOutputTokens is the maximum completion length the model can produce.
	MaxOutputTokens int
}

// Provider is a completion backend.
//
// Implementations must be safe for concurrent use. Complete must honor
// cancellation of the passed context.
type Provider interface {
	// Complete performs a blocking completion call and returns the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the token footprint of the given messages for
	// this provider's tokenizer. Estimates may be approximate; callers use
	// them for budgeting, not billing.
	CountTokens(messages []Message) (int, error)

	// Capabilities reports limits of the configured model.
	Capabilities() ModelCapabilities
}

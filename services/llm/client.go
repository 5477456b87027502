package llm

import "context"

// GenerationParams carries optional sampling controls for a generation
// request. Nil pointers mean "backend default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any text-generation backend.
// Callers treat the returned text as untrusted: no schema is guaranteed
// even when the prompt demands structured output.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

package schemas

import "context"

// -- Core Service Interfaces --

// GenerationOptions tune a single LLM call.
type GenerationOptions struct {
	// Temperature biases determinism; corrections run near zero so edits stay
	// minimal and targeted.
	Temperature float64
	// ForceJSONFormat requests a strict JSON response body.
	ForceJSONFormat bool
	// MaxTokens caps the response length; zero means the model default.
	MaxTokens int
}

// GenerationRequest is one prompt pair sent to an LLM backend.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Options      GenerationOptions
}

// LLMClient abstracts the text-generation backend. Implementations must be
// safe for concurrent use and must honor the context deadline.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// Generator produces a FileSet from a Contract. Implementations are swappable:
// the LLM-backed generator for real work, a deterministic fallback that always
// succeeds for offline operation and as the last resort before a cycle fails.
type Generator interface {
	// Generate builds a fresh FileSet. extra carries trigger-specific context
	// such as recent error-level log lines during remediation.
	Generate(ctx context.Context, contract *Contract, trigger TriggerKind, extra string) (*FileSet, error)
}

// Corrector revises a FileSet according to feedback from a failed pipeline
// run. Files without issues pass through unchanged.
type Corrector interface {
	Correct(ctx context.Context, fileSet *FileSet, feedback *Feedback, contract *Contract) (*FileSet, error)
}

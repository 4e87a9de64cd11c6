// Package text implements the Text LLM adapter (§4.A): one typed
// operation against an OpenAI-compatible or Ollama chat endpoint,
// returning the raw text body verbatim for the Prompt Assembler to parse.
package text

import (
	"context"
	"time"
)

// Request is the adapter's single typed input.
type Request struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Adapter is the Text LLM adapter contract. Exactly one operation.
type Adapter interface {
	GenerateText(ctx context.Context, req Request) (string, error)
}

// DefaultTimeout is the adapter's per-call deadline (§4.A default: 60s).
const DefaultTimeout = 60 * time.Second

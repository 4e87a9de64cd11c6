// Package image implements the Image adapter (§4.A): a typed prompt-to-bytes
// call against a text-to-image HTTP API, with base64 decoding when the
// upstream returns base64 payloads.
package image

import (
	"context"
	"time"
)

// Request is the adapter's typed input.
type Request struct {
	Prompt string
	Width  int
	Height int
	Steps  int
	Seed   int64 // 0 means "unspecified"
}

// Adapter is the Image adapter contract. Exactly one operation.
type Adapter interface {
	GenerateImage(ctx context.Context, req Request) ([]byte, error)
}

// DefaultTimeout is the adapter's per-call deadline (§4.A default: 120s).
const DefaultTimeout = 120 * time.Second

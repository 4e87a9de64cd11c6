// Package audio implements the Audio adapter (§4.A): narration text in,
// raw MP3 bytes out, against an ElevenLabs-compatible text-to-speech API.
package audio

import (
	"context"
	"time"
)

// Request is the adapter's typed input.
type Request struct {
	Text    string
	VoiceID string
	HQ      bool // quality flag: true selects the higher-fidelity model
}

// Adapter is the Audio adapter contract. Exactly one operation.
type Adapter interface {
	GenerateAudio(ctx context.Context, req Request) ([]byte, error)
}

// DefaultTimeout is the adapter's per-call deadline (§4.A default: 120s).
const DefaultTimeout = 120 * time.Second

package audio

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// mockAdapter returns canned audio bytes from a fixture directory, per
// §4.A's mock_ai contract.
type mockAdapter struct {
	fixtureDir string
	delay      time.Duration
}

// NewMockAdapter builds a mock Audio adapter.
func NewMockAdapter(fixtureDir string, delay time.Duration) Adapter {
	return &mockAdapter{fixtureDir: fixtureDir, delay: delay}
}

// fallbackMP3 is a near-empty but valid MP3 frame header, used when no
// fixture file is present. Padded past the blob store's minimum-payload
// threshold so mock mode never trips the same "empty body" guard a real
// provider would.
var fallbackMP3 = append([]byte{0xff, 0xfb, 0x90, 0x64, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, make([]byte, 100)...)

func (a *mockAdapter) GenerateAudio(ctx context.Context, req Request) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(a.delay):
	}

	if a.fixtureDir != "" {
		path := filepath.Join(a.fixtureDir, "audio.mp3")
		if b, err := os.ReadFile(path); err == nil {
			return b, nil
		}
	}
	return fallbackMP3, nil
}

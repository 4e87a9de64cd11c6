package image

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// mockAdapter returns canned image bytes from a fixture directory, per
// §4.A's mock_ai contract.
type mockAdapter struct {
	fixtureDir string
	delay      time.Duration
}

// NewMockAdapter builds a mock Image adapter.
func NewMockAdapter(fixtureDir string, delay time.Duration) Adapter {
	return &mockAdapter{fixtureDir: fixtureDir, delay: delay}
}

// fallbackPNG is a tiny 1x1 PNG, used when no fixture file is present. It is
// padded past the blob store's minimum-payload threshold so mock mode never
// trips the same "empty body" guard a real provider would.
var fallbackPNG = append([]byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}, make([]byte, 64)...)

func (a *mockAdapter) GenerateImage(ctx context.Context, req Request) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(a.delay):
	}

	if a.fixtureDir != "" {
		path := filepath.Join(a.fixtureDir, "image.png")
		if b, err := os.ReadFile(path); err == nil {
			return b, nil
		}
	}
	return fallbackPNG, nil
}

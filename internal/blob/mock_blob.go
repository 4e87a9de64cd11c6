package blob

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// mockUploader fabricates deterministic URLs without any network I/O,
// used together with mock_ai so the full pipeline can run end to end
// against canned fixtures (§8 "mock mode with zero delay").
type mockUploader struct {
	publicURLBase string
}

// NewMockUploader builds a mock Blob Uploader.
func NewMockUploader(publicURLBase string) Uploader {
	if publicURLBase == "" {
		publicURLBase = "https://mock-blob.local"
	}
	return &mockUploader{publicURLBase: publicURLBase}
}

func (u *mockUploader) PutImage(ctx context.Context, storyID uuid.UUID, sequence int, data []byte) (string, error) {
	return u.put(storyID, sequence, KindImage, data)
}

func (u *mockUploader) PutAudio(ctx context.Context, storyID uuid.UUID, sequence int, data []byte) (string, error) {
	return u.put(storyID, sequence, KindAudio, data)
}

func (u *mockUploader) put(storyID uuid.UUID, sequence int, kind Kind, data []byte) (string, error) {
	if err := validate(data); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", u.publicURLBase, path(storyID, sequence, kind)), nil
}

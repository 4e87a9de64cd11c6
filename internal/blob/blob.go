// Package blob implements the Blob Uploader (§4.B): idempotent upload of
// derived media bytes to an object store under a deterministic path,
// returning a public URL.
package blob

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
)

// Kind distinguishes the two media buckets.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

func (k Kind) ext() string {
	if k == KindAudio {
		return "mp3"
	}
	return "png"
}

// minPayloadBytes guards against an upstream provider returning an empty
// body masquerading as success (§4.B).
const minPayloadBytes = 100

// ErrNotWritable indicates a permission or bucket-configuration problem.
var ErrNotWritable = errors.New("blob store not writable")

// ErrInvalidPayload indicates the bytes are below the minimum size
// threshold.
var ErrInvalidPayload = errors.New("payload below minimum size threshold")

// Uploader is the Blob Uploader contract.
type Uploader interface {
	PutImage(ctx context.Context, storyID uuid.UUID, sequence int, data []byte) (string, error)
	PutAudio(ctx context.Context, storyID uuid.UUID, sequence int, data []byte) (string, error)
}

// validate enforces the minimum-size guard common to both operations.
func validate(data []byte) error {
	if len(data) < minPayloadBytes {
		return ErrInvalidPayload
	}
	return nil
}

// path builds the deterministic object key for (storyID, sequence, kind):
// "<story_id>/<sequence>.<ext>" — the bucket is selected separately per
// media kind, matching the path convention of §4.B.
func path(storyID uuid.UUID, sequence int, kind Kind) string {
	return storyID.String() + "/" + strconv.Itoa(sequence) + "." + kind.ext()
}

package domain

import (
	"context"
	"io"
)

// BlobWriter stores raw upstream snapshots for replay and audit. Optional;
// the synchronizer runs without one.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

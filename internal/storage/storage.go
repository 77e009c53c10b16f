package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Open for an unknown key.
var ErrNotFound = errors.New("attachment not found")

// AttachmentStore keeps report photos and hands back opaque references.
// This allows switching between S3 and in-memory implementations.
type AttachmentStore interface {
	// Upload stores a photo for reportID and returns its key
	Upload(ctx context.Context, reportID, contentType string, r io.Reader) (string, error)

	// Open retrieves a stored photo and its content type
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)

	// URL returns the public location of key
	URL(key string) string

	// Delete removes a stored photo. Unknown keys are not an error.
	Delete(ctx context.Context, key string) error
}

// PhotoPrefix is the key prefix shared by every photo of reportID.
func PhotoPrefix(reportID string) string {
	return fmt.Sprintf("reports/%s/", reportID)
}

// PhotoKey generates the storage key for a new photo of reportID.
func PhotoKey(reportID, contentType string) string {
	ext := ""
	if m := mimetype.Lookup(contentType); m != nil {
		ext = m.Extension()
	}
	return PhotoPrefix(reportID) + uuid.New().String() + ext
}

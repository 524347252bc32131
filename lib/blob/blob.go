// Package blob defines the storage adapter the publisher and installer push
// and pull package/asset bytes through (spec.md 5), the same role
// gravitational-gravity/lib/blob.Objects plays for cluster installer BLOBs.
// Unlike the teacher, which addresses a BLOB purely by its own SHA512, this
// store addresses objects by caller-assigned logical key (an appid/version
// path or a content uid folded into that path), since spec.md's content
// addressing already happened one layer up in lib/manifest and lib/loc.
package blob

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Envelope describes a stored object's size and modification time, mirroring
// gravitational-gravity/lib/blob.Envelope's role without the SHA512 field
// (the key itself already carries the content identity here).
type Envelope struct {
	SizeBytes int64     `json:"size_bytes"`
	Modified  time.Time `json:"modified"`
}

func (e Envelope) String() string {
	return fmt.Sprintf("blob(size=%v, modified=%v)", e.SizeBytes, e.Modified.Format(time.RFC3339))
}

// ReadSeekCloser mirrors gravitational-gravity/lib/blob.ReadSeekCloser.
type ReadSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}

// Store is the Blob Store Adapter of spec.md 5: upload, download, delete,
// keyed by caller-chosen logical path (e.g. "apps/<appid>/assets/<uid>").
type Store interface {
	io.Closer
	// Upload streams src to key, overwriting any existing object.
	Upload(ctx context.Context, key string, src io.Reader) (*Envelope, error)
	// Download opens key for reading.
	Download(ctx context.Context, key string) (ReadSeekCloser, error)
	// Delete removes key. Deleting a missing key is a deperrors.BlobNotFound
	// error, not a no-op; the publisher's upload-then-delete path (DESIGN.md
	// Open Question 2) checks for it and treats the old blob as already gone.
	Delete(ctx context.Context, key string) error
	// Stat returns key's envelope without opening it.
	Stat(ctx context.Context, key string) (*Envelope, error)
	// List returns every key under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

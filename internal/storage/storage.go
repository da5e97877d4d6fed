// Package storage abstracts the object stores the pipeline reads from and
// writes to. Globs are matched segment-wise, so a pattern crosses exactly
// the directory depth it spells out, matching the fixed nesting of the
// input layout.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Filesystem is a rooted file tree on local disk or object storage. All
// names are slash-separated paths relative to the root.
type Filesystem interface {
	// Root returns the root this filesystem was opened at.
	Root() string

	// List returns the names matching the segment-wise glob pattern,
	// sorted lexically.
	List(ctx context.Context, glob string) ([]string, error)

	// Open opens the named file for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Create creates the named file for writing, making parent
	// directories as needed. The write is durable once Close returns.
	Create(ctx context.Context, name string) (io.WriteCloser, error)

	// Join joins path elements into a name under the root.
	Join(elem ...string) string
}

// S3Options carries the explicit credentials and region for the S3
// backend. Credentials are scoped to the client, never set process-wide.
type S3Options struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

// ParseRoot opens the backend matching the root's scheme: s3:// (or its
// alias s3a://) for object storage, anything else for the local disk.
func ParseRoot(ctx context.Context, root string, opts S3Options) (Filesystem, error) {
	switch {
	case strings.HasPrefix(root, "s3://"), strings.HasPrefix(root, "s3a://"):
		return NewS3(ctx, root, opts)
	case strings.Contains(root, "://"):
		return nil, fmt.Errorf("unsupported storage scheme in root %q", root)
	default:
		return NewLocal(root), nil
	}
}

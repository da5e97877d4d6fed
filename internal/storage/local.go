package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Local is a Filesystem rooted at a directory on the local disk.
type Local struct {
	root string
}

// NewLocal returns a local filesystem rooted at root. The directory need
// not exist yet; Create makes it on demand.
func NewLocal(root string) *Local {
	return &Local{root: filepath.Clean(root)}
}

// Root returns the root directory.
func (l *Local) Root() string {
	return l.root
}

// Join joins path elements into a slash-separated name under the root.
func (l *Local) Join(elem ...string) string {
	return path.Join(elem...)
}

// List walks the tree under the root and returns names matching the glob.
// A missing root is an error: an unreachable input layout should fail the
// run, not silently produce zero files.
func (l *Local) List(ctx context.Context, glob string) ([]string, error) {
	if _, err := os.Stat(l.root); err != nil {
		return nil, fmt.Errorf("storage root %s is not accessible: %w", l.root, err)
	}

	var names []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		ok, err := matchGlob(glob, name)
		if err != nil {
			return err
		}
		if ok {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s under %s: %w", glob, l.root, err)
	}

	sort.Strings(names)
	return names, nil
}

// Open opens the named file under the root.
func (l *Local) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(l.abs(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return f, nil
}

// Create creates the named file under the root, making parent directories
// as needed.
func (l *Local) Create(_ context.Context, name string) (io.WriteCloser, error) {
	p := l.abs(name)
	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	return f, nil
}

func (l *Local) abs(name string) string {
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(name, "/")))
}

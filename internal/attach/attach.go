// Package attach abstracts the external attachment store. The core persists
// only the (task, filename, url) triple; the blob lives behind this
// interface.
package attach

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
)

// Store accepts a binary blob associated with a task and returns a
// retrievable URL.
type Store interface {
	Save(ctx context.Context, taskID, filename string, r io.Reader) (string, error)
}

// FSStore keeps attachments on the local filesystem and serves them from a
// base URL path.
type FSStore struct {
	root    string
	baseURL string
}

// NewFSStore builds a filesystem store rooted at dir, with URLs under
// baseURL (e.g. "/files").
func NewFSStore(dir, baseURL string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty attachment directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment directory: %w", err)
	}
	return &FSStore{root: dir, baseURL: baseURL}, nil
}

// Root returns the directory blobs are stored under, for static mounting.
func (s *FSStore) Root() string {
	return s.root
}

// Save writes the blob under a per-task directory with a random prefix so
// repeated uploads of the same filename never collide.
func (s *FSStore) Save(_ context.Context, taskID, filename string, r io.Reader) (string, error) {
	name := uuid.NewString()[:8] + "-" + filepath.Base(filename)
	dir := filepath.Join(s.root, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create task directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("create attachment file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close attachment: %w", err)
	}
	return path.Join(s.baseURL, taskID, name), nil
}

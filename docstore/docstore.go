// Package docstore stores document artifacts keyed by identifier.
// Signing materializes new artifacts; the store never rewrites an
// artifact under a different identifier.
package docstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound = errors.New("document not found")
	ErrBadDocID = errors.New("invalid document identifier")
)

// Store is keyed blob storage for PDF documents.
type Store interface {
	// Read returns the full document bytes.
	Read(id string) ([]byte, error)
	// Write stores the document bytes under id, replacing any prior
	// content atomically.
	Write(id string, data []byte) error
	// NewVersionID mints an identifier for a new document version.
	NewVersionID() string
}

// FileStore keeps documents as files in a single directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store
// over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create document dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// path validates the id against traversal and resolves it.
func (s *FileStore) path(id string) (string, error) {
	if id == "" || strings.Contains(id, "/") || strings.Contains(id, "\\") || strings.Contains(id, "..") {
		return "", fmt.Errorf("%w: %q", ErrBadDocID, id)
	}
	return filepath.Join(s.dir, id), nil
}

// Read returns the document bytes.
func (s *FileStore) Read(id string) ([]byte, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return data, nil
}

// Write stores the document, using a temp file and rename so a crash
// mid-write leaves prior content intact.
func (s *FileStore) Write(id string, data []byte) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-doc-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace document: %w", err)
	}
	return nil
}

// NewVersionID mints a signed-document artifact name.
func (s *FileStore) NewVersionID() string {
	return "signed_" + uuid.NewString() + ".pdf"
}

// NewUploadID mints an identifier for a freshly uploaded document.
func NewUploadID() string {
	return uuid.NewString() + ".pdf"
}

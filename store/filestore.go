package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/georgepadayatti/signflow/session"
)

// FileStore keeps one JSON file per session under sessionsDir and one
// per template under templatesDir. Writes go through a temp file and
// rename so a crash mid-write never corrupts a record.
type FileStore struct {
	sessionsDir  string
	templatesDir string
}

// NewFileStore creates the directories if needed.
func NewFileStore(sessionsDir, templatesDir string) (*FileStore, error) {
	for _, dir := range []string{sessionsDir, templatesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store dir: %w", err)
		}
	}
	return &FileStore{sessionsDir: sessionsDir, templatesDir: templatesDir}, nil
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	return nil
}

// Load reads a session record.
func (s *FileStore) Load(ctx context.Context, id string) (*session.Session, error) {
	if err := validKey(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.sessionsDir, id+".json"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Save replaces a session record atomically.
func (s *FileStore) Save(ctx context.Context, id string, sess *session.Session) error {
	if err := validKey(id); err != nil {
		return err
	}
	return writeJSON(s.sessionsDir, id+".json", sess)
}

// Create stores a new session record. It shares Save's atomicity; ids
// are minted by the caller and never reused.
func (s *FileStore) Create(ctx context.Context, id string, sess *session.Session) error {
	return s.Save(ctx, id, sess)
}

// LoadTemplate reads a template record.
func (s *FileStore) LoadTemplate(ctx context.Context, name string) (*session.Template, error) {
	if err := validKey(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.templatesDir, name+".json"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	var t session.Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", name, err)
	}
	return &t, nil
}

// SaveTemplate stores a template record.
func (s *FileStore) SaveTemplate(ctx context.Context, name string, t *session.Template) error {
	if err := validKey(name); err != nil {
		return err
	}
	return writeJSON(s.templatesDir, name+".json", t)
}

// ListTemplates returns the saved template names, sorted.
func (s *FileStore) ListTemplates(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.templatesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func writeJSON(dir, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace record: %w", err)
	}
	return nil
}

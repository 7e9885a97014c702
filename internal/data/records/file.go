// # internal/data/records/file.go
package records

import (
	"bundlegraph/internal/shared/util"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// FileStore keeps records in a TOML document. Saves go through a temp file
// and rename so a crashed build never leaves a truncated file behind.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("records path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("records path %q is a directory, expected file", cleanPath)
	}
	return &FileStore{path: cleanPath}, nil
}

func (s *FileStore) Load(context.Context) (*Records, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := New()
	if _, err := toml.DecodeFile(s.path, r); err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("decode records %q: %w", s.path, err)
	}
	r.normalize()
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("records %q: %w", s.path, err)
	}
	return r, nil
}

func (s *FileStore) Save(_ context.Context, r *Records) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(r.Clone()); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	if err := util.WriteFileAtomic(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

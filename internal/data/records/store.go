// # internal/data/records/store.go
package records

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const (
	DriverMemory = "memory"
	DriverTOML   = "toml"
	DriverSQLite = "sqlite"
)

// Store persists records between builds. Load on an empty store returns
// empty records, not an error.
type Store interface {
	Load(ctx context.Context) (*Records, error)
	Save(ctx context.Context, r *Records) error
	Close() error
}

// Open returns the store for driver at path.
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverTOML:
		return NewFileStore(path)
	case DriverSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown records driver %q", driver)
	}
}

type MemoryStore struct {
	mu sync.Mutex
	r  *Records
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (*Records, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, r *Records) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r = r.Clone()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

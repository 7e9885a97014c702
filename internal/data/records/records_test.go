package records

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecords_AssignReusesPreviousIDs(t *testing.T) {
	prev := New()
	prev.Modules["src/a.js"] = 4
	prev.Chunks["app"] = 2
	prev.NextModuleID = 5
	prev.NextChunkID = 3

	next := prev.Successor()
	assert.Equal(t, 4, next.AssignModule(prev, "src/a.js"))
	assert.Equal(t, 5, next.AssignModule(prev, "src/b.js"))
	assert.Equal(t, 5, next.AssignModule(prev, "src/b.js"), "assignment is idempotent")
	assert.Equal(t, 2, next.AssignChunk(prev, "app"))
	assert.Equal(t, 3, next.AssignChunk(prev, "vendor"))

	assert.NoError(t, next.Validate())
	assert.Equal(t, 6, next.NextModuleID)
}

func TestRecords_NilPreviousStartsFromZero(t *testing.T) {
	var prev *Records
	next := prev.Successor()
	assert.Equal(t, 0, next.AssignChunk(prev, "app"))
	assert.Equal(t, 1, next.AssignChunk(prev, "vendor"))
}

func TestRecords_Validate(t *testing.T) {
	r := New()
	r.Modules["a"] = 1
	r.Modules["b"] = 1
	assert.Error(t, r.Validate())

	r = New()
	r.Chunks["x"] = -1
	assert.Error(t, r.Validate())

	r = New()
	r.Version = FormatVersion + 1
	assert.Error(t, r.Validate())
}

func sample() *Records {
	r := New()
	r.Modules["src/app.js"] = 0
	r.Modules["node_modules/react/index.js?raw"] = 1
	r.Chunks["app"] = 0
	r.Chunks["vendor"] = 1
	r.NextModuleID = 2
	r.NextChunkID = 7
	return r
}

func TestStores_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	stores := map[string]func() (Store, error){
		DriverMemory: func() (Store, error) { return Open(DriverMemory, "") },
		DriverTOML:   func() (Store, error) { return Open(DriverTOML, filepath.Join(dir, "nested", "records.toml")) },
		DriverSQLite: func() (Store, error) { return Open(DriverSQLite, filepath.Join(dir, "records.db")) },
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := open()
			require.NoError(t, err)
			defer s.Close()

			empty, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, empty.Modules)
			assert.Empty(t, empty.Chunks)

			require.NoError(t, s.Save(ctx, sample()))
			got, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, sample(), got)

			// A second save replaces the previous document.
			smaller := New()
			smaller.Chunks["app"] = 0
			smaller.NextChunkID = 9
			require.NoError(t, s.Save(ctx, smaller))
			got, err = s.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, got.Modules)
			assert.Equal(t, 9, got.NextChunkID)
		})
	}
}

func TestStores_RejectInvalidRecords(t *testing.T) {
	bad := New()
	bad.Chunks["a"] = 1
	bad.Chunks["b"] = 1

	s, err := Open(DriverTOML, filepath.Join(t.TempDir(), "records.toml"))
	require.NoError(t, err)
	assert.Error(t, s.Save(context.Background(), bad))
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.toml")
	require.NoError(t, os.WriteFile(path, []byte("modules = ["), 0o644))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	assert.Error(t, err)
}

func TestOpen_RejectsUnknownDriverAndDirectories(t *testing.T) {
	_, err := Open("redis", "x")
	assert.Error(t, err)

	_, err = Open(DriverSQLite, t.TempDir())
	assert.Error(t, err)
}

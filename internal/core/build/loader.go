// # internal/core/build/loader.go
package build

import (
	"bundlegraph/internal/engine/graph"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
)

// Loader reads module source by identity. The query part of the identity
// does not change which bytes are read.
type Loader interface {
	Load(identity graph.Identity) ([]byte, error)
}

// FSLoader loads modules from a project filesystem rooted where identities
// are rooted.
type FSLoader struct {
	fsys fs.FS
}

func NewFSLoader(fsys fs.FS) *FSLoader {
	return &FSLoader{fsys: fsys}
}

func (l *FSLoader) Load(identity graph.Identity) ([]byte, error) {
	data, err := fs.ReadFile(l.fsys, identity.Path)
	if err != nil {
		return nil, fmt.Errorf("load module %q: %w", identity.Path, err)
	}
	return data, nil
}

// contentHash covers the bytes and the query, since a query variant is a
// different module built from the same file.
func contentHash(identity graph.Identity, content []byte) string {
	h := sha256.New()
	h.Write(content)
	if identity.Query != "" {
		h.Write([]byte{0})
		h.Write([]byte(identity.Query))
	}
	return hex.EncodeToString(h.Sum(nil))
}

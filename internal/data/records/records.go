// # internal/data/records/records.go
package records

import (
	"fmt"
	"sort"
)

// FormatVersion is bumped whenever the meaning of stored ids changes.
const FormatVersion = 1

// Records carries id assignments from one build to the next so that
// unchanged modules and chunks keep their numeric ids.
type Records struct {
	Version      int            `toml:"version" json:"version"`
	Modules      map[string]int `toml:"modules" json:"modules"`
	Chunks       map[string]int `toml:"chunks" json:"chunks"`
	NextModuleID int            `toml:"next_module_id" json:"nextModuleId"`
	NextChunkID  int            `toml:"next_chunk_id" json:"nextChunkId"`
}

func New() *Records {
	return &Records{
		Version: FormatVersion,
		Modules: make(map[string]int),
		Chunks:  make(map[string]int),
	}
}

// Clone returns a deep copy. A nil receiver yields empty records.
func (r *Records) Clone() *Records {
	out := New()
	if r == nil {
		return out
	}
	for k, v := range r.Modules {
		out.Modules[k] = v
	}
	for k, v := range r.Chunks {
		out.Chunks[k] = v
	}
	out.NextModuleID = r.NextModuleID
	out.NextChunkID = r.NextChunkID
	out.normalize()
	return out
}

// normalize repairs counters so new ids never collide with recorded ones.
func (r *Records) normalize() {
	if r.Modules == nil {
		r.Modules = make(map[string]int)
	}
	if r.Chunks == nil {
		r.Chunks = make(map[string]int)
	}
	for _, id := range r.Modules {
		if id >= r.NextModuleID {
			r.NextModuleID = id + 1
		}
	}
	for _, id := range r.Chunks {
		if id >= r.NextChunkID {
			r.NextChunkID = id + 1
		}
	}
	r.Version = FormatVersion
}

// Successor starts the records of a new build: no assignments yet, but the
// id counters continue where r left off.
func (r *Records) Successor() *Records {
	prev := r.Clone()
	out := New()
	out.NextModuleID = prev.NextModuleID
	out.NextChunkID = prev.NextChunkID
	return out
}

// AssignModule gives identity the id recorded in prev, or a fresh one.
func (r *Records) AssignModule(prev *Records, identity string) int {
	if id, ok := r.Modules[identity]; ok {
		return id
	}
	id, ok := prev.lookupModule(identity)
	if !ok {
		id = r.NextModuleID
		r.NextModuleID++
	}
	r.Modules[identity] = id
	return id
}

// AssignChunk gives name the id recorded in prev, or a fresh one.
func (r *Records) AssignChunk(prev *Records, name string) int {
	if id, ok := r.Chunks[name]; ok {
		return id
	}
	id, ok := prev.lookupChunk(name)
	if !ok {
		id = r.NextChunkID
		r.NextChunkID++
	}
	r.Chunks[name] = id
	return id
}

func (r *Records) lookupModule(identity string) (int, bool) {
	if r == nil {
		return 0, false
	}
	id, ok := r.Modules[identity]
	return id, ok
}

func (r *Records) lookupChunk(name string) (int, bool) {
	if r == nil {
		return 0, false
	}
	id, ok := r.Chunks[name]
	return id, ok
}

// Validate reports duplicate or negative ids, which would break the
// uniqueness of ids handed out from these records.
func (r *Records) Validate() error {
	if r == nil {
		return nil
	}
	if r.Version > FormatVersion {
		return fmt.Errorf("records version %d is newer than supported version %d", r.Version, FormatVersion)
	}
	if err := checkUnique("module", r.Modules); err != nil {
		return err
	}
	return checkUnique("chunk", r.Chunks)
}

func checkUnique(kind string, ids map[string]int) error {
	owners := make(map[int]string, len(ids))
	keys := make([]string, 0, len(ids))
	for k := range ids {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		id := ids[k]
		if id < 0 {
			return fmt.Errorf("%s %q has negative id %d", kind, k, id)
		}
		if other, dup := owners[id]; dup {
			return fmt.Errorf("%s id %d is recorded for both %q and %q", kind, id, other, k)
		}
		owners[id] = k
	}
	return nil
}

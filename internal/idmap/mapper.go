package idmap

import (
	"sync"

	"github.com/google/uuid"
)

// Mapper translates identifiers of a foreign dataset into fresh UUIDs for
// the lifetime of one import run.
type Mapper struct {
	mu      sync.Mutex
	mapping map[string]string
}

func New() *Mapper {
	return &Mapper{mapping: make(map[string]string)}
}

// Map returns the new id for old, allocating one on first use. A nil old id
// always yields a fresh id that is not recorded.
func (m *Mapper) Map(old *string) string {
	if old == nil {
		return uuid.NewString()
	}
	return m.MapString(*old)
}

func (m *Mapper) MapString(old string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.mapping[old]; ok {
		return id
	}
	id := uuid.NewString()
	m.mapping[old] = id
	return id
}

func (m *Mapper) Get(old string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.mapping[old]
	return id, ok
}

func (m *Mapper) Has(old string) bool {
	_, ok := m.Get(old)
	return ok
}

// Record pins old to an id allocated elsewhere, e.g. by the database.
func (m *Mapper) Record(old, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mapping[old] = id
}

func (m *Mapper) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mapping)
}

func (m *Mapper) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mapping = make(map[string]string)
}

func (m *Mapper) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.mapping))
	for k, v := range m.mapping {
		out[k] = v
	}
	return out
}

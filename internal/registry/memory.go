package registry

import (
	"context"
	"sync"

	"github.com/joseph-ayodele/rxscan/constants"
)

// MemoryRegistry keeps entries for the life of the process.
type MemoryRegistry struct {
	entries sync.Map // id -> Entry
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{}
}

func (m *MemoryRegistry) Register(_ context.Context, id string, e Entry) error {
	if _, loaded := m.entries.LoadOrStore(id, e); loaded {
		return ErrDuplicate
	}
	return nil
}

func (m *MemoryRegistry) Lookup(_ context.Context, id string, v constants.Variant) (string, error) {
	raw, ok := m.entries.Load(id)
	if !ok {
		return "", ErrNotFound
	}
	return locate(raw.(Entry), v)
}

func (m *MemoryRegistry) Remove(_ context.Context, id string) error {
	m.entries.Delete(id)
	return nil
}

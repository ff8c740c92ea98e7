package docstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory keeps documents in a map. Used when storage.driver is "memory" and
// in tests.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	closed bool
}

func NewMemory() *Memory {
	return &Memory{docs: map[string][]byte{}}
}

func (m *Memory) Put(_ context.Context, collection, id string, doc []byte) error {
	k, err := key(collection, id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.docs[string(k)] = append([]byte(nil), doc...)
	return nil
}

func (m *Memory) Get(_ context.Context, collection, id string) ([]byte, error) {
	k, err := key(collection, id)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	doc, ok := m.docs[string(k)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	k, err := key(collection, id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.docs, string(k))
	return nil
}

func (m *Memory) Scan(ctx context.Context, collection string, fn func(id string, doc []byte) error) error {
	p := string(prefix(collection))

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	keys := make([]string, 0)
	for k := range m.docs {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	docs := make([][]byte, len(keys))
	for i, k := range keys {
		docs[i] = append([]byte(nil), m.docs[k]...)
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(strings.TrimPrefix(k, p), docs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

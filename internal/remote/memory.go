package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Hook runs before a Get or Set on the in-memory store; a non-nil error fails the call.
type Hook func(ctx context.Context, path string) error

// Memory is an in-process Store used for local development and tests.
type Memory struct {
	mu      sync.RWMutex
	values  map[string][]byte
	getHook Hook
	setHook Hook
	sets    map[string]int
}

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string][]byte),
		sets:   make(map[string]int),
	}
}

// Put stores value at path without going through hooks
func (m *Memory) Put(path string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("memory store: encode %s: %v", path, err))
	}
	m.PutRaw(path, data)
}

// PutRaw stores raw JSON text at path
func (m *Memory) PutRaw(path string, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[path] = append([]byte(nil), raw...)
}

// Delete removes path
func (m *Memory) Delete(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, path)
}

// OnGet installs a hook run before every Get
func (m *Memory) OnGet(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getHook = h
}

// OnSet installs a hook run before every Set
func (m *Memory) OnSet(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setHook = h
}

// SetCount returns how many Set calls reached path
func (m *Memory) SetCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets[path]
}

// Get returns the raw value at path
func (m *Memory) Get(ctx context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	hook := m.getHook
	m.mu.RUnlock()

	if hook != nil {
		if err := hook(ctx, path); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[path]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set writes value at path
func (m *Memory) Set(ctx context.Context, path string, value any) error {
	m.mu.Lock()
	m.sets[path]++
	hook := m.setHook
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, path); err != nil {
			return err
		}
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("set %s: encode value: %w", path, err)
	}
	m.PutRaw(path, data)
	return nil
}

// Close is a no-op
func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)

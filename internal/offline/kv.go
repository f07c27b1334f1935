package offline

import (
	"sort"
	"strings"
	"sync"
)

// KV is the durable key-value store everything local is persisted through.
// Delete of a missing key succeeds.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, val []byte) error
	Delete(key string) error
	// Scan visits keys with prefix in ascending key order.
	Scan(prefix string, fn func(key string, val []byte) error) error
	Close() error
}

// MemoryKV keeps everything in a map; nothing survives a restart.
type MemoryKV struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemoryKV() *MemoryKV { return &MemoryKV{m: make(map[string][]byte)} }

func (k *MemoryKV) Get(key string) ([]byte, bool, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (k *MemoryKV) Set(key string, val []byte) error {
	k.mu.Lock()
	k.m[key] = append([]byte(nil), val...)
	k.mu.Unlock()
	return nil
}

func (k *MemoryKV) Delete(key string) error {
	k.mu.Lock()
	delete(k.m, key)
	k.mu.Unlock()
	return nil
}

func (k *MemoryKV) Scan(prefix string, fn func(key string, val []byte) error) error {
	k.mu.RLock()
	keys := make([]string, 0, len(k.m))
	for key := range k.m {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	vals := make([][]byte, len(keys))
	sort.Strings(keys)
	for i, key := range keys {
		vals[i] = append([]byte(nil), k.m[key]...)
	}
	k.mu.RUnlock()

	for i, key := range keys {
		if err := fn(key, vals[i]); err != nil {
			return err
		}
	}
	return nil
}

func (k *MemoryKV) Close() error { return nil }

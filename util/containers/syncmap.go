// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package containers

import "sync"

type SyncMap[K any, V any] struct {
	internal sync.Map
}

func (m *SyncMap[K, V]) Load(key K) (V, bool) {
	val, found := m.internal.Load(key)
	if !found {
		var empty V
		return empty, false
	}
	return val.(V), true
}

func (m *SyncMap[K, V]) Store(key K, val V) {
	m.internal.Store(key, val)
}

// LoadOrStore returns the existing value for key if present and otherwise
// stores val. loaded reports whether the value was already there.
func (m *SyncMap[K, V]) LoadOrStore(key K, val V) (actual V, loaded bool) {
	got, loaded := m.internal.LoadOrStore(key, val)
	return got.(V), loaded
}

func (m *SyncMap[K, V]) Delete(key K) {
	m.internal.Delete(key)
}

func (m *SyncMap[K, V]) Range(fn func(key K, val V) bool) {
	m.internal.Range(func(key, val any) bool {
		return fn(key.(K), val.(V))
	})
}

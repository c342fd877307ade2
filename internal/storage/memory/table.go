package memory

import (
	"maps"
)

// table is a committed set of rows.
type table[K comparable, V any] map[K]V

// staged is a table seen through the uncommitted writes of one transaction.
type staged[K comparable, V any] struct {
	base   table[K, V]
	writes map[K]V
}

func stage[K comparable, V any](base table[K, V]) *staged[K, V] {
	return &staged[K, V]{base: base, writes: make(map[K]V)}
}

func (s *staged[K, V]) get(k K) (V, bool) {
	if v, ok := s.writes[k]; ok {
		return v, true
	}
	v, ok := s.base[k]
	return v, ok
}

func (s *staged[K, V]) put(k K, v V) {
	s.writes[k] = v
}

// each visits every visible row in no particular order.
func (s *staged[K, V]) each(fn func(K, V)) {
	for k, v := range s.writes {
		fn(k, v)
	}
	for k, v := range s.base {
		if _, ok := s.writes[k]; !ok {
			fn(k, v)
		}
	}
}

func (s *staged[K, V]) commit() {
	maps.Copy(s.base, s.writes)
}

package index

import (
	"cmp"
	"slices"
	"sync"

	"github.com/acorndb/acorndb/pkg/acornerr"
)

// Memory is an in-process scalar index over an ordered value type, held
// as a map from each value to its set of ids. Lookup is O(1) amortized;
// Range walks a maintained
// sorted key slice with a binary search for the bounds.
type Memory[T cmp.Ordered] struct {
	mu     sync.RWMutex
	name   string
	unique bool

	valueOf map[string]T          // id -> current indexed value
	ids     map[T]map[string]bool // value -> set of ids
	sorted  []T                   // distinct values, kept ascending
}

// NewMemory builds an empty Memory index named name. If unique is true,
// Put rejects assigning a value to a second distinct id.
func NewMemory[T cmp.Ordered](name string, unique bool) *Memory[T] {
	return &Memory[T]{
		name:    name,
		unique:  unique,
		valueOf: make(map[string]T),
		ids:     make(map[T]map[string]bool),
	}
}

func (m *Memory[T]) Name() string { return m.name }
func (m *Memory[T]) Unique() bool { return m.unique }

func (m *Memory[T]) Put(id string, value T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.valueOf[id]; ok && prev == value {
		return nil
	}

	if m.unique {
		if bucket, ok := m.ids[value]; ok {
			for existing := range bucket {
				if existing != id {
					return acornerr.ErrUniqueConstraintViolation
				}
			}
		}
	}

	if prev, ok := m.valueOf[id]; ok {
		m.removeFromBucket(prev, id)
	}

	m.valueOf[id] = value
	bucket, ok := m.ids[value]
	if !ok {
		bucket = make(map[string]bool)
		m.ids[value] = bucket
		m.insertSorted(value)
	}
	bucket[id] = true
	return nil
}

func (m *Memory[T]) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.valueOf[id]
	if !ok {
		return
	}
	delete(m.valueOf, id)
	m.removeFromBucket(value, id)
}

// removeFromBucket drops id from value's bucket, pruning the bucket
// (and the sorted key) when it becomes empty. Caller holds m.mu.
func (m *Memory[T]) removeFromBucket(value T, id string) {
	bucket, ok := m.ids[value]
	if !ok {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(m.ids, value)
		m.removeSorted(value)
	}
}

func (m *Memory[T]) insertSorted(value T) {
	i, found := slices.BinarySearch(m.sorted, value)
	if found {
		return
	}
	m.sorted = slices.Insert(m.sorted, i, value)
}

func (m *Memory[T]) removeSorted(value T) {
	i, found := slices.BinarySearch(m.sorted, value)
	if !found {
		return
	}
	m.sorted = slices.Delete(m.sorted, i, i+1)
}

func (m *Memory[T]) Lookup(value T) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket, ok := m.ids[value]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(bucket))
	for id := range bucket {
		out = append(out, id)
	}
	return out
}

func (m *Memory[T]) Range(min, max T) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lo, _ := slices.BinarySearch(m.sorted, min)
	hi, _ := slices.BinarySearch(m.sorted, max)
	// hi from BinarySearch points at the first element > max only when
	// max is absent; when present it points at max itself, so include it.
	for hi < len(m.sorted) && m.sorted[hi] == max {
		hi++
	}

	var out []string
	for _, v := range m.sorted[lo:hi] {
		for id := range m.ids[v] {
			out = append(out, id)
		}
	}
	return out
}

func (m *Memory[T]) Min() (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var zero T
	if len(m.sorted) == 0 {
		return zero, false
	}
	return m.sorted[0], true
}

func (m *Memory[T]) Max() (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var zero T
	if len(m.sorted) == 0 {
		return zero, false
	}
	return m.sorted[len(m.sorted)-1], true
}

func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.valueOf)
}

func (m *Memory[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valueOf = make(map[string]T)
	m.ids = make(map[T]map[string]bool)
	m.sorted = nil
}

func (m *Memory[T]) Stats() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Statistics{
		Name:           m.name,
		Unique:         m.unique,
		Entries:        len(m.valueOf),
		DistinctValues: len(m.sorted),
	}
}

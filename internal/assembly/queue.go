package assembly

import (
	"iter"
	"sync"
)

// Direction of an adjacent swap.
type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Queue is the ordered list of sources that defines output page order.
// All mutations are atomic; readers never observe a partial update.
type Queue struct {
	mu    sync.RWMutex
	items []*Source
}

// NewQueue returns a queue holding srcs in order.
func NewQueue(srcs ...*Source) *Queue {
	q := &Queue{}
	for _, s := range srcs {
		q.Append(s)
	}
	return q
}

// Append adds src to the tail. A source whose ID is already queued is
// ignored, so every queued source maps to exactly one output segment.
func (q *Queue) Append(src *Source) {
	if src == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexOf(src.ID) >= 0 {
		return
	}
	q.items = append(q.items, src)
}

// RemoveAt removes and returns the source at index.
func (q *Queue) RemoveAt(index int) (*Source, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.items) {
		return nil, &IndexOutOfRangeError{Index: index, Length: len(q.items)}
	}
	src := q.items[index]
	copy(q.items[index:], q.items[index+1:])
	q.items[len(q.items)-1] = nil
	q.items = q.items[:len(q.items)-1]
	return src, nil
}

// SwapAdjacent swaps the item at index with its neighbour in direction d.
// Moves past either end are silently ignored.
func (q *Queue) SwapAdjacent(index int, d Direction) {
	q.mu.Lock()
	defer q.mu.Unlock()

	target := index - 1
	if d == Down {
		target = index + 1
	}
	if index < 0 || index >= len(q.items) || target < 0 || target >= len(q.items) {
		return
	}
	q.items[index], q.items[target] = q.items[target], q.items[index]
}

// Len returns the number of queued sources.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// At returns the source at index.
func (q *Queue) At(index int) (*Source, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if index < 0 || index >= len(q.items) {
		return nil, &IndexOutOfRangeError{Index: index, Length: len(q.items)}
	}
	return q.items[index], nil
}

// indexOf returns the position of the source with id, or -1. The caller
// holds the lock.
func (q *Queue) indexOf(id string) int {
	for i, s := range q.items {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Snapshot copies the current order. Later queue mutations do not affect it.
func (q *Queue) Snapshot() Snapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()
	items := make([]*Source, len(q.items))
	copy(items, q.items)
	return Snapshot{items: items}
}

// Snapshot is an immutable ordered view of a queue.
type Snapshot struct {
	items []*Source
}

// All yields (position, source) pairs in order. It may be ranged over any
// number of times.
func (s Snapshot) All() iter.Seq2[int, *Source] {
	return func(yield func(int, *Source) bool) {
		for i, src := range s.items {
			if !yield(i, src) {
				return
			}
		}
	}
}

func (s Snapshot) Len() int { return len(s.items) }

func (s Snapshot) At(i int) *Source { return s.items[i] }

// IDs returns the source IDs in order.
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s.items))
	for i, src := range s.items {
		ids[i] = src.ID
	}
	return ids
}

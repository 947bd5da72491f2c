package assembly

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queueOf(t *testing.T, names ...string) (*Queue, []*Source) {
	t.Helper()
	srcs := make([]*Source, 0, len(names))
	for _, n := range names {
		srcs = append(srcs, newSource(t, n, "application/pdf", []byte("%PDF-1.4 "+n)))
	}
	return NewQueue(srcs...), srcs
}

func names(q *Queue) []string {
	var out []string
	for _, s := range q.Snapshot().All() {
		out = append(out, s.DisplayName)
	}
	return out
}

// TestQueue_Append tests tail insertion, nil handling and duplicate sources
func TestQueue_Append(t *testing.T) {
	q, srcs := queueOf(t, "a.pdf", "b.pdf")
	q.Append(nil)
	q.Append(srcs[0])
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, names(q))

	dup := NewQueue(srcs[1], srcs[0], srcs[1])
	assert.Equal(t, []string{"b.pdf", "a.pdf"}, names(dup))
}

// TestQueue_RemoveAt tests removal and out of range indices
func TestQueue_RemoveAt(t *testing.T) {
	q, srcs := queueOf(t, "a.pdf", "b.pdf", "c.pdf")

	_, err := q.RemoveAt(5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	var oor *IndexOutOfRangeError
	require.True(t, errors.As(err, &oor))
	assert.Equal(t, 5, oor.Index)
	assert.Equal(t, 3, oor.Length)
	assert.Equal(t, 3, q.Len())

	_, err = q.RemoveAt(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	removed, err := q.RemoveAt(1)
	require.NoError(t, err)
	assert.Equal(t, srcs[1].ID, removed.ID)
	assert.Equal(t, []string{"a.pdf", "c.pdf"}, names(q))

	// a removed source can be queued again
	q.Append(removed)
	assert.Equal(t, []string{"a.pdf", "c.pdf", "b.pdf"}, names(q))
}

// TestQueue_SwapAdjacent tests swaps in both directions
func TestQueue_SwapAdjacent(t *testing.T) {
	tests := []struct {
		name  string
		index int
		dir   Direction
		want  []string
	}{
		{"middle up", 1, Up, []string{"b", "a", "c", "d"}},
		{"middle down", 1, Down, []string{"a", "c", "b", "d"}},
		{"last up", 3, Up, []string{"a", "b", "d", "c"}},
		{"first down", 0, Down, []string{"b", "a", "c", "d"}},
		{"first up is no-op", 0, Up, []string{"a", "b", "c", "d"}},
		{"last down is no-op", 3, Down, []string{"a", "b", "c", "d"}},
		{"negative is no-op", -1, Down, []string{"a", "b", "c", "d"}},
		{"past end is no-op", 9, Up, []string{"a", "b", "c", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := queueOf(t, "a", "b", "c", "d")
			q.SwapAdjacent(tt.index, tt.dir)
			assert.Equal(t, tt.want, names(q))
		})
	}
}

// TestQueue_SwapRoundTrip tests that up then down restores the order
func TestQueue_SwapRoundTrip(t *testing.T) {
	for i := 1; i < 4; i++ {
		q, _ := queueOf(t, "a", "b", "c", "d")
		before := q.Snapshot().IDs()
		q.SwapAdjacent(i, Up)
		assert.NotEqual(t, before, q.Snapshot().IDs())
		q.SwapAdjacent(i-1, Down)
		assert.Equal(t, before, q.Snapshot().IDs(), "index %d", i)
	}
}

// TestQueue_EmptyBoundaries tests edge operations on an empty queue
func TestQueue_EmptyBoundaries(t *testing.T) {
	q := NewQueue()
	q.SwapAdjacent(0, Up)
	q.SwapAdjacent(0, Down)
	_, err := q.RemoveAt(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = q.At(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Equal(t, 0, q.Snapshot().Len())
}

// TestSnapshot_Isolation tests copy-on-read semantics
func TestSnapshot_Isolation(t *testing.T) {
	q, srcs := queueOf(t, "a", "b", "c")
	snap := q.Snapshot()

	_, err := q.RemoveAt(0)
	require.NoError(t, err)
	q.SwapAdjacent(0, Down)
	q.Append(newSource(t, "d", "application/pdf", []byte("%PDF-1.4")))

	assert.Equal(t, []string{srcs[0].ID, srcs[1].ID, srcs[2].ID}, snap.IDs())
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, srcs[0], snap.At(0))
}

// TestSnapshot_AllRestartable tests that the sequence can be ranged repeatedly and stopped early
func TestSnapshot_AllRestartable(t *testing.T) {
	q, _ := queueOf(t, "a", "b", "c")
	snap := q.Snapshot()

	for pass := 0; pass < 2; pass++ {
		var got []int
		for i := range snap.All() {
			got = append(got, i)
		}
		assert.Equal(t, []int{0, 1, 2}, got)
	}

	var first []string
	for _, s := range snap.All() {
		first = append(first, s.DisplayName)
		break
	}
	assert.Equal(t, []string{"a"}, first)
}

// TestDirection_String tests direction names
func TestDirection_String(t *testing.T) {
	assert.Equal(t, "up", Up.String())
	assert.Equal(t, "down", Down.String())
}

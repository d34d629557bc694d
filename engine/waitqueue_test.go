package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWaitQueue_UnknownPolicy(t *testing.T) {
	q, err := NewWaitQueue("round-robin")
	assert.Nil(t, q)
	assert.Error(t, err)
}

func TestNewWaitQueue_DefaultsToFCFS(t *testing.T) {
	q, err := NewWaitQueue("")
	require.NoError(t, err)
	_, ok := q.(*fcfsQueue)
	assert.True(t, ok)
}

// TestFCFSQueue_OrderPreserved verifies strict arrival order regardless
// of priority field (FCFS ignores it).
func TestFCFSQueue_OrderPreserved(t *testing.T) {
	q, err := NewWaitQueue(PolicyFCFS)
	require.NoError(t, err)

	q.Push(&RequestMetadata{RequestID: "a", Priority: 1})
	q.Push(&RequestMetadata{RequestID: "b", Priority: 99})
	q.Push(&RequestMetadata{RequestID: "c", Priority: 50})

	require.Equal(t, 3, q.Len())
	assert.Equal(t, "a", q.Peek().RequestID)
	assert.Equal(t, "a", q.Pop().RequestID)
	assert.Equal(t, "b", q.Pop().RequestID)
	assert.Equal(t, "c", q.Pop().RequestID)
	assert.Nil(t, q.Pop())
}

// TestFCFSQueue_RemoveMiddlePreservesOrder verifies Remove drops the
// named entry without disturbing the relative order of the rest.
func TestFCFSQueue_RemoveMiddlePreservesOrder(t *testing.T) {
	q, err := NewWaitQueue(PolicyFCFS)
	require.NoError(t, err)
	q.Push(&RequestMetadata{RequestID: "a"})
	q.Push(&RequestMetadata{RequestID: "b"})
	q.Push(&RequestMetadata{RequestID: "c"})

	found := q.Remove("b")
	assert.True(t, found)
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, "a", q.Pop().RequestID)
	assert.Equal(t, "c", q.Pop().RequestID)

	assert.False(t, q.Remove("nonexistent"))
}

// TestPriorityQueue_HigherPriorityFirst verifies strict priority ordering.
func TestPriorityQueue_HigherPriorityFirst(t *testing.T) {
	q, err := NewWaitQueue(PolicyPriority)
	require.NoError(t, err)

	q.Push(&RequestMetadata{RequestID: "low", Priority: 1, ArrivalTime: 1})
	q.Push(&RequestMetadata{RequestID: "high", Priority: 10, ArrivalTime: 2})
	q.Push(&RequestMetadata{RequestID: "mid", Priority: 5, ArrivalTime: 3})

	assert.Equal(t, "high", q.Pop().RequestID)
	assert.Equal(t, "mid", q.Pop().RequestID)
	assert.Equal(t, "low", q.Pop().RequestID)
}

// TestPriorityQueue_TieBreaksOnArrivalThenID verifies the total order
// used to keep heap pop deterministic across equal priorities.
func TestPriorityQueue_TieBreaksOnArrivalThenID(t *testing.T) {
	q, err := NewWaitQueue(PolicyPriority)
	require.NoError(t, err)

	q.Push(&RequestMetadata{RequestID: "later", Priority: 5, ArrivalTime: 10})
	q.Push(&RequestMetadata{RequestID: "earlier", Priority: 5, ArrivalTime: 5})
	q.Push(&RequestMetadata{RequestID: "tiebreak-b", Priority: 5, ArrivalTime: 5, SequenceID: 2})
	q.Push(&RequestMetadata{RequestID: "tiebreak-a", Priority: 5, ArrivalTime: 5, SequenceID: 1})

	// "earlier" arrival wins over "later" at equal priority; the three
	// entries sharing arrival 5 are ordered by request id.
	first := q.Pop()
	assert.Equal(t, "earlier", first.RequestID)
	assert.NotEqual(t, "later", first.RequestID)
	assert.Equal(t, "tiebreak-a", q.Pop().RequestID)
	assert.Equal(t, "tiebreak-b", q.Pop().RequestID)
	assert.Equal(t, "later", q.Pop().RequestID)
}

// TestPriorityQueue_Remove verifies removal by id from an arbitrary
// position in the heap.
func TestPriorityQueue_Remove(t *testing.T) {
	q, err := NewWaitQueue(PolicyPriority)
	require.NoError(t, err)
	q.Push(&RequestMetadata{RequestID: "a", Priority: 1})
	q.Push(&RequestMetadata{RequestID: "b", Priority: 2})
	q.Push(&RequestMetadata{RequestID: "c", Priority: 3})

	assert.True(t, q.Remove("b"))
	assert.Equal(t, 2, q.Len())
	assert.False(t, q.Remove("b"))

	assert.Equal(t, "c", q.Pop().RequestID)
	assert.Equal(t, "a", q.Pop().RequestID)
}

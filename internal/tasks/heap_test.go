package tasks

import (
	"container/heap"
	"testing"
)

func TestHeapOrdersByPriorityThenSequence(t *testing.T) {
	h := &taskHeap{}
	push := func(seq uint64, priority Priority) {
		heap.Push(h, &task{seq: seq, priority: priority})
	}
	push(1, PriorityNormal)
	push(2, PriorityUrgent)
	push(3, PriorityLow)
	push(4, PriorityNormal)
	push(5, PriorityHigh)
	push(6, PriorityUrgent)

	want := []uint64{2, 6, 5, 1, 4, 3}
	for i, seq := range want {
		got := heap.Pop(h).(*task)
		if got.seq != seq {
			t.Fatalf("pop %d = seq %d, want %d", i, got.seq, seq)
		}
	}
	if h.Len() != 0 {
		t.Fatalf("heap not drained, %d left", h.Len())
	}
}

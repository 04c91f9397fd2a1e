package engine

import (
	"container/heap"
	"context"
)

type resultHeap []Result

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return h[i].Index < h[j].Index }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)        { *h = append(*h, x.(Result)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Unshuffle restores record order. Indexes are expected to be contiguous
// starting at first; anything still held when in closes is released in
// index order.
func Unshuffle(ctx context.Context, in <-chan Result, first int) <-chan Result {
	out := make(chan Result, cap(in))
	go func() {
		defer close(out)

		var h resultHeap
		next := first
		send := func(r Result) bool {
			select {
			case out <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for r := range in {
			heap.Push(&h, r)
			for h.Len() > 0 && h[0].Index == next {
				if !send(heap.Pop(&h).(Result)) {
					drain(in)
					return
				}
				next++
			}
		}
		for h.Len() > 0 {
			if !send(heap.Pop(&h).(Result)) {
				return
			}
		}
	}()
	return out
}

func drain(in <-chan Result) {
	for range in {
	}
}

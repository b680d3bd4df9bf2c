package scheduler

import "container/heap"

// taskHeap is a container/heap.Interface implementation ordering tasks by
// priority (higher first), ties broken by earlier NextRun (spec §3
// "Ordering invariant"). Grounded on the heap-based timer queue idiom from
// the eventloop package in joeycumines-go-utilpkg.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].NextRun.Before(h[j].NextRun)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(*Task))
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*taskHeap)(nil)

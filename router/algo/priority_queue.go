// Package algo holds the small, shared low-level data structures used by
// the routing layer and the fast-marching floor field: a heap-based
// priority queue with priority mutation, and SearchGraph, a small generic
// weighted graph with A* shortest path.
package algo

// Item is one entry in a PriorityQueue: an opaque Value at a given
// Priority, with Index tracking its current slot so heap.Fix can be
// called after mutating Priority in place.
type Item struct {
	Value    int
	Priority float64
	Index    int
}

// PriorityQueue is a container/heap.Interface over *Item, ordered by
// ascending Priority (a min-heap), used by fast marching's active front
// and by any Dijkstra-style search that needs to decrease-key.
type PriorityQueue []*Item

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	return pq[i].Priority < pq[j].Priority
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].Index = i
	pq[j].Index = j
}

func (pq *PriorityQueue) Push(x any) {
	item := x.(*Item)
	item.Index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	*pq = old[:n-1]
	return item
}

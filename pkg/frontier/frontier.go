// Package frontier implements the crawl Frontier: a max-priority queue
// keyed by URL Scorer score, tie-broken by shallower depth then earlier
// insertion order (spec §4.2).
//
// The Frontier performs no deduplication; visited-URL tracking is the
// Intelligent Explorer's responsibility.
package frontier

import (
	"container/heap"
	"sync"
)

// Item is one pending URL awaiting exploration.
type Item struct {
	Score  int
	Depth  int
	URL    string
	Anchor string

	seq int
}

// Frontier is a concurrent-safe max-priority queue over Item.
//
// Ordering: higher Score first; among equal scores, smaller Depth first;
// among equal (Score, Depth), earlier insertion (FIFO) first.
type Frontier struct {
	mu   sync.Mutex
	heap itemHeap
	next int
}

// New returns an empty Frontier.
func New() *Frontier {
	f := &Frontier{}
	heap.Init(&f.heap)
	return f
}

// Push enqueues a candidate URL with its score, depth, and anchor text.
func (f *Frontier) Push(score, depth int, url, anchor string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	heap.Push(&f.heap, &Item{Score: score, Depth: depth, URL: url, Anchor: anchor, seq: f.next})
	f.next++
}

// Pop removes and returns the highest-priority item. ok is false when
// the Frontier is empty.
func (f *Frontier) Pop() (item Item, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heap.Len() == 0 {
		return Item{}, false
	}
	popped := heap.Pop(&f.heap).(*Item)
	return *popped, true
}

// Len returns the number of pending items.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}

// itemHeap implements container/heap.Interface with the ordering
// contract documented on Frontier.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Score != b.Score {
		return a.Score > b.Score // higher score first
	}
	if a.Depth != b.Depth {
		return a.Depth < b.Depth // shallower depth first
	}
	return a.seq < b.seq // earlier insertion first
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) {
	*h = append(*h, x.(*Item))
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

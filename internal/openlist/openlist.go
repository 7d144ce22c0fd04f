// Package openlist implements the adaptive priority queue the search
// package orders its frontier with: a bucket queue for the common case of
// small, densely-packed f-values, promoting itself to a pairing-style heap
// the moment a key would overflow the bucket range.
package openlist

import "container/heap"

// bucketQueueSize bounds the bucket array: any key at or above this value
// forces promotion to the heap queue.
const bucketQueueSize = 1024

// Queue is an adaptive min-priority queue over (key, value) pairs. The zero
// value is ready to use. It is not safe for concurrent use.
type Queue[V any] struct {
	buckets    []bucket[V]
	lowestKey  int
	bucketSize int
	size       int
	useBucket  bool

	heap heapQueue[V]
}

type bucket[V any] struct {
	values []V
}

// New returns an empty queue, starting out in bucket mode.
func New[V any]() *Queue[V] {
	return &Queue[V]{
		buckets:    make([]bucket[V], bucketQueueSize),
		lowestKey:  bucketQueueSize,
		bucketSize: bucketQueueSize,
		useBucket:  true,
	}
}

// Empty reports whether the queue holds no elements.
func (q *Queue[V]) Empty() bool { return q.size == 0 }

// Len returns the number of stored elements.
func (q *Queue[V]) Len() int { return q.size }

// Push inserts value under the given non-negative key. Keys at or above
// the bucket capacity trigger a one-time promotion to a heap, which
// preserves every value already pushed.
func (q *Queue[V]) Push(key int, value V) {
	if q.useBucket && key >= q.bucketSize {
		q.promoteToHeap()
	}
	if q.useBucket {
		b := &q.buckets[key]
		b.values = append(b.values, value)
		q.size++
		if key < q.lowestKey {
			q.lowestKey = key
		}
		return
	}
	heap.Push(&q.heap, heapItem[V]{key: key, value: value})
	q.size++
}

// Peek returns the lowest key currently stored, without removing it. ok is
// false if the queue is empty.
func (q *Queue[V]) Peek() (key int, ok bool) {
	if q.size == 0 {
		return 0, false
	}
	if q.useBucket {
		for len(q.buckets[q.lowestKey].values) == 0 {
			q.lowestKey++
		}
		return q.lowestKey, true
	}
	return q.heap[0].key, true
}

// Pop removes and returns the value with the lowest key, along with that
// key. Pop panics if the queue is empty; callers check Empty first.
func (q *Queue[V]) Pop() (key int, value V) {
	q.size--
	if q.useBucket {
		b := &q.buckets[q.lowestKey]
		for len(b.values) == 0 {
			q.lowestKey++
			b = &q.buckets[q.lowestKey]
		}
		n := len(b.values)
		value = b.values[n-1]
		b.values = b.values[:n-1]
		return q.lowestKey, value
	}
	it := heap.Pop(&q.heap).(heapItem[V])
	return it.key, it.value
}

// promoteToHeap migrates every bucketed value into the heap and frees the
// bucket storage. The heap orders by key alone, so values sharing a key
// leave it in no defined order.
func (q *Queue[V]) promoteToHeap() {
	q.heap = make(heapQueue[V], 0, q.size)
	for k := q.lowestKey; k < q.bucketSize; k++ {
		for _, v := range q.buckets[k].values {
			q.heap = append(q.heap, heapItem[V]{key: k, value: v})
		}
	}
	heap.Init(&q.heap)
	q.buckets = nil
	q.useBucket = false
}

type heapItem[V any] struct {
	key   int
	value V
}

// heapQueue implements container/heap.Interface, giving the same
// lowest-key-wins ordering as the bucket queue once keys stop fitting it.
type heapQueue[V any] []heapItem[V]

func (h heapQueue[V]) Len() int            { return len(h) }
func (h heapQueue[V]) Less(i, j int) bool  { return h[i].key <= h[j].key }
func (h heapQueue[V]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *heapQueue[V]) Push(x interface{}) { *h = append(*h, x.(heapItem[V])) }
func (h *heapQueue[V]) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

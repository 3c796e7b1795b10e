package scheduler

import (
	"container/heap"
	"time"
)

type (
	// Key identifies a scheduled wakeup. Scheduling an existing key
	// replaces it, and every key in a group can be cancelled together
	Key struct {
		Group string
		Name  string
	}

	entry struct {
		fn    Func
		at    time.Time
		key   Key
		index int
	}

	// queue orders entries by due time and indexes them by key
	queue struct {
		items []*entry
		byKey map[Key]*entry
	}
)

func newQueue() *queue {
	return &queue{byKey: map[Key]*entry{}}
}

func (q *queue) put(key Key, at time.Time, fn Func) {
	if old, ok := q.byKey[key]; ok {
		old.at = at
		old.fn = fn
		heap.Fix(q, old.index)
		return
	}
	heap.Push(q, &entry{key: key, at: at, fn: fn})
}

func (q *queue) remove(key Key) {
	if e, ok := q.byKey[key]; ok {
		heap.Remove(q, e.index)
	}
}

func (q *queue) removeGroup(group string) {
	for key, e := range q.byKey {
		if key.Group == group {
			heap.Remove(q, e.index)
		}
	}
}

func (q *queue) peek() *entry {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *queue) pop() *entry {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(q).(*entry)
}

func (q *queue) Len() int {
	return len(q.items)
}

func (q *queue) Less(i, j int) bool {
	return q.items[i].at.Before(q.items[j].at)
}

func (q *queue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *queue) Push(x any) {
	e := x.(*entry)
	e.index = len(q.items)
	q.items = append(q.items, e)
	q.byKey[e.key] = e
}

func (q *queue) Pop() any {
	old := q.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	e.index = -1
	delete(q.byKey, e.key)
	return e
}

package reminder

// entry is a pending reminder inside the queue.
type entry struct {
	reminder Reminder
	seq      uint64 // insertion order, breaks DueAt ties
	index    int    // position in the heap, maintained by Swap
}

// queue is a min-heap of pending reminders ordered by due time.
// It implements container/heap.Interface.
type queue []*entry

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].reminder.DueAt.Equal(q[j].reminder.DueAt) {
		return q[i].seq < q[j].seq
	}
	return q[i].reminder.DueAt.Before(q[j].reminder.DueAt)
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

package sched

// unitQueue is a FIFO of pending work units. Owned by the scheduler loop;
// not safe for concurrent use.
type unitQueue struct {
	items []*WorkUnit
	head  int
}

func (q *unitQueue) push(u *WorkUnit) {
	q.items = append(q.items, u)
}

func (q *unitQueue) pop() *WorkUnit {
	if q.head >= len(q.items) {
		return nil
	}
	u := q.items[q.head]
	q.items[q.head] = nil
	q.head++

	// reclaim the consumed prefix once it dominates the backing array
	if q.head > len(q.items)/2 && q.head > 32 {
		q.items = append([]*WorkUnit(nil), q.items[q.head:]...)
		q.head = 0
	}
	return u
}

func (q *unitQueue) len() int {
	return len(q.items) - q.head
}

// remove deletes the unit with the given id, preserving FIFO order of the
// rest. Returns false if the id is not queued.
func (q *unitQueue) remove(id int64) bool {
	for i := q.head; i < len(q.items); i++ {
		if q.items[i] != nil && q.items[i].ID() == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

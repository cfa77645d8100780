package receiver

import "sync"

// overflowQueue is the unbounded FIFO holding fetched messages that could
// not be emitted because demand was exhausted. It is owned by exactly one
// subscription and drained only through emission.
type overflowQueue struct {
	mu    sync.Mutex
	items []Message
	head  int
}

func newOverflowQueue() *overflowQueue { return &overflowQueue{} }

// push appends m at the tail.
func (q *overflowQueue) push(m Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
}

// pop removes and returns the head message, reporting false on empty.
func (q *overflowQueue) pop() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return Message{}, false
	}
	m := q.items[q.head]
	q.items[q.head] = Message{}
	q.head++
	// Reclaim the consumed prefix once it dominates the backing slice.
	if q.head > 32 && q.head*2 >= len(q.items) {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return m, true
}

// empty reports whether the queue currently holds no messages.
func (q *overflowQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head >= len(q.items)
}

// size returns the number of buffered messages.
func (q *overflowQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

package events

import "sync"

type message struct {
	Kind string
	Data []byte
	prev *message
}

// buffer is the producer's FIFO stage. It is bounded: once full the oldest
// message is dropped, push events are at-most-once and a stalled writer must
// not grow the heap. Devices that miss a push recover through polling.
type buffer struct {
	lock    sync.Mutex
	head    *message
	tail    *message
	size    int
	cap     int
	dropped int
}

func newBuffer(capacity int) *buffer {
	return &buffer{cap: capacity}
}

func (b *buffer) PushBack(msg *message) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.cap > 0 && b.size == b.cap {
		b.popFront()
		b.dropped++
	}

	if b.head == nil {
		b.head = msg
		b.tail = msg
	} else {
		b.tail.prev = msg
		b.tail = msg
	}
	b.size++

	return nil
}

func (b *buffer) Pop() *message {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.popFront()
}

// popFront assumes the lock is held.
func (b *buffer) popFront() *message {
	if b.head == nil {
		return nil
	}
	tmp := b.head
	if b.head.prev != nil {
		b.head = b.head.prev
	} else {
		// removing the last one
		b.head = nil
		b.tail = nil
	}
	b.size--
	return tmp
}

func (b *buffer) Size() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.size
}

func (b *buffer) Dropped() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.dropped
}

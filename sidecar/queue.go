package sidecar

import (
	"sync"
	"sync/atomic"
)

// queue is an unbounded, closeable FIFO. Pop blocks until an item is
// available or the queue is closed and drained.
type queue[T any] struct {
	cond   *sync.Cond
	items  []T
	mu     sync.Mutex
	closed bool
}

func newQueue[T any]() *queue[T] {
	q := &queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item. It returns false, dropping item, once the queue is closed.
func (q *queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return true
}

// Pop returns the oldest item. After Close it keeps returning buffered items
// and then reports false forever.
func (q *queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Close is idempotent and wakes every blocked Pop.
func (q *queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// relay moves items from an unbounded queue into a bounded channel on its own
// goroutine. finish lets queued items drain before the channel closes; abort
// drops them and unblocks the goroutine even if nobody reads the channel.
type relay[T any] struct {
	queue      *queue[T]
	out        chan T
	abandon    chan struct{}
	startOnce  sync.Once
	finishOnce sync.Once
	abortOnce  sync.Once
	started    atomic.Bool
	closed     atomic.Bool
}

func newRelay[T any](buffer int) *relay[T] {
	r := newLazyRelay[T](buffer)
	r.start()
	return r
}

// newLazyRelay returns a relay whose goroutine only starts with the first
// start call. Until then items just queue up, and a relay nobody starts
// holds no goroutine.
func newLazyRelay[T any](buffer int) *relay[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &relay[T]{
		queue:   newQueue[T](),
		out:     make(chan T, buffer),
		abandon: make(chan struct{}),
	}
}

// start launches the relay goroutine once and returns the output channel.
func (r *relay[T]) start() <-chan T {
	r.startOnce.Do(func() {
		r.started.Store(true)
		go r.run()
	})
	return r.out
}

func (r *relay[T]) run() {
	defer close(r.out)
	for {
		item, ok := r.queue.Pop()
		if !ok {
			return
		}
		select {
		case r.out <- item:
		case <-r.abandon:
			return
		}
	}
}

func (r *relay[T]) push(item T) bool {
	return r.queue.Push(item)
}

func (r *relay[T]) finish() {
	r.finishOnce.Do(func() {
		r.closed.Store(true)
		r.queue.Close()
	})
}

func (r *relay[T]) abort() {
	r.finish()
	r.abortOnce.Do(func() { close(r.abandon) })
	for {
		if _, ok := r.queue.Pop(); !ok {
			return
		}
	}
}

func (r *relay[T]) drained() bool {
	return r.closed.Load() && r.queue.Len() == 0 && len(r.out) == 0
}

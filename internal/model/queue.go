package model

import "sync"

// Queue serializes tree mutation onto a single goroutine. Loaders and
// background tasks run on arbitrary goroutines; everything that touches
// the tree or must observe its notifications in order is posted here.
// The drain goroutine is the model's sole writer.
type Queue struct {
	ch chan func()

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool
}

// NewQueue starts the drain goroutine. buffer bounds how far producers
// can run ahead of the model goroutine before blocking.
func NewQueue(buffer int) *Queue {
	q := &Queue{
		ch:     make(chan func(), buffer),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go q.drain()
	return q
}

func (q *Queue) drain() {
	defer close(q.doneCh)
	for {
		select {
		case fn := <-q.ch:
			fn()
		case <-q.stopCh:
			// Drain what is already queued, then stop.
			for {
				select {
				case fn := <-q.ch:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Post schedules fn on the model goroutine. Blocks only when the buffer
// is full. No-op after Close.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return
	}
	select {
	case q.ch <- fn:
	case <-q.stopCh:
	}
}

// Sync runs fn on the model goroutine and waits for it to finish. Must
// not be called from the model goroutine itself.
func (q *Queue) Sync(fn func()) {
	done := make(chan struct{})
	q.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-q.doneCh:
	}
}

// Close stops the drain goroutine after running everything already
// queued. Safe to call multiple times.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.stopCh)
	q.mu.Unlock()
	<-q.doneCh
}

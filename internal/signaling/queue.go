package signaling

import "sync"

// sendQueue is a count-bounded FIFO of encoded frames drained by the
// client's single writer goroutine. Enqueue never blocks, so callers on the
// orchestrator loop are never stalled by a slow relay.
type sendQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool

	max    int
	frames [][]byte
}

func newSendQueue(max int) *sendQueue {
	q := &sendQueue{max: max}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

func (q *sendQueue) Enqueue(frame []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrSendClosed
	}
	if len(q.frames) >= q.max {
		return ErrSendQueueFull
	}
	q.frames = append(q.frames, frame)
	q.notEmpty.Signal()
	return nil
}

// Dequeue blocks until a frame is available. After Close it keeps returning
// the frames that were already queued and reports false once none are left.
func (q *sendQueue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return frame, true
}

func (q *sendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Close rejects further frames but lets the writer drain what is queued.
func (q *sendQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

// Abort closes the queue and discards pending frames.
func (q *sendQueue) Abort() {
	q.mu.Lock()
	q.closed = true
	q.frames = nil
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

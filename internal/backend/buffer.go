package backend

// audioQueue is the ordered queue of messages accepted before the backend
// connection reached the open state. It is filled while connecting, drained
// exactly once at open, in FIFO order. All access is serialized by the
// owning Client's mutex.
type audioQueue struct {
	msgs [][]byte
}

func (q *audioQueue) push(msg []byte) {
	q.msgs = append(q.msgs, msg)
}

// drain returns the queued messages in arrival order and empties the queue.
func (q *audioQueue) drain() [][]byte {
	out := q.msgs
	q.msgs = nil
	return out
}

func (q *audioQueue) len() int {
	return len(q.msgs)
}

package client

// OutboundRequest is a user-submitted chat line waiting for a rate-limit
// token. Seq is monotonic per queue; requests are never reordered.
type OutboundRequest struct {
	Seq  uint64
	Body string
}

// SendQueue is a bounded FIFO of pending outbound requests. When full,
// Push evicts the oldest entry and reports it so the caller can surface
// a warning instead of losing the message silently.
type SendQueue struct {
	items   []OutboundRequest
	cap     int
	nextSeq uint64
}

// NewSendQueue creates a queue holding at most capacity requests.
func NewSendQueue(capacity int) *SendQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &SendQueue{cap: capacity}
}

// Push appends a request. The returned dropped request is the evicted
// oldest entry when the queue was full, nil otherwise.
func (q *SendQueue) Push(body string) (req OutboundRequest, dropped *OutboundRequest) {
	q.nextSeq++
	req = OutboundRequest{Seq: q.nextSeq, Body: body}

	if len(q.items) >= q.cap {
		old := q.items[0]
		copy(q.items, q.items[1:])
		q.items[len(q.items)-1] = req
		return req, &old
	}

	q.items = append(q.items, req)
	return req, nil
}

// Pop removes and returns the oldest pending request.
func (q *SendQueue) Pop() (OutboundRequest, bool) {
	if len(q.items) == 0 {
		return OutboundRequest{}, false
	}
	req := q.items[0]
	q.items = append(q.items[:0], q.items[1:]...)
	return req, true
}

// Peek returns the oldest pending request without removing it.
func (q *SendQueue) Peek() (OutboundRequest, bool) {
	if len(q.items) == 0 {
		return OutboundRequest{}, false
	}
	return q.items[0], true
}

// Len returns the number of pending requests.
func (q *SendQueue) Len() int {
	return len(q.items)
}

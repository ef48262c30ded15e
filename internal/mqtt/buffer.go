package mqtt

import "log"

// queuedMsg is a serialized message held while the broker is unreachable.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO that keeps the newest messages while
// disconnected. Not safe for concurrent use; RealPublisher holds its lock.
type outbox struct {
	msgs    []queuedMsg
	head    int // next write position
	count   int
	dropped int  // total overwritten since startup
	warned  bool // logged since last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{msgs: make([]queuedMsg, capacity)}
}

func (o *outbox) push(msg queuedMsg) {
	capacity := len(o.msgs)
	if o.count == capacity {
		// Overwrite the oldest.
		if !o.warned {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", capacity)
			o.warned = true
		}
		o.dropped++
		o.msgs[o.head] = msg
		o.head = (o.head + 1) % capacity
		return
	}
	o.msgs[o.head] = msg
	o.head = (o.head + 1) % capacity
	o.count++
}

// drain returns queued messages oldest first and empties the outbox.
func (o *outbox) drain() []queuedMsg {
	if o.count == 0 {
		return nil
	}

	capacity := len(o.msgs)
	out := make([]queuedMsg, o.count)
	start := (o.head - o.count + capacity) % capacity
	for i := range out {
		out[i] = o.msgs[(start+i)%capacity]
	}

	o.count = 0
	o.head = 0
	o.warned = false
	return out
}

func (o *outbox) len() int {
	return o.count
}

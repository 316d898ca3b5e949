package mqtt

import log "github.com/sirupsen/logrus"

// bufferedMsg is a serialized MQTT message held for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of messages published while
// disconnected. When full, the oldest message is overwritten.
// Not safe for concurrent use; caller must synchronize.
type ringBuffer struct {
	buf      []bufferedMsg
	head     int // next write position
	count    int
	dropped  int  // total messages overwritten
	overflow bool // a message was dropped since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]bufferedMsg, capacity)}
}

// push appends msg and reports whether an older message was dropped.
func (r *ringBuffer) push(msg bufferedMsg) bool {
	capacity := len(r.buf)
	r.buf[r.head] = msg
	r.head = (r.head + 1) % capacity
	if r.count < capacity {
		r.count++
		return false
	}

	r.dropped++
	if !r.overflow {
		log.Warnf("mqtt: buffer full (%d messages), dropping oldest", capacity)
		r.overflow = true
	}
	return true
}

// drainAll returns buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	capacity := len(r.buf)
	result := make([]bufferedMsg, r.count)
	start := (r.head - r.count + capacity) % capacity
	for i := range result {
		result[i] = r.buf[(start+i)%capacity]
	}

	r.count = 0
	r.head = 0
	if r.overflow {
		log.Warnf("mqtt: %d buffered messages dropped in total", r.dropped)
	}
	r.overflow = false
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}

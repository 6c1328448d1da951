package ipc

import (
	"encoding/json"
	"sync"

	"github.com/jolt-daemon/jolt/internal/jerr"
)

// outboxCapacity bounds how many pending outbound messages a
// connection's writeCh may accumulate before its subscriber is judged
// lagging and disconnected, so one slow client reader can never grow
// unboundedly or stall a broadcast. This is the only backpressure
// buffer in the subscribe path: Broadcast writes straight into the
// connection's own writeCh rather than through a second, independently
// sized queue, so an overflow here is exactly the point the socket
// itself (via writePump's blocking conn.Write) would stall.
const outboxCapacity = 128

// Subscriber tracks one connection's subscription. writeCh is the
// connection's own outbound queue (shared with handleConn/writePump),
// not a private buffer, so Broadcast's non-blocking send and
// writePump's blocking socket write are backed by the same bound.
type Subscriber struct {
	hub     *Hub
	writeCh chan []byte
	dropped chan struct{}
	once    sync.Once
}

// Hub fans out SampleEvent broadcasts to every subscribed connection.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]bool
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[*Subscriber]bool)}
}

// Register adds sub to the broadcast set.
func (h *Hub) Register(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub] = true
}

// Unregister removes sub from the broadcast set. writeCh is owned by
// the connection handler, not the hub, so Unregister never closes it.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, sub)
}

// NewSubscriber binds a Subscriber to the connection's own writeCh.
// Callers Register it once their connection has acknowledged a
// Subscribe request.
func (h *Hub) NewSubscriber(writeCh chan []byte) *Subscriber {
	return &Subscriber{hub: h, writeCh: writeCh, dropped: make(chan struct{})}
}

// Broadcast encodes a SampleEvent and pushes it to every subscriber's
// writeCh without blocking. A subscriber whose writeCh is already full
// is marked dropped; the connection's watchDropped goroutine reacts by
// sending an Error{code: "lagging"} and closing the connection
// (spec.md Scenario S4).
func (h *Hub) Broadcast(event SampleEvent) error {
	msg, err := Encode(KindSampleEvent, event)
	if err != nil {
		return err
	}
	return h.fanOut(msg)
}

// BroadcastShutdown pushes a terminal event to every subscriber before
// the daemon tears down (spec §5: "broadcast a terminal event, drain
// writers, close the database, exit"), reusing KindShutdown as a
// push-style event carrying no payload.
func (h *Hub) BroadcastShutdown() error {
	msg, err := Encode(KindShutdown, nil)
	if err != nil {
		return err
	}
	return h.fanOut(msg)
}

func (h *Hub) fanOut(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		select {
		case sub.writeCh <- data:
		default:
			sub.markDropped()
		}
	}
	return nil
}

func (s *Subscriber) markDropped() {
	s.once.Do(func() { close(s.dropped) })
}

// Dropped is closed the moment a broadcast finds writeCh full.
func (s *Subscriber) Dropped() <-chan struct{} { return s.dropped }

// Lagging reports whether this subscriber has ever been marked dropped.
func (s *Subscriber) Lagging() bool {
	select {
	case <-s.dropped:
		return true
	default:
		return false
	}
}

// LaggingError is the message sent to a subscriber before closing its
// connection once it is found lagging.
func LaggingError() (Message, error) {
	return Encode(KindError, ErrorResponse{
		Code:    string(jerr.Lagging),
		Message: "subscriber fell behind and was disconnected",
	})
}

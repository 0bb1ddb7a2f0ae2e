package collab

import "sync"

// DefaultQueueSize is the outbound buffer of one connection.
const DefaultQueueSize = 64

// Subscriber is the outbound side of one connection. A single writer drains
// Messages; producers never block on it.
type Subscriber struct {
	ID        string
	msgs      chan Event
	closeSlow func()
	once      sync.Once
}

// Messages is the queue the connection writer drains.
func (s *Subscriber) Messages() <-chan Event {
	return s.msgs
}

func (s *Subscriber) overflow() {
	s.once.Do(func() {
		if s.closeSlow != nil {
			go s.closeSlow()
		}
	})
}

// Hub routes events to connections by id. Sessions decide who receives
// what; the hub only enqueues.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]*Subscriber
	queueSize int
}

func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{subs: make(map[string]*Subscriber), queueSize: queueSize}
}

// Register adds a connection. closeSlow is called once, asynchronously, if
// the connection's queue overflows.
func (h *Hub) Register(id string, closeSlow func()) *Subscriber {
	s := &Subscriber{ID: id, msgs: make(chan Event, h.queueSize), closeSlow: closeSlow}
	h.mu.Lock()
	h.subs[id] = s
	h.mu.Unlock()
	return s
}

func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Send enqueues ev for connection id without blocking. It reports false if
// the connection is unknown or its queue is full; in the latter case the
// connection is closed.
func (h *Hub) Send(id string, ev Event) bool {
	h.mu.RLock()
	s := h.subs[id]
	h.mu.RUnlock()
	if s == nil {
		return false
	}

	select {
	case s.msgs <- ev:
		return true
	default:
		s.overflow()
		return false
	}
}

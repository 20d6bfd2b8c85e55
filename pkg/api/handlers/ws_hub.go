package handlers

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrConnectionLimit is returned when the hub is full.
var ErrConnectionLimit = errors.New("websocket connection limit reached")

// subscriber is one websocket client. Its filter holds session ids and
// event types; an empty set matches everything.
type subscriber struct {
	conn *websocket.Conn
	out  chan []byte

	mu       sync.RWMutex
	sessions map[string]struct{}
	types    map[string]struct{}
	closed   bool

	closeOnce sync.Once
}

func newSubscriber(conn *websocket.Conn, buffer int) *subscriber {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &subscriber{
		conn:     conn,
		out:      make(chan []byte, buffer),
		sessions: make(map[string]struct{}),
		types:    make(map[string]struct{}),
	}
}

// follow adds a session, and optionally event types, to the filter.
func (s *subscriber) follow(sessionID string, types ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID != "" {
		s.sessions[sessionID] = struct{}{}
	}
	for _, t := range types {
		if t != "" {
			s.types[t] = struct{}{}
		}
	}
}

// unfollow removes a session from the filter. With no session it clears
// the type filter instead.
func (s *subscriber) unfollow(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID == "" {
		clear(s.types)
		return
	}
	delete(s.sessions, sessionID)
}

func (s *subscriber) wants(ev EventMessage) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.sessions) > 0 {
		if _, ok := s.sessions[ev.SessionID]; !ok {
			return false
		}
	}
	if len(s.types) > 0 {
		if _, ok := s.types[ev.Type]; !ok {
			return false
		}
	}
	return true
}

// offer queues a frame without blocking. False means the client is too
// slow to keep up.
func (s *subscriber) offer(frame []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.out)
		s.mu.Unlock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// hub tracks connected subscribers and fans events out to them.
type hub struct {
	mu    sync.RWMutex
	subs  map[*subscriber]struct{}
	limit int
}

func newHub(limit int) *hub {
	if limit <= 0 {
		limit = defaultWSMaxConnections
	}
	return &hub{subs: make(map[*subscriber]struct{}), limit: limit}
}

func (h *hub) join(s *subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs) >= h.limit {
		return ErrConnectionLimit
	}
	h.subs[s] = struct{}{}
	return nil
}

// leave removes s and closes it. Leaving twice is harmless.
func (h *hub) leave(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	h.mu.Unlock()
	if ok {
		s.close()
	}
}

func (h *hub) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *hub) full() bool {
	return h.size() >= h.limit
}

// publish encodes ev once and queues it for every interested subscriber.
// Subscribers with a full queue are disconnected.
func (h *hub) publish(ev EventMessage) error {
	frame, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		if s.wants(ev) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.offer(frame) {
			h.leave(s)
		}
	}
	return nil
}

func (h *hub) shutdown() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()
	for s := range subs {
		s.close()
	}
}

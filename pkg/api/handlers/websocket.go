package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/offerforge/offerforge/pkg/events"
	"github.com/offerforge/offerforge/pkg/logger"
)

const (
	defaultWSMaxConnections = 100
	defaultPingInterval     = 30 * time.Second
	defaultPongTimeout      = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultSendBuffer       = 32
	maxInboundFrame         = 64 << 10
)

// Acknowledgement types sent back for control messages.
const (
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
)

// WebSocketConfig configures the event stream.
type WebSocketConfig struct {
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration

	// SendBuffer is how many frames may queue per client before it is
	// dropped as too slow.
	SendBuffer int
}

// EventMessage is one frame on the event stream.
type EventMessage struct {
	ID        string    `json:"id,omitempty"`
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// controlMessage is what clients send: subscribe or unsubscribe, for a
// session and optionally a list of event types. The session may also be
// given inside the payload.
type controlMessage struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Types     []string       `json:"types,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (m controlMessage) session() string {
	if id := strings.TrimSpace(m.SessionID); id != "" {
		return id
	}
	id, _ := m.Payload["session_id"].(string)
	return strings.TrimSpace(id)
}

// WebSocketHandler streams journey events over /ws.
type WebSocketHandler struct {
	log      logger.Logger
	hub      *hub
	upgrader websocket.Upgrader
	cfg      WebSocketConfig
}

// NewWebSocketHandler creates the event stream handler.
func NewWebSocketHandler(log logger.Logger, cfg WebSocketConfig) *WebSocketHandler {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultWSMaxConnections
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)

	h := &WebSocketHandler{log: log, hub: newHub(cfg.MaxConnections), cfg: cfg}
	h.upgrader.CheckOrigin = func(r *http.Request) bool {
		return originAllowed(r, h.cfg.AllowedOrigins)
	}
	return h
}

// ServeHTTP upgrades the request and streams events until the client
// leaves. A session_id query parameter subscribes the client up front.
// @Summary Stream journey events
// @Description Upgrades to a websocket that streams step, search, totals and offer events
// @Tags events
// @Param session_id query string false "Only stream events of this session"
// @Success 101
// @Failure 400 {string} string "websocket upgrade required"
// @Failure 503 {string} string "websocket connection limit reached"
// @Router /ws [get]
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if h.hub.full() {
		http.Error(w, ErrConnectionLimit.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := newSubscriber(conn, h.cfg.SendBuffer)
	sub.follow(strings.TrimSpace(r.URL.Query().Get("session_id")))
	if err := h.hub.join(sub); err != nil {
		// Lost the race for the last slot.
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(defaultWriteTimeout))
		_ = conn.Close()
		return
	}
	h.log.Debug("websocket connected", "remote_addr", r.RemoteAddr, "connections", h.hub.size())

	go h.writeLoop(sub)
	h.readLoop(sub)
}

func (h *WebSocketHandler) readLoop(sub *subscriber) {
	defer h.hub.leave(sub)

	window := h.cfg.PingInterval + h.cfg.PongTimeout
	sub.conn.SetReadLimit(maxInboundFrame)
	_ = sub.conn.SetReadDeadline(time.Now().Add(window))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(window))
	})

	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error", "error", err)
			}
			return
		}
		h.control(sub, data)
	}
}

func (h *WebSocketHandler) writeLoop(sub *subscriber) {
	ping := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ping.Stop()
		h.hub.leave(sub)
	}()

	for {
		select {
		case frame, ok := <-sub.out:
			if !ok {
				_ = sub.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(defaultWriteTimeout))
				return
			}
			_ = sub.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
			if err := sub.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(defaultWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// control applies a subscribe or unsubscribe message and acknowledges it.
// Anything else is ignored.
func (h *WebSocketHandler) control(sub *subscriber, raw []byte) {
	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	ack := EventMessage{SessionID: msg.session(), Timestamp: time.Now().UTC()}
	switch strings.ToLower(strings.TrimSpace(msg.Type)) {
	case "subscribe":
		sub.follow(ack.SessionID, msg.Types...)
		ack.Type = TypeSubscribed
	case "unsubscribe":
		sub.unfollow(ack.SessionID)
		ack.Type = TypeUnsubscribed
	default:
		return
	}

	if frame, err := json.Marshal(ack); err == nil && !sub.offer(frame) {
		h.hub.leave(sub)
	}
}

// Broadcast stamps ev if needed and sends it to the interested clients.
func (h *WebSocketHandler) Broadcast(ev EventMessage) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return h.hub.publish(ev)
}

// Forward relays journey events from sub until ctx is done or the
// subscription is closed.
func (h *WebSocketHandler) Forward(ctx context.Context, sub *events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			msg := EventMessage{ID: ev.ID, Type: ev.Type, SessionID: ev.SessionID, Timestamp: ev.Timestamp, Payload: ev.Payload}
			if err := h.Broadcast(msg); err != nil {
				h.log.Warn("websocket broadcast failed", "event_type", ev.Type, "session_id", ev.SessionID, "error", err)
			}
		}
	}
}

// Connections returns the number of connected clients.
func (h *WebSocketHandler) Connections() int { return h.hub.size() }

// Close disconnects every client.
func (h *WebSocketHandler) Close() { h.hub.shutdown() }

// originAllowed accepts requests without an Origin, listed origins, and
// same-host origins.
func originAllowed(r *http.Request, allowed []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a = strings.TrimSpace(a); a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 16
)

// Message is what connected clients receive. Receiver is a user id or the
// shared admin key.
type Message struct {
	Receiver string          `json:"receiver"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type client struct {
	conn *websocket.Conn
	keys []string
	send chan []byte
}

// Hub fans notifications out to websocket clients. Publishing goes through a
// redis channel so the worker and every API replica reach the same sockets.
type Hub struct {
	redis    redis.UniversalClient
	channel  string
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

func NewHub(rdb redis.UniversalClient, channel string, allowedOrigins []string, log zerolog.Logger) *Hub {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Hub{
		redis:   rdb,
		channel: channel,
		log:     log,
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

func (h *Hub) Publish(ctx context.Context, receiver, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	msg, err := json.Marshal(Message{Receiver: receiver, Event: event, Data: raw})
	if err != nil {
		return err
	}
	if err := h.redis.Publish(ctx, h.channel, msg).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// Start subscribes to the redis channel and returns once the subscription is
// confirmed. Delivery stops when ctx is cancelled.
func (h *Hub) Start(ctx context.Context) error {
	sub := h.redis.Subscribe(ctx, h.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", h.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					h.log.Warn().Err(err).Msg("drop malformed realtime message")
					continue
				}
				h.deliver(msg, []byte(m.Payload))
			}
		}
	}()
	return nil
}

func (h *Hub) deliver(msg Message, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[msg.Receiver] {
		select {
		case c.send <- payload:
		default:
			h.log.Warn().Str("receiver", msg.Receiver).Msg("realtime client buffer full")
		}
	}
}

// Connected returns the number of sockets listening on key.
func (h *Hub) Connected(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[key])
}

// Serve upgrades the request and blocks until the socket closes. The socket
// receives messages addressed to any of keys.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, keys ...string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, keys: keys, send: make(chan []byte, sendBuffer)}
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range c.keys {
		if h.clients[k] == nil {
			h.clients[k] = make(map[*client]struct{})
		}
		h.clients[k][c] = struct{}{}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range c.keys {
		delete(h.clients[k], c)
		if len(h.clients[k]) == 0 {
			delete(h.clients, k)
		}
	}
	close(c.send)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// clients only listen, anything they send is discarded
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug().Err(err).Msg("realtime socket closed")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

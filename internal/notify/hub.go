package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 32
)

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub keeps the websocket connections of each user and pushes messages to them.
// Slow clients lose messages instead of slowing the sender.
type Hub struct {
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}

	progressEvery time.Duration
	limitMu       sync.Mutex
	limiters      map[string]*rate.Limiter
}

// NewHub creates a hub. progressEvery throttles application_progress events per application, 0 disables it.
func NewHub(log *zap.SugaredLogger, progressEvery time.Duration) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:       make(map[string]map[*client]struct{}),
		progressEvery: progressEvery,
		limiters:      make(map[string]*rate.Limiter),
	}
}

// ServeWS upgrades the request and registers the connection for userID
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	// queued while nothing else can reach c.send
	if data, err := json.Marshal(NewMessage(TypeConnectionEstablished, userID, map[string]any{"message": "connected"})); err == nil {
		c.send <- data
	}
	h.register(c)
	h.log.Infow("🔌 WebSocket client connected", "user_id", userID, "clients", h.ClientCount(userID))

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

// ClientCount returns the number of open connections for userID
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) Notify(msg Message) {
	switch msg.Type {
	case TypeProgress:
		if !h.allowProgress(msg) {
			return
		}
	case TypeCompleted, TypeFailed, TypeCancelled:
		h.forgetProgress(msg)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Warnw("⚠️ Failed to encode notification", "type", msg.Type, "error", err)
		return
	}

	// sends happen under the read lock so unregister cannot close a channel mid-send
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[msg.UserID] {
		select {
		case c.send <- data:
		default:
			h.log.Debugw("Dropping notification for slow client", "user_id", msg.UserID, "type", msg.Type)
		}
	}
}

// allowProgress throttles progress per application. The last step of an attempt always passes.
func (h *Hub) allowProgress(msg Message) bool {
	if h.progressEvery <= 0 || percentOf(msg) >= 100 {
		return true
	}
	key := progressKey(msg)
	h.limitMu.Lock()
	defer h.limitMu.Unlock()
	lim, ok := h.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(h.progressEvery), 1)
		h.limiters[key] = lim
	}
	return lim.Allow()
}

func (h *Hub) forgetProgress(msg Message) {
	h.limitMu.Lock()
	defer h.limitMu.Unlock()
	delete(h.limiters, progressKey(msg))
}

func progressKey(msg Message) string {
	id, _ := msg.Data["application_id"].(string)
	return msg.UserID + "/" + id
}

// percentOf reads the percent of a local (int) or relayed (float64) progress message
func percentOf(msg Message) float64 {
	switch v := msg.Data["percent"].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return 0
}

// Close drops every connection
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.clients {
		for c := range set {
			close(c.send)
		}
		delete(h.clients, userID)
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	//clients only send pings/pongs; anything else is ignored
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debugw("WebSocket write failed, dropping client", "user_id", c.userID, "error", err)
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

package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/readerfleet/internal/domain/account"
	"github.com/GriffinCanCode/readerfleet/internal/domain/lifecycle"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/monitoring"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // read-only stream
	},
}

// Message is a client frame
type Message struct {
	Type    string `json:"type"`
	Account string `json:"account,omitempty"`
}

// Handler streams lifecycle events to WebSocket clients
type Handler struct {
	bus     *lifecycle.EventBus
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(bus *lifecycle.EventBus, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{bus: bus, metrics: metrics, logger: logger}
}

// filter holds the account a connection watches. Empty watches all.
type filter struct {
	mu      sync.RWMutex
	account string
}

func (f *filter) set(accountID string) {
	f.mu.Lock()
	f.account = account.NormalizeID(accountID)
	f.mu.Unlock()
}

func (f *filter) match(ev lifecycle.Event) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.account == "" || f.account == ev.AccountID
}

// HandleConnection upgrades the request and streams events until the
// client goes away. ?account= narrows the stream to one account.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	f := &filter{}
	f.set(c.Query("account"))

	replies := make(chan interface{}, 8)
	done := make(chan struct{})
	go h.read(conn, f, replies, done)

	h.write(conn, map[string]interface{}{
		"type":      "system",
		"message":   "subscribed to lifecycle events",
		"account":   c.Query("account"),
		"timestamp": time.Now().Unix(),
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !f.match(ev) {
				continue
			}
			if err := h.write(conn, map[string]interface{}{"type": "event", "event": ev}); err != nil {
				return
			}
		case msg := <-replies:
			if err := h.write(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// read handles client frames. Writes go back through replies so only
// the connection loop writes.
func (h *Handler) read(conn *websocket.Conn, f *filter, replies chan<- interface{}, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var reply interface{}
		switch msg.Type {
		case "ping":
			reply = map[string]interface{}{"type": "pong", "timestamp": time.Now().Unix()}
		case "subscribe":
			f.set(msg.Account)
			reply = map[string]interface{}{"type": "subscribed", "account": msg.Account}
		default:
			reply = errorFrame("unknown message type")
		}
		select {
		case replies <- reply:
		default:
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, data interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(data)
}

func errorFrame(msg string) map[string]interface{} {
	return map[string]interface{}{
		"type":      "error",
		"message":   msg,
		"timestamp": time.Now().Unix(),
	}
}

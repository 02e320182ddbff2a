package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub pushes lifecycle events to connected dashboard clients.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	lock      sync.Mutex
	logger    *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 64),
		logger:    logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.lock.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.lock.Unlock()
			return
		case message := <-h.broadcast:
			h.lock.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.lock.Unlock()
		}
	}
}

// Publish implements domain.EventPublisher. It never blocks the trading loop; events
// are dropped when no reader keeps up.
func (h *Hub) Publish(ctx context.Context, ev *domain.TradeSessionLog) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debug("Hub backlog full, dropping event", zap.String("event", string(ev.Event)))
	}
	return nil
}

func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WS upgrade failed", zap.Error(err))
		return
	}
	h.lock.Lock()
	h.clients[conn] = true
	h.lock.Unlock()

	// Drain client frames so close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.lock.Lock()
				if h.clients[conn] {
					conn.Close()
					delete(h.clients, conn)
				}
				h.lock.Unlock()
				return
			}
		}
	}()
}

// Package broadcast fans alert events out to WebSocket subscribers, for
// dashboards that want the live feed alongside Slack.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hskang/krx-signals/internal/model"
)

const clientSendBuffer = 32

// Hub tracks connected subscribers and broadcasts alert events to them.
type Hub struct {
	logger *slog.Logger

	register   chan *client
	unregister chan *client
	events     chan []byte
	clients    map[*client]struct{}

	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger,
		register:   make(chan *client),
		unregister: make(chan *client),
		events:     make(chan []byte, 64),
		clients:    make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start runs the hub loop.
func (h *Hub) Start(ctx context.Context) error {
	h.ctx, h.cancel = context.WithCancel(ctx)

	h.wg.Add(1)
	go h.run()

	h.logger.Info("broadcast hub started")
	return nil
}

// Stop disconnects all subscribers and shuts down.
func (h *Hub) Stop(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("broadcast hub stopped")
		return nil
	case <-ctx.Done():
		h.logger.Warn("broadcast hub stop timed out")
		return ctx.Err()
	}
}

// Deliver queues one alert event for broadcast, satisfying the dispatcher's
// sink interface. A full hub queue drops the event rather than blocking.
func (h *Hub) Deliver(_ context.Context, ev model.AlertEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}

	select {
	case h.events <- data:
		return nil
	default:
		h.logger.Warn("broadcast queue full, dropping event", "ticker", ev.Ticker)
		return nil
	}
}

// Handler upgrades HTTP requests to WebSocket subscriptions.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		c := &client{
			conn: conn,
			send: make(chan []byte, clientSendBuffer),
		}

		select {
		case h.register <- c:
		case <-h.ctx.Done():
			conn.Close()
			return
		}

		h.wg.Add(2)
		go h.writePump(c)
		go h.readPump(c)
	})
}

func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Info("subscriber connected", "subscribers", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				close(c.send)
				delete(h.clients, c)
				h.logger.Info("subscriber disconnected", "subscribers", len(h.clients))
			}

		case data := <-h.events:
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// Slow subscriber, drop it rather than stall the feed.
					close(c.send)
					delete(h.clients, c)
					h.logger.Warn("dropped slow subscriber")
				}
			}
		}
	}
}

// writePump pushes queued messages to one connection.
func (h *Hub) writePump(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()

	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readPump discards inbound frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer h.wg.Done()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			select {
			case h.unregister <- c:
			case <-h.ctx.Done():
			}
			return
		}
	}
}

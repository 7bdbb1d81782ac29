package websocket

import (
	"context"
	"sync/atomic"

	"github.com/satriahrh/backbone/utils/log"
	"go.uber.org/zap"
)

type registration struct {
	client *Client
	greet  func(*Client)
}

// Hub owns the set of connected clients. All mutations happen on the run
// goroutine.
type Hub struct {
	clients    map[*Client]bool
	register   chan registration
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	count      atomic.Int32
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan registration),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Run starts the hub; it stops and closes every client when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	go h.run(ctx)
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case r := <-h.register:
			client := r.client
			if r.greet != nil {
				r.greet(client)
			}
			h.clients[client] = true
			h.count.Store(int32(len(h.clients)))
			log.WithCtx(client.ctx).Debug("New client registered", zap.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.count.Store(int32(len(h.clients)))
				client.Close()
				log.WithCtx(client.ctx).Debug("Client unregistered", zap.Int("clients", len(h.clients)))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if client.IsClosed() {
					continue
				}
				if err := client.SendMessage(message); err != nil {
					log.WithCtx(client.ctx).Warn("Dropping slow client", zap.Error(err))
				}
			}

		case <-ctx.Done():
			for client := range h.clients {
				client.Close()
			}
			h.clients = make(map[*Client]bool)
			h.count.Store(0)
			log.WithCtx(ctx).Info("🔒 Websocket hub stopped")
			return
		}
	}
}

// Register adds a client to the hub. greet runs on the hub goroutine before
// the client joins, so whatever it queues precedes every later broadcast.
// It reports false once the hub stopped.
func (h *Hub) Register(client *Client, greet func(*Client)) bool {
	select {
	case h.register <- registration{client: client, greet: greet}:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.Close()
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

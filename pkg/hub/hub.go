package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Name for logging
	name   string
	logger *slog.Logger

	// Registered clients, owned by Run
	clients map[*Client]bool

	// Latest retained message per key, owned by Run
	retained map[string]Message
	order    []string

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Client count mirror for readers outside Run
	mu    sync.RWMutex
	count int

	running atomic.Bool
	dropped atomic.Uint64
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]bool),
		retained:   make(map[string]Message),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and blocks until ctx is cancelled.
// A hub runs once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.setCount(0)
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.replay(client)
			h.setCount(len(h.clients))
			h.logger.Debug("client connected", "client", client.ID, "total", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.setCount(len(h.clients))
			h.logger.Debug("client disconnected", "client", client.ID, "remaining", len(h.clients))

		case message := <-h.broadcast:
			if message.Key != "" {
				if _, ok := h.retained[message.Key]; !ok {
					h.order = append(h.order, message.Key)
				}
				h.retained[message.Key] = message
			}
			for client := range h.clients {
				h.deliver(client, message)
			}
			h.setCount(len(h.clients))
		}
	}
}

// replay sends the retained messages to a new client in first-seen key order.
func (h *Hub) replay(client *Client) {
	for _, key := range h.order {
		if !h.deliver(client, h.retained[key]) {
			return
		}
	}
}

// deliver queues message for client and drops the client when its buffer is
// full. It reports whether the client is still registered.
func (h *Hub) deliver(client *Client, message Message) bool {
	select {
	case client.send <- message:
		return true
	default:
		close(client.send)
		delete(h.clients, client)
		h.logger.Warn("dropped slow client", "client", client.ID)
		return false
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastRetained encodes v and broadcasts it as the latest value for key.
func (h *Hub) BroadcastRetained(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data).Retained(key))
	return nil
}

// BroadcastBinary broadcasts binary data (e.g., camera frames)
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Dropped returns how many broadcasts were dropped because the hub was busy.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Name returns the hub name.
func (h *Hub) Name() string {
	return h.name
}

// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package websocket implements the broadcast hub that fans GPS updates,
// stats snapshots and system alerts out to connected subscribers.
// Delivery is best-effort: slow or failed subscribers are dropped, there
// is no backlog or replay.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
)

// Message types for WebSocket communication.
const (
	MessageTypeConnectionEstablished = "connection_established"
	MessageTypeGPSUpdate             = "gps_update"
	MessageTypeSystemStats           = "system_stats"
	MessageTypeSystemAlert           = "system_alert"
	MessageTypePing                  = "ping"
	MessageTypePong                  = "pong"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until the context is canceled, then closes
// all clients and returns ctx.Err(). Designed for suture supervision.
//
// Uses priority-based selection so behavior is deterministic when several
// channels are ready at once (Go's select picks randomly otherwise):
// shutdown first, then client lifecycle, then broadcasts.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: shutdown (non-blocking check)
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		// Priority 2: client lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.registerClient(client)
			continue
		case client := <-h.Unregister:
			h.unregisterClient(client)
			continue
		default:
		}

		// Priority 3: broadcasts, or block until any event arrives
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// Run runs the hub without shutdown support. Retained for tests.
func (h *Hub) Run() {
	_ = h.RunWithContext(context.Background())
}

// registerClient adds a client and sends it the welcome message.
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnectedClients.Set(float64(count))

	// Welcome message goes only to the new client, not the hub broadcast.
	welcome := Message{
		Type: MessageTypeConnectionEstablished,
		Data: map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"message":   "connected to waypost live feed",
		},
	}
	select {
	case client.send <- welcome:
	default:
	}

	logging.Info().Int("total_clients", count).Msg("websocket client connected")
}

// unregisterClient removes a client and closes its send channel.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnectedClients.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("websocket client disconnected")
}

// broadcastToClients delivers a message to all clients in client-id order
// (deterministic iteration). Clients whose send buffer is full are
// dropped: a subscriber that cannot keep up forfeits the stream rather
// than stalling everyone else.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSDroppedClients.Inc()
		logging.Warn().Uint64("client_id", client.id).Msg("dropped slow websocket client")
	}
	if len(toRemove) > 0 {
		metrics.WSConnectedClients.Set(float64(len(h.clients)))
	}
}

// shutdown closes all connected clients in id order.
func (h *Hub) shutdown() {
	h.mu.Lock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	closed := len(clients)
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.WSConnectedClients.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", closed).
		Msg("websocket hub stopped")
}

// enqueue places a message on the broadcast channel without blocking.
// When the channel is full the message is dropped; live telemetry has no
// value once it is stale.
func (h *Hub) enqueue(message Message) {
	select {
	case h.broadcast <- message:
		metrics.RecordBroadcast(message.Type)
	default:
		logging.Warn().Str("message_type", message.Type).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastFix sends a persisted fix to all connected clients.
func (h *Hub) BroadcastFix(fix *models.FixResponse) {
	h.enqueue(Message{
		Type: MessageTypeGPSUpdate,
		Data: fix,
	})
}

// BroadcastStats sends a stats snapshot to all connected clients.
func (h *Hub) BroadcastStats(snapshot *models.StatsSnapshot) {
	h.enqueue(Message{
		Type: MessageTypeSystemStats,
		Data: snapshot,
	})
}

// BroadcastAlert sends a capacity alert to all connected clients.
func (h *Hub) BroadcastAlert(alert *models.Alert) {
	h.enqueue(Message{
		Type: MessageTypeSystemAlert,
		Data: alert,
	})
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Package websocket streams the community "daily pulse" to connected
// clients: aggregate completion counters for a calendar date, pushed
// whenever any player finishes that day's game. Only aggregates cross the
// wire; no per-player state is broadcast.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Message types
const (
	MessageTypePulseUpdate = "pulse_update"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeError       = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Date      string      `json:"date,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// PulseUpdate contains the completion counters for one date
type PulseUpdate struct {
	Date            string  `json:"date"`
	PlayersFinished int64   `json:"players_finished"`
	GamesWon        int64   `json:"games_won"`
	WinRate         float64 `json:"win_rate"`
}

// Hub maintains the set of active clients and broadcasts pulse updates
type Hub struct {
	// Registered clients keyed by subscribed date
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Inbound messages to broadcast
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	date   string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				// Remove from all date subscriptions
				for date, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, date)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.date]; !ok {
				h.clients[req.date] = make(map[*Client]bool)
			}
			h.clients[req.date][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "date", req.date)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.date]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.date)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "date", req.date)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to all subscribed clients
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	// If the message carries a date, only send to that date's subscribers
	if message.Date != "" {
		if clients, ok := h.clients[message.Date]; ok {
			for client := range clients {
				select {
				case client.send <- data:
				default:
					// Client's buffer is full, skip
					h.logger.Warn("client buffer full, skipping", "client_id", client.id)
				}
			}
		}
	} else {
		// Broadcast to all clients
		for client := range h.allClients {
			select {
			case client.send <- data:
			default:
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

// BroadcastPulse sends a pulse update to the date's subscribers
func (h *Hub) BroadcastPulse(date string, playersFinished, gamesWon int64) {
	var winRate float64
	if playersFinished > 0 {
		winRate = float64(gamesWon) / float64(playersFinished)
	}
	message := &Message{
		Type: MessageTypePulseUpdate,
		Date: date,
		Data: PulseUpdate{
			Date:            date,
			PlayersFinished: playersFinished,
			GamesWon:        gamesWon,
			WinRate:         winRate,
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a date subscription
func (h *Hub) Subscribe(client *Client, date string) {
	h.subscribe <- &subscriptionRequest{
		client: client,
		date:   date,
	}
}

// Unsubscribe removes a client from a date subscription
func (h *Hub) Unsubscribe(client *Client, date string) {
	h.unsubscribe <- &subscriptionRequest{
		client: client,
		date:   date,
	}
}

// GetSubscriberCount returns the number of subscribers for a date
func (h *Hub) GetSubscriberCount(date string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[date]; ok {
		return len(clients)
	}
	return 0
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}

// Package stream pushes live price snapshots to WebSocket clients
package stream

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"virtual_market/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Message is one WebSocket frame
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Message type constants
const (
	TypeStocks = "stocks"
)

// Client represents a WebSocket client connection
type Client struct {
	id     string
	send   chan Message
	mu     sync.Mutex
	closed bool
}

// NewClient creates a new client
func NewClient(id string) *Client {
	return &Client{
		id:   id,
		send: make(chan Message, 256), // Buffered to prevent blocking
	}
}

// Send sends a message to the client (non-blocking)
func (c *Client) Send(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		// Channel full, client is slow
		return false
	}
}

// GetSendChan returns the send channel for reading
func (c *Client) GetSendChan() <-chan Message {
	return c.send
}

// Close closes the client
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub manages WebSocket client connections and broadcasts messages
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     core.ILogger
}

// NewHub creates a new Hub
func NewHub(logger core.ILogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.WithField("component", "stream_hub"),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Client registered", "client_id", client.id, "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Client unregistered", "client_id", client.id, "total_clients", total)

		case message := <-h.broadcast:
			h.mu.RLock()
			clientList := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clientList = append(clientList, client)
			}
			h.mu.RUnlock()

			// Broadcast outside the lock
			for _, client := range clientList {
				if !client.Send(message) {
					select {
					case h.unregister <- client:
					default:
					}
				}
			}
		}
	}
}

// Register registers a client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister unregisters a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast broadcasts a message to all clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", "type", msg.Type)
	}
}

// ClientCount returns the current number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// tickPayload mirrors the /stocks response shape
type tickPayload struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	LastPrice float64 `json:"last_price"`
	PctChange float64 `json:"pct_change"`
	UpdatedAt int64   `json:"updated_at"`
}

// BroadcastInstruments implements market.Broadcaster: clients receive the
// same snapshot shape as GET /stocks after every applied tick.
func (h *Hub) BroadcastInstruments(instruments []*core.Instrument) {
	payload := make([]tickPayload, 0, len(instruments))
	for _, inst := range instruments {
		price, _ := inst.Price.Round(2).Float64()
		last, _ := inst.PreviousPrice.Round(2).Float64()
		pct := 0.0
		if inst.PreviousPrice.IsPositive() {
			p, _ := inst.Price.Sub(inst.PreviousPrice).Div(inst.PreviousPrice).Mul(hundred).Round(2).Float64()
			pct = p
		}
		payload = append(payload, tickPayload{
			Symbol:    inst.Symbol,
			Name:      inst.Name,
			Price:     price,
			LastPrice: last,
			PctChange: pct,
			UpdatedAt: inst.UpdatedAt.Unix(),
		})
	}
	h.Broadcast(Message{Type: TypeStocks, Data: payload})
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"bingot/blockchain"
	"bingot/blockchain/chain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// MessageType defines the type of websocket message
type MessageType string

const (
	MessageTypeNewBlock MessageType = "new_block"
	MessageTypeNewTx    MessageType = "new_transaction"
	MessageTypeError    MessageType = "error"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	maxMessage   = 1 << 20
)

// Message is the envelope for everything sent over /ws
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessage creates a message with the given type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return &Message{Type: msgType, Payload: data}, nil
}

// Receiver takes blocks and transactions pushed by websocket clients.
type Receiver interface {
	ReceiveBlock(block *blockchain.Block) (chain.AddResult, error)
	ReceiveTransaction(tx blockchain.Transaction) (bool, error)
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub relays new blocks and transactions to every connected websocket
// client and feeds what clients send back into a Receiver. It implements
// node.Broadcaster.
type Hub struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[*client]struct{}
	receiver Receiver
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// SetReceiver sets where inbound client messages go. Without one, the hub
// only broadcasts.
func (h *Hub) SetReceiver(r Receiver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.receiver = r
}

func (h *Hub) BroadcastBlock(block *blockchain.Block) {
	h.broadcast(MessageTypeNewBlock, block)
}

func (h *Hub) BroadcastTransaction(tx blockchain.Transaction) {
	h.broadcast(MessageTypeNewTx, tx)
}

func (h *Hub) broadcast(msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build broadcast")
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode broadcast")
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn().Str("client", c.id).Msg("Dropping slow client")
		h.unregister(c)
	}
}

// ServeHTTP upgrades the connection and serves the client until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("Client connected")

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)
	c.conn.SetReadLimit(maxMessage)

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("client", c.id).Msg("Client read failed")
			}
			return
		}
		if err := h.handle(&msg); err != nil {
			h.reply(c, err)
		}
	}
}

func (h *Hub) handle(msg *Message) error {
	h.mu.RLock()
	receiver := h.receiver
	h.mu.RUnlock()
	if receiver == nil {
		return fmt.Errorf("node does not accept %s messages", msg.Type)
	}

	switch msg.Type {
	case MessageTypeNewBlock:
		var block blockchain.Block
		if err := json.Unmarshal(msg.Payload, &block); err != nil {
			return fmt.Errorf("invalid block payload: %w", err)
		}
		_, err := receiver.ReceiveBlock(&block)
		return err
	case MessageTypeNewTx:
		var tx blockchain.Transaction
		if err := json.Unmarshal(msg.Payload, &tx); err != nil {
			return fmt.Errorf("invalid transaction payload: %w", err)
		}
		_, err := receiver.ReceiveTransaction(tx)
		return err
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (h *Hub) reply(c *client, cause error) {
	msg, err := NewMessage(MessageTypeError, map[string]string{"error": cause.Error()})
	if err != nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug().Err(err).Str("client", c.id).Msg("Client write failed")
			h.unregister(c)
			return
		}
	}
}

// unregister is safe to call more than once per client.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	c.conn.Close()
	h.logger.Info().Str("client", c.id).Msg("Client disconnected")
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

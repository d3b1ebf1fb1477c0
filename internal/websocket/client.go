package websocket

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

var clientSeq atomic.Uint64

// Client represents a WebSocket client
type Client struct {
	ID       string
	Conn     *websocket.Conn
	SendChan chan Message
	logger   *zap.Logger

	mutex     sync.RWMutex
	eventType string // Subscribed event type, "" or "*" for all
	chainID   string // Chain ID filter, "" or "*" for all
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, logger *zap.Logger) *Client {
	id := strconv.FormatUint(clientSeq.Add(1), 10)
	return &Client{
		ID:       id,
		Conn:     conn,
		SendChan: make(chan Message, sendBuffer),
		logger:   logger.With(zap.String("client", id)),
	}
}

// Subscribe replaces the client's subscription
func (c *Client) Subscribe(eventType, chainID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.eventType = eventType
	c.chainID = chainID
}

// Subscription returns the subscribed event type and chain id
func (c *Client) Subscription() (string, string) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.eventType, c.chainID
}

// Matches reports whether a message of eventType on chainID is for the client
func (c *Client) Matches(eventType, chainID string) bool {
	subscribedType, subscribedChain := c.Subscription()
	return matches(subscribedType, eventType) && matches(subscribedChain, chainID)
}

func matches(filter, value string) bool {
	return filter == "" || filter == "*" || filter == value
}

// ReadPump reads messages from the WebSocket connection until it fails
func (c *Client) ReadPump(messageHandler func(*Client, []byte), done func(*Client)) {
	defer func() {
		done(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		messageHandler(c, message)
	}
}

// WritePump writes queued messages and pings to the connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.SendChan:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				c.logger.Warn("websocket write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientManager tracks connected clients and fans broadcasts out to them
type ClientManager struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	reply      chan reply
	done       chan struct{}
	stopOnce   sync.Once
	mutex      sync.Mutex
	logger     *zap.Logger
}

type reply struct {
	client  *Client
	message Message
}

// NewClientManager creates a new client manager
func NewClientManager(logger *zap.Logger) *ClientManager {
	return &ClientManager{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, sendBuffer),
		reply:      make(chan reply, sendBuffer),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Register registers a client
func (m *ClientManager) Register(client *Client) {
	select {
	case m.register <- client:
	case <-m.done:
		client.Conn.Close()
	}
}

// Unregister unregisters a client
func (m *ClientManager) Unregister(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

// Broadcast queues message for every client whose subscription matches it
func (m *ClientManager) Broadcast(message Message) {
	select {
	case m.broadcast <- message:
	case <-m.done:
	}
}

// Send queues message for a single client
func (m *ClientManager) Send(client *Client, message Message) {
	select {
	case m.reply <- reply{client: client, message: message}:
	case <-m.done:
	}
}

// Count returns the number of connected clients
func (m *ClientManager) Count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.clients)
}

// Stop ends Run and closes every connection
func (m *ClientManager) Stop() {
	m.stopOnce.Do(func() { close(m.done) })

	m.mutex.Lock()
	defer m.mutex.Unlock()
	for client := range m.clients {
		client.Conn.Close()
		delete(m.clients, client)
	}
}

// Run serializes registration and delivery until Stop
func (m *ClientManager) Run() {
	for {
		select {
		case <-m.done:
			return
		case client := <-m.register:
			m.mutex.Lock()
			m.clients[client] = true
			m.mutex.Unlock()
		case client := <-m.unregister:
			m.mutex.Lock()
			m.remove(client)
			m.mutex.Unlock()
		case r := <-m.reply:
			m.mutex.Lock()
			if m.clients[r.client] {
				m.deliver(r.client, r.message)
			}
			m.mutex.Unlock()
		case message := <-m.broadcast:
			m.mutex.Lock()
			for client := range m.clients {
				if client.Matches(message.Type, message.ChainID) {
					m.deliver(client, message)
				}
			}
			m.mutex.Unlock()
		}
	}
}

// deliver drops clients that cannot keep up. Callers hold the mutex.
func (m *ClientManager) deliver(client *Client, message Message) {
	select {
	case client.SendChan <- message:
	default:
		m.logger.Warn("client send buffer full, disconnecting", zap.String("client", client.ID))
		m.remove(client)
	}
}

func (m *ClientManager) remove(client *Client) {
	if _, ok := m.clients[client]; ok {
		delete(m.clients, client)
		close(client.SendChan)
	}
}

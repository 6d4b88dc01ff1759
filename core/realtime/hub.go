package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lukewaehner/KijayKolder-LinksHub/logger"

	"github.com/gorilla/websocket"
)

// Client is one websocket subscriber to a topic.
type Client struct {
	Hub   *Hub
	Conn  *websocket.Conn
	Send  chan []byte
	Topic string
}

// NewClient returns a client with the usual send buffer.
func NewClient(hub *Hub, conn *websocket.Conn, topic string) *Client {
	return &Client{Hub: hub, Conn: conn, Send: make(chan []byte, 64), Topic: topic}
}

type broadcastMessage struct {
	topic   string
	payload []byte
}

// Hub fans change events out to websocket clients grouped by topic.
// A client whose send buffer is full is dropped rather than blocking the others.
type Hub struct {
	topics map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		topics:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.topics[client.Topic] == nil {
				h.topics[client.Topic] = make(map[*Client]bool)
			}
			h.topics[client.Topic][client] = true
			h.mu.Unlock()
			logger.Debug("realtime client registered", logger.String("topic", client.Topic))

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastToTopic(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop ends Run and closes every client's send channel.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// removeClient must be called with h.mu held.
func (h *Hub) removeClient(client *Client) {
	clients, ok := h.topics[client.Topic]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.topics, client.Topic)
	}
}

func (h *Hub) broadcastToTopic(msg *broadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.topics[msg.topic] {
		select {
		case client.Send <- msg.payload:
		default:
			// slow consumer
			logger.Warn("realtime client evicted", logger.String("topic", msg.topic))
			h.removeClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.topics {
		for client := range clients {
			close(client.Send)
		}
	}
	h.topics = make(map[string]map[*Client]bool)
}

// Register adds client to its topic. It is a no-op once the hub has stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes client from its topic.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a raw payload for every client of topic.
func (h *Hub) Broadcast(topic string, payload []byte) {
	select {
	case h.broadcast <- &broadcastMessage{topic: topic, payload: payload}:
	case <-h.done:
	}
}

// Publish implements Publisher by broadcasting ev to clients of ev.Table.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &broadcastMessage{topic: ev.Table, payload: data}:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount returns the number of clients subscribed to topic.
func (h *Hub) ClientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// ReadPump drains the connection so control frames are processed; subscribers
// never send data. It unregisters the client when the peer goes away.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", logger.ErrorField(err), logger.String("topic", c.Topic))
			}
			return
		}
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

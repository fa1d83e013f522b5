package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Manager fans marketplace events out to websocket clients subscribed
// per asset: bid updates, auction countdowns, end-of-auction results.
type Manager struct {
	subscribers sync.Map // asset id -> *sync.Map of *Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage
}

// Client is one websocket subscriber watching a single asset.
type Client struct {
	ID      string
	AssetID string
	Conn    *websocket.Conn
	Send    chan []byte
}

type broadcastMessage struct {
	assetID string
	payload []byte
}

// NewManager creates a connection manager. Run must be started in a
// goroutine before clients connect.
func NewManager() *Manager {
	return &Manager{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
	}
}

// Run owns the connection lifecycle; one goroutine serializes all
// register/unregister/broadcast traffic.
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.registerClient(client)
		case client := <-m.unregister:
			m.unregisterClient(client)
		case message := <-m.broadcast:
			m.broadcastToAsset(message.assetID, message.payload)
		}
	}
}

// RegisterClient adds a subscriber.
func (m *Manager) RegisterClient(client *Client) {
	m.register <- client
}

// UnregisterClient removes a subscriber and closes its connection.
func (m *Manager) UnregisterClient(client *Client) {
	m.unregister <- client
}

// Broadcast delivers a payload to every client watching an asset.
func (m *Manager) Broadcast(assetID string, payload []byte) {
	m.broadcast <- &broadcastMessage{assetID: assetID, payload: payload}
}

// SubscriberCount returns how many clients watch an asset.
func (m *Manager) SubscriberCount(assetID string) int {
	subscribers, ok := m.subscribers.Load(assetID)
	if !ok {
		return 0
	}
	count := 0
	subscribers.(*sync.Map).Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (m *Manager) registerClient(client *Client) {
	subscribers, _ := m.subscribers.LoadOrStore(client.AssetID, &sync.Map{})
	subscribers.(*sync.Map).Store(client, true)

	logrus.Infof("ws: client %s subscribed to nft %s", client.ID, client.AssetID)
	go client.writePump()
}

func (m *Manager) unregisterClient(client *Client) {
	subscribers, ok := m.subscribers.Load(client.AssetID)
	if !ok {
		return
	}
	// The read pump and an eviction can both hand the same client back;
	// only the delete that actually removes it closes the channel.
	if _, present := subscribers.(*sync.Map).LoadAndDelete(client); !present {
		return
	}
	close(client.Send)
	client.Conn.Close()
	logrus.Infof("ws: client %s unsubscribed from nft %s", client.ID, client.AssetID)
}

func (m *Manager) broadcastToAsset(assetID string, payload []byte) {
	subscribers, ok := m.subscribers.Load(assetID)
	if !ok {
		return
	}
	subscribers.(*sync.Map).Range(func(key, _ any) bool {
		client := key.(*Client)
		select {
		case client.Send <- payload:
		default:
			// A full send buffer means a slow client; drop it so it
			// cannot stall the rest. This runs on the Run goroutine,
			// so it must not go back through the unregister channel.
			m.unregisterClient(client)
		}
		return true
	})
}

func (c *Client) writePump() {
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

// StartReadPump consumes client frames until disconnect, then hands
// the client back for unregistration.
func (c *Client) StartReadPump(unregister chan<- *Client) {
	go func() {
		defer func() {
			unregister <- c
		}()

		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.Conn.SetPongHandler(func(string) error {
			c.Conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		for {
			if _, _, err := c.Conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Warnf("ws: client %s read error: %v", c.ID, err)
				}
				return
			}
		}
	}()
}

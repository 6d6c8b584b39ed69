package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/rendezvous/internal/models"
	"github.com/mossy-p/rendezvous/internal/router"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Client is one endpoint's control connection. The identifier is empty
// until the endpoint registers; it is set exactly once.
type Client struct {
	mu         sync.Mutex
	identifier string

	conn   *websocket.Conn
	send   chan []byte
	closed atomic.Bool
}

// ID returns the registered identifier, or "" before registration.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identifier
}

func (c *Client) setID(identifier string) {
	c.mu.Lock()
	c.identifier = identifier
	c.mu.Unlock()
}

// Send queues a message for delivery. It reports false when the buffer
// is full or the connection has closed; the message is dropped then.
func (c *Client) Send(msg models.SignalMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal message: %v", err)
		return false
	}

	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Printf("Failed to send message to %s, buffer full", c.ID())
		return false
	}
}

// Alive reports whether the connection can still deliver messages.
func (c *Client) Alive() bool {
	return !c.closed.Load()
}

// Signaling returns the WebSocket endpoint handler. Each connection gets
// a read pump that feeds the router in arrival order and a write pump
// that drains the send buffer and keeps the connection alive with pings.
func Signaling(rt *router.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("Failed to upgrade connection: %v", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan []byte, 256),
		}
		log.Println("New client connected")

		go client.writePump()
		go client.readPump(rt)
	}
}

func (c *Client) readPump(rt *router.Router) {
	defer func() {
		c.closed.Store(true)
		c.conn.Close()
		if id := c.ID(); id != "" {
			rt.Disconnect(id, c)
		}
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Malformed messages are dropped with a diagnostic, no reply
		var msg models.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Failed to parse message: %v", err)
			continue
		}

		sender := c.ID()
		if sender == "" {
			if msg.Type == models.SignalTypeRegister {
				if id, ok := rt.Register(c, msg.Email); ok {
					c.setID(id)
				}
			} else {
				c.Send(models.SignalMessage{
					Type:    models.SignalTypeError,
					Message: "Not registered",
				})
			}
			continue
		}

		// The sender is the connection's registered identity, never
		// whatever the message claims
		msg.From = sender
		rt.Dispatch(sender, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

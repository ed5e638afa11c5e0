package gateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 256
	pingPeriod   = 30 * time.Second
	pongWait     = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// Client is one WebSocket peer.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	symbols map[string]bool // empty means every symbol
}

func newClient(conn *websocket.Conn, hub *Hub, symbols map[string]bool) *Client {
	return &Client{conn: conn, send: make(chan []byte, sendBuffer), hub: hub, symbols: symbols}
}

func (c *Client) wants(symbol string) bool {
	return len(c.symbols) == 0 || c.symbols[symbol]
}

// enqueue must be called with the hub lock held (send is closed under it).
func (c *Client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default: // slow client, drop
	}
}

// writePump coalesces queued envelopes into one frame, newline separated.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump answers {"ping":N} application pings and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		c.hub.log.Info("client disconnected", "remote", c.conn.RemoteAddr().String())
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Ping int64 `json:"ping"`
		}
		if json.Unmarshal(msg, &req) != nil || req.Ping == 0 {
			continue
		}
		pong, _ := json.Marshal(map[string]int64{"pong": req.Ping, "server_ts": time.Now().UnixMilli()})
		c.hub.mu.RLock()
		if _, ok := c.hub.clients[c]; ok {
			c.enqueue(pong)
		}
		c.hub.mu.RUnlock()
	}
}

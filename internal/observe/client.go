package observe

import (
	"net/http"
	"os"
	"strings"
	"time"

	"arbitrage/pkg/utils"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536
	sendBufferSize = 256
)

// originChecker allows every origin unless ALLOWED_ORIGINS restricts
// the set via an O(1) lookup. Observer connections are internal (other
// instances, an operator dashboard), so an empty allowlist defaults
// open rather than closed.
type originChecker struct {
	allowed  map[string]struct{}
	allowAll bool
}

var checker = newOriginChecker()

func newOriginChecker() *originChecker {
	oc := &originChecker{allowed: make(map[string]struct{})}
	env := os.Getenv("ALLOWED_ORIGINS")
	if env == "" || env == "*" {
		oc.allowAll = true
		return oc
	}
	for _, origin := range strings.Split(env, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			oc.allowed[origin] = struct{}{}
		}
	}
	return oc
}

func (oc *originChecker) check(origin string) bool {
	if origin == "" || oc.allowAll {
		return true
	}
	_, ok := oc.allowed[origin]
	return ok
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return checker.check(r.Header.Get("Origin"))
	},
	EnableCompression: true,
}

// Client is one observer's websocket connection. Observers are
// read-only: the stream only ever writes to them.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
	log  *utils.Logger
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && c.log != nil {
				c.log.Warn("observe: read error", utils.Err(err))
			}
			break
		}
		// Observers never send commands; incoming frames are discarded.
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
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

		drainLoop:
			for {
				select {
				case msg, ok := <-c.send:
					if !ok {
						break drainLoop
					}
					w.Write([]byte{'\n'})
					w.Write(msg)
				default:
					break drainLoop
				}
			}

			if err := w.Close(); err != nil {
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

// ServeWS upgrades the request to a websocket and registers the
// resulting Client against hub, for use as an http.HandlerFunc:
//
//	router.HandleFunc("/ws/observe", func(w, r) { observe.ServeWS(hub, w, r) })
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if hub.log != nil {
			hub.log.Warn("observe: upgrade failed", utils.Err(err))
		}
		return
	}

	client := &Client{
		conn: conn,
		hub:  hub,
		send: make(chan []byte, sendBufferSize),
		log:  hub.log,
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

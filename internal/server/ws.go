package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"chatrelay/internal/registry"
	"chatrelay/internal/session"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
	sendBuffer     = 256
)

var errChannelBusy = errors.New("client send buffer full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient is a single connected push channel. It implements registry.Channel:
// the delivery service hands it marshaled events, the write pump moves them
// onto the socket.
type wsClient struct {
	logger *zap.SugaredLogger
	conn   *websocket.Conn
	send   chan []byte

	once sync.Once
	done chan struct{}
}

func newWSClient(logger *zap.SugaredLogger, conn *websocket.Conn) *wsClient {
	return &wsClient{
		logger: logger,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// Push queues an event payload for delivery. A full buffer counts as an
// unreachable client; the message is already durable so the push is dropped.
func (c *wsClient) Push(payload []byte) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	case c.send <- payload:
		return nil
	default:
		return errChannelBusy
	}
}

// Close tears the channel down. Safe to call more than once, including from
// the registry when a reconnect displaces this socket.
func (c *wsClient) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the pong deadline fresh and detects disconnects. Inbound
// frames carry no protocol meaning, sends travel over HTTP.
func (c *wsClient) readPump(userID int64, reg *registry.Registry) {
	defer func() {
		reg.Unregister(userID, c)
		c.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debugf("Push channel for user (id: %d) dropped: %v", userID, err)
			}
			return
		}
	}
}

// serveWS handles HTTP requests on "/ws" endpoint: authenticates, upgrades and
// registers the connection as the user's single live push channel
func (h *handler) serveWS(reg *registry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			// browsers cannot set headers on websocket dials
			token = r.URL.Query().Get("token")
		}

		userID, err := h.auth.Identity(r.Context(), token)
		if err != nil {
			if errors.Is(err, session.ErrUnauthorized) {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warnf("Websocket upgrade failed: %v", err)
			return
		}

		client := newWSClient(h.logger, conn)
		reg.Register(userID, client)

		h.logger.Infof("Push channel connected for user (id: %d)", userID)

		go client.writePump()
		go client.readPump(userID, reg)
	})
}

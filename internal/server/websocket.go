package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/topic"

	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/log"
)

type (
	// Hub fans engine transitions out to connected WebSocket clients
	Hub struct {
		topic topic.Topic[*api.Transition]
		prod  topic.Producer[*api.Transition]
		done  chan struct{}
		mu    sync.RWMutex
	}

	// Client represents a WebSocket client connection for transition
	// streaming
	Client struct {
		conn     *websocket.Conn
		consumer topic.Consumer[*api.Transition]
		done     <-chan struct{}
		filter   []api.InstanceID
	}
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 512
	wsBufferSize       = 1024
	incomingBufferSize = 16

	messageSubscribe  = "subscribe"
	messageTransition = "transition"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a Hub with no connected clients
func NewHub() *Hub {
	t := caravan.NewTopic[*api.Transition]()
	return &Hub{
		topic: t,
		prod:  t.NewProducer(),
		done:  make(chan struct{}),
	}
}

// OnTransition publishes the transition to every connected client
func (h *Hub) OnTransition(t *api.Transition) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	select {
	case <-h.done:
	default:
		h.prod.Send() <- t
	}
}

// Close disconnects every client and stops accepting transitions
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
	default:
		close(h.done)
		h.prod.Close()
	}
}

// Serve upgrades an HTTP connection to WebSocket and streams transitions
// for the given instances. An empty list follows every instance
func (h *Hub) Serve(
	w http.ResponseWriter, r *http.Request, instances []api.InstanceID,
) {
	// subscribe before the handshake completes so that nothing the client
	// triggers after connecting is missed
	consumer := h.topic.NewConsumer()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		consumer.Close()
		slog.Error("WebSocket upgrade failed",
			log.Error(err))
		return
	}

	client := &Client{
		conn:     conn,
		consumer: consumer,
		done:     h.done,
		filter:   instances,
	}

	go client.run()
}

func (s *Server) handleWebSocket(c *gin.Context) {
	s.hub.Serve(c.Writer, c.Request, splitInstances(c.Query("instance")))
}

func (c *Client) run() {
	defer func() {
		c.consumer.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	incoming := make(chan []byte, incomingBufferSize)
	go c.readMessages(incoming)

	for {
		select {
		case message, ok := <-incoming:
			if !ok {
				return
			}
			c.handleSubscribe(message)

		case t, ok := <-c.consumer.Receive():
			if !ok {
				c.sendClose()
				return
			}
			if !c.sendIfMatched(t) {
				return
			}

		case <-c.done:
			c.sendClose()
			return

		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

func (c *Client) readMessages(incoming chan []byte) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			close(incoming)
			return
		}
		incoming <- message
	}
}

func (c *Client) handleSubscribe(message []byte) {
	var sub api.SubscribeRequest
	if err := json.Unmarshal(message, &sub); err != nil {
		slog.Error("Failed to parse WebSocket message",
			log.Error(err))
		return
	}

	if sub.Type != messageSubscribe {
		return
	}
	c.filter = sub.Data.Instances
}

func (c *Client) sendIfMatched(t *api.Transition) bool {
	if len(c.filter) > 0 && !slices.Contains(c.filter, t.InstanceID) {
		return true
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteJSON(&api.TransitionMessage{
		Type: messageTransition,
		Data: t,
	})
	if err != nil {
		slog.Error("WebSocket write failed",
			log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendPing() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.PingMessage, nil)
	return err == nil
}

func (c *Client) sendClose() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func splitInstances(raw string) []api.InstanceID {
	var res []api.InstanceID
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, api.InstanceID(part))
		}
	}
	return res
}

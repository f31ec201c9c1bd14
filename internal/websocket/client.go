package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/dukerupert/tripcart/internal/protocol"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Handler processes the commands of one connection. Handle is called
// sequentially from the read loop; Close once the connection is gone.
type Handler interface {
	Handle(ctx context.Context, cmd protocol.Command)
	Close()
}

// Client represents a single WebSocket connection.
type Client struct {
	hub     *Hub
	conn    *ws.Conn
	send    chan []byte
	id      string
	handler Handler

	// guarded by hub.mu
	userID string
	tripID string
}

// NewClient creates a Client tied to the given hub and connection.
func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		id:   uuid.New().String(),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Send delivers ev to this client only.
func (c *Client) Send(ev protocol.Event) {
	c.hub.Send(c, ev)
}

// Broadcast fans ev out to the clients concerned with tripID and its owner.
func (c *Client) Broadcast(ev protocol.Event, tripID, ownerID string) {
	c.hub.Broadcast(ev, Scope{TripID: tripID, UserID: ownerID})
}

// Watch marks tripID as the trip this client is looking at.
func (c *Client) Watch(tripID string) {
	c.hub.Watch(c, tripID)
}

// SetUser records the authenticated user on this connection.
func (c *Client) SetUser(userID string) {
	c.hub.SetUser(c, userID)
}

func (c *Client) inScope(s Scope) bool {
	if s.TripID != "" && c.tripID == s.TripID {
		return true
	}
	return s.UserID != "" && c.userID == s.UserID
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)

	if c.handler != nil {
		c.handler.Close()
	}
}

// readPump decodes each frame and hands it to the handler before reading the
// next one. It returns on error (connection close), which triggers cleanup.
func (c *Client) readPump(ctx context.Context) {
	// Commands finish even if the socket drops mid-way.
	cmdCtx := context.WithoutCancel(ctx)
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		c.dispatch(cmdCtx, typ, data)
	}
}

func (c *Client) dispatch(ctx context.Context, typ ws.MessageType, data []byte) {
	if typ != ws.MessageText {
		c.Send(protocol.ErrorEvent("Invalid request"))
		return
	}
	cmd, err := protocol.Decode(data)
	if err != nil {
		c.hub.logger.Debug("invalid frame", "client_id", c.id, "error", err)
		c.Send(protocol.ErrorEvent("Invalid request"))
		return
	}
	if c.handler == nil {
		return
	}
	c.handler.Handle(ctx, cmd)
}

// writePump drains the send channel and writes messages to the WebSocket.
// It also sends periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Hub closed the channel, connection is done
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

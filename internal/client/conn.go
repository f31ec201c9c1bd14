package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/tripcart/internal/protocol"
)

// Conn is a client connection to the sync socket.
type Conn struct {
	conn *ws.Conn
}

// Dial opens a connection to a /ws endpoint.
func Dial(ctx context.Context, url string) (*Conn, error) {
	c, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{conn: c}, nil
}

// Send writes one command frame.
func (c *Conn) Send(ctx context.Context, cmd protocol.Command) error {
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.EventName(), err)
	}
	if err := c.conn.Write(ctx, ws.MessageText, data); err != nil {
		return fmt.Errorf("send %s: %w", cmd.EventName(), err)
	}
	return nil
}

// Run reads events and passes each to fn until the connection closes or ctx
// is cancelled. A normal close returns nil.
func (c *Conn) Run(ctx context.Context, fn func(protocol.Envelope)) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || ws.CloseStatus(err) == ws.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		if env.Event == "" {
			return errors.New("decode frame: missing event name")
		}
		fn(env)
	}
}

// Close closes the connection normally.
func (c *Conn) Close() error {
	return c.conn.Close(ws.StatusNormalClosure, "")
}

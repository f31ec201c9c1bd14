package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// HandlerFactory builds the command handler for a freshly accepted client.
type HandlerFactory func(c *Client) Handler

// HandleWebSocket returns an HTTP handler that upgrades connections to WebSocket
// and runs them as Hub clients.
func HandleWebSocket(hub *Hub, newHandler HandlerFactory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // browser clients may be served from another origin
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		client := NewClient(hub, conn)
		if newHandler != nil {
			client.handler = newHandler(client)
		}
		hub.logger.Debug("client connected", "client_id", client.id)
		client.Run(r.Context())
		hub.logger.Debug("client disconnected", "client_id", client.id)
	}
}

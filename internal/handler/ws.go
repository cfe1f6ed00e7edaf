package handler

import (
	"time"

	"helpdesk-backend/internal/model"
	"helpdesk-backend/internal/service"

	"github.com/gofiber/contrib/websocket"
)

const (
	readDeadline = 60 * time.Second
	sendBuffer   = 256
)

// startWriter pumps the client's Send channel onto the wire. The hub closes
// Send on unregister, which ends the pump and the connection.
func startWriter(c *websocket.Conn, client *service.Client) {
	go func() {
		defer c.Close()
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()
}

// sendError surfaces any failure as a generic error event on the
// originating connection; nothing here ever crashes the process.
func sendError(hub *service.Hub, client *service.Client, err error) {
	hub.ToClient(client, model.NewEvent(model.EvError, model.ErrorPayload{Message: err.Error()}))
}

func sendEvent(hub *service.Hub, client *service.Client, eventType string, payload interface{}) {
	hub.ToClient(client, model.NewEvent(eventType, payload))
}

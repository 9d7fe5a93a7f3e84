package ws

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Handler serves GET /ws. The connection only receives events.
func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		client := newClient(hub, conn)
		if !hub.registerClient(client) {
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump()
	})
}

// UpgradeMiddleware answers 426 to plain HTTP requests on the websocket route.
func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}
}

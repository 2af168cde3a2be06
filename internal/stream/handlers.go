package stream

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const pingInterval = 30 * time.Second

func RegisterRoutes(r fiber.Router, hub *Hub) {
	var upgradeOnly fiber.Handler = func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}
	r.Use("/ws", upgradeOnly)
	r.Get("/ws/:topic", websocket.New(func(c *websocket.Conn) {
		serve(hub, c)
	}))
}

// serve streams a topic's messages to one connection until either side
// closes it. Incoming frames are read only to notice the close.
func serve(hub *Hub, c *websocket.Conn) {
	client := hub.Register(c.Params("topic"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-client.Send:
				if !ok {
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
	hub.Unregister(client)
	<-done
}

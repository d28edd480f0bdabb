package stream

import (
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const streamUserKey = "stream_user_id"

func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler) {
	r.Get("/ws", authMiddleware, func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		userID, ok := auth.UserID(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "token invalid")
		}
		c.Locals(streamUserKey, userID)
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals(streamUserKey).(int64)
		client := hub.Register(userID)
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
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
	}))
}

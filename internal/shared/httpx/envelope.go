package httpx

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Envelope is the response body shape shared by every route.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
}

func Respond(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Envelope{StatusCode: status, Message: message, Data: data})
}

// ErrorHandler renders fiber errors (and anything else) as an Envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Unknown serverside error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		message = fe.Message
	}
	return Respond(c, status, message, nil)
}

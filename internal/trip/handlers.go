package trip

import (
	"errors"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/auth"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/shared/httpx"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Put("/trip-score", authMiddleware, func(c *fiber.Ctx) error {
		userID, ok := auth.UserID(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "token invalid")
		}
		summary, err := ParseUpload(c.Body())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid body")
		}
		result, err := svc.SubmitTrip(c.Context(), userID, summary)
		if err != nil {
			return errorResponse(err)
		}
		return httpx.Respond(c, fiber.StatusOK, "User updated", result)
	})

	r.Get("/trips", authMiddleware, func(c *fiber.Ctx) error {
		userID, ok := auth.UserID(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "token invalid")
		}
		trips, err := svc.Trips(c.Context(), userID, c.QueryInt("limit", defaultHistoryLimit))
		if err != nil {
			return errorResponse(err)
		}
		return httpx.Respond(c, fiber.StatusOK, "Trips gathered", trips)
	})
}

func errorResponse(err error) error {
	switch {
	case errors.Is(err, ErrInvalidParameters):
		return fiber.NewError(fiber.StatusBadRequest, "Invalid parameters")
	case errors.Is(err, ErrInvalidBody):
		return fiber.NewError(fiber.StatusBadRequest, "Invalid body")
	case errors.Is(err, ErrUserNotFound):
		return fiber.NewError(fiber.StatusNotFound, "No objects found")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "Unknown serverside error")
	}
}

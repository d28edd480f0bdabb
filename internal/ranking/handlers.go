package ranking

import (
	"errors"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/auth"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/shared/httpx"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/comparative-score", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := auth.UserID(c)
		res, err := svc.Compare(c.Context(), userID)
		switch {
		case errors.Is(err, ErrInvalidUserID):
			return fiber.NewError(fiber.StatusBadRequest, "Invalid userID")
		case errors.Is(err, ErrUserNotFound):
			return fiber.NewError(fiber.StatusNotFound, "No objects found")
		case errors.Is(err, ErrInsufficientPopulation):
			return fiber.NewError(fiber.StatusInternalServerError, "Not all values could be gathered")
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, "Unknown serverside error")
		}
		return httpx.Respond(c, fiber.StatusOK, res.Message, res)
	})
}

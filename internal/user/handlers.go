package user

import (
	"errors"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/auth"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/shared/httpx"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/me", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := auth.UserID(c)
		details, err := svc.Details(c.Context(), userID)
		if err != nil {
			return errorResponse(err)
		}
		return httpx.Respond(c, fiber.StatusOK, "User data gathered", details)
	})

	r.Delete("/me", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := auth.UserID(c)
		if err := svc.Delete(c.Context(), userID); err != nil {
			return errorResponse(err)
		}
		return httpx.Respond(c, fiber.StatusOK, "User successfully deleted", nil)
	})
}

func errorResponse(err error) error {
	switch {
	case errors.Is(err, ErrInvalidUserID):
		return fiber.NewError(fiber.StatusBadRequest, "Invalid userID")
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "User not found")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "Unknown serverside error")
	}
}

package tracking

import (
	"errors"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/auth"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/shared/httpx"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/trip"

	"github.com/gofiber/fiber/v2"
)

// fixesRequest accepts either a single fix or {"fixes": [...]}.
type fixesRequest struct {
	Fix
	Fixes []Fix `json:"fixes"`
}

func RegisterRoutes(r fiber.Router, m *Manager, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		userID, ok := auth.UserID(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "token invalid")
		}
		status, err := m.Start(userID)
		if err != nil {
			return errorResponse(err)
		}
		return httpx.Respond(c, fiber.StatusCreated, "Tracking started", status)
	})

	r.Post("/fixes", authMiddleware, func(c *fiber.Ctx) error {
		userID, ok := auth.UserID(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "token invalid")
		}
		var req fixesRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid body")
		}
		fixes := req.Fixes
		if fixes == nil {
			fixes = []Fix{req.Fix}
		}
		res, err := m.AddFixes(c.Context(), userID, fixes)
		if err != nil {
			return errorResponse(err)
		}
		return httpx.Respond(c, fiber.StatusOK, "Fixes processed", res)
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		userID, ok := auth.UserID(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "token invalid")
		}
		result, err := m.Stop(c.Context(), userID)
		if err != nil {
			return errorResponse(err)
		}
		return httpx.Respond(c, fiber.StatusOK, "User updated", result)
	})

	r.Get("/status", authMiddleware, func(c *fiber.Ctx) error {
		userID, ok := auth.UserID(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "token invalid")
		}
		return httpx.Respond(c, fiber.StatusOK, "Tracking status", m.Status(userID))
	})
}

func errorResponse(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyTracking):
		return fiber.NewError(fiber.StatusConflict, "Trip already active")
	case errors.Is(err, ErrNotTracking):
		return fiber.NewError(fiber.StatusConflict, "No active trip")
	case errors.Is(err, trip.ErrInvalidParameters):
		return fiber.NewError(fiber.StatusBadRequest, "Invalid parameters")
	case errors.Is(err, trip.ErrUserNotFound):
		return fiber.NewError(fiber.StatusNotFound, "No objects found")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "Unknown serverside error")
	}
}

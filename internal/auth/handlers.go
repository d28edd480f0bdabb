package auth

import (
	"errors"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/shared/httpx"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/register", func(c *fiber.Ctx) error {
		var req RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		user, tokens, err := svc.Register(c.Context(), req)
		if errors.Is(err, ErrMissingFields) {
			return fiber.NewError(fiber.StatusBadRequest, "Required element not defined")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Unknown serverside error")
		}
		return httpx.Respond(c, fiber.StatusCreated, "User created successfully", fiber.Map{"user": user, "tokens": tokens})
	})

	r.Post("/login", func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil || req.Username == "" || req.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid parameters")
		}
		_, tokens, err := svc.Login(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "User is not authenticated")
		}
		return httpx.Respond(c, fiber.StatusOK, "User authenticated", tokens)
	})

	r.Get("/jwt/verify", func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		userID, err := svc.ValidateAccessToken(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		return httpx.Respond(c, fiber.StatusOK, "Token valid", fiber.Map{"userID": userID})
	})
}

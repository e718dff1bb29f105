package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mosala-ledger/mosala/internal/account"
)

// RegisterAccountRoutes wires account and card endpoints.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler) {
	r.Post("/accounts", h.Create)
	r.Get("/accounts", h.List)
	r.Post("/cards", h.CreateCard)
	r.Get("/cards", h.ListCards)
}

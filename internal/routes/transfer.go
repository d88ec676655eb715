package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/taka-pay/taka_pay/internal/transfer"
)

// RegisterTransferRoutes wires the money-movement endpoints.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler) {
	r.Post("/wallets/deposit", h.Deposit)
	r.Post("/wallets/withdraw", h.Withdraw)
	r.Post("/payments/send", h.Send)
	r.Post("/agents/cash-in", h.CashIn)
	r.Post("/agents/cash-out", h.CashOut)
}

package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/taka-pay/taka_pay/internal/wallet"
)

// RegisterWalletRoutes wires wallet lifecycle and read endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallets", h.Provision)
	r.Get("/wallets/me", h.Me)
	r.Get("/transactions/me", h.Transactions)
	// Admin surface; authorization is enforced by the upstream gateway.
	r.Patch("/admin/wallets/:ownerId/block", h.ToggleBlock)
	r.Patch("/admin/wallets/:ownerId/approve", h.Approve)
}

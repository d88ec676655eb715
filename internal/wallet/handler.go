package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/taka-pay/taka_pay/internal/ledger"
)

// Handler exposes wallet HTTP endpoints. The authenticated caller identity
// arrives from the upstream gateway in the X-User-ID header.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type provisionRequest struct {
	OwnerID string `json:"owner_id"`
	Agent   bool   `json:"agent"`
}

type entryResponse struct {
	OwnerID   string    `json:"owner_id"`
	Balance   int64     `json:"balance"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Provision creates the wallet for a newly registered principal.
func (h *Handler) Provision(c *fiber.Ctx) error {
	var req provisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.OwnerID == "" {
		return fiber.NewError(http.StatusBadRequest, "owner_id is required")
	}
	entry, err := h.service.Provision(c.UserContext(), req.OwnerID, req.Agent)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toEntryResponse(entry))
}

// Me returns the caller's wallet.
func (h *Handler) Me(c *fiber.Ctx) error {
	ownerID := c.Get("X-User-ID")
	if ownerID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing caller identity")
	}
	entry, err := h.service.Get(c.UserContext(), ownerID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toEntryResponse(entry))
}

// ToggleBlock flips the block status of a wallet (admin surface).
func (h *Handler) ToggleBlock(c *fiber.Ctx) error {
	ownerID := c.Params("ownerId")
	entry, err := h.service.ToggleBlock(c.UserContext(), ownerID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toEntryResponse(entry))
}

// Approve activates a pending agent wallet (admin surface).
func (h *Handler) Approve(c *fiber.Ctx) error {
	ownerID := c.Params("ownerId")
	entry, err := h.service.Approve(c.UserContext(), ownerID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		if errors.Is(err, ErrNotPending) {
			return fiber.NewError(http.StatusConflict, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toEntryResponse(entry))
}

type transactionResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Amount     int64     `json:"amount"`
	Sender     string    `json:"sender,omitempty"`
	Receiver   string    `json:"receiver,omitempty"`
	Agent      string    `json:"agent,omitempty"`
	Fee        int64     `json:"fee"`
	Commission int64     `json:"commission"`
	CreatedAt  time.Time `json:"created_at"`
}

// Transactions lists the caller's transaction history.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	ownerID := c.Get("X-User-ID")
	if ownerID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing caller identity")
	}
	txns, err := h.service.Transactions(c.UserContext(), ownerID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, transactionResponse{
			ID:         t.ID,
			Type:       t.Type,
			Amount:     t.Amount,
			Sender:     t.Sender,
			Receiver:   t.Receiver,
			Agent:      t.Agent,
			Fee:        t.Fee,
			Commission: t.Commission,
			CreatedAt:  t.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}

func toEntryResponse(entry ledger.Entry) entryResponse {
	return entryResponse{
		OwnerID:   entry.OwnerID,
		Balance:   entry.Balance,
		Status:    entry.Status,
		CreatedAt: entry.CreatedAt,
	}
}

package transfer

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/taka-pay/taka_pay/internal/ledger"
)

// Handler exposes money-movement endpoints. Callers are already
// authenticated upstream; the gateway passes the principal in X-User-ID.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type counterpartyRequest struct {
	AgentID    string `json:"agent_id"`
	ReceiverID string `json:"receiver_id"`
	UserID     string `json:"user_id"`
	Amount     int64  `json:"amount"`
}

// Deposit credits the caller's wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	ownerID := c.Get("X-User-ID")
	if ownerID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing caller identity")
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Deposit(c.UserContext(), DepositInput{OwnerID: ownerID, Amount: req.Amount})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": res.Transaction.ID,
		"balance":        res.Wallet.Balance,
		"completed_at":   res.Transaction.CreatedAt.Format(time.RFC3339Nano),
	})
}

// Withdraw debits the caller's wallet via the named agent.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing caller identity")
	}
	var req counterpartyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.AgentID == "" {
		return fiber.NewError(http.StatusBadRequest, "agent_id is required")
	}

	res, err := h.service.Withdraw(c.UserContext(), WithdrawInput{UserID: userID, AgentID: req.AgentID, Amount: req.Amount})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": res.Transaction.ID,
		"balance":        res.User.Balance,
		"fee":            res.Transaction.Fee,
		"completed_at":   res.Transaction.CreatedAt.Format(time.RFC3339Nano),
	})
}

// Send moves money from the caller to a peer wallet.
func (h *Handler) Send(c *fiber.Ctx) error {
	senderID := c.Get("X-User-ID")
	if senderID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing caller identity")
	}
	var req counterpartyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.ReceiverID == "" {
		return fiber.NewError(http.StatusBadRequest, "receiver_id is required")
	}

	res, err := h.service.SendMoney(c.UserContext(), SendMoneyInput{SenderID: senderID, ReceiverID: req.ReceiverID, Amount: req.Amount})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id":   res.Transaction.ID,
		"sender_balance":   res.Sender.Balance,
		"receiver_balance": res.Receiver.Balance,
		"fee":              res.Transaction.Fee,
		"completed_at":     res.Transaction.CreatedAt.Format(time.RFC3339Nano),
	})
}

// CashIn lets the calling agent fund a user wallet with received cash.
func (h *Handler) CashIn(c *fiber.Ctx) error {
	agentID := c.Get("X-User-ID")
	if agentID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing caller identity")
	}
	var req counterpartyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" {
		return fiber.NewError(http.StatusBadRequest, "user_id is required")
	}

	res, err := h.service.AgentCashIn(c.UserContext(), AgentCashInInput{AgentID: agentID, UserID: req.UserID, Amount: req.Amount})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": res.Transaction.ID,
		"agent_balance":  res.Agent.Balance,
		"user_balance":   res.User.Balance,
		"fee":            res.Transaction.Fee,
		"completed_at":   res.Transaction.CreatedAt.Format(time.RFC3339Nano),
	})
}

// CashOut lets the calling agent pay out cash from a user wallet.
func (h *Handler) CashOut(c *fiber.Ctx) error {
	agentID := c.Get("X-User-ID")
	if agentID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing caller identity")
	}
	var req counterpartyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" {
		return fiber.NewError(http.StatusBadRequest, "user_id is required")
	}

	res, err := h.service.AgentCashOut(c.UserContext(), AgentCashOutInput{AgentID: agentID, UserID: req.UserID, Amount: req.Amount})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": res.Transaction.ID,
		"agent_balance":  res.Agent.Balance,
		"user_balance":   res.User.Balance,
		"fee":            res.Transaction.Fee,
		"completed_at":   res.Transaction.CreatedAt.Format(time.RFC3339Nano),
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrWalletBlocked), errors.Is(err, ledger.ErrAgentNotApproved):
		return fiber.NewError(http.StatusForbidden, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

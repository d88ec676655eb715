package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/taka-pay/taka_pay/internal/audit"
	"github.com/taka-pay/taka_pay/internal/ledger"
	"github.com/taka-pay/taka_pay/internal/logging"
	"github.com/taka-pay/taka_pay/internal/notification"
	"github.com/taka-pay/taka_pay/internal/rates"
)

// Service is the transaction engine. Each operation validates its inputs,
// computes the applicable fee, mutates every touched ledger entry and appends
// exactly one transaction record inside a single atomic unit. Fees accrue to
// the system account.
type Service struct {
	store    ledger.Store
	rates    rates.Provider
	systemID string
	notifier notification.Notifier
	archiver audit.Archiver
	logger   *slog.Logger
}

// NewService builds the transaction engine. systemID names the distinguished
// ledger entry collecting fee revenue and must already be provisioned.
func NewService(store ledger.Store, provider rates.Provider, systemID string, notifier notification.Notifier, archiver audit.Archiver, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("rate provider is required")
	}
	if systemID == "" {
		return nil, fmt.Errorf("system account owner id is required")
	}
	if archiver == nil {
		archiver = audit.Nop{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: store, rates: provider, systemID: systemID, notifier: notifier, archiver: archiver, logger: logger}, nil
}

// DepositInput captures an externally funded top-up of a wallet.
type DepositInput struct {
	OwnerID string
	Amount  int64
}

// DepositResult describes the outcome of a deposit.
type DepositResult struct {
	Wallet      ledger.Entry
	Transaction ledger.Transaction
}

// Deposit credits the owner's wallet with amount. Deposits are fee-free.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (DepositResult, error) {
	if input.Amount <= 0 {
		return DepositResult{}, ledger.ErrInvalidAmount
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return DepositResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	entries, err := s.lockEntries(ctx, tx, input.OwnerID)
	if err != nil {
		return DepositResult{}, err
	}
	if err := s.ensureNotBlocked(entries); err != nil {
		return DepositResult{}, err
	}

	wallet, err := tx.ApplyDelta(ctx, input.OwnerID, input.Amount)
	if err != nil {
		return DepositResult{}, err
	}

	txn, err := tx.Append(ctx, ledger.Transaction{
		Type:     ledger.TypeDeposit,
		Amount:   input.Amount,
		Receiver: input.OwnerID,
	})
	if err != nil {
		return DepositResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return DepositResult{}, err
	}

	s.completed(ctx, txn, notification.KindDeposit, input.OwnerID,
		fmt.Sprintf("Deposited %d to your wallet", input.Amount))

	return DepositResult{Wallet: wallet, Transaction: txn}, nil
}

// WithdrawInput captures a user-initiated cash withdrawal serviced by an agent.
type WithdrawInput struct {
	UserID  string
	AgentID string
	Amount  int64
}

// WithdrawResult describes the outcome of a withdrawal.
type WithdrawResult struct {
	User        ledger.Entry
	Agent       ledger.Entry
	Transaction ledger.Transaction
}

// Withdraw debits the user amount plus the withdraw fee, credits the agent
// with the cash amount and credits the fee to the system account.
func (s *Service) Withdraw(ctx context.Context, input WithdrawInput) (WithdrawResult, error) {
	if input.Amount <= 0 {
		return WithdrawResult{}, ledger.ErrInvalidAmount
	}
	if input.UserID == input.AgentID {
		return WithdrawResult{}, ledger.ErrInvalidAmount
	}

	rts, err := s.rates.Rates(ctx)
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("load rates: %w", err)
	}
	fee := rates.Fee(input.Amount, rts.Withdraw)
	// The total debit must stay representable; a wrapped sum would turn the
	// funds check into a huge credit.
	if fee > math.MaxInt64-input.Amount {
		return WithdrawResult{}, ledger.ErrInvalidAmount
	}
	totalDebit := input.Amount + fee

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return WithdrawResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	owners := []string{input.UserID, input.AgentID}
	if fee > 0 {
		owners = append(owners, s.systemID)
	}
	entries, err := s.lockEntries(ctx, tx, owners...)
	if err != nil {
		return WithdrawResult{}, err
	}
	if err := s.ensureNotBlocked(entries); err != nil {
		return WithdrawResult{}, err
	}
	if entries[input.UserID].Balance < totalDebit {
		return WithdrawResult{}, ledger.ErrInsufficientFunds
	}

	user, err := tx.ApplyDelta(ctx, input.UserID, -totalDebit)
	if err != nil {
		return WithdrawResult{}, err
	}
	agent, err := tx.ApplyDelta(ctx, input.AgentID, input.Amount)
	if err != nil {
		return WithdrawResult{}, err
	}
	if fee > 0 {
		if _, err := tx.ApplyDelta(ctx, s.systemID, fee); err != nil {
			return WithdrawResult{}, err
		}
	}

	txn, err := tx.Append(ctx, ledger.Transaction{
		Type:       ledger.TypeWithdraw,
		Amount:     input.Amount,
		Sender:     input.UserID,
		Agent:      input.AgentID,
		Fee:        fee,
		Commission: fee,
	})
	if err != nil {
		return WithdrawResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return WithdrawResult{}, err
	}

	s.completed(ctx, txn, notification.KindWithdraw, input.UserID,
		fmt.Sprintf("Withdrew %d via agent %s", input.Amount, input.AgentID))

	return WithdrawResult{User: user, Agent: agent, Transaction: txn}, nil
}

// SendMoneyInput captures a peer-to-peer transfer.
type SendMoneyInput struct {
	SenderID   string
	ReceiverID string
	Amount     int64
}

// SendMoneyResult describes the outcome of a peer transfer.
type SendMoneyResult struct {
	Sender      ledger.Entry
	Receiver    ledger.Entry
	Transaction ledger.Transaction
}

// SendMoney moves amount from sender to receiver; the sender additionally
// pays the send-money fee to the system account.
func (s *Service) SendMoney(ctx context.Context, input SendMoneyInput) (SendMoneyResult, error) {
	if input.Amount <= 0 {
		return SendMoneyResult{}, ledger.ErrInvalidAmount
	}
	if input.SenderID == input.ReceiverID {
		return SendMoneyResult{}, ledger.ErrInvalidAmount
	}

	rts, err := s.rates.Rates(ctx)
	if err != nil {
		return SendMoneyResult{}, fmt.Errorf("load rates: %w", err)
	}
	fee := rates.Fee(input.Amount, rts.SendMoney)
	if fee > math.MaxInt64-input.Amount {
		return SendMoneyResult{}, ledger.ErrInvalidAmount
	}
	totalDebit := input.Amount + fee

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return SendMoneyResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	owners := []string{input.SenderID, input.ReceiverID}
	if fee > 0 {
		owners = append(owners, s.systemID)
	}
	entries, err := s.lockEntries(ctx, tx, owners...)
	if err != nil {
		return SendMoneyResult{}, err
	}
	if err := s.ensureNotBlocked(entries); err != nil {
		return SendMoneyResult{}, err
	}
	if entries[input.SenderID].Balance < totalDebit {
		return SendMoneyResult{}, ledger.ErrInsufficientFunds
	}

	sender, err := tx.ApplyDelta(ctx, input.SenderID, -totalDebit)
	if err != nil {
		return SendMoneyResult{}, err
	}
	receiver, err := tx.ApplyDelta(ctx, input.ReceiverID, input.Amount)
	if err != nil {
		return SendMoneyResult{}, err
	}
	if fee > 0 {
		if _, err := tx.ApplyDelta(ctx, s.systemID, fee); err != nil {
			return SendMoneyResult{}, err
		}
	}

	txn, err := tx.Append(ctx, ledger.Transaction{
		Type:       ledger.TypeTransfer,
		Amount:     input.Amount,
		Sender:     input.SenderID,
		Receiver:   input.ReceiverID,
		Fee:        fee,
		Commission: fee,
	})
	if err != nil {
		return SendMoneyResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return SendMoneyResult{}, err
	}

	s.completed(ctx, txn, notification.KindSendMoney, input.ReceiverID,
		fmt.Sprintf("You received %d from %s", input.Amount, input.SenderID))

	return SendMoneyResult{Sender: sender, Receiver: receiver, Transaction: txn}, nil
}

// AgentCashInInput captures an agent funding a user wallet with physical cash.
type AgentCashInInput struct {
	AgentID string
	UserID  string
	Amount  int64
}

// AgentCashInResult describes the outcome of a cash-in.
type AgentCashInResult struct {
	Agent       ledger.Entry
	User        ledger.Entry
	Transaction ledger.Transaction
}

// AgentCashIn debits the agent the full amount and credits the user the
// amount net of the cash-in fee; the fee goes to the system account. The
// recipient bears the fee here because the agent advances physical cash at
// no risk of their own.
func (s *Service) AgentCashIn(ctx context.Context, input AgentCashInInput) (AgentCashInResult, error) {
	if input.Amount <= 0 {
		return AgentCashInResult{}, ledger.ErrInvalidAmount
	}
	if input.AgentID == input.UserID {
		return AgentCashInResult{}, ledger.ErrInvalidAmount
	}

	rts, err := s.rates.Rates(ctx)
	if err != nil {
		return AgentCashInResult{}, fmt.Errorf("load rates: %w", err)
	}
	fee := rates.Fee(input.Amount, rts.AgentCashIn)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return AgentCashInResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	owners := []string{input.AgentID, input.UserID}
	if fee > 0 {
		owners = append(owners, s.systemID)
	}
	entries, err := s.lockEntries(ctx, tx, owners...)
	if err != nil {
		return AgentCashInResult{}, err
	}
	if err := s.ensureNotBlocked(entries); err != nil {
		return AgentCashInResult{}, err
	}
	if err := ensureAgentApproved(entries[input.AgentID]); err != nil {
		return AgentCashInResult{}, err
	}
	if entries[input.AgentID].Balance < input.Amount {
		return AgentCashInResult{}, ledger.ErrInsufficientFunds
	}

	agent, err := tx.ApplyDelta(ctx, input.AgentID, -input.Amount)
	if err != nil {
		return AgentCashInResult{}, err
	}
	user, err := tx.ApplyDelta(ctx, input.UserID, input.Amount-fee)
	if err != nil {
		return AgentCashInResult{}, err
	}
	if fee > 0 {
		if _, err := tx.ApplyDelta(ctx, s.systemID, fee); err != nil {
			return AgentCashInResult{}, err
		}
	}

	txn, err := tx.Append(ctx, ledger.Transaction{
		Type:       ledger.TypeAgentCashIn,
		Amount:     input.Amount,
		Agent:      input.AgentID,
		Receiver:   input.UserID,
		Fee:        fee,
		Commission: fee,
	})
	if err != nil {
		return AgentCashInResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return AgentCashInResult{}, err
	}

	s.completed(ctx, txn, notification.KindAgentCashIn, input.UserID,
		fmt.Sprintf("Agent %s cashed in %d to your wallet", input.AgentID, input.Amount))

	return AgentCashInResult{Agent: agent, User: user, Transaction: txn}, nil
}

// AgentCashOutInput captures an agent paying out physical cash from a user wallet.
type AgentCashOutInput struct {
	AgentID string
	UserID  string
	Amount  int64
}

// AgentCashOutResult describes the outcome of a cash-out.
type AgentCashOutResult struct {
	User        ledger.Entry
	Agent       ledger.Entry
	Transaction ledger.Transaction
}

// AgentCashOut debits the user the amount plus the cash-out fee, credits the
// agent with the settlement amount and credits the fee to the system account.
// The initiating user bears the fee; the agent's float is made whole.
func (s *Service) AgentCashOut(ctx context.Context, input AgentCashOutInput) (AgentCashOutResult, error) {
	if input.Amount <= 0 {
		return AgentCashOutResult{}, ledger.ErrInvalidAmount
	}
	if input.AgentID == input.UserID {
		return AgentCashOutResult{}, ledger.ErrInvalidAmount
	}

	rts, err := s.rates.Rates(ctx)
	if err != nil {
		return AgentCashOutResult{}, fmt.Errorf("load rates: %w", err)
	}
	fee := rates.Fee(input.Amount, rts.AgentCashOut)
	if fee > math.MaxInt64-input.Amount {
		return AgentCashOutResult{}, ledger.ErrInvalidAmount
	}
	totalDebit := input.Amount + fee

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return AgentCashOutResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	owners := []string{input.AgentID, input.UserID}
	if fee > 0 {
		owners = append(owners, s.systemID)
	}
	entries, err := s.lockEntries(ctx, tx, owners...)
	if err != nil {
		return AgentCashOutResult{}, err
	}
	if err := s.ensureNotBlocked(entries); err != nil {
		return AgentCashOutResult{}, err
	}
	if err := ensureAgentApproved(entries[input.AgentID]); err != nil {
		return AgentCashOutResult{}, err
	}
	if entries[input.UserID].Balance < totalDebit {
		return AgentCashOutResult{}, ledger.ErrInsufficientFunds
	}

	user, err := tx.ApplyDelta(ctx, input.UserID, -totalDebit)
	if err != nil {
		return AgentCashOutResult{}, err
	}
	agent, err := tx.ApplyDelta(ctx, input.AgentID, input.Amount)
	if err != nil {
		return AgentCashOutResult{}, err
	}
	if fee > 0 {
		if _, err := tx.ApplyDelta(ctx, s.systemID, fee); err != nil {
			return AgentCashOutResult{}, err
		}
	}

	txn, err := tx.Append(ctx, ledger.Transaction{
		Type:       ledger.TypeAgentCashOut,
		Amount:     input.Amount,
		Agent:      input.AgentID,
		Sender:     input.UserID,
		Receiver:   input.AgentID,
		Fee:        fee,
		Commission: fee,
	})
	if err != nil {
		return AgentCashOutResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return AgentCashOutResult{}, err
	}

	s.completed(ctx, txn, notification.KindAgentCashOut, input.UserID,
		fmt.Sprintf("Agent %s cashed out %d from your wallet", input.AgentID, input.Amount))

	return AgentCashOutResult{User: user, Agent: agent, Transaction: txn}, nil
}

// lockEntries loads every named entry inside the unit, acquiring locks in
// sorted owner order so concurrent operations on overlapping accounts cannot
// form a lock cycle.
func (s *Service) lockEntries(ctx context.Context, tx ledger.Tx, ownerIDs ...string) (map[string]ledger.Entry, error) {
	ids := append([]string(nil), ownerIDs...)
	sort.Strings(ids)

	entries := make(map[string]ledger.Entry, len(ids))
	for _, id := range ids {
		if _, seen := entries[id]; seen {
			continue
		}
		entry, err := tx.Entry(ctx, id)
		if err != nil {
			return nil, err
		}
		entries[id] = entry
	}
	return entries, nil
}

// ensureNotBlocked rejects the operation if any touched wallet other than the
// system account is blocked.
func (s *Service) ensureNotBlocked(entries map[string]ledger.Entry) error {
	for id, entry := range entries {
		if id == s.systemID {
			continue
		}
		if entry.Status == ledger.StatusBlocked {
			return ledger.ErrWalletBlocked
		}
	}
	return nil
}

// ensureAgentApproved rejects agent-initiated operations from agents still
// awaiting approval. Blocked agents are caught by the general blocked check.
func ensureAgentApproved(agent ledger.Entry) error {
	if agent.Status == ledger.StatusPending {
		return ledger.ErrAgentNotApproved
	}
	return nil
}

// completed runs post-commit side effects. Both archive and notification are
// best effort; the committed ledger state is the source of truth.
func (s *Service) completed(ctx context.Context, txn ledger.Transaction, kind, destination, body string) {
	if err := s.archiver.Archive(ctx, txn); err != nil {
		s.logger.Warn("archive transaction", "transaction_id", txn.ID, "error", err)
	}
	if s.notifier != nil {
		if err := s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: destination, Body: body}); err != nil {
			s.logger.Warn("send notification", "transaction_id", txn.ID, "error", err)
		}
	}
}

package transfer

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/taka-pay/taka_pay/internal/ledger"
	"github.com/taka-pay/taka_pay/internal/logging"
	"github.com/taka-pay/taka_pay/internal/notification"
	"github.com/taka-pay/taka_pay/internal/rates"
)

const systemID = "system"

func newTestService(t *testing.T, fixed rates.Rates) (*Service, ledger.Store) {
	t.Helper()
	store := ledger.NewInMemory()
	if _, err := store.CreateEntry(context.Background(), systemID, 0, ledger.StatusActive); err != nil {
		t.Fatalf("provision system account: %v", err)
	}
	svc, err := NewService(store, rates.Static{Fixed: fixed}, systemID, nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, store
}

func mustCreate(t *testing.T, store ledger.Store, ownerID string, balance int64, status string) {
	t.Helper()
	if _, err := store.CreateEntry(context.Background(), ownerID, balance, status); err != nil {
		t.Fatalf("create %s: %v", ownerID, err)
	}
}

func balanceOf(t *testing.T, store ledger.Store, ownerID string) int64 {
	t.Helper()
	entry, err := store.Entry(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("entry %s: %v", ownerID, err)
	}
	return entry.Balance
}

func TestDeposit(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{})
	ctx := context.Background()
	mustCreate(t, store, "user-1", 50, ledger.StatusActive)

	res, err := svc.Deposit(ctx, DepositInput{OwnerID: "user-1", Amount: 100})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if res.Wallet.Balance != 150 {
		t.Fatalf("expected balance 150, got %d", res.Wallet.Balance)
	}
	if res.Transaction.Type != ledger.TypeDeposit || res.Transaction.Amount != 100 || res.Transaction.Fee != 0 {
		t.Fatalf("unexpected record: %+v", res.Transaction)
	}
	if res.Transaction.Receiver != "user-1" {
		t.Fatalf("expected receiver user-1, got %q", res.Transaction.Receiver)
	}

	txns, err := store.TransactionsFor(ctx, "user-1")
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("expected one record, got %d", len(txns))
	}
}

func TestDepositRejections(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{})
	ctx := context.Background()
	mustCreate(t, store, "user-1", 50, ledger.StatusActive)
	mustCreate(t, store, "user-blocked", 50, ledger.StatusBlocked)

	if _, err := svc.Deposit(ctx, DepositInput{OwnerID: "user-1", Amount: 0}); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := svc.Deposit(ctx, DepositInput{OwnerID: "user-1", Amount: -5}); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := svc.Deposit(ctx, DepositInput{OwnerID: "ghost", Amount: 10}); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Deposit(ctx, DepositInput{OwnerID: "user-blocked", Amount: 10}); !errors.Is(err, ledger.ErrWalletBlocked) {
		t.Fatalf("expected blocked, got %v", err)
	}
	if got := balanceOf(t, store, "user-blocked"); got != 50 {
		t.Fatalf("blocked wallet mutated: %d", got)
	}
}

func TestSendMoneyChargesSenderAndCreditsFee(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{SendMoney: decimal.RequireFromString("0.02")})
	ctx := context.Background()
	mustCreate(t, store, "user-a", 200, ledger.StatusActive)
	mustCreate(t, store, "user-b", 0, ledger.StatusActive)

	res, err := svc.SendMoney(ctx, SendMoneyInput{SenderID: "user-a", ReceiverID: "user-b", Amount: 100})
	if err != nil {
		t.Fatalf("send money: %v", err)
	}
	if res.Sender.Balance != 98 {
		t.Fatalf("expected sender balance 98, got %d", res.Sender.Balance)
	}
	if res.Receiver.Balance != 100 {
		t.Fatalf("expected receiver balance 100, got %d", res.Receiver.Balance)
	}
	if got := balanceOf(t, store, systemID); got != 2 {
		t.Fatalf("expected system balance 2, got %d", got)
	}
	if res.Transaction.Fee != 2 || res.Transaction.Commission != 2 {
		t.Fatalf("unexpected fee/commission: %+v", res.Transaction)
	}

	// Conservation: nothing created or destroyed.
	total := balanceOf(t, store, "user-a") + balanceOf(t, store, "user-b") + balanceOf(t, store, systemID)
	if total != 200 {
		t.Fatalf("money not conserved, total=%d", total)
	}
}

func TestSendMoneyZeroRateSkipsSystemAccount(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{})
	ctx := context.Background()
	mustCreate(t, store, "user-a", 100, ledger.StatusActive)
	mustCreate(t, store, "user-b", 0, ledger.StatusActive)

	res, err := svc.SendMoney(ctx, SendMoneyInput{SenderID: "user-a", ReceiverID: "user-b", Amount: 40})
	if err != nil {
		t.Fatalf("send money: %v", err)
	}
	if res.Sender.Balance != 60 || res.Receiver.Balance != 40 {
		t.Fatalf("unexpected balances: %+v", res)
	}
	if res.Transaction.Fee != 0 {
		t.Fatalf("expected zero fee, got %d", res.Transaction.Fee)
	}
}

func TestSendMoneyRejections(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{SendMoney: decimal.RequireFromString("0.02")})
	ctx := context.Background()
	mustCreate(t, store, "user-a", 100, ledger.StatusActive)
	mustCreate(t, store, "user-b", 0, ledger.StatusActive)
	mustCreate(t, store, "user-blocked", 0, ledger.StatusBlocked)

	if _, err := svc.SendMoney(ctx, SendMoneyInput{SenderID: "user-a", ReceiverID: "user-a", Amount: 10}); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for self-send, got %v", err)
	}
	if _, err := svc.SendMoney(ctx, SendMoneyInput{SenderID: "user-a", ReceiverID: "ghost", Amount: 10}); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// Blocked receiver: sender and system stay untouched.
	if _, err := svc.SendMoney(ctx, SendMoneyInput{SenderID: "user-a", ReceiverID: "user-blocked", Amount: 10}); !errors.Is(err, ledger.ErrWalletBlocked) {
		t.Fatalf("expected blocked, got %v", err)
	}
	if got := balanceOf(t, store, "user-a"); got != 100 {
		t.Fatalf("sender mutated on blocked receiver: %d", got)
	}
	if got := balanceOf(t, store, systemID); got != 0 {
		t.Fatalf("system mutated on blocked receiver: %d", got)
	}

	// Needs amount + fee, not just amount.
	if _, err := svc.SendMoney(ctx, SendMoneyInput{SenderID: "user-a", ReceiverID: "user-b", Amount: 100}); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := balanceOf(t, store, "user-a"); got != 100 {
		t.Fatalf("failed send mutated sender: %d", got)
	}
}

func TestSendMoneyRejectsDebitBeyondInt64(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{SendMoney: decimal.RequireFromString("0.02")})
	ctx := context.Background()
	mustCreate(t, store, "user-a", 100, ledger.StatusActive)
	mustCreate(t, store, "user-b", 0, ledger.StatusActive)

	// amount + fee exceeds MaxInt64; a wrapped total would sail past the
	// funds check and credit the sender instead of debiting them.
	_, err := svc.SendMoney(ctx, SendMoneyInput{SenderID: "user-a", ReceiverID: "user-b", Amount: math.MaxInt64 - 10})
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if got := balanceOf(t, store, "user-a"); got != 100 {
		t.Fatalf("sender mutated: %d", got)
	}
	if got := balanceOf(t, store, "user-b"); got != 0 {
		t.Fatalf("receiver mutated: %d", got)
	}
	if got := balanceOf(t, store, systemID); got != 0 {
		t.Fatalf("system mutated: %d", got)
	}
	txns, _ := store.TransactionsFor(ctx, "user-a")
	if len(txns) != 0 {
		t.Fatalf("rejected send left log records: %+v", txns)
	}
}

func TestWithdrawAndCashOutRejectDebitBeyondInt64(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{
		Withdraw:     decimal.RequireFromString("0.01"),
		AgentCashOut: decimal.RequireFromString("0.01"),
	})
	ctx := context.Background()
	mustCreate(t, store, "user-1", 100, ledger.StatusActive)
	mustCreate(t, store, "agent-1", 100, ledger.StatusActive)

	if _, err := svc.Withdraw(ctx, WithdrawInput{UserID: "user-1", AgentID: "agent-1", Amount: math.MaxInt64 - 10}); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("withdraw: expected invalid amount, got %v", err)
	}
	if _, err := svc.AgentCashOut(ctx, AgentCashOutInput{AgentID: "agent-1", UserID: "user-1", Amount: math.MaxInt64 - 10}); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("cash out: expected invalid amount, got %v", err)
	}
	if got := balanceOf(t, store, "user-1"); got != 100 {
		t.Fatalf("user mutated: %d", got)
	}
	if got := balanceOf(t, store, "agent-1"); got != 100 {
		t.Fatalf("agent mutated: %d", got)
	}
}

func TestWithdrawViaAgent(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{Withdraw: decimal.RequireFromString("0.01")})
	ctx := context.Background()
	mustCreate(t, store, "user-1", 10_000, ledger.StatusActive)
	mustCreate(t, store, "agent-1", 1_000, ledger.StatusActive)

	res, err := svc.Withdraw(ctx, WithdrawInput{UserID: "user-1", AgentID: "agent-1", Amount: 5_000})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	// fee = 1% of 5000 = 50; user pays 5050.
	if res.User.Balance != 4_950 {
		t.Fatalf("expected user balance 4950, got %d", res.User.Balance)
	}
	if res.Agent.Balance != 6_000 {
		t.Fatalf("expected agent balance 6000, got %d", res.Agent.Balance)
	}
	if got := balanceOf(t, store, systemID); got != 50 {
		t.Fatalf("expected system balance 50, got %d", got)
	}
	if res.Transaction.Type != ledger.TypeWithdraw || res.Transaction.Sender != "user-1" || res.Transaction.Agent != "agent-1" {
		t.Fatalf("unexpected record: %+v", res.Transaction)
	}
	if res.Transaction.Fee != 50 || res.Transaction.Commission != 50 {
		t.Fatalf("unexpected fee: %+v", res.Transaction)
	}
}

func TestWithdrawInsufficientFundsLeavesStateUntouched(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{Withdraw: decimal.RequireFromString("0.01")})
	ctx := context.Background()
	mustCreate(t, store, "user-1", 50, ledger.StatusActive)
	mustCreate(t, store, "agent-1", 0, ledger.StatusActive)

	// Withdrawing 100 needs 101 with the 1% fee.
	_, err := svc.Withdraw(ctx, WithdrawInput{UserID: "user-1", AgentID: "agent-1", Amount: 100})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := balanceOf(t, store, "user-1"); got != 50 {
		t.Fatalf("user mutated: %d", got)
	}
	if got := balanceOf(t, store, "agent-1"); got != 0 {
		t.Fatalf("agent mutated: %d", got)
	}
	txns, _ := store.TransactionsFor(ctx, "user-1")
	if len(txns) != 0 {
		t.Fatalf("rejected withdraw left log records: %+v", txns)
	}
}

func TestAgentCashIn(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{AgentCashIn: decimal.RequireFromString("0.015")})
	ctx := context.Background()
	mustCreate(t, store, "agent-1", 20_000, ledger.StatusActive)
	mustCreate(t, store, "user-1", 0, ledger.StatusActive)

	res, err := svc.AgentCashIn(ctx, AgentCashInInput{AgentID: "agent-1", UserID: "user-1", Amount: 10_000})
	if err != nil {
		t.Fatalf("cash in: %v", err)
	}
	// fee = 1.5% of 10000 = 150; the recipient nets amount - fee.
	if res.Agent.Balance != 10_000 {
		t.Fatalf("expected agent balance 10000, got %d", res.Agent.Balance)
	}
	if res.User.Balance != 9_850 {
		t.Fatalf("expected user balance 9850, got %d", res.User.Balance)
	}
	if got := balanceOf(t, store, systemID); got != 150 {
		t.Fatalf("expected system balance 150, got %d", got)
	}
	if res.Transaction.Type != ledger.TypeAgentCashIn || res.Transaction.Agent != "agent-1" || res.Transaction.Receiver != "user-1" {
		t.Fatalf("unexpected record: %+v", res.Transaction)
	}
}

func TestAgentCashInRejectsPendingAgent(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{})
	ctx := context.Background()
	mustCreate(t, store, "agent-1", 1_000, ledger.StatusPending)
	mustCreate(t, store, "user-1", 0, ledger.StatusActive)

	if _, err := svc.AgentCashIn(ctx, AgentCashInInput{AgentID: "agent-1", UserID: "user-1", Amount: 100}); !errors.Is(err, ledger.ErrAgentNotApproved) {
		t.Fatalf("expected agent not approved, got %v", err)
	}
	if got := balanceOf(t, store, "agent-1"); got != 1_000 {
		t.Fatalf("pending agent mutated: %d", got)
	}
}

func TestAgentCashInInsufficientAgentFloat(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{})
	ctx := context.Background()
	mustCreate(t, store, "agent-1", 50, ledger.StatusActive)
	mustCreate(t, store, "user-1", 0, ledger.StatusActive)

	if _, err := svc.AgentCashIn(ctx, AgentCashInInput{AgentID: "agent-1", UserID: "user-1", Amount: 100}); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestAgentCashOut(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{AgentCashOut: decimal.RequireFromString("0.01")})
	ctx := context.Background()
	mustCreate(t, store, "agent-1", 0, ledger.StatusActive)
	mustCreate(t, store, "user-1", 10_100, ledger.StatusActive)

	res, err := svc.AgentCashOut(ctx, AgentCashOutInput{AgentID: "agent-1", UserID: "user-1", Amount: 10_000})
	if err != nil {
		t.Fatalf("cash out: %v", err)
	}
	// fee = 1% of 10000 = 100; the user pays amount + fee.
	if res.User.Balance != 0 {
		t.Fatalf("expected user balance 0, got %d", res.User.Balance)
	}
	if res.Agent.Balance != 10_000 {
		t.Fatalf("expected agent balance 10000, got %d", res.Agent.Balance)
	}
	if got := balanceOf(t, store, systemID); got != 100 {
		t.Fatalf("expected system balance 100, got %d", got)
	}
	if res.Transaction.Type != ledger.TypeAgentCashOut || res.Transaction.Sender != "user-1" || res.Transaction.Receiver != "agent-1" {
		t.Fatalf("unexpected record: %+v", res.Transaction)
	}
}

func TestAgentCashOutRejectsPendingAgent(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{})
	ctx := context.Background()
	mustCreate(t, store, "agent-1", 0, ledger.StatusPending)
	mustCreate(t, store, "user-1", 500, ledger.StatusActive)

	if _, err := svc.AgentCashOut(ctx, AgentCashOutInput{AgentID: "agent-1", UserID: "user-1", Amount: 100}); !errors.Is(err, ledger.ErrAgentNotApproved) {
		t.Fatalf("expected agent not approved, got %v", err)
	}
}

func TestStorageFailureRollsBackEverything(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{SendMoney: decimal.RequireFromString("0.02")})
	ctx := context.Background()
	mustCreate(t, store, "user-a", 200, ledger.StatusActive)
	mustCreate(t, store, "user-b", 0, ledger.StatusActive)

	ledger.FailNextAppend(store)

	_, err := svc.SendMoney(ctx, SendMoneyInput{SenderID: "user-a", ReceiverID: "user-b", Amount: 100})
	if !ledger.IsInjectedFailure(err) {
		t.Fatalf("expected injected failure to propagate, got %v", err)
	}

	// The balance mutations happened before the failed append; none may persist.
	if got := balanceOf(t, store, "user-a"); got != 200 {
		t.Fatalf("sender leaked partial state: %d", got)
	}
	if got := balanceOf(t, store, "user-b"); got != 0 {
		t.Fatalf("receiver leaked partial state: %d", got)
	}
	if got := balanceOf(t, store, systemID); got != 0 {
		t.Fatalf("system leaked partial state: %d", got)
	}
	txns, _ := store.TransactionsFor(ctx, "user-a")
	if len(txns) != 0 {
		t.Fatalf("failed operation left log records: %+v", txns)
	}
}

func TestConcurrentOpposingTransfers(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{})
	ctx := context.Background()
	mustCreate(t, store, "user-a", 1_000, ledger.StatusActive)
	mustCreate(t, store, "user-b", 1_000, ledger.StatusActive)

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, err := svc.SendMoney(ctx, SendMoneyInput{SenderID: "user-a", ReceiverID: "user-b", Amount: 10}); err != nil {
				t.Errorf("a->b: %v", err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, err := svc.SendMoney(ctx, SendMoneyInput{SenderID: "user-b", ReceiverID: "user-a", Amount: 10}); err != nil {
				t.Errorf("b->a: %v", err)
			}
		}
	}()
	wg.Wait()

	// Equal opposing transfers at zero fee must cancel out exactly.
	if got := balanceOf(t, store, "user-a"); got != 1_000 {
		t.Fatalf("lost update on user-a: %d", got)
	}
	if got := balanceOf(t, store, "user-b"); got != 1_000 {
		t.Fatalf("lost update on user-b: %d", got)
	}
}

func TestLogRecordsAreImmutable(t *testing.T) {
	svc, store := newTestService(t, rates.Rates{})
	ctx := context.Background()
	mustCreate(t, store, "user-a", 500, ledger.StatusActive)
	mustCreate(t, store, "user-b", 0, ledger.StatusActive)

	first, err := svc.SendMoney(ctx, SendMoneyInput{SenderID: "user-a", ReceiverID: "user-b", Amount: 100})
	if err != nil {
		t.Fatalf("send money: %v", err)
	}

	// Later operations must not touch the earlier record.
	if _, err := svc.SendMoney(ctx, SendMoneyInput{SenderID: "user-b", ReceiverID: "user-a", Amount: 50}); err != nil {
		t.Fatalf("second send: %v", err)
	}
	if _, err := svc.Deposit(ctx, DepositInput{OwnerID: "user-a", Amount: 25}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	txns, err := store.TransactionsFor(ctx, "user-a")
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	var found bool
	for _, txn := range txns {
		if txn.ID == first.Transaction.ID {
			found = true
			if txn != first.Transaction {
				t.Fatalf("record changed: %+v vs %+v", txn, first.Transaction)
			}
		}
	}
	if !found {
		t.Fatalf("first record missing from log")
	}
}

func TestNotificationSentAfterCommit(t *testing.T) {
	store := ledger.NewInMemory()
	ctx := context.Background()
	store.CreateEntry(ctx, systemID, 0, ledger.StatusActive)
	store.CreateEntry(ctx, "user-a", 100, ledger.StatusActive)
	store.CreateEntry(ctx, "user-b", 0, ledger.StatusActive)

	notifier := &captureNotifier{}
	svc, err := NewService(store, rates.Static{}, systemID, notifier, nil, logging.Discard())
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	if _, err := svc.SendMoney(ctx, SendMoneyInput{SenderID: "user-a", ReceiverID: "user-b", Amount: 10}); err != nil {
		t.Fatalf("send money: %v", err)
	}
	if notifier.last.Kind != notification.KindSendMoney || notifier.last.Destination != "user-b" {
		t.Fatalf("unexpected notification: %+v", notifier.last)
	}

	// A rejected operation must not notify.
	notifier.last = notification.Message{}
	if _, err := svc.SendMoney(ctx, SendMoneyInput{SenderID: "user-a", ReceiverID: "user-b", Amount: 1_000}); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if notifier.last.Kind != "" {
		t.Fatalf("rejected operation notified: %+v", notifier.last)
	}
}

type captureNotifier struct {
	last notification.Message
}

func (n *captureNotifier) Send(_ context.Context, msg notification.Message) error {
	n.last = msg
	return nil
}

package rates

import (
	"context"
	"math"

	"github.com/shopspring/decimal"
)

// Rates holds the current fee fractions for each chargeable operation
// category. Deposits are always fee-free so they carry no rate. A missing
// configuration field is a zero rate, never an error; the engine must stay
// operable with no fees configured.
type Rates struct {
	SendMoney    decimal.Decimal
	Withdraw     decimal.Decimal
	AgentCashIn  decimal.Decimal
	AgentCashOut decimal.Decimal
}

// Provider exposes the current fee rates. Implementations are read-only and
// eventually consistent with administrator updates; callers must tolerate a
// rate changing between calls.
type Provider interface {
	Rates(ctx context.Context) (Rates, error)
}

var maxFee = decimal.NewFromInt(math.MaxInt64)

// Fee computes the fee for an amount in minor units at the given fractional
// rate, rounded half away from zero to a whole minor unit. A product beyond
// the int64 range saturates at math.MaxInt64 instead of wrapping, so callers
// can reject the operation outright.
func Fee(amount int64, rate decimal.Decimal) int64 {
	if rate.IsZero() {
		return 0
	}
	fee := decimal.NewFromInt(amount).Mul(rate).Round(0)
	if fee.Cmp(maxFee) >= 0 {
		return math.MaxInt64
	}
	return fee.IntPart()
}

// Static is a Provider returning fixed rates, used in dev mode and tests.
type Static struct {
	Fixed Rates
}

// Rates returns the configured fixed rates.
func (s Static) Rates(_ context.Context) (Rates, error) {
	return s.Fixed, nil
}

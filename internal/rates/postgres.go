package rates

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresProvider reads fee rates from the single system_config row. The
// row is maintained by an administrative surface outside this service; this
// provider never writes.
type PostgresProvider struct {
	db *pgxpool.Pool
}

// NewPostgresProvider constructs a read-only rate provider backed by PostgreSQL.
func NewPostgresProvider(db *pgxpool.Pool) *PostgresProvider {
	return &PostgresProvider{db: db}
}

// Rates returns the configured rates. An absent configuration row or NULL
// fields yield zero rates.
func (p *PostgresProvider) Rates(ctx context.Context) (Rates, error) {
	row := p.db.QueryRow(ctx, `SELECT send_money_rate::text, withdraw_rate::text, agent_cash_in_rate::text, agent_cash_out_rate::text
        FROM system_config WHERE id = 'SYSTEM'`)

	var send, withdraw, cashIn, cashOut *string
	if err := row.Scan(&send, &withdraw, &cashIn, &cashOut); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rates{}, nil
		}
		return Rates{}, err
	}

	var rates Rates
	var err error
	if rates.SendMoney, err = parseRate(send); err != nil {
		return Rates{}, err
	}
	if rates.Withdraw, err = parseRate(withdraw); err != nil {
		return Rates{}, err
	}
	if rates.AgentCashIn, err = parseRate(cashIn); err != nil {
		return Rates{}, err
	}
	if rates.AgentCashOut, err = parseRate(cashOut); err != nil {
		return Rates{}, err
	}
	return rates, nil
}

func parseRate(s *string) (decimal.Decimal, error) {
	if s == nil {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate %q: %w", *s, err)
	}
	return d, nil
}

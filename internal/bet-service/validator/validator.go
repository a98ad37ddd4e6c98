package validator

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/live-bet-api/internal/bet-service/ledger"
	"github.com/radieske/live-bet-api/internal/bet-service/odds"
	"github.com/radieske/live-bet-api/internal/shared/apperr"
)

// Submission é a aposta como chegou do cliente, já tipada
type Submission struct {
	MatchID     string  `json:"match_id"`
	SelectionID string  `json:"selection_id"`
	Nonce       string  `json:"nonce"`
	StakeCents  int64   `json:"stake_cents"`
	Odds        float64 `json:"odds"` // odd que o cliente viu
}

// Intent é a aposta validada, com a odd cotada que será travada
type Intent struct {
	UserID      string
	MatchID     string
	SelectionID string
	Nonce       string
	StakeCents  int64
	Odds        float64
}

// Market expõe o estado do mercado (implementado por odds.Store)
type Market interface {
	Locked(ctx context.Context, matchID, selectionID string) (bool, error)
	FancyOdds(ctx context.Context, matchID, selectionID string) (odds.Snapshot, error)
}

// Balances lê o saldo (implementado por ledger.Postgres)
type Balances interface {
	Balance(ctx context.Context, userID string) (ledger.Balance, error)
}

type Rules struct {
	StakeMinCents int64
	StakeMaxCents int64
	OddsTolerance decimal.Decimal
}

// NewRules faz o parse da tolerância configurada ("0.01")
func NewRules(minCents, maxCents int64, tolerance string) (Rules, error) {
	tol, err := decimal.NewFromString(tolerance)
	if err != nil {
		return Rules{}, fmt.Errorf("parse odds tolerance %q: %w", tolerance, err)
	}
	if tol.IsNegative() {
		return Rules{}, fmt.Errorf("odds tolerance must not be negative")
	}
	if minCents <= 0 || maxCents < minCents {
		return Rules{}, fmt.Errorf("invalid stake limits [%d, %d]", minCents, maxCents)
	}
	return Rules{StakeMinCents: minCents, StakeMaxCents: maxCents, OddsTolerance: tol}, nil
}

type Validator struct {
	rules    Rules
	market   Market
	balances Balances
}

func New(rules Rules, m Market, b Balances) *Validator {
	return &Validator{rules: rules, market: m, balances: b}
}

// Validate roda as checagens na ordem: lock, stake, odds, saldo.
// Só leitura; a checagem de saldo é consultiva (a reserva atômica é a autoritativa).
func (v *Validator) Validate(ctx context.Context, userID string, s Submission) (Intent, error) {
	locked, err := v.market.Locked(ctx, s.MatchID, s.SelectionID)
	if err != nil {
		return Intent{}, err
	}
	if locked {
		return Intent{}, apperr.New(apperr.MarketSuspended, "market is suspended")
	}

	if s.StakeCents <= 0 || s.StakeCents < v.rules.StakeMinCents || s.StakeCents > v.rules.StakeMaxCents {
		return Intent{}, apperr.New(apperr.InvalidStake,
			fmt.Sprintf("stake must be between %d and %d cents", v.rules.StakeMinCents, v.rules.StakeMaxCents))
	}

	snap, err := v.market.FancyOdds(ctx, s.MatchID, s.SelectionID)
	if err != nil {
		if errors.Is(err, apperr.NotFound) {
			// seleção sem cotação não aceita aposta
			return Intent{}, apperr.Wrap(apperr.MarketSuspended, "selection has no quoted odds", err)
		}
		return Intent{}, err
	}
	if snap.Status == odds.StatusSuspended {
		return Intent{}, apperr.New(apperr.MarketSuspended, "market is suspended")
	}
	if !v.withinTolerance(s.Odds, snap.Odds) {
		return Intent{}, apperr.New(apperr.OddsChanged,
			fmt.Sprintf("odds changed; current=%s", decimal.NewFromFloat(snap.Odds).String()))
	}

	bal, err := v.balances.Balance(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.NotFound) {
			return Intent{}, apperr.Wrap(apperr.InsufficientBalance, "no balance for user", err)
		}
		return Intent{}, err
	}
	if bal.AvailableCents < s.StakeCents {
		return Intent{}, apperr.New(apperr.InsufficientBalance, "insufficient balance")
	}

	return Intent{
		UserID:      userID,
		MatchID:     s.MatchID,
		SelectionID: s.SelectionID,
		Nonce:       s.Nonce,
		StakeCents:  s.StakeCents,
		Odds:        snap.Odds,
	}, nil
}

func (v *Validator) withinTolerance(requested, quoted float64) bool {
	diff := decimal.NewFromFloat(requested).Sub(decimal.NewFromFloat(quoted)).Abs()
	return diff.LessThanOrEqual(v.rules.OddsTolerance)
}

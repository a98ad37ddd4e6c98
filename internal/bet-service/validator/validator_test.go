package validator

import (
	"context"
	"errors"
	"testing"

	"github.com/radieske/live-bet-api/internal/bet-service/ledger"
	"github.com/radieske/live-bet-api/internal/bet-service/odds"
	"github.com/radieske/live-bet-api/internal/shared/apperr"
)

type mockMarket struct {
	locked  bool
	snap    odds.Snapshot
	oddsErr error
	lockErr error
	calls   []string
}

func (m *mockMarket) Locked(ctx context.Context, matchID, selectionID string) (bool, error) {
	m.calls = append(m.calls, "locked")
	return m.locked, m.lockErr
}

func (m *mockMarket) FancyOdds(ctx context.Context, matchID, selectionID string) (odds.Snapshot, error) {
	m.calls = append(m.calls, "odds")
	return m.snap, m.oddsErr
}

type mockBalances struct {
	available int64
	err       error
}

func (m *mockBalances) Balance(ctx context.Context, userID string) (ledger.Balance, error) {
	return ledger.Balance{UserID: userID, AvailableCents: m.available}, m.err
}

func testRules(t *testing.T) Rules {
	t.Helper()
	r, err := NewRules(100, 100_000, "0.01")
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	return r
}

func openMarket(o float64) *mockMarket {
	return &mockMarket{snap: odds.Snapshot{Odds: o, Status: odds.StatusOpen}}
}

func TestNewRules(t *testing.T) {
	if _, err := NewRules(100, 1000, "abc"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := NewRules(100, 1000, "-0.1"); err == nil {
		t.Error("expected negative tolerance error")
	}
	if _, err := NewRules(1000, 100, "0"); err == nil {
		t.Error("expected invalid limits error")
	}
}

func TestValidateSuccessLocksQuotedOdds(t *testing.T) {
	v := New(testRules(t), openMarket(2.0), &mockBalances{available: 10000})

	in, err := v.Validate(context.Background(), "u1", Submission{
		MatchID: "m1", SelectionID: "s1", Nonce: "n1", StakeCents: 3000, Odds: 1.995,
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if in.Odds != 2.0 {
		t.Errorf("expected quoted odds 2.0 locked in, got %v", in.Odds)
	}
	if in.UserID != "u1" || in.StakeCents != 3000 || in.Nonce != "n1" {
		t.Errorf("unexpected intent %+v", in)
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		market *mockMarket
		avail  int64
		balErr error
		sub    Submission
		want   apperr.Kind
	}{
		{"locked market", &mockMarket{locked: true}, 10000, nil,
			Submission{StakeCents: 3000, Odds: 2}, apperr.MarketSuspended},
		{"suspended snapshot", &mockMarket{snap: odds.Snapshot{Odds: 2, Status: odds.StatusSuspended}}, 10000, nil,
			Submission{StakeCents: 3000, Odds: 2}, apperr.MarketSuspended},
		{"no quote", &mockMarket{oddsErr: apperr.New(apperr.NotFound, "none")}, 10000, nil,
			Submission{StakeCents: 3000, Odds: 2}, apperr.MarketSuspended},
		{"zero stake", openMarket(2), 10000, nil,
			Submission{StakeCents: 0, Odds: 2}, apperr.InvalidStake},
		{"negative stake", openMarket(2), 10000, nil,
			Submission{StakeCents: -5, Odds: 2}, apperr.InvalidStake},
		{"below min", openMarket(2), 10000, nil,
			Submission{StakeCents: 99, Odds: 2}, apperr.InvalidStake},
		{"above max", openMarket(2), 1_000_000, nil,
			Submission{StakeCents: 100_001, Odds: 2}, apperr.InvalidStake},
		{"odds moved", openMarket(2.1), 10000, nil,
			Submission{StakeCents: 3000, Odds: 2.0}, apperr.OddsChanged},
		{"insufficient", openMarket(2), 1000, nil,
			Submission{StakeCents: 3000, Odds: 2}, apperr.InsufficientBalance},
		{"no wallet", openMarket(2), 0, apperr.New(apperr.NotFound, "none"),
			Submission{StakeCents: 3000, Odds: 2}, apperr.InsufficientBalance},
		{"odds store timeout", &mockMarket{oddsErr: apperr.New(apperr.Timeout, "slow")}, 10000, nil,
			Submission{StakeCents: 3000, Odds: 2}, apperr.Timeout},
		{"lock store down", &mockMarket{lockErr: apperr.New(apperr.Unavailable, "down")}, 10000, nil,
			Submission{StakeCents: 3000, Odds: 2}, apperr.Unavailable},
	}

	for _, tc := range cases {
		v := New(testRules(t), tc.market, &mockBalances{available: tc.avail, err: tc.balErr})
		_, err := v.Validate(context.Background(), "u1", tc.sub)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %s, got %v", tc.name, tc.want, err)
		}
	}
}

func TestValidateOrder(t *testing.T) {
	// lock vem antes de stake: mercado travado com stake inválido reporta MarketSuspended
	m := &mockMarket{locked: true}
	v := New(testRules(t), m, &mockBalances{})
	_, err := v.Validate(context.Background(), "u1", Submission{StakeCents: 0})
	if !errors.Is(err, apperr.MarketSuspended) {
		t.Fatalf("expected market suspended first, got %v", err)
	}
	if len(m.calls) != 1 {
		t.Errorf("odds must not be read after lock failure, calls=%v", m.calls)
	}

	// stake vem antes de odds
	m = openMarket(5)
	v = New(testRules(t), m, &mockBalances{})
	_, err = v.Validate(context.Background(), "u1", Submission{StakeCents: 1, Odds: 2})
	if !errors.Is(err, apperr.InvalidStake) {
		t.Fatalf("expected invalid stake before odds, got %v", err)
	}
	for _, c := range m.calls {
		if c == "odds" {
			t.Error("odds must not be read when stake is invalid")
		}
	}

	// odds vem antes de saldo
	v = New(testRules(t), openMarket(5), &mockBalances{available: 0})
	_, err = v.Validate(context.Background(), "u1", Submission{StakeCents: 3000, Odds: 2})
	if !errors.Is(err, apperr.OddsChanged) {
		t.Fatalf("expected odds changed before balance, got %v", err)
	}
}

func TestToleranceBoundary(t *testing.T) {
	rules, _ := NewRules(100, 100_000, "0.05")
	v := New(rules, openMarket(2.00), &mockBalances{available: 10000})

	if _, err := v.Validate(context.Background(), "u", Submission{StakeCents: 100, Odds: 2.05}); err != nil {
		t.Errorf("diff equal to tolerance must pass: %v", err)
	}
	if _, err := v.Validate(context.Background(), "u", Submission{StakeCents: 100, Odds: 2.06}); !errors.Is(err, apperr.OddsChanged) {
		t.Errorf("diff above tolerance must fail, got %v", err)
	}
}

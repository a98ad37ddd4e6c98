package events

import "time"

// BetPlaced é publicado no tópico "bet_placed" após a confirmação da aposta
type BetPlaced struct {
	BetID          string    `json:"bet_id"`
	UserID         string    `json:"user_id"`
	MatchID        string    `json:"match_id"`
	SelectionID    string    `json:"selection_id"`
	StakeCents     int64     `json:"stake_cents"`
	Odds           float64   `json:"odds"`
	IdempotencyKey string    `json:"idempotency_key"` // ref usada na reserva de saldo
	PlacedAt       time.Time `json:"placed_at"`
	TsUnixMs       int64     `json:"ts_unix_ms"`
}

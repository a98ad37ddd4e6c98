package repo

import "time"

// Status da aposta; CONFIRMED e REJECTED são terminais
const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusRejected  = "REJECTED"
)

// Bet é o modelo persistido no Postgres.
type Bet struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	MatchID     string    `json:"match_id"`
	SelectionID string    `json:"selection_id"`
	Nonce       string    `json:"nonce"`
	StakeCents  int64     `json:"stake_cents"`
	Odds        float64   `json:"odds"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key é a chave de idempotência da aposta
func (b *Bet) Key() string {
	return b.UserID + ":" + b.MatchID + ":" + b.SelectionID + ":" + b.Nonce
}

package events

import "time"

// OddsUpdate é o payload que o feed externo publica no canal Redis de odds ao vivo
type OddsUpdate struct {
	MatchID     string    `json:"match_id"`
	SelectionID string    `json:"selection_id"`
	Odds        float64   `json:"odds"`
	Status      string    `json:"status"` // OPEN | SUSPENDED
	UpdatedAt   time.Time `json:"updated_at"`
}

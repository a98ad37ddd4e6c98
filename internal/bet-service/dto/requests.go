package dto

// PlaceBetRequest é o corpo de POST /api/placebet
type PlaceBetRequest struct {
	MatchID     string  `json:"matchId"`
	SelectionID string  `json:"selectionId"`
	Nonce       string  `json:"nonce"` // alternativa: header Idempotency-Key
	StakeCents  int64   `json:"stake_cents"`
	Odds        float64 `json:"odds"` // odd que o cliente viu
}

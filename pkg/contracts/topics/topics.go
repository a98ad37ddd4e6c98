package topics

const (
	// Bets
	BetPlaced = "bet_placed"

	// Redis Pub/Sub com as odds ao vivo publicadas pelo feed externo
	OddsBroadcastChannel = "odds_updates_broadcast"
)

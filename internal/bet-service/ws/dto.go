package ws

import "github.com/radieske/live-bet-api/pkg/contracts/events"

// ClientMsg é a mensagem recebida do cliente WebSocket
type ClientMsg struct {
	Type    string `json:"type"`    // subscribe | unsubscribe | ping
	MatchID string `json:"matchId"` // requerido em subscribe/unsubscribe
}

// ServerMsg é o que o hub envia ao cliente
type ServerMsg struct {
	Type    string             `json:"type"` // odds_update | pong | error
	MatchID string             `json:"matchId,omitempty"`
	Payload *events.OddsUpdate `json:"payload,omitempty"`
	Message string             `json:"message,omitempty"`
}

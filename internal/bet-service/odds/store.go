package odds

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/live-bet-api/internal/shared/apperr"
)

const (
	StatusOpen      = "OPEN"
	StatusSuspended = "SUSPENDED"
)

// Snapshot é a odd fancy corrente de uma seleção, gravada pelo feed externo
type Snapshot struct {
	MatchID     string    `json:"match_id"`
	SelectionID string    `json:"selection_id"`
	Odds        float64   `json:"odds"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store lê odds e bet locks do Redis; nunca escreve
type Store struct {
	Rdb *redis.Client
}

func NewStore(r *redis.Client) *Store { return &Store{Rdb: r} }

// Espera chave "odds:fancy:{matchID}:{selectionID}" => JSON do Snapshot
func oddsKey(matchID, selectionID string) string {
	return "odds:fancy:" + matchID + ":" + selectionID
}

// lock do mercado inteiro e da seleção
func matchLockKey(matchID string) string { return "betlock:" + matchID }

func selectionLockKey(matchID, selectionID string) string {
	return "betlock:" + matchID + ":" + selectionID
}

// FancyOdds retorna a odd corrente; sem cotação retorna apperr.NotFound
func (s *Store) FancyOdds(ctx context.Context, matchID, selectionID string) (Snapshot, error) {
	b, err := s.Rdb.Get(ctx, oddsKey(matchID, selectionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, apperr.New(apperr.NotFound, "no odds for selection")
	}
	if err != nil {
		return Snapshot{}, classify("get odds", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, apperr.Wrap(apperr.Internal, "decode odds snapshot", err)
	}
	return snap, nil
}

// Locked verifica se existe BetLock para o mercado ou para a seleção
func (s *Store) Locked(ctx context.Context, matchID, selectionID string) (bool, error) {
	n, err := s.Rdb.Exists(ctx, matchLockKey(matchID), selectionLockKey(matchID, selectionID)).Result()
	if err != nil {
		return false, classify("check bet lock", err)
	}
	return n > 0, nil
}

func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.FromContext(op, err)
	}
	return apperr.Wrap(apperr.Unavailable, op+" failed", err)
}

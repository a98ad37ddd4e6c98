package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/live-bet-api/internal/shared/apperr"
	"github.com/radieske/live-bet-api/internal/shared/db"
)

const betColumns = `id, user_id, match_id, selection_id, nonce, stake_cents, odds, status, reason, created_at, updated_at`

// Postgres implementa operações de persistência de apostas em banco Postgres
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório de apostas
func NewPostgres(d *sql.DB) *Postgres { return &Postgres{db: d} }

// Insert grava a aposta como PENDING.
// Conflito em (user, match, selection, nonce) retorna apperr.Duplicate e não grava nada.
func (p *Postgres) Insert(ctx context.Context, b *Bet) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.UpdatedAt = b.CreatedAt

	res, err := p.db.ExecContext(ctx, `
		INSERT INTO bets (`+betColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (user_id, match_id, selection_id, nonce) DO NOTHING`,
		b.ID, b.UserID, b.MatchID, b.SelectionID, b.Nonce, b.StakeCents, b.Odds,
		b.Status, b.Reason, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return db.Classify("insert bet", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return db.Classify("insert bet", err)
	}
	if n == 0 {
		return apperr.New(apperr.Duplicate, "bet already exists")
	}
	return nil
}

// FindByKey busca a aposta pela chave de idempotência
func (p *Postgres) FindByKey(ctx context.Context, userID, matchID, selectionID, nonce string) (*Bet, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE user_id=$1 AND match_id=$2 AND selection_id=$3 AND nonce=$4`,
		userID, matchID, selectionID, nonce)
	b, err := scanBet(row)
	if err != nil {
		return nil, db.Classify("find bet", err)
	}
	return b, nil
}

// UpdateStatus faz a transição PENDING -> status; aposta já terminal não muda
func (p *Postgres) UpdateStatus(ctx context.Context, betID, status, reason string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bets SET status=$1, reason=$2, updated_at=NOW()
		WHERE id=$3 AND status=$4`, status, reason, betID, StatusPending)
	if err != nil {
		return db.Classify("update bet status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return db.Classify("update bet status", err)
	}
	if n == 0 {
		return apperr.New(apperr.NotFound, "no pending bet "+betID)
	}
	return nil
}

// ListByUser retorna as apostas do usuário, mais recentes primeiro; matchID vazio não filtra
func (p *Postgres) ListByUser(ctx context.Context, userID, matchID string) ([]Bet, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE user_id=$1 AND ($2 = '' OR match_id=$2)
		ORDER BY created_at DESC, id DESC`, userID, matchID)
	if err != nil {
		return nil, db.Classify("list bets", err)
	}
	defer rows.Close()

	out := []Bet{}
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, db.Classify("scan bet", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify("list bets", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBet(s scanner) (*Bet, error) {
	var b Bet
	if err := s.Scan(&b.ID, &b.UserID, &b.MatchID, &b.SelectionID, &b.Nonce,
		&b.StakeCents, &b.Odds, &b.Status, &b.Reason, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

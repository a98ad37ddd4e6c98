package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/live-bet-api/internal/shared/apperr"
	"github.com/radieske/live-bet-api/internal/shared/db"
)

// Status da reserva
const (
	StatusReserved = "RESERVED"
	StatusReleased = "RELEASED"
	StatusSettled  = "SETTLED"
)

// Outcome do settle
type Outcome string

const (
	Won  Outcome = "WON"
	Lost Outcome = "LOST"
	Void Outcome = "VOID"
)

// Balance do usuário em centavos
type Balance struct {
	UserID         string `json:"user_id"`
	AvailableCents int64  `json:"available_cents"`
	ExposureCents  int64  `json:"exposure_cents"`
}

type Reservation struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Ref         string `json:"ref"`
	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`
}

// Postgres implementa o ledger de saldo/exposição
type Postgres struct{ db *sql.DB }

func NewPostgres(d *sql.DB) *Postgres { return &Postgres{db: d} }

// Balance retorna o saldo atual do usuário
func (p *Postgres) Balance(ctx context.Context, userID string) (Balance, error) {
	b := Balance{UserID: userID}
	err := p.db.QueryRowContext(ctx,
		`SELECT available_cents, exposure_cents FROM balances WHERE user_id=$1`, userID,
	).Scan(&b.AvailableCents, &b.ExposureCents)
	if err != nil {
		return Balance{}, db.Classify("get balance", err)
	}
	return b, nil
}

// Reserve move amount de available para exposure numa única transação.
// O UPDATE condicional trava só a linha do usuário; ref repetida retorna apperr.Duplicate.
func (p *Postgres) Reserve(ctx context.Context, userID string, amount int64, ref string) (Reservation, error) {
	return p.ReserveWithID(ctx, uuid.NewString(), userID, amount, ref)
}

// ReserveWithID é Reserve com o id da reserva escolhido pelo chamador,
// que depois pode liberar só a própria reserva com ReleaseWithID.
func (p *Postgres) ReserveWithID(ctx context.Context, id, userID string, amount int64, ref string) (Reservation, error) {
	if amount <= 0 {
		return Reservation{}, apperr.New(apperr.InvalidStake, "amount must be positive")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Reservation{}, db.Classify("begin reserve", err)
	}
	defer tx.Rollback()

	// ref já usada é Duplicate antes de olhar o saldo
	if err := refTaken(ctx, tx, ref); err != nil {
		return Reservation{}, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE balances
		SET available_cents = available_cents - $1,
		    exposure_cents  = exposure_cents + $1,
		    version = version + 1,
		    updated_at = NOW()
		WHERE user_id=$2 AND available_cents >= $1`, amount, userID)
	if err != nil {
		return Reservation{}, db.Classify("reserve balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Reservation{}, db.Classify("reserve balance", err)
	}
	if n == 0 {
		return Reservation{}, p.reserveMiss(ctx, tx, userID, ref)
	}

	r := Reservation{
		ID:          id,
		UserID:      userID,
		Ref:         ref,
		AmountCents: amount,
		Status:      StatusReserved,
	}
	// unique(ref) cobre a corrida entre duas transações com a mesma chave
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO balance_reservations (id, user_id, ref, amount_cents, status)
		VALUES ($1,$2,$3,$4,$5)`, r.ID, r.UserID, r.Ref, r.AmountCents, r.Status); err != nil {
		return Reservation{}, db.Classify("insert reservation", err)
	}

	if err = appendLedger(ctx, tx, userID, "RESERVE", amount, ref); err != nil {
		return Reservation{}, err
	}

	if err = tx.Commit(); err != nil {
		return Reservation{}, db.Classify("commit reserve", err)
	}
	return r, nil
}

func refTaken(ctx context.Context, tx *sql.Tx, ref string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM balance_reservations WHERE ref=$1`, ref).Scan(&id)
	switch {
	case err == nil:
		return apperr.New(apperr.Duplicate, "reservation already exists")
	case errors.Is(err, sql.ErrNoRows):
		return nil
	}
	return db.Classify("find reservation", err)
}

// reserveMiss diferencia ref que acabou de ser gravada por outra transação,
// usuário sem carteira e saldo insuficiente
func (p *Postgres) reserveMiss(ctx context.Context, tx *sql.Tx, userID, ref string) error {
	if err := refTaken(ctx, tx, ref); err != nil {
		return err
	}
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM balances WHERE user_id=$1`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.InsufficientBalance, "no balance for user")
	}
	if err != nil {
		return db.Classify("reserve balance", err)
	}
	return apperr.New(apperr.InsufficientBalance, "insufficient balance")
}

// Reservation busca a reserva pela ref; apperr.NotFound se não existir
func (p *Postgres) Reservation(ctx context.Context, ref string) (Reservation, error) {
	var r Reservation
	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, ref, amount_cents, status
		FROM balance_reservations
		WHERE ref=$1`, ref).Scan(&r.ID, &r.UserID, &r.Ref, &r.AmountCents, &r.Status)
	if err != nil {
		return Reservation{}, db.Classify("find reservation", err)
	}
	return r, nil
}

// Release devolve a exposição ao saldo disponível.
// Idempotente: reserva inexistente, já liberada ou liquidada não faz nada.
func (p *Postgres) Release(ctx context.Context, ref string) error {
	return p.release(ctx, ref, "")
}

// ReleaseWithID libera a reserva da ref só se ela tiver o id informado
func (p *Postgres) ReleaseWithID(ctx context.Context, ref, id string) error {
	return p.release(ctx, ref, id)
}

func (p *Postgres) release(ctx context.Context, ref, id string) error {
	err := p.settle(ctx, ref, id, Void, 0)
	if errors.Is(err, apperr.NotFound) {
		return nil
	}
	return err
}

// Settle fecha a reserva: WON credita payoutCents, LOST consome a exposição, VOID devolve o stake
func (p *Postgres) Settle(ctx context.Context, ref string, outcome Outcome, payoutCents int64) error {
	return p.settle(ctx, ref, "", outcome, payoutCents)
}

// settle com id vazio aceita qualquer reserva da ref
func (p *Postgres) settle(ctx context.Context, ref, id string, outcome Outcome, payoutCents int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return db.Classify("begin settle", err)
	}
	defer tx.Rollback()

	var r Reservation
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, amount_cents, status
		FROM balance_reservations
		WHERE ref=$1
		FOR UPDATE`, ref).Scan(&r.ID, &r.UserID, &r.AmountCents, &r.Status)
	if err != nil {
		return db.Classify("find reservation", err)
	}
	if r.Status != StatusReserved || (id != "" && r.ID != id) {
		return nil
	}

	credit, op, status, err := settlement(outcome, r.AmountCents, payoutCents)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE balances
		SET available_cents = available_cents + $1,
		    exposure_cents  = exposure_cents - $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE user_id=$3`, credit, r.AmountCents, r.UserID); err != nil {
		return db.Classify("settle balance", err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE balance_reservations SET status=$1, updated_at=NOW() WHERE id=$2`, status, r.ID); err != nil {
		return db.Classify("update reservation", err)
	}

	if err = appendLedger(ctx, tx, r.UserID, op, r.AmountCents, ref); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return db.Classify("commit settle", err)
	}
	return nil
}

// settlement calcula quanto volta para available e qual operação registrar no ledger
func settlement(outcome Outcome, amount, payout int64) (credit int64, op, status string, err error) {
	switch outcome {
	case Void:
		return amount, "RELEASE", StatusReleased, nil
	case Lost:
		return 0, "SETTLE_LOST", StatusSettled, nil
	case Won:
		if payout < amount {
			return 0, "", "", fmt.Errorf("payout %d below stake %d", payout, amount)
		}
		return payout, "SETTLE_WON", StatusSettled, nil
	}
	return 0, "", "", fmt.Errorf("unknown outcome %q", outcome)
}

// Payout calcula o retorno bruto (stake * odds) em centavos, arredondado para baixo
func Payout(stakeCents int64, odds float64) int64 {
	return decimal.NewFromInt(stakeCents).Mul(decimal.NewFromFloat(odds)).Floor().IntPart()
}

func appendLedger(ctx context.Context, tx *sql.Tx, userID, op string, amount int64, ref string) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO balance_ledger (user_id, operation_type, amount_cents, ref)
		VALUES ($1,$2,$3,$4)`, userID, op, amount, ref); err != nil {
		return db.Classify("append ledger", err)
	}
	return nil
}

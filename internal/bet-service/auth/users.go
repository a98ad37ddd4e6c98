package auth

import (
	"context"
	"database/sql"

	"github.com/radieske/live-bet-api/internal/shared/db"
)

// Users lê a tabela users no Postgres
type Users struct{ db *sql.DB }

func NewUsers(d *sql.DB) *Users { return &Users{db: d} }

func (u *Users) FindByUsername(ctx context.Context, username string) (User, error) {
	var out User
	err := u.db.QueryRowContext(ctx,
		`SELECT id, username FROM users WHERE username=$1`, username,
	).Scan(&out.ID, &out.Username)
	if err != nil {
		return User{}, db.Classify("find user", err)
	}
	return out, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-bet-api/internal/bet-service/auth"
	"github.com/radieske/live-bet-api/internal/bet-service/ledger"
	"github.com/radieske/live-bet-api/internal/shared/config"
	"github.com/radieske/live-bet-api/internal/shared/db"
	"github.com/radieske/live-bet-api/internal/shared/logger"
)

// bet-admin: ferramenta de operação (emitir token, consultar saldo, liquidar reserva)
func main() {
	var (
		action   = flag.String("action", "balance", "Action: token, balance, settle")
		username = flag.String("user", "", "Username (token, balance)")
		ttl      = flag.Duration("ttl", 24*time.Hour, "Token validity")
		ref      = flag.String("ref", "", "Reservation ref (idempotency key) to settle")
		outcome  = flag.String("outcome", "VOID", "Settle outcome: WON, LOST, VOID")
		payout   = flag.Int64("payout", 0, "Payout in cents for WON")
	)
	flag.Parse()

	cfg := config.Load()
	log, err := logger.New("bet-admin", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	users := auth.NewUsers(pg)
	switch *action {
	case "token":
		u, err := users.FindByUsername(ctx, *username)
		if err != nil {
			log.Fatal("find user", zap.String("user", *username), zap.Error(err))
		}
		tok, err := auth.NewAuthenticator(cfg.JWTSecret, users).Issue(u, *ttl)
		if err != nil {
			log.Fatal("issue token", zap.Error(err))
		}
		fmt.Println(tok)

	case "balance":
		u, err := users.FindByUsername(ctx, *username)
		if err != nil {
			log.Fatal("find user", zap.String("user", *username), zap.Error(err))
		}
		b, err := ledger.NewPostgres(pg).Balance(ctx, u.ID)
		if err != nil {
			log.Fatal("balance", zap.Error(err))
		}
		fmt.Printf("user=%s available_cents=%d exposure_cents=%d\n", u.Username, b.AvailableCents, b.ExposureCents)

	case "settle":
		if *ref == "" {
			log.Fatal("settle requires -ref")
		}
		o := ledger.Outcome(strings.ToUpper(*outcome))
		if err := ledger.NewPostgres(pg).Settle(ctx, *ref, o, *payout); err != nil {
			log.Fatal("settle", zap.String("ref", *ref), zap.Error(err))
		}
		log.Info("reservation settled", zap.String("ref", *ref), zap.String("outcome", string(o)))

	default:
		log.Fatal("unknown action, use: token, balance, settle", zap.String("action", *action))
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/radieske/live-bet-api/internal/bet-service/auth"
	bhttp "github.com/radieske/live-bet-api/internal/bet-service/http"
	"github.com/radieske/live-bet-api/internal/bet-service/ledger"
	"github.com/radieske/live-bet-api/internal/bet-service/odds"
	"github.com/radieske/live-bet-api/internal/bet-service/placement"
	kpub "github.com/radieske/live-bet-api/internal/bet-service/producer"
	"github.com/radieske/live-bet-api/internal/bet-service/repo"
	"github.com/radieske/live-bet-api/internal/bet-service/validator"
	"github.com/radieske/live-bet-api/internal/bet-service/ws"
	"github.com/radieske/live-bet-api/internal/shared/cache"
	"github.com/radieske/live-bet-api/internal/shared/config"
	"github.com/radieske/live-bet-api/internal/shared/db"
	"github.com/radieske/live-bet-api/internal/shared/kafka"
	"github.com/radieske/live-bet-api/internal/shared/logger"
	"github.com/radieske/live-bet-api/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Postgres
	pg, err := db.ConnectPostgres(bootCtx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(bootCtx, pg); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	// Redis
	rdb, err := cache.ConnectRedis(bootCtx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writer (topic bet_placed)
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced)
	defer writer.Close()

	// métricas
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	betMetrics := metrics.NewBetMetrics(reg)

	// deps
	rules, err := validator.NewRules(cfg.StakeMinCents, cfg.StakeMaxCents, cfg.OddsTolerance)
	if err != nil {
		log.Fatal("bet rules", zap.Error(err))
	}
	balances := ledger.NewPostgres(pg)
	market := odds.NewStore(rdb)

	svc := placement.New(placement.Config{
		Log:         log.Named("placement"),
		Validator:   validator.New(rules, market, balances),
		Ledger:      balances,
		Bets:        repo.NewPostgres(pg),
		Odds:        market,
		Publisher:   kpub.NewKafkaPublisher(writer, cfg.TopicBetPlaced),
		CallTimeout: cfg.CallTimeout,
		OnPlaced:    betMetrics.Placed,
		OnRejected:  betMetrics.Rejected,
		OnRollback:  betMetrics.RolledBack,
		Observe:     betMetrics.Observe,
	})

	// odds ao vivo: Redis Pub/Sub -> hub WebSocket
	hub := ws.NewHub(log.Named("ws"), func(r *http.Request) bool { return true })
	ws.StartRedisSubscriber(ctx, log.Named("ws"), rdb, cfg.RedisPubSubChannel, hub)

	// HTTP público
	api := bhttp.NewServer(log, auth.NewAuthenticator(cfg.JWTSecret, auth.NewUsers(pg)), svc, bhttp.Options{
		AllowedIPs:     cfg.AllowedIPs,
		TrustedProxies: cfg.TrustedProxies,
		CORSOrigins:    cfg.CORSOrigins,
		LiveOdds:       http.HandlerFunc(hub.HandleWS),
	})
	apiSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// metrics/health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, reg, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}, func(err error) {
		log.Error("metrics server", zap.Error(err))
	})
	log.Info("metrics/health", zap.String("addr", metricsSrv.Addr))

	go func() {
		log.Info("bet-service listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("api shutdown", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("bet-service stopped")
}

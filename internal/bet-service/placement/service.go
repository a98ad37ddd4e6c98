// Package placement orquestra a colocação de aposta:
// Received -> Validated -> Reserved -> Persisted -> Confirmed (ou Rejected).
// Qualquer falha depois de Reserved desfaz a reserva antes de responder.
package placement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/live-bet-api/internal/bet-service/ledger"
	"github.com/radieske/live-bet-api/internal/bet-service/odds"
	"github.com/radieske/live-bet-api/internal/bet-service/repo"
	"github.com/radieske/live-bet-api/internal/bet-service/validator"
	"github.com/radieske/live-bet-api/internal/shared/apperr"
	"github.com/radieske/live-bet-api/pkg/contracts/events"
)

type Validator interface {
	Validate(ctx context.Context, userID string, s validator.Submission) (validator.Intent, error)
}

// Ledger reserva e devolve stake; o id da reserva é o mesmo da aposta
type Ledger interface {
	ReserveWithID(ctx context.Context, id, userID string, amount int64, ref string) (ledger.Reservation, error)
	ReleaseWithID(ctx context.Context, ref, id string) error
	Reservation(ctx context.Context, ref string) (ledger.Reservation, error)
}

type Bets interface {
	Insert(ctx context.Context, b *repo.Bet) error
	FindByKey(ctx context.Context, userID, matchID, selectionID, nonce string) (*repo.Bet, error)
	UpdateStatus(ctx context.Context, betID, status, reason string) error
	ListByUser(ctx context.Context, userID, matchID string) ([]repo.Bet, error)
}

type Odds interface {
	FancyOdds(ctx context.Context, matchID, selectionID string) (odds.Snapshot, error)
}

type Publisher interface {
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
}

// Result é o retorno de PlaceBet; em falha Kind/Message descrevem o motivo
type Result struct {
	Success bool        `json:"success"`
	Kind    apperr.Kind `json:"kind,omitempty"`
	Message string      `json:"message"`
	Bet     *repo.Bet   `json:"bet,omitempty"`
}

type Config struct {
	Log       *zap.Logger
	Validator Validator
	Ledger    Ledger
	Bets      Bets
	Odds      Odds
	Publisher Publisher // opcional

	CallTimeout     time.Duration // limite por chamada externa
	RollbackTimeout time.Duration

	// callbacks de métricas (opcionais)
	OnPlaced   func()
	OnRejected func(kind string)
	OnRollback func()
	Observe    func(time.Duration)
}

type Service struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 2 * time.Second
	}
	if cfg.RollbackTimeout <= 0 {
		cfg.RollbackTimeout = 5 * time.Second
	}
	return &Service{
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]struct{}),
	}
}

// IdempotencyKey identifica a submissão; também é a ref da reserva no ledger
func IdempotencyKey(userID string, s validator.Submission) string {
	return userID + ":" + s.MatchID + ":" + s.SelectionID + ":" + s.Nonce
}

// PlaceBet executa o fluxo completo. O erro retornado carrega o mesmo Kind do Result.
func (s *Service) PlaceBet(ctx context.Context, userID string, sub validator.Submission) (Result, error) {
	start := time.Now()
	defer func() {
		if s.cfg.Observe != nil {
			s.cfg.Observe(time.Since(start))
		}
	}()
	log := s.cfg.Log.With(
		zap.String("user_id", userID),
		zap.String("match_id", sub.MatchID),
		zap.String("selection_id", sub.SelectionID),
	)

	// Received
	if err := checkSubmission(userID, sub); err != nil {
		return s.reject(log, err)
	}
	key := IdempotencyKey(userID, sub)
	if !s.acquire(key) {
		return s.alreadyProcessed(ctx, log, userID, sub)
	}
	defer s.done(key)

	// chave já usada por uma tentativa anterior (aposta gravada ou reserva feita)
	seen, err := s.seen(ctx, userID, sub, key)
	if err != nil {
		return s.reject(log, err)
	}
	if seen {
		return s.alreadyProcessed(ctx, log, userID, sub)
	}

	// Validated
	var intent validator.Intent
	err = s.call(ctx, "validate bet", func(c context.Context) error {
		var verr error
		intent, verr = s.cfg.Validator.Validate(c, userID, sub)
		return verr
	})
	if err != nil {
		return s.reject(log, err)
	}

	// Reserved
	id := uuid.NewString()
	err = s.call(ctx, "reserve stake", func(c context.Context) error {
		_, rerr := s.cfg.Ledger.ReserveWithID(c, id, userID, intent.StakeCents, key)
		return rerr
	})
	if errors.Is(err, apperr.Duplicate) {
		return s.alreadyProcessed(ctx, log, userID, sub)
	}
	if errors.Is(err, apperr.Timeout) || errors.Is(err, apperr.Unavailable) {
		// a reserva pode ter sido gravada mesmo sem resposta
		return s.fail(ctx, log, key, id, intent, err)
	}
	if err != nil {
		return s.reject(log, err)
	}

	// a partir daqui qualquer falha precisa devolver a reserva
	if err := ctx.Err(); err != nil {
		return s.fail(ctx, log, key, id, intent, apperr.FromContext("place bet", err))
	}

	// Persisted
	bet := &repo.Bet{
		ID:          id,
		UserID:      userID,
		MatchID:     intent.MatchID,
		SelectionID: intent.SelectionID,
		Nonce:       intent.Nonce,
		StakeCents:  intent.StakeCents,
		Odds:        intent.Odds,
		CreatedAt:   s.now(),
	}
	if err := s.persist(ctx, log, bet); err != nil {
		return s.fail(ctx, log, key, id, intent, err)
	}

	// Confirmed
	if err := s.confirm(ctx, bet); err != nil {
		return s.fail(ctx, log, key, id, intent, err)
	}
	return s.placed(ctx, log, bet, key)
}

func (s *Service) placed(ctx context.Context, log *zap.Logger, bet *repo.Bet, key string) (Result, error) {
	s.publish(ctx, log, bet, key)
	if s.cfg.OnPlaced != nil {
		s.cfg.OnPlaced()
	}
	log.Info("bet placed",
		zap.String("bet_id", bet.ID),
		zap.Int64("stake_cents", bet.StakeCents),
		zap.Float64("odds", bet.Odds))
	return Result{Success: true, Message: "bet placed", Bet: bet}, nil
}

// ListBets retorna as apostas do usuário, mais recentes primeiro; matchID vazio lista todas
func (s *Service) ListBets(ctx context.Context, userID, matchID string) ([]repo.Bet, error) {
	var out []repo.Bet
	err := s.call(ctx, "list bets", func(c context.Context) error {
		var lerr error
		out, lerr = s.cfg.Bets.ListByUser(c, userID, matchID)
		return lerr
	})
	if out == nil && err == nil {
		out = []repo.Bet{}
	}
	return out, err
}

// FancyOdds lê a cotação atual da seleção
func (s *Service) FancyOdds(ctx context.Context, matchID, selectionID string) (odds.Snapshot, error) {
	if matchID == "" || selectionID == "" {
		return odds.Snapshot{}, apperr.New(apperr.InvalidSubmission, "matchId and selectionId are required")
	}
	var snap odds.Snapshot
	err := s.call(ctx, "read odds", func(c context.Context) error {
		var oerr error
		snap, oerr = s.cfg.Odds.FancyOdds(c, matchID, selectionID)
		return oerr
	})
	return snap, err
}

func checkSubmission(userID string, sub validator.Submission) error {
	switch {
	case userID == "":
		return apperr.New(apperr.UnknownUser, "user is required")
	case sub.MatchID == "" || sub.SelectionID == "":
		return apperr.New(apperr.InvalidSubmission, "matchId and selectionId are required")
	case sub.Nonce == "":
		return apperr.New(apperr.InvalidSubmission, "nonce is required")
	case sub.Odds <= 0:
		return apperr.New(apperr.InvalidSubmission, "odds must be positive")
	}
	return nil
}

// call roda fn com o timeout por chamada e traduz erros de contexto
func (s *Service) call(ctx context.Context, op string, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	err := fn(c)
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	var k apperr.Kind
	if errors.As(err, &ae) || errors.As(err, &k) {
		return err
	}
	if cerr := c.Err(); cerr != nil {
		return apperr.FromContext(op, cerr)
	}
	return apperr.Wrap(apperr.Internal, op+" failed", err)
}

// persist grava a aposta; timeout tem uma nova tentativa com o mesmo ID e chave
func (s *Service) persist(ctx context.Context, log *zap.Logger, bet *repo.Bet) error {
	insert := func(c context.Context) error { return s.cfg.Bets.Insert(c, bet) }

	err := s.call(ctx, "persist bet", insert)
	if !errors.Is(err, apperr.Timeout) || ctx.Err() != nil {
		return err
	}

	log.Warn("persist timed out, retrying", zap.String("bet_id", bet.ID))
	err = s.call(ctx, "persist bet", insert)
	if !errors.Is(err, apperr.Duplicate) {
		return err
	}

	// duplicate na segunda tentativa: a primeira pode ter sido gravada
	stored, ferr := s.find(ctx, bet.UserID, bet.MatchID, bet.SelectionID, bet.Nonce)
	if ferr != nil {
		return err
	}
	if stored.ID != bet.ID {
		return err
	}
	*bet = *stored
	return nil
}

// confirm leva a aposta a CONFIRMED; NotFound após timeout significa que a primeira escrita passou
func (s *Service) confirm(ctx context.Context, bet *repo.Bet) error {
	update := func(c context.Context) error {
		return s.cfg.Bets.UpdateStatus(c, bet.ID, repo.StatusConfirmed, "")
	}
	err := s.call(ctx, "confirm bet", update)
	if errors.Is(err, apperr.Timeout) && ctx.Err() == nil {
		err = s.call(ctx, "confirm bet", update)
		if errors.Is(err, apperr.NotFound) {
			stored, ferr := s.find(ctx, bet.UserID, bet.MatchID, bet.SelectionID, bet.Nonce)
			if ferr == nil && stored.ID == bet.ID && stored.Status == repo.StatusConfirmed {
				err = nil
			}
		}
	}
	if err != nil {
		return err
	}
	bet.Status = repo.StatusConfirmed
	bet.UpdatedAt = s.now()
	return nil
}

func (s *Service) find(ctx context.Context, userID, matchID, selectionID, nonce string) (*repo.Bet, error) {
	var b *repo.Bet
	err := s.call(ctx, "find bet", func(c context.Context) error {
		var ferr error
		b, ferr = s.cfg.Bets.FindByKey(c, userID, matchID, selectionID, nonce)
		return ferr
	})
	return b, err
}

// seen diz se a chave já tem aposta gravada ou reserva no ledger
func (s *Service) seen(ctx context.Context, userID string, sub validator.Submission, key string) (bool, error) {
	_, err := s.find(ctx, userID, sub.MatchID, sub.SelectionID, sub.Nonce)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, apperr.NotFound) {
		return false, err
	}
	err = s.call(ctx, "find reservation", func(c context.Context) error {
		_, rerr := s.cfg.Ledger.Reservation(c, key)
		return rerr
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperr.NotFound):
		return false, nil
	}
	return false, err
}

// fail desfaz a tentativa; se a aposta já estava confirmada o resultado é sucesso
func (s *Service) fail(ctx context.Context, log *zap.Logger, key, id string, in validator.Intent, cause error) (Result, error) {
	if bet := s.rollback(ctx, log, key, id, in, cause); bet != nil {
		log.Warn("bet confirmed despite error", zap.String("bet_id", bet.ID), zap.Error(cause))
		return s.placed(ctx, log, bet, key)
	}
	return s.reject(log, cause)
}

// rollback marca a aposta (se existir) como REJECTED e só depois devolve a reserva id.
// Aposta já CONFIRMED não é desfeita e volta ao chamador.
// Sem estado final conhecido a reserva fica presa para reconciliação.
// Roda com contexto próprio: o cancelamento do chamador não pode impedir a devolução.
func (s *Service) rollback(ctx context.Context, log *zap.Logger, key, id string, in validator.Intent, cause error) *repo.Bet {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RollbackTimeout)
	defer cancel()

	stuck := func(msg string, err error) {
		log.Error(msg,
			zap.String("ref", key),
			zap.String("reservation_id", id),
			zap.Int64("stake_cents", in.StakeCents),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}

	stored, err := s.cfg.Bets.FindByKey(rctx, in.UserID, in.MatchID, in.SelectionID, in.Nonce)
	switch {
	case errors.Is(err, apperr.NotFound):
	case err != nil:
		stuck("rollback find bet failed", err)
		return nil
	case stored.ID != id:
		// aposta de outra tentativa: não mexe nela
	case stored.Status == repo.StatusConfirmed:
		return stored
	case stored.Status == repo.StatusPending:
		uerr := s.cfg.Bets.UpdateStatus(rctx, stored.ID, repo.StatusRejected, string(apperr.KindOf(cause)))
		if uerr != nil {
			// o UPDATE pode ter passado, ou o confirm ter vencido a corrida
			again, ferr := s.cfg.Bets.FindByKey(rctx, in.UserID, in.MatchID, in.SelectionID, in.Nonce)
			if ferr == nil && again.Status == repo.StatusConfirmed {
				return again
			}
			if ferr != nil || again.Status != repo.StatusRejected {
				stuck("mark bet rejected failed", uerr)
				return nil
			}
		}
	}

	if s.cfg.OnRollback != nil {
		s.cfg.OnRollback()
	}
	if err := s.cfg.Ledger.ReleaseWithID(rctx, key, id); err != nil {
		// reserva presa: precisa de reconciliação manual
		stuck("rollback release failed", err)
		return nil
	}
	log.Warn("bet rolled back", zap.String("ref", key), zap.Error(cause))
	return nil
}

func (s *Service) alreadyProcessed(ctx context.Context, log *zap.Logger, userID string, sub validator.Submission) (Result, error) {
	if s.cfg.OnRejected != nil {
		s.cfg.OnRejected(string(apperr.AlreadyProcessed))
	}
	res := Result{Kind: apperr.AlreadyProcessed, Message: "bet already processed"}
	if b, err := s.find(ctx, userID, sub.MatchID, sub.SelectionID, sub.Nonce); err == nil {
		res.Bet = b
	}
	log.Info("duplicate bet submission", zap.String("nonce", sub.Nonce))
	return res, apperr.New(apperr.Duplicate, res.Message)
}

func (s *Service) reject(log *zap.Logger, err error) (Result, error) {
	kind := apperr.KindOf(err)
	if s.cfg.OnRejected != nil {
		s.cfg.OnRejected(string(kind))
	}
	switch {
	case apperr.IsAuth(kind) || apperr.IsValidation(kind):
		log.Info("bet rejected", zap.String("kind", string(kind)), zap.String("reason", apperr.MessageOf(err)))
	case kind == apperr.Internal:
		log.Error("bet failed", zap.Error(err))
	default:
		log.Warn("bet failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	return Result{Kind: kind, Message: apperr.MessageOf(err)}, err
}

// publish é best-effort: a aposta já está confirmada
func (s *Service) publish(ctx context.Context, log *zap.Logger, bet *repo.Bet, key string) {
	if s.cfg.Publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CallTimeout)
	defer cancel()
	err := s.cfg.Publisher.PublishBetPlaced(pctx, events.BetPlaced{
		BetID:          bet.ID,
		UserID:         bet.UserID,
		MatchID:        bet.MatchID,
		SelectionID:    bet.SelectionID,
		StakeCents:     bet.StakeCents,
		Odds:           bet.Odds,
		IdempotencyKey: key,
		PlacedAt:       bet.CreatedAt,
	})
	if err != nil {
		log.Warn("publish bet_placed failed", zap.String("bet_id", bet.ID), zap.Error(err))
	}
}

func (s *Service) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[key]; ok {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Service) done(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

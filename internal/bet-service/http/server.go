package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/radieske/live-bet-api/internal/bet-service/auth"
	"github.com/radieske/live-bet-api/internal/bet-service/dto"
	"github.com/radieske/live-bet-api/internal/bet-service/odds"
	"github.com/radieske/live-bet-api/internal/bet-service/placement"
	"github.com/radieske/live-bet-api/internal/bet-service/repo"
	"github.com/radieske/live-bet-api/internal/bet-service/validator"
	"github.com/radieske/live-bet-api/internal/shared/apperr"
)

const maxBodyBytes = 1 << 16

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.User, error)
}

type Bets interface {
	PlaceBet(ctx context.Context, userID string, sub validator.Submission) (placement.Result, error)
	ListBets(ctx context.Context, userID, matchID string) ([]repo.Bet, error)
	FancyOdds(ctx context.Context, matchID, selectionID string) (odds.Snapshot, error)
}

type Options struct {
	AllowedIPs []string // vazio libera todos
	// TrustedProxies são os únicos peers cujos X-Real-IP/X-Forwarded-For valem
	TrustedProxies []string
	CORSOrigins    []string
	LiveOdds       http.Handler // handler do WebSocket (opcional)
}

type Server struct {
	log     *zap.Logger
	auth    Authenticator
	bets    Bets
	opts    Options
	allowed map[string]struct{}
	proxies map[string]struct{}
}

func NewServer(log *zap.Logger, a Authenticator, b Bets, opts Options) *Server {
	allowed := make(map[string]struct{}, len(opts.AllowedIPs))
	for _, ip := range opts.AllowedIPs {
		allowed[ip] = struct{}{}
	}
	proxies := make(map[string]struct{}, len(opts.TrustedProxies))
	for _, ip := range opts.TrustedProxies {
		proxies[ip] = struct{}{}
	}
	return &Server{log: log, auth: a, bets: b, opts: opts, allowed: allowed, proxies: proxies}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))
	r.Use(s.ipAllowlist)

	r.Get("/api/getfancysingle/{matchID}/{selectionID}", s.getFancyOdds)
	r.Post("/api/placebet", s.placeBet)
	r.Get("/api/bets", s.listBets)
	if s.opts.LiveOdds != nil {
		r.Handle("/ws/odds", s.opts.LiveOdds)
	}
	return r
}

func (s *Server) ipAllowlist(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowed) > 0 {
			if _, ok := s.allowed[s.clientIP(r)]; !ok {
				writeJSON(w, http.StatusForbidden, dto.Error{
					Error: true, Code: http.StatusForbidden, Kind: "forbidden", Message: "address not allowed",
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP usa o endereço da conexão; headers de proxy só contam vindos de um proxy confiável
func (s *Server) clientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if _, ok := s.proxies[peer]; !ok {
		return peer
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	// o último item foi anexado pelo próprio proxy
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
			return ip
		}
	}
	return peer
}

// authenticate resolve o usuário do header Authorization; escreve a resposta de erro se falhar
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	u, err := s.auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		s.writeError(w, err)
		return auth.User{}, false
	}
	return u, true
}

func (s *Server) getFancyOdds(w http.ResponseWriter, r *http.Request) {
	snap, err := s.bets.FancyOdds(r.Context(), chi.URLParam(r, "matchID"), chi.URLParam(r, "selectionID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.OddsResponse{Data: snap})
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req dto.PlaceBetRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, apperr.Wrap(apperr.InvalidSubmission, "bet is not acceptable", err))
		return
	}
	if req.Nonce == "" {
		req.Nonce = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	res, err := s.bets.PlaceBet(r.Context(), user.ID, validator.Submission{
		MatchID:     req.MatchID,
		SelectionID: req.SelectionID,
		Nonce:       req.Nonce,
		StakeCents:  req.StakeCents,
		Odds:        req.Odds,
	})
	if err != nil {
		if res.Kind == apperr.AlreadyProcessed {
			writeJSON(w, http.StatusConflict, dto.Error{
				Error: true, Code: http.StatusConflict, Kind: string(apperr.AlreadyProcessed), Message: res.Message,
			})
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.Success{Status: "success", Data: res, Message: res.Message})
}

func (s *Server) listBets(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	bets, err := s.bets.ListBets(r.Context(), user.ID, r.URL.Query().Get("matchId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	msg := "bets found"
	if len(bets) == 0 {
		msg = "no bets"
	}
	writeJSON(w, http.StatusOK, dto.Success{Status: "success", Data: bets, Message: msg})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	code := StatusFor(kind)
	msg := apperr.MessageOf(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		code, msg = http.StatusRequestEntityTooLarge, "payload too large"
	}
	writeJSON(w, code, dto.Error{Error: true, Code: code, Kind: string(kind), Message: msg})
}

// StatusFor mapeia o Kind para o status HTTP
func StatusFor(k apperr.Kind) int {
	switch {
	case apperr.IsAuth(k):
		return http.StatusUnauthorized
	case k == apperr.InvalidStake || k == apperr.InvalidSubmission:
		return http.StatusBadRequest
	case apperr.IsValidation(k), k == apperr.Duplicate, k == apperr.AlreadyProcessed:
		return http.StatusConflict
	case k == apperr.NotFound:
		return http.StatusNotFound
	case k == apperr.Timeout:
		return http.StatusGatewayTimeout
	case k == apperr.Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/radieske/live-bet-api/internal/bet-service/auth"
	"github.com/radieske/live-bet-api/internal/bet-service/odds"
	"github.com/radieske/live-bet-api/internal/bet-service/placement"
	"github.com/radieske/live-bet-api/internal/bet-service/repo"
	"github.com/radieske/live-bet-api/internal/bet-service/validator"
	"github.com/radieske/live-bet-api/internal/shared/apperr"
)

type mockAuth struct{}

func (mockAuth) Authenticate(ctx context.Context, token string) (auth.User, error) {
	switch token {
	case "Bearer good":
		return auth.User{ID: "u1", Username: "alice"}, nil
	case "Bearer old":
		return auth.User{}, apperr.New(apperr.ExpiredCredential, "session expired")
	}
	return auth.User{}, apperr.New(apperr.InvalidCredential, "invalid credential")
}

type mockBets struct {
	lastUser string
	lastSub  validator.Submission
	placeRes placement.Result
	placeErr error
	list     []repo.Bet
	listErr  error
	lastList string
	snap     odds.Snapshot
	snapErr  error
}

func (m *mockBets) PlaceBet(ctx context.Context, userID string, sub validator.Submission) (placement.Result, error) {
	m.lastUser, m.lastSub = userID, sub
	return m.placeRes, m.placeErr
}

func (m *mockBets) ListBets(ctx context.Context, userID, matchID string) ([]repo.Bet, error) {
	m.lastUser, m.lastList = userID, matchID
	return m.list, m.listErr
}

func (m *mockBets) FancyOdds(ctx context.Context, matchID, selectionID string) (odds.Snapshot, error) {
	return m.snap, m.snapErr
}

func newTestServer(b *mockBets, opts Options) http.Handler {
	if opts.CORSOrigins == nil {
		opts.CORSOrigins = []string{"*"}
	}
	return NewServer(zap.NewNop(), mockAuth{}, b, opts).Router()
}

func do(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestPlaceBetCreated(t *testing.T) {
	b := &mockBets{placeRes: placement.Result{Success: true, Message: "bet placed", Bet: &repo.Bet{ID: "b1", Status: repo.StatusConfirmed}}}
	h := newTestServer(b, Options{})

	rec := do(h, http.MethodPost, "/api/placebet", "good",
		`{"matchId":"m1","selectionId":"s1","nonce":"n1","stake_cents":3000,"odds":2.0}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeMap(t, rec)
	if body["status"] != "success" || body["message"] != "bet placed" {
		t.Errorf("unexpected envelope %v", body)
	}
	if b.lastUser != "u1" || b.lastSub.StakeCents != 3000 || b.lastSub.Nonce != "n1" {
		t.Errorf("unexpected submission %s %+v", b.lastUser, b.lastSub)
	}
}

func TestPlaceBetNonceFromHeader(t *testing.T) {
	b := &mockBets{placeRes: placement.Result{Success: true}}
	h := newTestServer(b, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/placebet",
		strings.NewReader(`{"matchId":"m1","selectionId":"s1","stake_cents":100,"odds":2}`))
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("Idempotency-Key", "k-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if b.lastSub.Nonce != "k-42" {
		t.Errorf("expected nonce from header, got %q", b.lastSub.Nonce)
	}
}

func TestPlaceBetAuthFailures(t *testing.T) {
	b := &mockBets{}
	h := newTestServer(b, Options{})

	for _, tc := range []struct {
		token string
		kind  string
	}{
		{"", "invalid_credential"},
		{"bad", "invalid_credential"},
		{"old", "expired_credential"},
	} {
		rec := do(h, http.MethodPost, "/api/placebet", tc.token, `{}`)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("token %q: expected 401, got %d", tc.token, rec.Code)
			continue
		}
		if body := decodeMap(t, rec); body["kind"] != tc.kind || body["error"] != true {
			t.Errorf("token %q: unexpected body %v", tc.token, body)
		}
	}
	if b.lastUser != "" {
		t.Error("placement must not run without a valid credential")
	}
}

func TestPlaceBetBadJSON(t *testing.T) {
	h := newTestServer(&mockBets{}, Options{})

	rec := do(h, http.MethodPost, "/api/placebet", "good", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPlaceBetErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		kind apperr.Kind
		code int
	}{
		{apperr.New(apperr.OddsChanged, "odds changed; current=2.1"), apperr.OddsChanged, http.StatusConflict},
		{apperr.New(apperr.InsufficientBalance, "insufficient balance"), apperr.InsufficientBalance, http.StatusConflict},
		{apperr.New(apperr.MarketSuspended, "market is suspended"), apperr.MarketSuspended, http.StatusConflict},
		{apperr.New(apperr.InvalidStake, "bad stake"), apperr.InvalidStake, http.StatusBadRequest},
		{apperr.New(apperr.Timeout, "persist bet timed out"), apperr.Timeout, http.StatusGatewayTimeout},
		{apperr.New(apperr.Unavailable, "db down"), apperr.Unavailable, http.StatusServiceUnavailable},
		{apperr.New(apperr.Internal, "boom"), apperr.Internal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		b := &mockBets{placeRes: placement.Result{Kind: tc.kind, Message: apperr.MessageOf(tc.err)}, placeErr: tc.err}
		rec := do(newTestServer(b, Options{}), http.MethodPost, "/api/placebet", "good",
			`{"matchId":"m1","selectionId":"s1","nonce":"n","stake_cents":100,"odds":2}`)
		if rec.Code != tc.code {
			t.Errorf("%s: expected %d, got %d", tc.kind, tc.code, rec.Code)
			continue
		}
		body := decodeMap(t, rec)
		if body["kind"] != string(tc.kind) || body["message"] != apperr.MessageOf(tc.err) {
			t.Errorf("%s: unexpected body %v", tc.kind, body)
		}
	}
}

func TestPlaceBetAlreadyProcessed(t *testing.T) {
	b := &mockBets{
		placeRes: placement.Result{Kind: apperr.AlreadyProcessed, Message: "bet already processed"},
		placeErr: apperr.New(apperr.Duplicate, "bet already processed"),
	}
	rec := do(newTestServer(b, Options{}), http.MethodPost, "/api/placebet", "good",
		`{"matchId":"m1","selectionId":"s1","nonce":"n","stake_cents":100,"odds":2}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if body := decodeMap(t, rec); body["kind"] != "already_processed" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestListBets(t *testing.T) {
	b := &mockBets{list: []repo.Bet{{ID: "b2"}, {ID: "b1"}}}
	h := newTestServer(b, Options{})

	rec := do(h, http.MethodGet, "/api/bets?matchId=m1", "good", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if b.lastList != "m1" || b.lastUser != "u1" {
		t.Errorf("unexpected list args %s/%s", b.lastUser, b.lastList)
	}
	body := decodeMap(t, rec)
	data, ok := body["data"].([]any)
	if !ok || len(data) != 2 {
		t.Fatalf("unexpected data %v", body["data"])
	}

	if rec := do(h, http.MethodGet, "/api/bets", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
}

func TestGetFancyOdds(t *testing.T) {
	b := &mockBets{snap: odds.Snapshot{MatchID: "12", SelectionID: "7", Odds: 1.85, Status: odds.StatusOpen}}
	h := newTestServer(b, Options{})

	rec := do(h, http.MethodGet, "/api/getfancysingle/12/7", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, ok := decodeMap(t, rec)["data"].(map[string]any)
	if !ok || data["odds"] != 1.85 {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	b.snapErr = apperr.New(apperr.NotFound, "no odds")
	if rec := do(h, http.MethodGet, "/api/getfancysingle/12/8", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestIPAllowlist(t *testing.T) {
	h := newTestServer(&mockBets{}, Options{AllowedIPs: []string{"10.0.0.1"}})

	req := httptest.NewRequest(http.MethodGet, "/api/getfancysingle/1/2", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/getfancysingle/1/2", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected allowed address to pass, got %d", rec.Code)
	}

	// headers de proxy vindos de um peer qualquer são ignorados
	req = httptest.NewRequest(http.MethodGet, "/api/getfancysingle/1/2", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("X-Real-IP", "10.0.0.1")
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected forged headers to be ignored, got %d", rec.Code)
	}
}

func TestIPAllowlistBehindTrustedProxy(t *testing.T) {
	h := newTestServer(&mockBets{}, Options{
		AllowedIPs:     []string{"10.0.0.1"},
		TrustedProxies: []string{"172.16.0.2"},
	})

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"real ip", "X-Real-IP", "10.0.0.1", http.StatusOK},
		{"last forwarded hop", "X-Forwarded-For", "192.0.2.10, 10.0.0.1", http.StatusOK},
		{"client-supplied hop", "X-Forwarded-For", "10.0.0.1, 192.0.2.10", http.StatusForbidden},
		{"no header", "", "", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/getfancysingle/1/2", nil)
			req.RemoteAddr = "172.16.0.2:443"
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	if StatusFor(apperr.UnknownUser) != http.StatusUnauthorized {
		t.Error("unknown user must map to 401")
	}
	if StatusFor(apperr.Duplicate) != http.StatusConflict {
		t.Error("duplicate must map to 409")
	}
	if StatusFor(apperr.Kind("weird")) != http.StatusInternalServerError {
		t.Error("unknown kind must map to 500")
	}
}

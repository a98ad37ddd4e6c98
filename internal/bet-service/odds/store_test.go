package odds

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/radieske/live-bet-api/internal/shared/apperr"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb), mr
}

func TestFancyOdds(t *testing.T) {
	s, mr := newTestStore(t)

	snap := Snapshot{MatchID: "12", SelectionID: "7", Odds: 1.85, Status: StatusOpen, UpdatedAt: time.Now().UTC()}
	b, _ := json.Marshal(snap)
	if err := mr.Set("odds:fancy:12:7", string(b)); err != nil {
		t.Fatal(err)
	}

	got, err := s.FancyOdds(context.Background(), "12", "7")
	if err != nil {
		t.Fatalf("fancy odds: %v", err)
	}
	if got.Odds != 1.85 || got.Status != StatusOpen {
		t.Errorf("unexpected snapshot %+v", got)
	}

	_, err = s.FancyOdds(context.Background(), "12", "8")
	if !errors.Is(err, apperr.NotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestFancyOddsCorrupt(t *testing.T) {
	s, mr := newTestStore(t)
	_ = mr.Set("odds:fancy:1:1", "{not json")

	_, err := s.FancyOdds(context.Background(), "1", "1")
	if apperr.KindOf(err) != apperr.Internal {
		t.Errorf("expected internal error, got %v", err)
	}
}

func TestLocked(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	locked, err := s.Locked(ctx, "12", "7")
	if err != nil || locked {
		t.Fatalf("expected unlocked, got %v %v", locked, err)
	}

	_ = mr.Set("betlock:12:7", "1")
	if locked, _ = s.Locked(ctx, "12", "7"); !locked {
		t.Error("selection lock not detected")
	}
	if locked, _ = s.Locked(ctx, "12", "8"); locked {
		t.Error("lock on another selection must not apply")
	}

	_ = mr.Set("betlock:12", "1")
	if locked, _ = s.Locked(ctx, "12", "8"); !locked {
		t.Error("match-wide lock not detected")
	}
}

func TestRedisDownIsUnavailable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.Locked(context.Background(), "1", "1")
	if !errors.Is(err, apperr.Unavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
}

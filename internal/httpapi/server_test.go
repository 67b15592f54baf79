package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/park285/connect4-server/internal/domain"
	"github.com/park285/connect4-server/internal/repository"
	"github.com/park285/connect4-server/internal/store"
	"github.com/park285/connect4-server/pkg/c4dto"
)

type fixedStats struct{ active, waiting int }

func (f fixedStats) ActiveSessions() int { return f.active }
func (f fixedStats) Waiting() int        { return f.waiting }

type fixture struct {
	srv   *Server
	lb    *store.Leaderboard
	snaps *store.Snapshots
	repo  repository.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb, err := store.Open(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	f := fixture{
		lb:    store.NewLeaderboard(rdb),
		snaps: store.NewSnapshots(rdb, time.Hour),
		repo:  repository.NewMemory(),
	}
	base := time.Unix(1_700_000_000, 0)
	calls := 0
	f.srv = New(Deps{
		Stats:       fixedStats{active: 3, waiting: 1},
		Leaderboard: f.lb,
		Matches:     f.repo,
		Snapshots:   f.snaps,
		Now: func() time.Time {
			calls++
			return base.Add(time.Duration(calls-1) * 90 * time.Second)
		},
	})
	return f
}

func get(t *testing.T, s *Server, path string, out any) int {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, path, nil), 2000)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, body)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	var h c4dto.Health
	if code := get(t, f.srv, "/health", &h); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if h.Status != "ok" || h.ActiveSessions != 3 || h.WaitingPlayers != 1 || h.UptimeSeconds != 90 {
		t.Fatalf("unexpected health %+v", h)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"Amy", "Bob", "Amy"} {
		if err := f.lb.RecordWin(ctx, name); err != nil {
			t.Fatalf("RecordWin: %v", err)
		}
	}
	var body struct {
		Standings []domain.Standing `json:"standings"`
	}
	if code := get(t, f.srv, "/leaderboard?limit=1", &body); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(body.Standings) != 1 || body.Standings[0].DisplayName != "Amy" || body.Standings[0].Wins != 2 {
		t.Fatalf("unexpected standings %+v", body.Standings)
	}
}

func TestMatchesEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := domain.CompletedMatchRecord{
		SessionID:  "s1",
		Mode:       "online",
		Reason:     "normal",
		Winner:     "first",
		FinishedAt: time.Unix(100, 0).UTC(),
		Players: []domain.PlayerSummary{
			{Identity: "alice", DisplayName: "Alice", Side: "first", Result: domain.ResultWin},
			{Identity: "bob", DisplayName: "Bob", Side: "second", Result: domain.ResultLoss},
		},
	}
	if err := f.repo.RecordCompletedMatch(ctx, rec); err != nil {
		t.Fatalf("record: %v", err)
	}

	var body struct {
		Matches []domain.CompletedMatchRecord `json:"matches"`
	}
	if code := get(t, f.srv, "/matches/recent", &body); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(body.Matches) != 1 || body.Matches[0].SessionID != "s1" {
		t.Fatalf("unexpected matches %+v", body.Matches)
	}

	body.Matches = nil
	get(t, f.srv, "/players/carol/matches", &body)
	if len(body.Matches) != 0 {
		t.Fatalf("carol has no matches, got %+v", body.Matches)
	}
	get(t, f.srv, "/players/bob/matches?limit=5", &body)
	if len(body.Matches) != 1 {
		t.Fatalf("bob should see one match")
	}
}

func TestSessionSnapshotEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := &c4dto.PublicState{
		SessionID: "abc",
		Mode:      "vsBot",
		Phase:     "PLAYING",
		Turn:      "first",
		Board:     [][]int{{0, 0, 0, 0, 0, 0, 0}},
		UpdatedAt: time.Unix(50, 0).UTC(),
	}
	if err := f.snaps.SaveSnapshot(ctx, st, []string{"alice"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	var got c4dto.PublicState
	if code := get(t, f.srv, "/sessions/abc", &got); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if got.SessionID != "abc" || got.Turn != "first" {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	var derr c4dto.DomainError
	if code := get(t, f.srv, "/sessions/missing", &derr); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if derr.Code != c4dto.CodeNotFound {
		t.Fatalf("code %s", derr.Code)
	}

	var list struct {
		Sessions []c4dto.PublicState `json:"sessions"`
	}
	get(t, f.srv, "/players/alice/sessions", &list)
	if len(list.Sessions) != 1 || list.Sessions[0].SessionID != "abc" {
		t.Fatalf("unexpected sessions %+v", list.Sessions)
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	var derr c4dto.DomainError
	if code := get(t, f.srv, "/nope", &derr); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if derr.Code != c4dto.CodeNotFound {
		t.Fatalf("code %s", derr.Code)
	}
}

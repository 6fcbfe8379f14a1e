package services

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"battleboats/board"
	"battleboats/config"
	"battleboats/engine"
	"battleboats/models"
	"battleboats/store"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	ctx   context.Context
	store *store.MemoryStore
	clock *clockwork.FakeClock

	auth        *AuthService
	matchmaking *MatchmakingService
	matches     *MatchService
	leaderboard *LeaderboardService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := log.New(io.Discard)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	st := store.NewMemoryStore()
	settings := engine.DefaultSettings()

	auth := NewAuthService(st, st, config.AuthConfig{
		SessionTTL:      time.Hour,
		MinSecretLength: 6,
		MaxFailedLogins: 5,
		FailedLoginSpan: time.Minute,
	}, clock, logger)
	auth.bcryptCost = bcrypt.MinCost

	return &fixture{
		ctx:         context.Background(),
		store:       st,
		clock:       clock,
		auth:        auth,
		matchmaking: NewMatchmakingService(st, st, settings, 5*time.Minute, clock, logger),
		matches:     NewMatchService(st, settings, clock, logger),
		leaderboard: NewLeaderboardService(st, st),
	}
}

func (f *fixture) register(t *testing.T, name string) models.Player {
	t.Helper()
	u, err := f.auth.Register(f.ctx, name, "secret-"+name)
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return models.Player{UserID: u.ID, Username: u.Username}
}

// standardFleet is a valid default composition, shifted by offset columns.
func standardFleet(t *testing.T, offset int) board.Fleet {
	t.Helper()
	g := board.Grid{Size: board.DefaultGridSize}
	origins := []int{0, 20, 40, 60, 80, 5, 25, 45, 65, 85}
	var fleet board.Fleet
	for i, l := range board.DefaultComposition {
		ship, err := g.PlaceShip(string(rune('a'+i)), origins[i]+offset, l, board.Horizontal, fleet)
		if err != nil {
			t.Fatalf("place ship %d: %v", i, err)
		}
		fleet = append(fleet, ship)
	}
	return fleet
}

func (f *fixture) pair(t *testing.T) (*models.Match, models.Player, models.Player) {
	t.Helper()
	a := f.register(t, "alice")
	b := f.register(t, "bob")
	if res, err := f.matchmaking.JoinQueue(f.ctx, a, standardFleet(t, 0)); err != nil || res.Status != QueueStatusWaiting {
		t.Fatalf("alice join: %+v %v", res, err)
	}
	res, err := f.matchmaking.JoinQueue(f.ctx, b, standardFleet(t, 0))
	if err != nil || res.Status != QueueStatusActive || res.MatchID == "" {
		t.Fatalf("bob join: %+v %v", res, err)
	}
	m, err := f.store.GetMatch(f.ctx, res.MatchID)
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	return m, a, b
}

func TestJoinQueuePairsWithWaiter(t *testing.T) {
	f := newFixture(t)
	m, a, b := f.pair(t)

	if m.Player1.UserID != a.UserID || m.Player2.UserID != b.UserID {
		t.Fatalf("expected waiter as player1, got %+v / %+v", m.Player1, m.Player2)
	}
	if m.CurrentTurn != a.UserID || m.Status != models.MatchStatusActive {
		t.Fatalf("expected active match with waiter's turn, got %s %s", m.Status, m.CurrentTurn)
	}
	q, _ := f.store.PeekQueue(f.ctx)
	if !q.Empty() {
		t.Fatalf("expected queue cleared after pairing, got %+v", q)
	}

	found, err := f.matchmaking.FindActiveMatch(f.ctx, b.UserID)
	if err != nil || found.ID != m.ID {
		t.Fatalf("expected to find match %s, got %v (%v)", m.ID, found, err)
	}
}

func TestJoinQueueReplacesStaleAndOwnEntry(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "alice")
	b := f.register(t, "bob")

	if _, err := f.matchmaking.JoinQueue(f.ctx, a, standardFleet(t, 0)); err != nil {
		t.Fatalf("join: %v", err)
	}
	res, err := f.matchmaking.JoinQueue(f.ctx, a, standardFleet(t, 1))
	if err != nil || res.Status != QueueStatusWaiting {
		t.Fatalf("expected re-join to keep waiting, got %+v %v", res, err)
	}

	f.clock.Advance(6 * time.Minute)
	res, err = f.matchmaking.JoinQueue(f.ctx, b, standardFleet(t, 0))
	if err != nil || res.Status != QueueStatusWaiting {
		t.Fatalf("expected stale waiter to be replaced, got %+v %v", res, err)
	}
	q, _ := f.store.PeekQueue(f.ctx)
	if q.UserID != b.UserID {
		t.Fatalf("expected bob waiting, got %q", q.UserID)
	}
	if ms, _ := f.store.ListMatches(f.ctx, models.MatchStatusActive); len(ms) != 0 {
		t.Fatalf("expected no match with stale waiter, got %d", len(ms))
	}
}

func TestJoinQueueValidatesFleetFirst(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "alice")

	bad := standardFleet(t, 0)[:3]
	if _, err := f.matchmaking.JoinQueue(f.ctx, a, bad); !errors.Is(err, ErrInvalidFleet) {
		t.Fatalf("expected ErrInvalidFleet, got %v", err)
	}
	if _, err := f.matchmaking.JoinQueue(f.ctx, a, nil); !errors.Is(err, ErrFleetRequired) {
		t.Fatalf("expected ErrFleetRequired, got %v", err)
	}
	q, _ := f.store.PeekQueue(f.ctx)
	if !q.Empty() {
		t.Fatalf("expected queue untouched after rejected joins")
	}

	if err := f.matchmaking.SubmitFleet(f.ctx, a.UserID, standardFleet(t, 2)); err != nil {
		t.Fatalf("submit fleet: %v", err)
	}
	res, err := f.matchmaking.JoinQueue(f.ctx, a, nil)
	if err != nil || res.Status != QueueStatusWaiting {
		t.Fatalf("expected draft fleet join, got %+v %v", res, err)
	}
}

func TestLeaveQueueOnlyByOccupant(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "alice")
	b := f.register(t, "bob")
	_, _ = f.matchmaking.JoinQueue(f.ctx, a, standardFleet(t, 0))

	if err := f.matchmaking.LeaveQueue(f.ctx, b.UserID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if q, _ := f.store.PeekQueue(f.ctx); q.UserID != a.UserID {
		t.Fatalf("expected alice still waiting")
	}
	for i := 0; i < 2; i++ {
		if err := f.matchmaking.LeaveQueue(f.ctx, a.UserID); err != nil {
			t.Fatalf("leave: %v", err)
		}
	}
	if q, _ := f.store.PeekQueue(f.ctx); !q.Empty() {
		t.Fatalf("expected empty queue")
	}
}

func TestConcurrentJoinsPairEachPlayerOnce(t *testing.T) {
	f := newFixture(t)
	const n = 20
	players := make([]models.Player, n)
	for i := range players {
		players[i] = f.register(t, "player"+string(rune('a'+i)))
	}
	fleet := standardFleet(t, 0)

	var wg sync.WaitGroup
	for _, p := range players {
		wg.Add(1)
		go func(p models.Player) {
			defer wg.Done()
			if _, err := f.matchmaking.JoinQueue(f.ctx, p, fleet); err != nil {
				t.Errorf("join %s: %v", p.Username, err)
			}
		}(p)
	}
	wg.Wait()

	ms, _ := f.store.ListMatches(f.ctx, models.MatchStatusActive)
	if len(ms) != n/2 {
		t.Fatalf("expected %d matches, got %d", n/2, len(ms))
	}
	seen := map[string]int{}
	for _, m := range ms {
		if m.Player1.UserID == m.Player2.UserID {
			t.Fatalf("self-paired match %s", m.ID)
		}
		seen[m.Player1.UserID]++
		seen[m.Player2.UserID]++
	}
	for _, p := range players {
		if seen[p.UserID] != 1 {
			t.Fatalf("player %s in %d matches", p.Username, seen[p.UserID])
		}
	}
}

func TestFindActiveMatchSkipsExpired(t *testing.T) {
	f := newFixture(t)
	_, a, _ := f.pair(t)

	f.clock.Advance(3 * time.Hour)
	if _, err := f.matchmaking.FindActiveMatch(f.ctx, a.UserID); !errors.Is(err, ErrNoActiveMatch) {
		t.Fatalf("expected ErrNoActiveMatch for expired match, got %v", err)
	}

	report, err := f.matchmaking.Sweep(f.ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.MatchesRemoved != 1 {
		t.Fatalf("expected 1 match removed, got %+v", report)
	}
	report, _ = f.matchmaking.Sweep(f.ctx)
	if report.MatchesRemoved != 0 || report.QueueCleared {
		t.Fatalf("expected idempotent sweep, got %+v", report)
	}
}

func TestSweepClearsStaleQueue(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "alice")
	_, _ = f.matchmaking.JoinQueue(f.ctx, a, standardFleet(t, 0))

	if report, _ := f.matchmaking.Sweep(f.ctx); report.QueueCleared {
		t.Fatalf("fresh entry must survive the sweep")
	}
	f.clock.Advance(10 * time.Minute)
	snap, _ := f.matchmaking.QueueStatus(f.ctx)
	if !snap.Waiting || !snap.Stale || snap.WaitSeconds != 600 {
		t.Fatalf("unexpected queue status %+v", snap)
	}
	if report, _ := f.matchmaking.Sweep(f.ctx); !report.QueueCleared {
		t.Fatalf("expected stale entry cleared")
	}
}

// sinkFleetOf returns the cells of the defender's fleet in attack order.
func sinkFleetOf(m *models.Match, defender string) []int {
	var cells []int
	for _, s := range m.Placements[defender] {
		cells = append(cells, s.Cells...)
	}
	return cells
}

func TestAttackToVictoryRecordsStatsOnce(t *testing.T) {
	f := newFixture(t)
	m, a, b := f.pair(t)

	for _, c := range sinkFleetOf(m, b.UserID) {
		out, err := f.matches.Attack(f.ctx, m.ID, a.UserID, c)
		if err != nil {
			t.Fatalf("attack %d: %v", c, err)
		}
		if !out.Hit {
			t.Fatalf("expected hit at %d", c)
		}
	}

	final, _ := f.store.GetMatch(f.ctx, m.ID)
	if final.Status != models.MatchStatusFinished || final.WinnerID != a.UserID {
		t.Fatalf("expected alice to win, got %s %s", final.Status, final.WinnerID)
	}

	// attacks after the end change nothing, even with an off-board cell
	for _, who := range []string{a.UserID, b.UserID} {
		for _, cell := range []int{99, 100, -1} {
			out, err := f.matches.Attack(f.ctx, m.ID, who, cell)
			if err != nil || !out.Ignored {
				t.Fatalf("expected ignored attack at %d after finish, got %+v %v", cell, out, err)
			}
		}
	}
	after, _ := f.store.GetMatch(f.ctx, m.ID)
	if after.Version != final.Version {
		t.Fatalf("expected no write after finish, version %d -> %d", final.Version, after.Version)
	}

	sa, _ := f.leaderboard.Stats(f.ctx, a.UserID)
	sb, _ := f.leaderboard.Stats(f.ctx, b.UserID)
	if sa.Wins != 1 || sa.Losses != 0 || sb.Wins != 0 || sb.Losses != 1 {
		t.Fatalf("expected stats recorded once, got %+v / %+v", sa, sb)
	}
	if sa.WinRate != 100 {
		t.Fatalf("expected 100%% win rate, got %v", sa.WinRate)
	}

	top, _ := f.leaderboard.Top(f.ctx, 0)
	if len(top) != 2 || top[0].UserID != a.UserID || top[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard %+v", top)
	}
}

func TestConcurrentAttacksOnlyOneApplies(t *testing.T) {
	f := newFixture(t)
	m, a, _ := f.pair(t)

	// cells far from every ship so all of them miss
	cells := []int{9, 19, 29, 39, 49, 59, 69, 79}
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for _, c := range cells {
		wg.Add(1)
		go func(cell int) {
			defer wg.Done()
			_, err := f.matches.Attack(f.ctx, m.ID, a.UserID, cell)
			if err == nil {
				mu.Lock()
				applied++
				mu.Unlock()
				return
			}
			if !errors.Is(err, engine.ErrNotYourTurn) {
				t.Errorf("unexpected error %v", err)
			}
		}(c)
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("expected exactly one miss to apply, got %d", applied)
	}
	got, _ := f.store.GetMatch(f.ctx, m.ID)
	if len(got.Shots[a.UserID]) != 1 {
		t.Fatalf("expected one recorded shot, got %v", got.Shots[a.UserID])
	}
}

func TestAttackErrors(t *testing.T) {
	f := newFixture(t)
	m, a, b := f.pair(t)

	if _, err := f.matches.Attack(f.ctx, m.ID, b.UserID, 0); !errors.Is(err, engine.ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if _, err := f.matches.Attack(f.ctx, m.ID, b.UserID, 100); !errors.Is(err, engine.ErrNotYourTurn) {
		t.Fatalf("expected turn checked before the cell, got %v", err)
	}
	if _, err := f.matches.Attack(f.ctx, m.ID, a.UserID, 100); !errors.Is(err, engine.ErrInvalidCell) {
		t.Fatalf("expected ErrInvalidCell, got %v", err)
	}
	for _, id := range []string{"missing", uuid.NewString()} {
		if _, err := f.matches.Attack(f.ctx, id, b.UserID, -1); !errors.Is(err, ErrMatchNotFound) {
			t.Fatalf("expected ErrMatchNotFound for %q, got %v", id, err)
		}
		if _, err := f.matches.Get(f.ctx, id, b.UserID); !errors.Is(err, ErrMatchNotFound) {
			t.Fatalf("expected ErrMatchNotFound for %q, got %v", id, err)
		}
		if err := f.matches.Abandon(f.ctx, id, b.UserID); err != nil {
			t.Fatalf("expected abandon of %q to be a no-op, got %v", id, err)
		}
	}
	if _, err := f.leaderboard.Stats(f.ctx, "not-a-user"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := f.leaderboard.Stats(f.ctx, uuid.NewString()); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := f.matches.Get(f.ctx, m.ID, "stranger"); !errors.Is(err, engine.ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestAbandon(t *testing.T) {
	f := newFixture(t)
	m, a, _ := f.pair(t)

	if err := f.matches.Abandon(f.ctx, m.ID, a.UserID); !errors.Is(err, ErrMatchInProgress) {
		t.Fatalf("expected ErrMatchInProgress, got %v", err)
	}
	f.clock.Advance(3 * time.Hour)
	if err := f.matches.Abandon(f.ctx, m.ID, a.UserID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if _, err := f.store.GetMatch(f.ctx, m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected match deleted, got %v", err)
	}
}

func TestSubscribeSeesAttack(t *testing.T) {
	f := newFixture(t)
	m, a, _ := f.pair(t)

	ch, cancel := f.matches.Subscribe(m.ID)
	defer cancel()

	if _, err := f.matches.Attack(f.ctx, m.ID, a.UserID, 9); err != nil {
		t.Fatalf("attack: %v", err)
	}
	select {
	case got := <-ch:
		if len(got.Shots[a.UserID]) != 1 {
			t.Fatalf("expected snapshot with the shot, got %v", got.Shots)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a snapshot after attack")
	}
}

func TestAuthErrors(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Alice")

	cases := []struct {
		name, user, secret string
		want               error
	}{
		{"weak password", "carol", "123", ErrWeakSecret},
		{"name too short", "ab", "secret1", ErrInvalidName},
		{"name only symbols", "!!!!", "secret1", ErrInvalidName},
		{"name taken case-insensitive", "ALICE", "secret1", ErrNameTaken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.auth.Register(f.ctx, tc.user, tc.secret); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, _, err := f.auth.Login(f.ctx, "alice", "nope-nope"); !errors.Is(err, ErrWrongCredentials) {
		t.Fatalf("expected ErrWrongCredentials, got %v", err)
	}
	if _, _, err := f.auth.Login(f.ctx, "nobody", "whatever"); !errors.Is(err, ErrWrongCredentials) {
		t.Fatalf("expected ErrWrongCredentials for unknown user, got %v", err)
	}
}

func TestLoginSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")

	sess, u, err := f.auth.Login(f.ctx, " Alice ", "secret-alice")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	me, err := f.auth.CurrentUser(f.ctx, sess.Token)
	if err != nil || me.ID != u.ID {
		t.Fatalf("expected current user %s, got %v (%v)", u.ID, me, err)
	}

	f.clock.Advance(2 * time.Hour)
	if _, err := f.auth.CurrentUser(f.ctx, sess.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected expired session to be rejected, got %v", err)
	}

	sess, _, _ = f.auth.Login(f.ctx, "alice", "secret-alice")
	if err := f.auth.Logout(f.ctx, sess.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.auth.CurrentUser(f.ctx, sess.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected logged out session to be rejected, got %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")

	for i := 0; i < 5; i++ {
		if _, _, err := f.auth.Login(f.ctx, "alice", "wrong-pass"); !errors.Is(err, ErrWrongCredentials) {
			t.Fatalf("attempt %d: expected ErrWrongCredentials, got %v", i, err)
		}
	}
	if _, _, err := f.auth.Login(f.ctx, "alice", "secret-alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	f.clock.Advance(2 * time.Minute)
	if _, _, err := f.auth.Login(f.ctx, "alice", "secret-alice"); err != nil {
		t.Fatalf("expected login after window, got %v", err)
	}
}

type fakeUploader struct{ keys []string }

func (u *fakeUploader) UploadFile(ctx context.Context, fh *multipart.FileHeader, key string) (string, error) {
	u.keys = append(u.keys, key)
	return "https://cdn.test/" + key, nil
}

func TestSkins(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "alice")
	skins := NewSkinService(f.store, 4, nil, log.New(io.Discard))

	got, err := skins.Get(f.ctx, a.UserID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 4 || got[3] != models.DefaultSkin {
		t.Fatalf("expected defaults for lengths 1..4, got %v", got)
	}

	got, err = skins.Set(f.ctx, a.UserID, 3, "img/pirate.png")
	if err != nil || got[3] != "img/pirate.png" || got[2] != models.DefaultSkin {
		t.Fatalf("unexpected skins after set: %v (%v)", got, err)
	}
	if _, err := skins.Set(f.ctx, a.UserID, 5, "img/x.png"); !errors.Is(err, ErrInvalidSkin) {
		t.Fatalf("expected ErrInvalidSkin, got %v", err)
	}
	if _, err := skins.Upload(f.ctx, a.UserID, 1, nil); !errors.Is(err, ErrUploadsDisabled) {
		t.Fatalf("expected ErrUploadsDisabled, got %v", err)
	}

	up := &fakeUploader{}
	skins = NewSkinService(f.store, 4, up, log.New(io.Discard))
	png := &multipart.FileHeader{
		Filename: "Boat.PNG",
		Header:   textproto.MIMEHeader{"Content-Type": {"image/png"}},
		Size:     512,
	}
	got, err = skins.Upload(f.ctx, a.UserID, 2, png)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(up.keys) != 1 || !strings.HasSuffix(up.keys[0], ".png") || got[2] != "https://cdn.test/"+up.keys[0] {
		t.Fatalf("unexpected upload result %v keys=%v", got, up.keys)
	}

	txt := &multipart.FileHeader{Filename: "a.txt", Header: textproto.MIMEHeader{"Content-Type": {"text/plain"}}}
	if _, err := skins.Upload(f.ctx, a.UserID, 2, txt); !errors.Is(err, ErrInvalidSkin) {
		t.Fatalf("expected ErrInvalidSkin for non-image, got %v", err)
	}
}

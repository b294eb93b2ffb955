package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"discord-invite-tracker/internal/cache"
	"discord-invite-tracker/internal/database"
	"discord-invite-tracker/internal/invites"
	"discord-invite-tracker/internal/models"
)

type fakeLister struct {
	mu      sync.Mutex
	invites map[string][]models.InviteCode
	err     error
	calls   int
}

func newFakeLister() *fakeLister {
	return &fakeLister{invites: make(map[string][]models.InviteCode)}
}

func (f *fakeLister) GuildInvites(ctx context.Context, guildID string) ([]models.InviteCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.InviteCode(nil), f.invites[guildID]...), nil
}

// use bumps code's live use count by one, as Discord does when someone joins with it.
func (f *fakeLister) use(guildID, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.invites[guildID] {
		if f.invites[guildID][i].Code == code {
			f.invites[guildID][i].Uses++
		}
	}
}

func (f *fakeLister) set(guildID string, codes ...models.InviteCode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites[guildID] = codes
}

// gatedLister holds its first fetch until release is closed, returning the list as it
// was when the fetch started.
type gatedLister struct {
	*fakeLister
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedLister) GuildInvites(ctx context.Context, guildID string) ([]models.InviteCode, error) {
	first := false
	g.once.Do(func() { first = true })
	list, err := g.fakeLister.GuildInvites(ctx, guildID)
	if first {
		close(g.entered)
		<-g.release
	}
	return list, err
}

type failingRecorder struct{}

func (failingRecorder) Record(ctx context.Context, e models.InviteEvent) (models.InviteEvent, error) {
	return e, fmt.Errorf("%w: disk full", models.ErrStoreWrite)
}

type harness struct {
	db       *database.Database
	lister   *fakeLister
	registry *invites.Registry
	invites  *InviteService
	stats    *StatsService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	c, err := cache.NewCache(nil, cache.Config{DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	t.Cleanup(c.Close)

	lister := newFakeLister()
	registry := invites.New(nil, invites.Options{})
	tz := NewTimezones(db, time.UTC, nil)

	return &harness{
		db:       db,
		lister:   lister,
		registry: registry,
		invites:  NewInviteService(registry, db, lister, c, tz, nil),
		stats:    NewStatsService(db, c, registry, tz, nil),
	}
}

func TestThreeJoinsThroughOneCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	h.invites.OnInviteCreate(ctx, models.InviteCode{Code: "abc123", GuildID: "g1", CreatorID: "alice"})
	h.lister.set("g1", models.InviteCode{Code: "abc123", GuildID: "g1", CreatorID: "alice"})

	for i := 0; i < 3; i++ {
		h.lister.use("g1", "abc123")
		ev, err := h.invites.OnMemberJoin(ctx, "g1", fmt.Sprintf("new%d", i), ts.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("OnMemberJoin: %v", err)
		}
		if ev.InviterID != "alice" || ev.Code != "abc123" {
			t.Errorf("join %d credited to %q via %q", i, ev.InviterID, ev.Code)
		}
		if ev.DateBucket != "2024-03-10" {
			t.Errorf("bucket = %s", ev.DateBucket)
		}
	}

	day, err := h.db.QueryDayCount(ctx, "g1", "alice", "2024-03-10")
	if err != nil {
		t.Fatalf("QueryDayCount: %v", err)
	}
	if day != 3 {
		t.Errorf("tally = %d, want 3", day)
	}

	stats := h.stats.GetUserStats(ctx, "g1", "alice")
	if stats.Total != 3 {
		t.Errorf("stats total = %d, want 3", stats.Total)
	}
	if stats.Rank != 1 {
		t.Errorf("rank = %d, want 1", stats.Rank)
	}
	if stats.InvitesCreated != 1 {
		t.Errorf("invites created = %d, want 1", stats.InvitesCreated)
	}

	board := h.stats.GetLeaderboard(ctx, "g1", 10)
	if len(board) != 1 || board[0].UserID != "alice" || board[0].Total != 3 {
		t.Errorf("leaderboard = %+v", board)
	}
}

func TestAmbiguousJoinIsUncredited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.registry.Load("g1", []models.InviteCode{
		{Code: "a", CreatorID: "alice"},
		{Code: "b", CreatorID: "bob"},
	})
	h.lister.set("g1",
		models.InviteCode{Code: "a", CreatorID: "alice", Uses: 1},
		models.InviteCode{Code: "b", CreatorID: "bob", Uses: 1},
	)

	ev, err := h.invites.OnMemberJoin(ctx, "g1", "newbie", time.Now())
	if err != nil {
		t.Fatalf("OnMemberJoin: %v", err)
	}
	if ev.Credited() {
		t.Errorf("ambiguous join credited to %s", ev.InviterID)
	}

	for _, u := range []string{"alice", "bob"} {
		if total, _ := h.db.QueryTotal(ctx, "g1", u); total != 0 {
			t.Errorf("%s total = %d, want 0", u, total)
		}
	}
	if n, _ := h.db.CountUncredited(ctx, "g1"); n != 1 {
		t.Errorf("uncredited = %d, want 1", n)
	}
}

func TestFetchFailureIsUncredited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.registry.Load("g1", []models.InviteCode{{Code: "a", CreatorID: "alice"}})
	h.lister.err = errors.New("403 Forbidden")

	ev, err := h.invites.OnMemberJoin(ctx, "g1", "newbie", time.Now())
	if err != nil {
		t.Fatalf("OnMemberJoin: %v", err)
	}
	if ev.Credited() {
		t.Error("join credited despite fetch failure")
	}
	if h.lister.calls != 1 {
		t.Errorf("lister called %d times, want a single attempt", h.lister.calls)
	}
	// snapshot untouched so the next join still has a baseline
	if len(h.registry.Snapshot("g1")) != 1 {
		t.Error("snapshot dropped after failed fetch")
	}
}

func TestStoreWriteFailureSurfaces(t *testing.T) {
	h := newHarness(t)
	svc := NewInviteService(h.registry, failingRecorder{}, h.lister, nil, NewTimezones(nil, time.UTC, nil), nil)

	ev, err := svc.OnMemberJoin(context.Background(), "g1", "u1", time.Now())
	if !errors.Is(err, models.ErrStoreWrite) {
		t.Fatalf("err = %v, want ErrStoreWrite", err)
	}
	if ev.InvitedID != "u1" {
		t.Errorf("event not returned for retry: %+v", ev)
	}
}

func TestJoinBucketUsesGuildTimezone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.db.SetGuildTimezone(ctx, "g1", "Asia/Tokyo"); err != nil {
		t.Fatalf("SetGuildTimezone: %v", err)
	}

	// 20:00 UTC on the 10th is already the 11th in Tokyo
	ts := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)
	ev, err := h.invites.OnMemberJoin(ctx, "g1", "u1", ts)
	if err != nil {
		t.Fatalf("OnMemberJoin: %v", err)
	}
	if ev.DateBucket != "2024-03-11" {
		t.Errorf("bucket = %s, want 2024-03-11", ev.DateBucket)
	}
}

func TestCacheInvalidatedOnRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.registry.Load("g1", []models.InviteCode{{Code: "a", CreatorID: "alice"}})
	h.lister.set("g1", models.InviteCode{Code: "a", CreatorID: "alice"})

	if got := h.stats.GetUserStats(ctx, "g1", "alice"); got.Total != 0 {
		t.Fatalf("initial total = %d", got.Total)
	}

	h.lister.use("g1", "a")
	if _, err := h.invites.OnMemberJoin(ctx, "g1", "u1", time.Now()); err != nil {
		t.Fatalf("OnMemberJoin: %v", err)
	}

	if got := h.stats.GetUserStats(ctx, "g1", "alice"); got.Total != 1 {
		t.Errorf("stale stats after record: total = %d, want 1", got.Total)
	}
}

func TestDailyActivityWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	h.stats.now = func() time.Time { return now }

	for i, offset := range []int{0, 0, -2, -6, -7} {
		ts := now.AddDate(0, 0, offset)
		ev := models.InviteEvent{
			GuildID:    "g1",
			InvitedID:  fmt.Sprintf("u%d", i),
			InviterID:  "alice",
			Timestamp:  ts,
			DateBucket: models.Bucket(ts, time.UTC),
		}
		if _, err := h.db.Record(ctx, ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	act := h.stats.GetDailyActivity(ctx, "g1", "alice", time.Time{})
	if len(act.Days) != models.DaysPerWeek {
		t.Fatalf("days = %d, want 7", len(act.Days))
	}
	if act.WeekStart != "2024-03-04" || act.Days[6].Date != "2024-03-10" {
		t.Errorf("window %s..%s", act.WeekStart, act.Days[6].Date)
	}
	if act.Days[6].Count != 2 || act.Days[4].Count != 1 || act.Days[0].Count != 1 {
		t.Errorf("days = %+v", act.Days)
	}
	if act.Total != 4 {
		t.Errorf("total = %d, want 4 (the 8th day back is outside the window)", act.Total)
	}

	explicit := h.stats.GetDailyActivity(ctx, "g1", "alice", time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC))
	if explicit.WeekStart != "2024-03-03" || explicit.Total != 3 {
		t.Errorf("explicit window = %s total %d", explicit.WeekStart, explicit.Total)
	}

	weekly := h.stats.GetWeeklyLeaderboard(ctx, "g1", 10)
	if len(weekly) != 1 || weekly[0].Total != 4 {
		t.Errorf("weekly = %+v", weekly)
	}

	guild := h.stats.GetGuildActivity(ctx, "g1", time.Time{})
	if guild.Total != 4 {
		t.Errorf("guild total = %d, want 4", guild.Total)
	}
}

func TestConcurrentJoinsDifferentCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// each guild has its own code; joins in different guilds never interfere
	const guilds = 8
	for i := 0; i < guilds; i++ {
		g := fmt.Sprintf("g%d", i)
		code := models.InviteCode{Code: "c" + g, GuildID: g, CreatorID: "alice"}
		h.invites.OnInviteCreate(ctx, code)
		code.Uses = 1
		h.lister.set(g, code)
	}

	var wg sync.WaitGroup
	for i := 0; i < guilds; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g := fmt.Sprintf("g%d", i)
			ev, err := h.invites.OnMemberJoin(ctx, g, "u", time.Now())
			if err != nil {
				t.Errorf("OnMemberJoin %s: %v", g, err)
				return
			}
			if ev.InviterID != "alice" {
				t.Errorf("%s: join not credited", g)
			}
		}(i)
	}
	wg.Wait()
}

func TestSameGuildJoinsDoNotInterleave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	gated := &gatedLister{fakeLister: h.lister, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewInviteService(h.registry, h.db, gated, nil, NewTimezones(h.db, time.UTC, nil), nil)

	h.registry.Load("g1", []models.InviteCode{
		{Code: "a", GuildID: "g1", CreatorID: "alice"},
		{Code: "b", GuildID: "g1", CreatorID: "bob"},
	})
	h.lister.set("g1",
		models.InviteCode{Code: "a", GuildID: "g1", CreatorID: "alice", Uses: 1},
		models.InviteCode{Code: "b", GuildID: "g1", CreatorID: "bob"},
	)

	type result struct {
		ev  models.InviteEvent
		err error
	}
	first := make(chan result, 1)
	go func() {
		ev, err := svc.OnMemberJoin(ctx, "g1", "first", time.Now())
		first <- result{ev, err}
	}()
	<-gated.entered

	// the first fetch already saw a at 1; the second joiner used b
	h.lister.use("g1", "b")
	second := make(chan result, 1)
	go func() {
		ev, err := svc.OnMemberJoin(ctx, "g1", "second", time.Now())
		second <- result{ev, err}
	}()

	select {
	case <-second:
		t.Fatal("second join finished while the first was still fetching")
	case <-time.After(50 * time.Millisecond):
	}
	close(gated.release)

	r1, r2 := <-first, <-second
	if r1.err != nil || r2.err != nil {
		t.Fatalf("OnMemberJoin: %v, %v", r1.err, r2.err)
	}
	if r1.ev.InviterID != "alice" {
		t.Errorf("first join credited to %q, want alice", r1.ev.InviterID)
	}
	if r2.ev.InviterID != "bob" {
		t.Errorf("second join credited to %q, want bob", r2.ev.InviterID)
	}

	// nothing moved since, so a vanity join stays uncredited
	ev, err := svc.OnMemberJoin(ctx, "g1", "third", time.Now())
	if err != nil {
		t.Fatalf("OnMemberJoin: %v", err)
	}
	if ev.Credited() {
		t.Errorf("third join credited to %q via %q", ev.InviterID, ev.Code)
	}

	for user, want := range map[string]int64{"alice": 1, "bob": 1} {
		got, err := h.db.QueryTotal(ctx, "g1", user)
		if err != nil {
			t.Fatalf("QueryTotal: %v", err)
		}
		if got != want {
			t.Errorf("%s total = %d, want %d", user, got, want)
		}
	}
}

func TestLoadGuild(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.lister.set("g1",
		models.InviteCode{Code: "a", CreatorID: "alice", Uses: 4},
		models.InviteCode{Code: "b", CreatorID: "bob", Uses: 0},
	)
	n, err := h.invites.LoadGuild(ctx, "g1")
	if err != nil {
		t.Fatalf("LoadGuild: %v", err)
	}
	if n != 2 || len(h.registry.Snapshot("g1")) != 2 {
		t.Errorf("loaded %d codes", n)
	}

	h.lister.err = errors.New("boom")
	if _, err := h.invites.LoadGuild(ctx, "g1"); !errors.Is(err, models.ErrExternalFetch) {
		t.Errorf("err = %v, want ErrExternalFetch", err)
	}

	h.invites.ForgetGuild("g1")
	if h.registry.Guilds() != 0 {
		t.Error("guild not forgotten")
	}
}

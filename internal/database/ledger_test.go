package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"discord-invite-tracker/internal/models"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func event(guild, invited, inviter, code string, ts time.Time) models.InviteEvent {
	return models.InviteEvent{
		GuildID:    guild,
		InvitedID:  invited,
		InviterID:  inviter,
		Code:       code,
		Timestamp:  ts,
		DateBucket: models.Bucket(ts, time.UTC),
	}
}

func TestRecordAssignsIDAndTallies(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		e, err := db.Record(ctx, event("g1", fmt.Sprintf("u%d", i), "alice", "abc123", ts.Add(time.Duration(i)*time.Minute)))
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if e.ID == "" {
			t.Error("expected generated event id")
		}
	}

	total, err := db.QueryTotal(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("QueryTotal: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}

	day, err := db.QueryDayCount(ctx, "g1", "alice", "2024-03-10")
	if err != nil {
		t.Fatalf("QueryDayCount: %v", err)
	}
	if day != 3 {
		t.Errorf("day count = %d, want 3", day)
	}

	if events := countEvents(t, db, "g1", "alice"); events != total {
		t.Errorf("events %d != tally sum %d", events, total)
	}
}

func TestRecordUncreditedDoesNotTally(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	if _, err := db.Record(ctx, event("g1", "u1", "", "", ts)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	n, err := db.CountUncredited(ctx, "g1")
	if err != nil {
		t.Fatalf("CountUncredited: %v", err)
	}
	if n != 1 {
		t.Errorf("uncredited = %d, want 1", n)
	}

	board, err := db.QueryLeaderboard(ctx, "g1", 10)
	if err != nil {
		t.Fatalf("QueryLeaderboard: %v", err)
	}
	if len(board) != 0 {
		t.Errorf("leaderboard should be empty, got %v", board)
	}
}

func TestRecordConcurrentSameKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := db.Record(ctx, event("g1", fmt.Sprintf("u%d", i), "alice", "abc123", ts))
			if err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Record: %v", err)
	}

	total, err := db.QueryTotal(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("QueryTotal: %v", err)
	}
	if total != n {
		t.Errorf("total = %d, want %d", total, n)
	}
	if db.locks.size() != 0 {
		t.Errorf("keyed locks leaked: %d", db.locks.size())
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	record := func(inviter string, ts time.Time) {
		t.Helper()
		if _, err := db.Record(ctx, event("g1", "x-"+inviter+ts.String(), inviter, "c", ts)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	// carol and bob tie on 2; bob got there first.
	record("alice", base)
	record("alice", base.Add(time.Hour))
	record("alice", base.Add(2*time.Hour))
	record("carol", base.Add(30*time.Minute))
	record("bob", base.Add(10*time.Minute))
	record("bob", base.Add(40*time.Minute))
	record("carol", base.Add(50*time.Minute))
	// dave and erin tie on total and first invite time; user id decides.
	record("erin", base.Add(5*time.Hour))
	record("dave", base.Add(5*time.Hour))

	board, err := db.QueryLeaderboard(ctx, "g1", 0)
	if err != nil {
		t.Fatalf("QueryLeaderboard: %v", err)
	}

	want := []string{"alice", "bob", "carol", "dave", "erin"}
	if len(board) != len(want) {
		t.Fatalf("got %d entries, want %d", len(board), len(want))
	}
	for i, id := range want {
		if board[i].UserID != id {
			t.Errorf("rank %d = %s, want %s", i+1, board[i].UserID, id)
		}
		if board[i].Rank != i+1 {
			t.Errorf("entry %s rank = %d, want %d", id, board[i].Rank, i+1)
		}
	}
	for i := 1; i < len(board); i++ {
		if board[i].Total > board[i-1].Total {
			t.Errorf("not sorted by total at %d", i)
		}
	}

	again, err := db.QueryLeaderboard(ctx, "g1", 0)
	if err != nil {
		t.Fatalf("QueryLeaderboard: %v", err)
	}
	for i := range board {
		if again[i].UserID != board[i].UserID {
			t.Errorf("leaderboard unstable at %d", i)
		}
	}

	top, err := db.QueryLeaderboard(ctx, "g1", 2)
	if err != nil {
		t.Fatalf("QueryLeaderboard: %v", err)
	}
	if len(top) != 2 {
		t.Errorf("limit ignored: %d entries", len(top))
	}

	rank, err := db.QueryRank(ctx, "g1", "carol")
	if err != nil {
		t.Fatalf("QueryRank: %v", err)
	}
	if rank != 3 {
		t.Errorf("carol rank = %d, want 3", rank)
	}
	if rank, _ := db.QueryRank(ctx, "g1", "nobody"); rank != 0 {
		t.Errorf("unranked user rank = %d, want 0", rank)
	}
}

func TestQueryDailyWindow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	counts := map[int]int{0: 2, 3: 1, 6: 4, 7: 5}
	n := 0
	for offset, c := range counts {
		for i := 0; i < c; i++ {
			n++
			ts := start.AddDate(0, 0, offset).Add(time.Hour)
			if _, err := db.Record(ctx, event("g1", fmt.Sprintf("u%d", n), "alice", "c", ts)); err != nil {
				t.Fatalf("Record: %v", err)
			}
		}
	}

	days, err := db.QueryDaily(ctx, "g1", "alice", start)
	if err != nil {
		t.Fatalf("QueryDaily: %v", err)
	}
	if len(days) != models.DaysPerWeek {
		t.Fatalf("got %d days, want 7", len(days))
	}
	if days[0].Date != "2024-03-04" || days[6].Date != "2024-03-10" {
		t.Errorf("window = %s..%s", days[0].Date, days[6].Date)
	}

	var sum int64
	for i, d := range days {
		sum += d.Count
		if d.Count != int64(counts[i]) {
			t.Errorf("day %d count = %d, want %d", i, d.Count, counts[i])
		}
	}
	if sum != 7 {
		t.Errorf("window sum = %d, want 7", sum)
	}

	empty, err := db.QueryDaily(ctx, "g1", "nobody", start)
	if err != nil {
		t.Fatalf("QueryDaily: %v", err)
	}
	for _, d := range empty {
		if d.Count != 0 {
			t.Errorf("expected zero-filled day, got %+v", d)
		}
	}

	guild, err := db.QueryGuildDaily(ctx, "g1", start)
	if err != nil {
		t.Fatalf("QueryGuildDaily: %v", err)
	}
	if guild[6].Count != 4 {
		t.Errorf("guild day 6 = %d, want 4", guild[6].Count)
	}

	weekly, err := db.QueryLeaderboardRange(ctx, "g1", "2024-03-04", "2024-03-10", 10)
	if err != nil {
		t.Fatalf("QueryLeaderboardRange: %v", err)
	}
	if len(weekly) != 1 || weekly[0].Total != 7 {
		t.Errorf("weekly = %+v, want alice with 7", weekly)
	}
}

func TestGuildSettings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s, err := db.GetGuildSettings(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGuildSettings: %v", err)
	}
	if s.Prefix != "!" || s.Timezone != "" {
		t.Errorf("defaults = %+v", s)
	}

	if err := db.SetGuildPrefix(ctx, "g1", "?"); err != nil {
		t.Fatalf("SetGuildPrefix: %v", err)
	}
	if err := db.SetGuildTimezone(ctx, "g1", "Europe/Berlin"); err != nil {
		t.Fatalf("SetGuildTimezone: %v", err)
	}
	if err := db.SetGuildTimezone(ctx, "g1", "Mars/Olympus"); !errors.Is(err, models.ErrInvalidTimezone) {
		t.Errorf("err = %v, want ErrInvalidTimezone", err)
	}

	s, _ = db.GetGuildSettings(ctx, "g1")
	if s.Prefix != "?" || s.Timezone != "Europe/Berlin" {
		t.Errorf("settings = %+v", s)
	}
	if p, _ := db.GetGuildPrefix(ctx, "g1"); p != "?" {
		t.Errorf("prefix = %q", p)
	}
}

func TestPurgeGuild(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ts := time.Now()

	db.Record(ctx, event("g1", "u1", "alice", "c", ts))
	db.Record(ctx, event("g2", "u1", "alice", "c", ts))

	if err := db.PurgeGuild(ctx, "g1"); err != nil {
		t.Fatalf("PurgeGuild: %v", err)
	}
	if total, _ := db.QueryTotal(ctx, "g1", "alice"); total != 0 {
		t.Errorf("g1 total = %d after purge", total)
	}
	if total, _ := db.QueryTotal(ctx, "g2", "alice"); total != 1 {
		t.Errorf("g2 total = %d, want 1", total)
	}
}

func TestRebind(t *testing.T) {
	got := Rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	want := "SELECT * FROM t WHERE a = $1 AND b = $2"
	if got != want {
		t.Errorf("Rebind = %q, want %q", got, want)
	}
}

func TestWithTxRollback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := WithTx(ctx, db.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO guild_settings (guild_id, prefix) VALUES ('g1', '$')"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	s, _ := db.GetGuildSettings(ctx, "g1")
	if s.Prefix != "!" {
		t.Errorf("rolled back insert is visible: %+v", s)
	}
}

func countEvents(t *testing.T, db *Database, guildID, inviterID string) int64 {
	t.Helper()
	var n int64
	err := db.db.QueryRow(db.rebind(
		"SELECT COUNT(*) FROM invite_events WHERE guild_id = ? AND inviter_id = ?"),
		guildID, inviterID).Scan(&n)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

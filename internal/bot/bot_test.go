package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func TestInviteCode(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	inv := &discordgo.Invite{
		Code:      "abc123",
		Guild:     &discordgo.Guild{ID: "g-embedded"},
		Inviter:   &discordgo.User{ID: "alice"},
		CreatedAt: created,
		MaxAge:    3600,
		Uses:      4,
		MaxUses:   10,
	}

	c := inviteCode("g1", inv)
	if c.GuildID != "g1" || c.Code != "abc123" || c.CreatorID != "alice" {
		t.Fatalf("unexpected code %+v", c)
	}
	if c.Uses != 4 || c.MaxUses != 10 {
		t.Errorf("uses = %d/%d", c.Uses, c.MaxUses)
	}
	if want := created.Add(time.Hour); !c.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", c.ExpiresAt, want)
	}

	c = inviteCode("", &discordgo.Invite{Code: "vanity", Guild: &discordgo.Guild{ID: "g2"}})
	if c.GuildID != "g2" || c.CreatorID != "" || !c.ExpiresAt.IsZero() {
		t.Errorf("vanity invite converted to %+v", c)
	}
}

func TestNextRun(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2024, 3, 1, 8, 0, 0, 0, tokyo),
			want: time.Date(2024, 3, 1, 9, 30, 0, 0, tokyo),
		},
		{
			name: "exactly now rolls over",
			now:  time.Date(2024, 3, 1, 9, 30, 0, 0, tokyo),
			want: time.Date(2024, 3, 2, 9, 30, 0, 0, tokyo),
		},
		{
			name: "month boundary",
			now:  time.Date(2024, 2, 29, 23, 0, 0, 0, tokyo),
			want: time.Date(2024, 3, 1, 9, 30, 0, 0, tokyo),
		},
		{
			name: "utc input",
			now:  time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC), // 10:00 in Tokyo
			want: time.Date(2024, 3, 2, 9, 30, 0, 0, tokyo),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextRun(tt.now, 9, 30, tokyo)
			if !got.Equal(tt.want) {
				t.Errorf("nextRun = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		content, prefix string
		word            string
		args            int
		ok              bool
	}{
		{"!lb", "!", "lb", 0, true},
		{"!Stats <@123>", "!", "stats", 1, true},
		{"inv.daily <@1> 2024-03-01", "inv.", "daily", 2, true},
		{"!", "!", "", 0, false},
		{"hello !lb", "!", "", 0, false},
		{"?lb", "!", "", 0, false},
	}

	for _, tt := range tests {
		word, args, ok := splitCommand(tt.content, tt.prefix)
		if word != tt.word || len(args) != tt.args || ok != tt.ok {
			t.Errorf("splitCommand(%q, %q) = %q, %v, %v", tt.content, tt.prefix, word, args, ok)
		}
	}
}

func TestRetry(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("retry: err=%v calls=%d", err, calls)
	}

	calls = 0
	boom := errors.New("boom")
	err = retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 3 {
		t.Fatalf("retry exhausted: err=%v calls=%d", err, calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls = 0
	err = retry(ctx, 3, time.Hour, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("retry cancelled: err=%v calls=%d", err, calls)
	}
}

func TestPerformanceMonitor(t *testing.T) {
	pm := NewPerformanceMonitor()
	pm.TrackCommand(3 * time.Millisecond)
	pm.TrackREST(120 * time.Millisecond)
	pm.TrackEvent(time.Millisecond)
	pm.TrackEvent(time.Millisecond)

	if got := pm.CommandLatency(); got != 3 {
		t.Errorf("CommandLatency = %v", got)
	}
	if got := pm.RESTLatency(); got != 120 {
		t.Errorf("RESTLatency = %v", got)
	}
	if got := pm.EventCount(); got != 2 {
		t.Errorf("EventCount = %d", got)
	}
	if len(pm.Fields()) == 0 {
		t.Error("no fields")
	}
}

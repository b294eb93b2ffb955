package utils

import (
	"bytes"
	"fmt"
	"image/png"
	"net/http"
	"strings"
	"testing"

	"discord-invite-tracker/internal/models"

	"github.com/bwmarrin/discordgo"
)

func TestRankLabel(t *testing.T) {
	tests := map[int]string{1: "🥇", 2: "🥈", 3: "🥉", 4: "`4.`", 12: "`12.`"}
	for rank, want := range tests {
		if got := RankLabel(rank); got != want {
			t.Errorf("RankLabel(%d) = %q, want %q", rank, got, want)
		}
	}
}

func TestUserStatsEmbed(t *testing.T) {
	field := func(e *discordgo.MessageEmbed, name string) (string, bool) {
		for _, f := range e.Fields {
			if f.Name == name {
				return f.Value, true
			}
		}
		return "", false
	}

	user := &discordgo.User{ID: "42", Username: "alice"}
	e := UserStatsEmbed(user, models.UserStats{UserID: "42", Total: 3, Rank: 2, InvitesCreated: 4, UncreditedJoins: 7})
	if v, _ := field(e, "Success Rate"); v != "75.0%" {
		t.Errorf("success rate = %q, want 75.0%%", v)
	}
	if v, _ := field(e, "Unattributed Server Joins"); v != "7" {
		t.Errorf("unattributed joins = %q, want 7", v)
	}
	if v, _ := field(e, "Rank"); v != "🥈" {
		t.Errorf("rank = %q", v)
	}

	bare := UserStatsEmbed(user, models.UserStats{UserID: "42"})
	if _, ok := field(bare, "Success Rate"); ok {
		t.Error("success rate shown without any invite links")
	}
	if _, ok := field(bare, "Unattributed Server Joins"); ok {
		t.Error("unattributed joins shown when there are none")
	}
	if v, _ := field(bare, "Rank"); v != "Unranked" {
		t.Errorf("rank = %q, want Unranked", v)
	}
}

func TestLeaderboardEmbed(t *testing.T) {
	empty := LeaderboardEmbed("guild", nil)
	if !strings.Contains(empty.Description, "No invite statistics") {
		t.Errorf("empty description = %q", empty.Description)
	}

	e := LeaderboardEmbed("guild", []models.LeaderboardEntry{
		{Rank: 1, UserID: "1", Total: 5},
		{Rank: 2, UserID: "2", Total: 1},
	})
	if !strings.Contains(e.Description, "🥇 <@1> - **5 invites**") {
		t.Errorf("missing first line: %q", e.Description)
	}
	if !strings.Contains(e.Description, "**1 invite**") {
		t.Errorf("singular not used: %q", e.Description)
	}
}

func TestDailyActivityEmbed(t *testing.T) {
	act := models.DailyActivity{
		UserID: "1",
		Days:   []models.DayCount{{Date: "2024-03-04", Count: 2}, {Date: "2024-03-05"}},
		Total:  2,
	}
	e := DailyActivityEmbed(&discordgo.User{ID: "1", Username: "alice"}, act, "chart.png")
	if e.Image == nil || e.Image.URL != "attachment://chart.png" {
		t.Errorf("image = %+v", e.Image)
	}
	if !strings.Contains(e.Description, "Mon Mar 04") {
		t.Errorf("description = %q", e.Description)
	}
	if !strings.Contains(e.Title, "alice") {
		t.Errorf("title = %q", e.Title)
	}
}

func TestRenderActivityChart(t *testing.T) {
	days := make([]models.DayCount, models.DaysPerWeek)
	for i := range days {
		days[i] = models.DayCount{Date: fmt.Sprintf("2024-03-%02d", i+4), Count: int64(i)}
	}

	raw, err := RenderActivityChart("alice", days)
	if err != nil {
		t.Fatalf("RenderActivityChart: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != chartWidth || b.Dy() != chartHeight {
		t.Errorf("size = %v", b)
	}

	if _, err := RenderActivityChart("empty", nil); err != nil {
		t.Errorf("empty chart: %v", err)
	}
}

func TestParseDiscordError(t *testing.T) {
	code, msg, ok := ParseDiscordError([]byte(`{"message": "Missing Permissions", "code": 50013}`))
	if !ok || code != CodeMissingPermissions || msg != "Missing Permissions" {
		t.Errorf("got %d %q %v", code, msg, ok)
	}

	if _, _, ok := ParseDiscordError([]byte("<html>bad gateway</html>")); ok {
		t.Error("non-JSON body should not parse")
	}
	if _, _, ok := ParseDiscordError([]byte(`{"retry_after": 1.5}`)); ok {
		t.Error("body without code should not parse")
	}
}

func TestIsPermissionError(t *testing.T) {
	err := &discordgo.RESTError{
		Response:     &http.Response{Status: "403 Forbidden", StatusCode: http.StatusForbidden},
		ResponseBody: []byte(`{"message": "Missing Access", "code": 50001}`),
	}
	if !IsPermissionError(err) {
		t.Error("50001 should be a permission error")
	}
	wrapped := fmt.Errorf("fetch invites: %w", err)
	if !IsPermissionError(wrapped) {
		t.Error("wrapped REST error not unwrapped")
	}
	if IsPermissionError(fmt.Errorf("timeout")) {
		t.Error("plain error is not a permission error")
	}
}

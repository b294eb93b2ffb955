package models

import (
	"errors"
	"time"
)

var (
	// ErrAttributionAmbiguous means zero or several invite codes moved since the last observation.
	ErrAttributionAmbiguous = errors.New("attribution ambiguous")
	// ErrExternalFetch means the live invite list could not be fetched from Discord.
	ErrExternalFetch = errors.New("invite list fetch failed")
	// ErrStoreWrite is returned when an InviteEvent could not be persisted.
	ErrStoreWrite = errors.New("ledger write failed")
	// ErrInvalidTimezone is returned for names time.LoadLocation rejects.
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// DateLayout is the calendar-day bucket format used for tallies.
const DateLayout = "2006-01-02"

// DaysPerWeek is the fixed width of a daily activity window.
const DaysPerWeek = 7

type InviteCode struct {
	Code      string    `json:"code"`
	GuildID   string    `json:"guild_id"`
	CreatorID string    `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
	Uses      int       `json:"uses"` // use count at last observation
	MaxUses   int       `json:"max_uses"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// SingleUseExhausted reports whether one more use would have consumed the invite.
func (c InviteCode) SingleUseExhausted() bool {
	return c.MaxUses > 0 && c.Uses+1 >= c.MaxUses
}

// InviteEvent is one member join. InviterID is empty when the join could not be attributed.
type InviteEvent struct {
	ID         string    `json:"id"`
	GuildID    string    `json:"guild_id"`
	InvitedID  string    `json:"invited_id"`
	InviterID  string    `json:"inviter_id,omitempty"`
	Code       string    `json:"code,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DateBucket string    `json:"date_bucket"`
}

func (e InviteEvent) Credited() bool {
	return e.InviterID != ""
}

type DailyTally struct {
	GuildID       string    `json:"guild_id"`
	InviterID     string    `json:"inviter_id"`
	DateBucket    string    `json:"date_bucket"`
	Count         int64     `json:"count"`
	FirstInviteAt time.Time `json:"first_invite_at"`
}

type GuildSettings struct {
	GuildID  string `json:"guild_id"`
	Prefix   string `json:"prefix"`
	Timezone string `json:"timezone"`
}

type LeaderboardEntry struct {
	Rank          int       `json:"rank"`
	UserID        string    `json:"user_id"`
	Total         int64     `json:"total"`
	FirstInviteAt time.Time `json:"first_invite_at"`
}

type UserStats struct {
	GuildID         string `json:"guild_id"`
	UserID          string `json:"user_id"`
	Total           int64  `json:"total"`
	Rank            int    `json:"rank"` // 0 when the user has no credited invites
	Today           int64  `json:"today"`
	InvitesCreated  int    `json:"invites_created"`
	UncreditedJoins int64  `json:"uncredited_joins"`
}

type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type DailyActivity struct {
	GuildID   string     `json:"guild_id"`
	UserID    string     `json:"user_id"`
	WeekStart string     `json:"week_start"`
	Days      []DayCount `json:"days"`
	Total     int64      `json:"total"`
}

// Bucket returns the calendar day of t in loc.
func Bucket(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// WeekDates returns the seven consecutive buckets starting at start.
func WeekDates(start time.Time) []string {
	dates := make([]string, DaysPerWeek)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i).Format(DateLayout)
	}
	return dates
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

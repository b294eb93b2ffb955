package services

import (
	"context"
	"strconv"
	"time"

	"discord-invite-tracker/internal/cache"
	"discord-invite-tracker/internal/invites"
	"discord-invite-tracker/internal/models"

	"go.uber.org/zap"
)

type StatsStore interface {
	QueryLeaderboard(ctx context.Context, guildID string, limit int) ([]models.LeaderboardEntry, error)
	QueryLeaderboardRange(ctx context.Context, guildID, from, to string, limit int) ([]models.LeaderboardEntry, error)
	QueryTotal(ctx context.Context, guildID, userID string) (int64, error)
	QueryRank(ctx context.Context, guildID, userID string) (int, error)
	QueryDayCount(ctx context.Context, guildID, userID, bucket string) (int64, error)
	QueryDaily(ctx context.Context, guildID, userID string, weekStart time.Time) ([]models.DayCount, error)
	QueryGuildDaily(ctx context.Context, guildID string, weekStart time.Time) ([]models.DayCount, error)
	CountUncredited(ctx context.Context, guildID string) (int64, error)
}

// StatsService answers read-only questions about the ledger. Read failures are logged
// and come back as empty results.
type StatsService struct {
	store     StatsStore
	cache     *cache.Cache
	registry  *invites.Registry
	timezones *Timezones
	log       *zap.Logger
	now       func() time.Time
}

func NewStatsService(store StatsStore, c *cache.Cache, registry *invites.Registry, tz *Timezones, log *zap.Logger) *StatsService {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatsService{
		store:     store,
		cache:     c,
		registry:  registry,
		timezones: tz,
		log:       log.Named("stats"),
		now:       time.Now,
	}
}

// cached routes a read through the cache when one is configured.
func (s *StatsService) cached(ctx context.Context, guildID string, dest interface{}, load func(ctx context.Context) (interface{}, error), parts ...string) error {
	if s.cache != nil {
		return s.cache.GetJSON(ctx, s.cache.Key(guildID, parts...), dest, load)
	}

	v, err := load(ctx)
	if err != nil {
		return err
	}
	return assign(dest, v)
}

func (s *StatsService) GetLeaderboard(ctx context.Context, guildID string, limit int) []models.LeaderboardEntry {
	var entries []models.LeaderboardEntry
	err := s.cached(ctx, guildID, &entries, func(ctx context.Context) (interface{}, error) {
		return s.store.QueryLeaderboard(ctx, guildID, limit)
	}, "lb", strconv.Itoa(limit))
	if err != nil {
		s.log.Error("leaderboard query failed", zap.String("guild_id", guildID), zap.Error(err))
		return nil
	}
	return entries
}

// GetWeeklyLeaderboard ranks inviters over the seven days ending today.
func (s *StatsService) GetWeeklyLeaderboard(ctx context.Context, guildID string, limit int) []models.LeaderboardEntry {
	start, today := s.window(ctx, guildID)
	from := start.Format(models.DateLayout)
	to := today.Format(models.DateLayout)

	var entries []models.LeaderboardEntry
	err := s.cached(ctx, guildID, &entries, func(ctx context.Context) (interface{}, error) {
		return s.store.QueryLeaderboardRange(ctx, guildID, from, to, limit)
	}, "weekly", from, strconv.Itoa(limit))
	if err != nil {
		s.log.Error("weekly leaderboard query failed", zap.String("guild_id", guildID), zap.Error(err))
		return nil
	}
	return entries
}

func (s *StatsService) GetUserStats(ctx context.Context, guildID, userID string) models.UserStats {
	loc := s.timezones.Location(ctx, guildID)
	today := models.Bucket(s.now(), loc)

	var stats models.UserStats
	err := s.cached(ctx, guildID, &stats, func(ctx context.Context) (interface{}, error) {
		st := models.UserStats{GuildID: guildID, UserID: userID}
		var err error
		if st.Total, err = s.store.QueryTotal(ctx, guildID, userID); err != nil {
			return nil, err
		}
		if st.Total > 0 {
			if st.Rank, err = s.store.QueryRank(ctx, guildID, userID); err != nil {
				return nil, err
			}
		}
		if st.Today, err = s.store.QueryDayCount(ctx, guildID, userID, today); err != nil {
			return nil, err
		}
		if st.UncreditedJoins, err = s.store.CountUncredited(ctx, guildID); err != nil {
			return nil, err
		}
		return st, nil
	}, "user", userID, today)
	if err != nil {
		s.log.Error("user stats query failed",
			zap.String("guild_id", guildID),
			zap.String("user_id", userID),
			zap.Error(err))
		stats = models.UserStats{GuildID: guildID, UserID: userID}
	}

	// live registry state, never cached
	if s.registry != nil {
		stats.InvitesCreated = s.registry.CountByCreator(guildID, userID)
	}
	return stats
}

// GetDailyActivity returns seven day counts starting at weekStart. A zero weekStart means
// the seven days ending today in the guild's timezone.
func (s *StatsService) GetDailyActivity(ctx context.Context, guildID, userID string, weekStart time.Time) models.DailyActivity {
	start := s.startOf(ctx, guildID, weekStart)
	activity := models.DailyActivity{
		GuildID:   guildID,
		UserID:    userID,
		WeekStart: start.Format(models.DateLayout),
	}

	var days []models.DayCount
	err := s.cached(ctx, guildID, &days, func(ctx context.Context) (interface{}, error) {
		return s.store.QueryDaily(ctx, guildID, userID, start)
	}, "daily", userID, activity.WeekStart)
	if err != nil {
		s.log.Error("daily activity query failed",
			zap.String("guild_id", guildID),
			zap.String("user_id", userID),
			zap.Error(err))
		days = zeroWeek(start)
	}

	activity.Days = days
	for _, d := range days {
		activity.Total += d.Count
	}
	return activity
}

// GetGuildActivity sums every inviter per day over the same window as GetDailyActivity.
func (s *StatsService) GetGuildActivity(ctx context.Context, guildID string, weekStart time.Time) models.DailyActivity {
	start := s.startOf(ctx, guildID, weekStart)
	activity := models.DailyActivity{GuildID: guildID, WeekStart: start.Format(models.DateLayout)}

	var days []models.DayCount
	err := s.cached(ctx, guildID, &days, func(ctx context.Context) (interface{}, error) {
		return s.store.QueryGuildDaily(ctx, guildID, start)
	}, "guild-daily", activity.WeekStart)
	if err != nil {
		s.log.Error("guild activity query failed", zap.String("guild_id", guildID), zap.Error(err))
		days = zeroWeek(start)
	}

	activity.Days = days
	for _, d := range days {
		activity.Total += d.Count
	}
	return activity
}

func (s *StatsService) startOf(ctx context.Context, guildID string, weekStart time.Time) time.Time {
	loc := s.timezones.Location(ctx, guildID)
	if weekStart.IsZero() {
		start, _ := s.window(ctx, guildID)
		return start
	}
	return models.StartOfDay(weekStart, loc)
}

// window returns midnight six days ago and midnight today in the guild's timezone.
func (s *StatsService) window(ctx context.Context, guildID string) (time.Time, time.Time) {
	today := models.StartOfDay(s.now(), s.timezones.Location(ctx, guildID))
	return today.AddDate(0, 0, -(models.DaysPerWeek - 1)), today
}

func zeroWeek(start time.Time) []models.DayCount {
	dates := models.WeekDates(start)
	days := make([]models.DayCount, len(dates))
	for i, d := range dates {
		days[i] = models.DayCount{Date: d}
	}
	return days
}

// assign copies a loader result into dest without a cache round-trip.
func assign(dest, v interface{}) error {
	switch d := dest.(type) {
	case *[]models.LeaderboardEntry:
		*d = v.([]models.LeaderboardEntry)
	case *models.UserStats:
		*d = v.(models.UserStats)
	case *[]models.DayCount:
		*d = v.([]models.DayCount)
	}
	return nil
}

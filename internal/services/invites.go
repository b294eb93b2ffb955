package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"discord-invite-tracker/internal/invites"
	"discord-invite-tracker/internal/metrics"
	"discord-invite-tracker/internal/models"

	"go.uber.org/zap"
)

// InviteLister fetches a guild's live invite list from Discord.
type InviteLister interface {
	GuildInvites(ctx context.Context, guildID string) ([]models.InviteCode, error)
}

type EventRecorder interface {
	Record(ctx context.Context, e models.InviteEvent) (models.InviteEvent, error)
}

// Invalidator drops cached reads for a guild after its ledger changed.
type Invalidator interface {
	InvalidateGuild(guildID string)
}

// InviteService attributes member joins to invite codes and records them in the ledger.
type InviteService struct {
	registry  *invites.Registry
	ledger    EventRecorder
	lister    InviteLister
	cache     Invalidator
	timezones *Timezones
	log       *zap.Logger

	// guild ID -> *sync.Mutex; serializes fetch, delta and record within one guild
	guildLocks sync.Map
}

func NewInviteService(registry *invites.Registry, ledger EventRecorder, lister InviteLister, cache Invalidator, tz *Timezones, log *zap.Logger) *InviteService {
	if log == nil {
		log = zap.NewNop()
	}
	return &InviteService{
		registry:  registry,
		ledger:    ledger,
		lister:    lister,
		cache:     cache,
		timezones: tz,
		log:       log.Named("attributor"),
	}
}

// lockGuild holds the guild's attribution lock until the returned func is called.
func (s *InviteService) lockGuild(guildID string) func() {
	m, _ := s.guildLocks.LoadOrStore(guildID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *InviteService) OnInviteCreate(ctx context.Context, code models.InviteCode) {
	metrics.InviteEventsTotal.WithLabelValues("create").Inc()
	s.registry.Upsert(code)
	s.log.Debug("invite created",
		zap.String("guild_id", code.GuildID),
		zap.String("code", code.Code),
		zap.String("creator_id", code.CreatorID))
}

func (s *InviteService) OnInviteDelete(ctx context.Context, guildID, code string) {
	metrics.InviteEventsTotal.WithLabelValues("delete").Inc()
	s.registry.Remove(guildID, code)
}

// OnMemberJoin fetches the live invite list once, finds the code that moved and records
// the join. Fetch failures and ambiguous deltas produce an uncredited event, never an error.
// The returned error is only a ledger write failure; the event is returned either way so
// the caller can retry it with RecordEvent. Joins in the same guild are handled one at a
// time so a slow fetch cannot overwrite the counts a later join already observed.
func (s *InviteService) OnMemberJoin(ctx context.Context, guildID, userID string, ts time.Time) (models.InviteEvent, error) {
	unlock := s.lockGuild(guildID)
	defer unlock()

	if ts.IsZero() {
		ts = time.Now()
	}
	ev := models.InviteEvent{
		GuildID:    guildID,
		InvitedID:  userID,
		Timestamp:  ts,
		DateBucket: models.Bucket(ts, s.timezones.Location(ctx, guildID)),
	}

	code, err := s.attribute(ctx, guildID)
	switch {
	case err == nil:
		ev.Code = code.Code
		ev.InviterID = code.CreatorID
	case errors.Is(err, models.ErrExternalFetch):
		metrics.InviteFetchErrors.Inc()
		s.log.Warn("invite fetch failed, recording uncredited join",
			zap.String("guild_id", guildID),
			zap.String("user_id", userID),
			zap.Error(err))
	default:
		s.log.Info("join not attributable",
			zap.String("guild_id", guildID),
			zap.String("user_id", userID))
	}

	return s.RecordEvent(ctx, ev)
}

func (s *InviteService) attribute(ctx context.Context, guildID string) (models.InviteCode, error) {
	live, err := s.lister.GuildInvites(ctx, guildID)
	if err != nil {
		if errors.Is(err, models.ErrExternalFetch) {
			return models.InviteCode{}, err
		}
		return models.InviteCode{}, fmt.Errorf("%w: %w", models.ErrExternalFetch, err)
	}

	code, ok := s.registry.FindByUseDelta(guildID, live)
	if !ok {
		return models.InviteCode{}, models.ErrAttributionAmbiguous
	}
	return code, nil
}

// RecordEvent writes ev to the ledger. Retrying with the returned event is safe: it keeps
// its ID, so a write that did commit is rejected rather than counted twice.
func (s *InviteService) RecordEvent(ctx context.Context, ev models.InviteEvent) (models.InviteEvent, error) {
	stored, err := s.ledger.Record(ctx, ev)
	if err != nil {
		metrics.JoinsTotal.WithLabelValues("failed").Inc()
		return stored, err
	}

	if s.cache != nil {
		s.cache.InvalidateGuild(ev.GuildID)
	}

	if stored.Credited() {
		metrics.JoinsTotal.WithLabelValues("credited").Inc()
		s.log.Info("join credited",
			zap.String("guild_id", stored.GuildID),
			zap.String("user_id", stored.InvitedID),
			zap.String("inviter_id", stored.InviterID),
			zap.String("code", stored.Code))
	} else {
		metrics.JoinsTotal.WithLabelValues("uncredited").Inc()
	}
	return stored, nil
}

// LoadGuild replaces the guild's snapshot with the live invite list. When Discord is
// unreachable the mirrored snapshot, if any, is used instead.
func (s *InviteService) LoadGuild(ctx context.Context, guildID string) (int, error) {
	unlock := s.lockGuild(guildID)
	defer unlock()

	live, err := s.lister.GuildInvites(ctx, guildID)
	if err != nil {
		metrics.InviteFetchErrors.Inc()
		if s.registry.Restore(guildID) {
			s.log.Info("restored invite snapshot from mirror", zap.String("guild_id", guildID))
		}
		if errors.Is(err, models.ErrExternalFetch) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", models.ErrExternalFetch, err)
	}

	s.registry.Load(guildID, live)
	return len(live), nil
}

func (s *InviteService) ForgetGuild(guildID string) {
	unlock := s.lockGuild(guildID)
	s.registry.Forget(guildID)
	unlock()
	s.guildLocks.Delete(guildID)
	if s.cache != nil {
		s.cache.InvalidateGuild(guildID)
	}
}

func (s *InviteService) Registry() *invites.Registry {
	return s.registry
}

package invites

import (
	"sort"
	"sync"
	"time"

	"discord-invite-tracker/internal/models"

	"go.uber.org/zap"
)

// Mirror persists guild snapshots outside the process so a restart can restore them.
type Mirror interface {
	SaveSnapshot(guildID string, codes []models.InviteCode) error
	LoadSnapshot(guildID string) ([]models.InviteCode, error)
	DeleteSnapshot(guildID string) error
}

type Options struct {
	Mirror Mirror
	// CreditVanishedSingleUse attributes a join to the one single-use code that
	// disappeared from the live list when no other code moved.
	CreditVanishedSingleUse bool
}

// Registry keeps the last observed use count of every invite code, per guild.
type Registry struct {
	mu     sync.RWMutex
	guilds map[string]*guildInvites
	opts   Options
	log    *zap.Logger
}

type guildInvites struct {
	mu    sync.Mutex
	codes map[string]models.InviteCode
}

func New(log *zap.Logger, opts Options) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		guilds: make(map[string]*guildInvites),
		opts:   opts,
		log:    log.Named("registry"),
	}
}

func (r *Registry) guild(guildID string) *guildInvites {
	r.mu.RLock()
	g, ok := r.guilds[guildID]
	r.mu.RUnlock()
	if ok {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok = r.guilds[guildID]; !ok {
		g = &guildInvites{codes: make(map[string]models.InviteCode)}
		r.guilds[guildID] = g
	}
	return g
}

// Upsert records a code or refreshes its observed use count.
func (r *Registry) Upsert(code models.InviteCode) {
	g := r.guild(code.GuildID)
	g.mu.Lock()
	if prev, ok := g.codes[code.Code]; ok && code.CreatorID == "" {
		code.CreatorID = prev.CreatorID
	}
	g.codes[code.Code] = code
	snap := g.list()
	g.mu.Unlock()

	r.mirror(code.GuildID, snap)
}

func (r *Registry) Remove(guildID, code string) {
	g := r.guild(guildID)
	g.mu.Lock()
	_, ok := g.codes[code]
	delete(g.codes, code)
	snap := g.list()
	g.mu.Unlock()

	if ok {
		r.mirror(guildID, snap)
	}
}

// FindByUseDelta returns the one code whose use count rose by exactly one since the
// previous observation. Codes never seen before count from zero. No movement, several
// moved codes, or a jump larger than one all leave the join unattributed.
// The stored snapshot is replaced by observed either way, except that a stored use
// count is never lowered.
func (r *Registry) FindByUseDelta(guildID string, observed []models.InviteCode) (models.InviteCode, bool) {
	g := r.guild(guildID)
	g.mu.Lock()

	var (
		match     models.InviteCode
		hits      int
		overshoot bool
		seen      = make(map[string]struct{}, len(observed))
	)
	for _, inv := range observed {
		seen[inv.Code] = struct{}{}
		prev, known := g.codes[inv.Code]
		if known && inv.CreatorID == "" {
			inv.CreatorID = prev.CreatorID
		}

		delta := inv.Uses - prev.Uses
		switch {
		case delta == 1:
			hits++
			match = inv
		case delta > 1:
			overshoot = true
		}
	}

	found := hits == 1 && !overshoot
	if hits == 0 && !overshoot && r.opts.CreditVanishedSingleUse {
		match, found = g.vanishedSingleUse(seen)
	}

	next := make(map[string]models.InviteCode, len(observed))
	for _, inv := range observed {
		prev := g.codes[inv.Code]
		if inv.CreatorID == "" {
			inv.CreatorID = prev.CreatorID
		}
		// use counts only grow; a lower one is a stale read
		if inv.Uses < prev.Uses {
			inv.Uses = prev.Uses
		}
		inv.GuildID = guildID
		next[inv.Code] = inv
	}
	g.codes = next
	snap := g.list()
	g.mu.Unlock()

	r.mirror(guildID, snap)

	if !found {
		r.log.Debug("no single invite delta",
			zap.String("guild_id", guildID),
			zap.Int("moved", hits),
			zap.Bool("overshoot", overshoot))
		return models.InviteCode{}, false
	}
	match.GuildID = guildID
	return match, true
}

// vanishedSingleUse picks the only known code that is missing from the live list and
// was one use away from its limit. Caller holds g.mu.
func (g *guildInvites) vanishedSingleUse(seen map[string]struct{}) (models.InviteCode, bool) {
	var (
		match models.InviteCode
		n     int
	)
	for code, inv := range g.codes {
		if _, ok := seen[code]; ok {
			continue
		}
		if inv.SingleUseExhausted() {
			n++
			match = inv
			match.Uses++
		}
	}
	return match, n == 1
}

// Load replaces a guild's snapshot wholesale.
func (r *Registry) Load(guildID string, codes []models.InviteCode) {
	g := r.guild(guildID)
	g.mu.Lock()
	next := make(map[string]models.InviteCode, len(codes))
	for _, c := range codes {
		c.GuildID = guildID
		next[c.Code] = c
	}
	g.codes = next
	snap := g.list()
	g.mu.Unlock()

	r.mirror(guildID, snap)
}

// Restore seeds an empty guild snapshot from the mirror. It reports whether anything was loaded.
func (r *Registry) Restore(guildID string) bool {
	if r.opts.Mirror == nil {
		return false
	}

	codes, err := r.opts.Mirror.LoadSnapshot(guildID)
	if err != nil {
		r.log.Warn("snapshot restore failed", zap.String("guild_id", guildID), zap.Error(err))
		return false
	}
	if len(codes) == 0 {
		return false
	}

	g := r.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.codes) > 0 {
		return false
	}
	for _, c := range codes {
		g.codes[c.Code] = c
	}
	return true
}

// Snapshot returns a guild's codes ordered by code.
func (r *Registry) Snapshot(guildID string) []models.InviteCode {
	g := r.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.list()
}

// CountByCreator counts unexpired codes created by userID.
func (r *Registry) CountByCreator(guildID, userID string) int {
	g := r.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	n := 0
	for _, c := range g.codes {
		if c.CreatorID != userID {
			continue
		}
		if !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now) {
			continue
		}
		n++
	}
	return n
}

// Forget drops all state for a guild the bot left.
func (r *Registry) Forget(guildID string) {
	r.mu.Lock()
	delete(r.guilds, guildID)
	r.mu.Unlock()

	if r.opts.Mirror != nil {
		if err := r.opts.Mirror.DeleteSnapshot(guildID); err != nil {
			r.log.Warn("snapshot delete failed", zap.String("guild_id", guildID), zap.Error(err))
		}
	}
}

func (r *Registry) Guilds() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.guilds)
}

func (g *guildInvites) list() []models.InviteCode {
	out := make([]models.InviteCode, 0, len(g.codes))
	for _, c := range g.codes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (r *Registry) mirror(guildID string, snap []models.InviteCode) {
	if r.opts.Mirror == nil {
		return
	}
	if err := r.opts.Mirror.SaveSnapshot(guildID, snap); err != nil {
		r.log.Warn("snapshot mirror failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}

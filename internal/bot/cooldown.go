package bot

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	windowSlots   = 16
	commandBurst  = 5
	commandPeriod = 30 * time.Second
)

// commandWindow is a fixed ring of unix timestamps.
type commandWindow struct {
	events   [windowSlots]int64
	writePos atomic.Uint32
	size     atomic.Uint32
}

// CommandLimiter caps how often one member may run commands in a guild.
// Chart rendering and leaderboard queries are the expensive paths it protects.
type CommandLimiter struct {
	windows sync.Map // "guildID:userID" -> *commandWindow
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewCommandLimiter(limit int, window time.Duration) *CommandLimiter {
	if limit > windowSlots {
		limit = windowSlots
	}
	return &CommandLimiter{limit: limit, window: window, now: time.Now}
}

// Allow records an attempt and reports whether it is within the limit.
// Rejected attempts are not recorded, so waiting always frees a slot.
func (r *CommandLimiter) Allow(guildID, userID string) bool {
	key := guildID + ":" + userID
	now := r.now().Unix()
	cutoff := now - int64(r.window/time.Second)

	val, ok := r.windows.Load(key)
	if !ok {
		val, _ = r.windows.LoadOrStore(key, &commandWindow{})
	}
	w := val.(*commandWindow)

	if countSince(w, cutoff) >= r.limit {
		return false
	}
	addEvent(w, now)
	return true
}

func addEvent(w *commandWindow, ts int64) {
	pos := w.writePos.Add(1) - 1
	atomic.StoreInt64(&w.events[pos%windowSlots], ts)

	for {
		old := w.size.Load()
		next := old + 1
		if next > windowSlots {
			next = windowSlots
		}
		if w.size.CompareAndSwap(old, next) {
			return
		}
	}
}

func countSince(w *commandWindow, cutoff int64) int {
	size := w.size.Load()
	count := 0
	for i := uint32(0); i < size; i++ {
		if atomic.LoadInt64(&w.events[i]) > cutoff {
			count++
		}
	}
	return count
}

// ResetGuild drops every window for a guild.
func (r *CommandLimiter) ResetGuild(guildID string) {
	prefix := guildID + ":"
	r.windows.Range(func(key, _ interface{}) bool {
		if k, ok := key.(string); ok && strings.HasPrefix(k, prefix) {
			r.windows.Delete(k)
		}
		return true
	})
}

// Cleanup removes windows idle for longer than maxIdle and returns how many went.
func (r *CommandLimiter) Cleanup(maxIdle time.Duration) int {
	now := r.now().Unix()
	removed := 0

	r.windows.Range(func(key, val interface{}) bool {
		w := val.(*commandWindow)
		if w.size.Load() == 0 {
			r.windows.Delete(key)
			removed++
			return true
		}

		last := atomic.LoadInt64(&w.events[(w.writePos.Load()-1)%windowSlots])
		if now-last > int64(maxIdle/time.Second) {
			r.windows.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

func (r *CommandLimiter) active() int {
	n := 0
	r.windows.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

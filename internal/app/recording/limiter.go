package recording

import (
	"sync"
	"time"

	"github.com/dkeye/voicerelay/internal/domain"
)

// StartLimiter bounds how often one connection may start recording a room.
type StartLimiter struct {
	mu       sync.Mutex
	history  map[domain.RoomID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewStartLimiter(limit int, interval time.Duration) *StartLimiter {
	return &StartLimiter{
		history:  make(map[domain.RoomID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *StartLimiter) Allow(room domain.RoomID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[room]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[room] = fresh
		return false
	}

	rl.history[room] = append(fresh, now)
	return true
}

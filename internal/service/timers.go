// internal/service/timers.go

package service

import (
	"strings"
	"sync"
	"time"
)

// Timer table key prefixes. Round and grace timers share one table so a
// room teardown can cancel everything it owns by prefix.
const (
	roundTimerPrefix = "round:"
	graceTimerPrefix = "grace:"
)

func roundTimerKey(pin string) string {
	return roundTimerPrefix + pin
}

func graceTimerKey(pin, sessionKey string) string {
	return graceTimerPrefix + pin + ":" + sessionKey
}

// TimerTable tracks one pending timer per key. Arming a key replaces its
// pending timer. Cancellation is best-effort: a timer that already fired
// may still run its callback, so callbacks must tolerate running against
// state that has moved on.
type TimerTable struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimerTable() *TimerTable {
	return &TimerTable{timers: make(map[string]*time.Timer)}
}

// Arm schedules fn after d, replacing any pending timer under key.
func (tt *TimerTable) Arm(key string, d time.Duration, fn func()) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if old, ok := tt.timers[key]; ok {
		old.Stop()
	}
	var tm *time.Timer
	tm = time.AfterFunc(d, func() {
		tt.mu.Lock()
		if tt.timers[key] == tm {
			delete(tt.timers, key)
		}
		tt.mu.Unlock()
		fn()
	})
	tt.timers[key] = tm
}

// Cancel stops the pending timer under key, reporting whether one existed.
func (tt *TimerTable) Cancel(key string) bool {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	tm, ok := tt.timers[key]
	if !ok {
		return false
	}
	tm.Stop()
	delete(tt.timers, key)
	return true
}

// CancelPrefix stops every pending timer whose key starts with prefix and
// returns how many it stopped.
func (tt *TimerTable) CancelPrefix(prefix string) int {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	n := 0
	for key, tm := range tt.timers {
		if strings.HasPrefix(key, prefix) {
			tm.Stop()
			delete(tt.timers, key)
			n++
		}
	}
	return n
}

// CancelAll stops everything. Used on shutdown.
func (tt *TimerTable) CancelAll() {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	for key, tm := range tt.timers {
		tm.Stop()
		delete(tt.timers, key)
	}
}

// Pending reports whether a timer is armed under key.
func (tt *TimerTable) Pending(key string) bool {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	_, ok := tt.timers[key]
	return ok
}

// internal/guard/ratelimit.go

package guard

import (
	"math"
	"sync"
	"time"
)

// Enforcement parameters. A violation is one rejected attempt; the counter
// decays back to zero after ViolationDecay of good behavior.
const (
	ViolationDecay = 60 * time.Second
	BlockDuration  = 2 * time.Minute
	// DisconnectDelay gives the final notice time to flush before the
	// transport closes the connection.
	DisconnectDelay = 100 * time.Millisecond

	thresholdWarn       = 1
	thresholdBlock      = 2
	thresholdDisconnect = 3
)

// Escalation is the action the caller must take after a rejection.
type Escalation int

const (
	EscalateNone Escalation = iota
	EscalateWarn
	EscalateBlock
	EscalateDisconnect
)

// LimitRule caps an action at MaxAttempts per sliding Window.
type LimitRule struct {
	MaxAttempts int
	Window      time.Duration
}

// Decision reports whether an attempt was admitted and, when it was not,
// how long the client should back off and how far enforcement escalated.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Blocked    bool
	Escalation Escalation
	Violations int
}

// RetryAfterSeconds rounds the backoff up to whole seconds for client
// payloads; rejections always report at least 1.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	s := int(math.Ceil(d.RetryAfter.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

type violationRecord struct {
	count        int
	lastAt       time.Time
	blockedUntil time.Time
}

// RateLimiter tracks per-connection, per-action attempt timestamps in
// sliding windows. It is shared by every connection and safe for
// concurrent use.
type RateLimiter struct {
	mu         sync.Mutex
	rules      map[string]LimitRule
	fallback   LimitRule
	attempts   map[string]map[string][]time.Time
	violations map[string]*violationRecord

	// Now is the clock; tests pin it.
	Now func() time.Time
}

// DefaultRules caps the chatty actions tightly and everything else via the
// fallback rule passed to NewRateLimiter.
func DefaultRules() map[string]LimitRule {
	return map[string]LimitRule{
		"join_room":         {MaxAttempts: 5, Window: 30 * time.Second},
		"submit_answer":     {MaxAttempts: 10, Window: 10 * time.Second},
		"start_game":        {MaxAttempts: 3, Window: 30 * time.Second},
		"create_tournament": {MaxAttempts: 3, Window: 30 * time.Second},
		"start_match":       {MaxAttempts: 10, Window: 30 * time.Second},
		"kick_player":       {MaxAttempts: 5, Window: 10 * time.Second},
		"leave_room":        {MaxAttempts: 5, Window: 10 * time.Second},
		"get_players":       {MaxAttempts: 15, Window: 10 * time.Second},
		"get_question":      {MaxAttempts: 15, Window: 10 * time.Second},
	}
}

func NewRateLimiter(rules map[string]LimitRule, fallback LimitRule) *RateLimiter {
	if rules == nil {
		rules = map[string]LimitRule{}
	}
	if fallback.MaxAttempts <= 0 {
		fallback = LimitRule{MaxAttempts: 20, Window: 10 * time.Second}
	}
	return &RateLimiter{
		rules:      rules,
		fallback:   fallback,
		attempts:   make(map[string]map[string][]time.Time),
		violations: make(map[string]*violationRecord),
		Now:        time.Now,
	}
}

// Allow admits or rejects one attempt of action by connID. Rejections
// count as violations; the decision carries the escalation step the
// caller must enforce (warn, block notice, disconnect).
func (rl *RateLimiter) Allow(connID, action string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.Now()
	v := rl.violation(connID, now)

	if v.blockedUntil.After(now) {
		return rl.reject(v, now, v.blockedUntil.Sub(now), true)
	}

	rule, ok := rl.rules[action]
	if !ok {
		rule = rl.fallback
	}

	window := rl.pruned(connID, action, now, rule.Window)
	if len(window) >= rule.MaxAttempts {
		retry := window[0].Add(rule.Window).Sub(now)
		return rl.reject(v, now, retry, false)
	}

	rl.record(connID, action, append(window, now))
	return Decision{Allowed: true, Violations: v.count}
}

// Forget drops all state for a connection. Called when the transport
// closes so dead connections do not pin memory until the next sweep.
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, connID)
	delete(rl.violations, connID)
}

// Sweep prunes expired attempt windows and decayed violation records
// across every tracked connection. Runs on a background ticker.
func (rl *RateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.Now()
	for connID, actions := range rl.attempts {
		for action, stamps := range actions {
			rule, ok := rl.rules[action]
			if !ok {
				rule = rl.fallback
			}
			kept := prune(stamps, now.Add(-rule.Window))
			if len(kept) == 0 {
				delete(actions, action)
			} else {
				actions[action] = kept
			}
		}
		if len(actions) == 0 {
			delete(rl.attempts, connID)
		}
	}
	for connID, v := range rl.violations {
		expired := now.Sub(v.lastAt) > ViolationDecay && !v.blockedUntil.After(now)
		if expired {
			delete(rl.violations, connID)
		}
	}
}

// TrackedConnections reports how many connections currently hold state.
func (rl *RateLimiter) TrackedConnections() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	seen := make(map[string]struct{}, len(rl.attempts))
	for id := range rl.attempts {
		seen[id] = struct{}{}
	}
	for id := range rl.violations {
		seen[id] = struct{}{}
	}
	return len(seen)
}

func (rl *RateLimiter) violation(connID string, now time.Time) *violationRecord {
	v, ok := rl.violations[connID]
	if !ok {
		v = &violationRecord{}
		rl.violations[connID] = v
	}
	if v.count > 0 && now.Sub(v.lastAt) > ViolationDecay {
		v.count = 0
	}
	return v
}

func (rl *RateLimiter) reject(v *violationRecord, now time.Time, retry time.Duration, blocked bool) Decision {
	v.count++
	v.lastAt = now

	d := Decision{RetryAfter: retry, Blocked: blocked, Violations: v.count}
	switch {
	case v.count >= thresholdDisconnect:
		d.Escalation = EscalateDisconnect
	case v.count == thresholdBlock:
		v.blockedUntil = now.Add(BlockDuration)
		d.Blocked = true
		d.RetryAfter = BlockDuration
		d.Escalation = EscalateBlock
	case v.count == thresholdWarn:
		d.Escalation = EscalateWarn
	}
	return d
}

func (rl *RateLimiter) pruned(connID, action string, now time.Time, window time.Duration) []time.Time {
	actions, ok := rl.attempts[connID]
	if !ok {
		return nil
	}
	return prune(actions[action], now.Add(-window))
}

func (rl *RateLimiter) record(connID, action string, stamps []time.Time) {
	actions, ok := rl.attempts[connID]
	if !ok {
		actions = make(map[string][]time.Time)
		rl.attempts[connID] = actions
	}
	actions[action] = stamps
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	return append([]time.Time(nil), stamps[idx:]...)
}

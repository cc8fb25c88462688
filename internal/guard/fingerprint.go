// internal/guard/fingerprint.go

package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// RegistrationTTL expires registry entries that stopped refreshing.
	RegistrationTTL = 10 * time.Minute
	// LeaveHold keeps a voluntary leaver's registration alive so the same
	// device cannot immediately rejoin under a fresh name.
	LeaveHold = 5 * time.Minute
	// MaxUsernamesPerIP bounds distinct identities behind one address.
	MaxUsernamesPerIP = 2
)

// Verdict is the outcome of a join authorization.
type Verdict int

const (
	VerdictNewPlayer Verdict = iota
	VerdictReconnect
	VerdictSameUser
	VerdictDuplicateBrowser
	VerdictIPLimit
)

// Allowed reports whether the join may proceed.
func (v Verdict) Allowed() bool {
	return v == VerdictNewPlayer || v == VerdictReconnect || v == VerdictSameUser
}

func (v Verdict) String() string {
	switch v {
	case VerdictNewPlayer:
		return "new_player"
	case VerdictReconnect:
		return "reconnect"
	case VerdictSameUser:
		return "same_user_new_device"
	case VerdictDuplicateBrowser:
		return "duplicate_browser"
	case VerdictIPLimit:
		return "ip_limit"
	default:
		return "unknown"
	}
}

// Identity is what the guard knows about a client from the websocket
// handshake alone.
type Identity struct {
	Fingerprint string
	IP          string
}

// IdentityFromRequest derives the device fingerprint and client IP from
// the upgrade request. The fingerprint hashes handshake attributes that
// are stable across reconnects of the same browser.
func IdentityFromRequest(r *http.Request) Identity {
	ip := clientIP(r)
	raw := strings.Join([]string{
		r.UserAgent(),
		r.Header.Get("Accept-Language"),
		r.Header.Get("Accept-Encoding"),
		ip,
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return Identity{Fingerprint: hex.EncodeToString(sum[:]), IP: ip}
}

// clientIP prefers the first forwarded-for hop, then the real-ip header,
// then the raw transport address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type registration struct {
	username string
	seenAt   time.Time
}

type roomRegistry struct {
	byFingerprint map[string]*registration
	byIP          map[string][]*registration
}

func newRoomRegistry() *roomRegistry {
	return &roomRegistry{
		byFingerprint: make(map[string]*registration),
		byIP:          make(map[string][]*registration),
	}
}

// FingerprintGuard keeps a per-room registry of which device and address
// each username joined from, and judges join attempts against it.
type FingerprintGuard struct {
	mu    sync.Mutex
	rooms map[string]*roomRegistry
	holds map[string]*time.Timer

	// Now is the clock; tests pin it.
	Now func() time.Time
}

func NewFingerprintGuard() *FingerprintGuard {
	return &FingerprintGuard{
		rooms: make(map[string]*roomRegistry),
		holds: make(map[string]*time.Timer),
		Now:   time.Now,
	}
}

// Authorize judges a join attempt for a room without mutating the
// registry. Callers register the identity only after the join succeeds.
func (g *FingerprintGuard) Authorize(pin string, id Identity, username string) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	reg, ok := g.rooms[pin]
	if !ok {
		return VerdictNewPlayer
	}
	now := g.Now()
	g.expire(reg, now)

	if current, ok := reg.byFingerprint[id.Fingerprint]; ok {
		if current.username == username {
			return VerdictReconnect
		}
		return VerdictDuplicateBrowser
	}

	names := make(map[string]struct{})
	for _, entry := range reg.byIP[id.IP] {
		if entry.username == username {
			return VerdictSameUser
		}
		names[entry.username] = struct{}{}
	}
	if len(names) >= MaxUsernamesPerIP {
		return VerdictIPLimit
	}
	return VerdictNewPlayer
}

// Register binds the identity to a username in the room, refreshing any
// existing entry. A pending leave-hold for the same identity is cancelled
// by the overwrite.
func (g *FingerprintGuard) Register(pin string, id Identity, username string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	reg, ok := g.rooms[pin]
	if !ok {
		reg = newRoomRegistry()
		g.rooms[pin] = reg
	}
	g.cancelHold(holdKey(pin, id.Fingerprint))
	now := g.Now()
	reg.byFingerprint[id.Fingerprint] = &registration{username: username, seenAt: now}

	for _, entry := range reg.byIP[id.IP] {
		if entry.username == username {
			entry.seenAt = now
			return
		}
	}
	reg.byIP[id.IP] = append(reg.byIP[id.IP], &registration{username: username, seenAt: now})
}

// Release removes the identity's entries immediately. Used on true
// disconnects once the grace window has elapsed.
func (g *FingerprintGuard) Release(pin string, id Identity, username string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release(pin, id, username)
	g.cancelHold(holdKey(pin, id.Fingerprint))
}

// ReleaseByUsername drops every registration in the room held under the
// username. It serves removal paths that no longer have the device
// identity at hand, such as a grace expiry after the connection is gone.
func (g *FingerprintGuard) ReleaseByUsername(pin, username string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	reg, ok := g.rooms[pin]
	if !ok {
		return
	}
	for fp, entry := range reg.byFingerprint {
		if entry.username == username {
			delete(reg.byFingerprint, fp)
			g.cancelHold(holdKey(pin, fp))
		}
	}
	for ip, entries := range reg.byIP {
		kept := entries[:0]
		for _, entry := range entries {
			if entry.username != username {
				kept = append(kept, entry)
			}
		}
		if len(kept) == 0 {
			delete(reg.byIP, ip)
		} else {
			reg.byIP[ip] = kept
		}
	}
}

// ReleaseAfter schedules a deferred release, keeping the registration
// alive for the hold window. Voluntary leavers go through here so the
// same browser cannot instantly return under another name.
func (g *FingerprintGuard) ReleaseAfter(pin string, id Identity, username string, hold time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := holdKey(pin, id.Fingerprint)
	g.cancelHold(key)
	g.holds[key] = time.AfterFunc(hold, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.release(pin, id, username)
		delete(g.holds, key)
	})
}

// DropRoom clears the whole registry for a deleted room and cancels its
// pending holds.
func (g *FingerprintGuard) DropRoom(pin string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.rooms, pin)
	prefix := pin + "|"
	for key, timer := range g.holds {
		if strings.HasPrefix(key, prefix) {
			timer.Stop()
			delete(g.holds, key)
		}
	}
}

// Sweep expires stale registrations across all rooms and drops empty
// registries. Runs on a background ticker.
func (g *FingerprintGuard) Sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.Now()
	for pin, reg := range g.rooms {
		g.expire(reg, now)
		if len(reg.byFingerprint) == 0 && len(reg.byIP) == 0 {
			delete(g.rooms, pin)
		}
	}
}

// TrackedRooms reports how many rooms currently hold registrations.
func (g *FingerprintGuard) TrackedRooms() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// release removes the username's entries, leaving newer registrations
// under the same fingerprint untouched. Callers hold g.mu.
func (g *FingerprintGuard) release(pin string, id Identity, username string) {
	reg, ok := g.rooms[pin]
	if !ok {
		return
	}
	if current, ok := reg.byFingerprint[id.Fingerprint]; ok && current.username == username {
		delete(reg.byFingerprint, id.Fingerprint)
	}
	entries := reg.byIP[id.IP]
	for i, entry := range entries {
		if entry.username == username {
			reg.byIP[id.IP] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(reg.byIP[id.IP]) == 0 {
		delete(reg.byIP, id.IP)
	}
}

func (g *FingerprintGuard) expire(reg *roomRegistry, now time.Time) {
	cutoff := now.Add(-RegistrationTTL)
	for fp, entry := range reg.byFingerprint {
		if entry.seenAt.Before(cutoff) {
			delete(reg.byFingerprint, fp)
		}
	}
	for ip, entries := range reg.byIP {
		kept := entries[:0]
		for _, entry := range entries {
			if !entry.seenAt.Before(cutoff) {
				kept = append(kept, entry)
			}
		}
		if len(kept) == 0 {
			delete(reg.byIP, ip)
		} else {
			reg.byIP[ip] = kept
		}
	}
}

func (g *FingerprintGuard) cancelHold(key string) {
	if timer, ok := g.holds[key]; ok {
		timer.Stop()
		delete(g.holds, key)
	}
}

func holdKey(pin, fingerprint string) string {
	return pin + "|" + fingerprint
}

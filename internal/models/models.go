// internal/models/models.go

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Room status values.
const (
	StatusWaiting  = "waiting"
	StatusPlaying  = "playing"
	StatusFinished = "finished"
)

// Game modes.
const (
	ModeClassic    = "classic"
	ModeAdventure  = "adventure"
	ModeDuel       = "duel"
	ModeTournament = "tournament"
)

// Phase of the current round while a room is playing. Tournament rooms sit
// in PhaseIdle between matches.
const (
	PhaseQuestion = "question"
	PhaseReveal   = "reveal"
	PhaseIdle     = "idle"
)

// Reasons recorded on Winner / Room.EndReason when a game ends.
const (
	EndCompleted    = "completed"
	EndLastStanding = "last_standing"
	EndRace         = "race"
	EndElimination  = "elimination"
	EndBracket      = "bracket"
	EndExhausted    = "questions_exhausted"
	EndAbandoned    = "abandoned"
	EndNone         = "none"
)

// Win condition tags carried in ModeConfig.
const (
	WinByScore    = "score"
	WinBySurvival = "survival"
	WinByRace     = "race"
	WinByBracket  = "bracket"
)

// ModeConfig holds the tunables of a game mode. Zero fields are filled from
// DefaultModeConfig at room creation.
type ModeConfig struct {
	MaxPlayers     int    `json:"max_players"`
	MaxLives       int    `json:"max_lives"`
	TargetPosition int    `json:"target_position"`
	PositionStep   int    `json:"position_step"`
	WinCondition   string `json:"win_condition"`
}

// DefaultModeConfig returns the standard settings for a mode.
func DefaultModeConfig(mode string) ModeConfig {
	switch mode {
	case ModeAdventure:
		return ModeConfig{MaxPlayers: 10, MaxLives: 3, WinCondition: WinBySurvival}
	case ModeDuel:
		return ModeConfig{MaxPlayers: 2, TargetPosition: 10, PositionStep: 2, WinCondition: WinByRace}
	case ModeTournament:
		return ModeConfig{MaxPlayers: 16, TargetPosition: 10, PositionStep: 2, WinCondition: WinByBracket}
	default:
		return ModeConfig{MaxPlayers: 10, WinCondition: WinByScore}
	}
}

// GivenAnswer is the structured answer to a placard question: the pictogram
// symbol, the placard colors and the UN number printed on it.
type GivenAnswer struct {
	Pictogram string   `json:"pictogram"`
	Colors    []string `json:"colors"`
	Code      string   `json:"code"`
}

// IsEmpty reports whether no component of the answer was provided.
func (a GivenAnswer) IsEmpty() bool {
	return strings.TrimSpace(a.Pictogram) == "" && len(a.Colors) == 0 && strings.TrimSpace(a.Code) == ""
}

// AnswerRecord is one entry in a player's answer ledger. A record that is
// already correct or carries points is final and must never be overwritten.
type AnswerRecord struct {
	QuestionID    string      `json:"question_id"`
	Answer        GivenAnswer `json:"answer"`
	IsCorrect     bool        `json:"is_correct"`
	Points        int         `json:"points"`
	ResponseTime  float64     `json:"response_time"` // seconds
	AutoSubmitted bool        `json:"auto_submitted"`
	AnsweredAt    time.Time   `json:"answered_at"`
}

// Scored reports whether the record is final for duplicate-submission checks.
func (r *AnswerRecord) Scored() bool {
	return r.IsCorrect || r.Points > 0
}

// Player is a seat in a room. Players are embedded in the room document and
// never shared between rooms. ConnID is the volatile transport identifier;
// SessionKey is the stable identity that survives reconnects.
type Player struct {
	ID                string                   `json:"id"`
	ConnID            string                   `json:"conn_id"`
	SessionKey        string                   `json:"session_key"`
	Username          string                   `json:"username"`
	Character         string                   `json:"character,omitempty"`
	Score             int                      `json:"score"`
	CorrectCount      int                      `json:"correct_count"`
	TotalResponseTime float64                  `json:"total_response_time"`
	QuestionOrder     []string                 `json:"question_order"`
	Answers           map[string]*AnswerRecord `json:"answers"`
	IsConnected       bool                     `json:"is_connected"`
	DisconnectedAt    *time.Time               `json:"disconnected_at,omitempty"`
	JoinedAt          time.Time                `json:"joined_at"`

	// Mode-specific fields.
	Lives        int        `json:"lives,omitempty"`
	Position     int        `json:"position,omitempty"`
	IsEliminated bool       `json:"is_eliminated"`
	EliminatedAt *time.Time `json:"eliminated_at,omitempty"`
}

// AnswerFor returns the ledger entry for a question, or nil.
func (p *Player) AnswerFor(questionID string) *AnswerRecord {
	if p.Answers == nil {
		return nil
	}
	return p.Answers[questionID]
}

// RecordAnswer stores rec in the ledger, replacing any previous entry for
// the same question. Callers enforce the immutability of scored records.
func (p *Player) RecordAnswer(rec *AnswerRecord) {
	if p.Answers == nil {
		p.Answers = make(map[string]*AnswerRecord)
	}
	p.Answers[rec.QuestionID] = rec
}

// QuestionAt returns the player's personal question for a round index.
func (p *Player) QuestionAt(round int) (string, bool) {
	if round < 0 || round >= len(p.QuestionOrder) {
		return "", false
	}
	return p.QuestionOrder[round], true
}

// Winner summarizes how a game ended.
type Winner struct {
	PlayerID  string `json:"player_id"`
	Username  string `json:"username"`
	Character string `json:"character,omitempty"`
	Score     int    `json:"score"`
	Reason    string `json:"reason"`
}

// Room is the aggregate for one play session, keyed by PIN. Mutable parts
// (players, bracket, winner) are stored as JSON so the whole aggregate is
// loaded and saved atomically; Version implements the optimistic check on
// save.
type Room struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	PIN            string     `gorm:"uniqueIndex;not null" json:"pin"`
	Name           string     `json:"name"`
	Status         string     `gorm:"not null;default:'waiting'" json:"status"`
	Mode           string     `gorm:"not null;default:'classic'" json:"mode"`
	Config         ModeConfig `gorm:"serializer:json" json:"config"`
	QuestionIDs    []string   `gorm:"serializer:json" json:"question_ids"`
	TimeLimit      int        `gorm:"default:30" json:"time_limit"` // seconds per question
	CurrentRound   int        `gorm:"default:0" json:"current_round"`
	RoundPhase     string     `gorm:"default:'idle'" json:"round_phase"`
	RoundStartedAt *time.Time `json:"round_started_at,omitempty"`
	HostUsername   string     `json:"host_username"`
	Players        []*Player  `gorm:"serializer:json" json:"players"`
	Bracket        *Bracket   `gorm:"serializer:json" json:"bracket,omitempty"`
	ActiveMatchID  string     `json:"active_match_id,omitempty"`
	Winner         *Winner    `gorm:"serializer:json" json:"winner,omitempty"`
	EndReason      string     `json:"end_reason,omitempty"`
	Version        int        `gorm:"not null;default:0" json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

func (r *Room) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// PlayerByConn finds the player currently bound to a transport connection.
func (r *Room) PlayerByConn(connID string) *Player {
	for _, p := range r.Players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

// PlayerBySession finds a player by stable session key.
func (r *Room) PlayerBySession(key string) *Player {
	if key == "" {
		return nil
	}
	for _, p := range r.Players {
		if p.SessionKey == key {
			return p
		}
	}
	return nil
}

// PlayerByUsername finds a player by room-unique username.
func (r *Room) PlayerByUsername(username string) *Player {
	for _, p := range r.Players {
		if p.Username == username {
			return p
		}
	}
	return nil
}

// PlayerByID finds a player by id.
func (r *Room) PlayerByID(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// RemovePlayer drops a player from the roster by id.
func (r *Room) RemovePlayer(id string) {
	for i, p := range r.Players {
		if p.ID == id {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			return
		}
	}
}

// ActivePlayers returns the players still competing this round: the
// non-eliminated roster, narrowed to the two match players while a
// tournament match is running.
func (r *Room) ActivePlayers() []*Player {
	var active []*Player
	for _, p := range r.Players {
		if p.IsEliminated {
			continue
		}
		if r.Mode == ModeTournament && r.ActiveMatchID != "" && !r.inActiveMatch(p.ID) {
			continue
		}
		active = append(active, p)
	}
	return active
}

// AllActiveAnswered reports whether every active player holds a ledger
// entry for their personal question of the current round. Rooms with no
// active players report false so timer-driven paths keep control.
func (r *Room) AllActiveAnswered() bool {
	active := r.ActivePlayers()
	if len(active) == 0 {
		return false
	}
	for _, p := range active {
		qid, ok := p.QuestionAt(r.CurrentRound)
		if !ok {
			continue
		}
		if p.AnswerFor(qid) == nil {
			return false
		}
	}
	return true
}

func (r *Room) inActiveMatch(playerID string) bool {
	if r.Bracket == nil {
		return false
	}
	m := r.Bracket.MatchByID(r.ActiveMatchID)
	if m == nil {
		return false
	}
	return m.Player1 == playerID || m.Player2 == playerID
}

// ConnectedCount returns the number of players with a live connection.
func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.IsConnected {
			n++
		}
	}
	return n
}

// NormalizePIN upper-cases and trims a client-typed PIN.
func NormalizePIN(pin string) string {
	return strings.ToUpper(strings.TrimSpace(pin))
}

// Question is one placard from the read-only catalog. Name is the prompt
// shown to players; Pictogram, Colors and Code together are the correct
// answer.
type Question struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Pictogram string    `gorm:"not null" json:"pictogram"`
	Colors    []string  `gorm:"serializer:json" json:"colors"`
	Code      string    `gorm:"not null" json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

package state

import (
	"sort"
	"time"
)

// SessionStatus represents the lifecycle phase of a game session.
type SessionStatus string

const (
	SessionStatusLobby  SessionStatus = "LOBBY"
	SessionStatusActive SessionStatus = "ACTIVE"
	SessionStatusPaused SessionStatus = "PAUSED"
	SessionStatusEnded  SessionStatus = "ENDED"
)

// RoundStatus represents the lifecycle phase of a single round.
type RoundStatus string

const (
	RoundStatusWaiting RoundStatus = "WAITING"
	RoundStatusActive  RoundStatus = "ACTIVE"
	RoundStatusEnded   RoundStatus = "ENDED"
)

// Session represents the shared game session as last confirmed by the
// authority. Revision increases on every accepted authoritative mutation and
// gates stale snapshots.
type Session struct {
	ID         string        `json:"id"`
	Status     SessionStatus `json:"status"`
	RoundIndex int           `json:"round_index"`
	MaxRounds  int           `json:"max_rounds"`
	Revision   int64         `json:"revision"`
	MediatorID string        `json:"mediator_id,omitempty"`
}

// Participant represents a player in the session. IsMediator is derived from
// JoinedAt ordering, never set directly by callers.
type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Score       int       `json:"score"`
	Present     bool      `json:"present"`
	JoinedAt    time.Time `json:"joined_at"`
	IsMediator  bool      `json:"is_mediator"`
}

// Round represents one emoji round. Responses are ordered by receipt time.
type Round struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"session_id"`
	Index      int         `json:"index"`
	MediatorID string      `json:"mediator_id"`
	Prompt     string      `json:"prompt"`
	Responses  []Response  `json:"responses"`
	Status     RoundStatus `json:"status"`
	StartedAt  time.Time   `json:"started_at"`
	EndedAt    *time.Time  `json:"ended_at,omitempty"`
	WinnerID   string      `json:"winner_id,omitempty"`
}

// Response represents a recorded guess. Immutable once recorded.
type Response struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	Text          string    `json:"text"`
	Similarity    float64   `json:"similarity"`
	Correct       bool      `json:"correct"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Snapshot represents a full point-in-time view returned by the authority.
type Snapshot struct {
	Session      *Session               `json:"session"`
	Participants map[string]Participant `json:"participants"`
	CurrentRound *Round                 `json:"current_round,omitempty"`
	Revision     int64                  `json:"revision"`
}

// State is the canonical local view owned by the Store. Copies returned from
// accessors are safe to read without coordination.
type State struct {
	Session      *Session
	Participants map[string]Participant
	Round        *Round
}

// Revision returns the stored session revision, or 0 when uninitialized.
func (s State) Revision() int64 {
	if s.Session == nil {
		return 0
	}
	return s.Session.Revision
}

// PresentParticipants returns the present participants sorted by JoinedAt
// ascending, ties broken by id so ordering stays deterministic.
func (s State) PresentParticipants() []Participant {
	present := make([]Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.Present {
			present = append(present, p)
		}
	}
	sort.Slice(present, func(i, j int) bool {
		if present[i].JoinedAt.Equal(present[j].JoinedAt) {
			return present[i].ID < present[j].ID
		}
		return present[i].JoinedAt.Before(present[j].JoinedAt)
	})
	return present
}

// MediatorID returns the id of the current mediator: the earliest-joined
// present participant. The stored IsMediator flags and Session.MediatorID are
// caches of this value.
func (s State) MediatorID() (string, bool) {
	present := s.PresentParticipants()
	if len(present) == 0 {
		return "", false
	}
	return present[0].ID, true
}

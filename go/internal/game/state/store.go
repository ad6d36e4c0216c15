package state

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Store owns the canonical local game state. All mutations flow through
// Apply, which serializes producers (sync poller, retry manager, direct UI
// dispatch) onto a single pure reduction, so no other locking is needed.
type Store struct {
	mu    sync.RWMutex
	state State
	clock clockwork.Clock
}

// NewStore creates an empty store. The clock is used to default missing
// timestamps on incoming payloads.
func NewStore(clock clockwork.Clock) *Store {
	return &Store{clock: clock}
}

// Apply runs one action through the reducer. Invalid payloads leave the
// state untouched; the store never ends up partially applied.
func (s *Store) Apply(action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = reduce(s.state, action, s.clock.Now())
}

// State returns a deep copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneState(s.state)
}

// Session returns a copy of the current session, or nil when uninitialized.
func (s *Store) Session() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Session == nil {
		return nil
	}
	session := *s.state.Session
	return &session
}

// Revision returns the stored session revision, or 0 when uninitialized.
func (s *Store) Revision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Revision()
}

// Participants returns a copy of the participant set.
func (s *Store) Participants() map[string]Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneParticipants(s.state.Participants)
}

// Round returns a copy of the current round, or nil when none is active.
func (s *Store) Round() *Round {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Round == nil {
		return nil
	}
	return cloneRound(s.state.Round)
}

// MediatorID returns the derived mediator id.
func (s *Store) MediatorID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.MediatorID()
}

// reduce is the pure transition function. It returns a new state and never
// mutates the input in place.
func reduce(st State, action Action, now time.Time) State {
	switch a := action.(type) {
	case SetSession:
		return reduceSetSession(st, a)
	case SetParticipants:
		return reduceSetParticipants(st, a, now)
	case SetRound:
		return reduceSetRound(st, a, now)
	case ParticipantJoined:
		return reduceParticipantJoined(st, a, now)
	case ParticipantLeft:
		return reduceParticipantLeft(st, a)
	case ResponseRecorded:
		return reduceResponseRecorded(st, a, now)
	case ScoresUpdated:
		return reduceScoresUpdated(st, a)
	case MediatorTransferred:
		return reduceMediatorTransferred(st, a)
	default:
		log.Warn().Type("action", action).Msg("unknown action, state unchanged")
		return st
	}
}

func reduceSetSession(st State, a SetSession) State {
	if a.Session.ID == "" {
		log.Warn().Msg("rejected session payload without id")
		return st
	}
	if st.Session != nil && a.Session.Revision <= st.Session.Revision {
		log.Debug().
			Int64("incoming", a.Session.Revision).
			Int64("stored", st.Session.Revision).
			Msg("discarded stale session revision")
		return st
	}
	// The authority is canonical even when status moves backwards (an
	// explicit external reset); a regression is worth a warning, not a
	// rejection.
	if st.Session != nil && statusRank(a.Session.Status) < statusRank(st.Session.Status) {
		log.Warn().
			Str("from", string(st.Session.Status)).
			Str("to", string(a.Session.Status)).
			Int64("revision", a.Session.Revision).
			Msg("session status moved backwards")
	}
	next := cloneState(st)
	session := a.Session
	next.Session = &session
	return electMediator(next)
}

// statusRank orders the session lifecycle for regression detection. Active
// and paused share a rank since sessions move freely between them.
func statusRank(s SessionStatus) int {
	switch s {
	case SessionStatusActive, SessionStatusPaused:
		return 1
	case SessionStatusEnded:
		return 2
	default:
		return 0
	}
}

func reduceSetParticipants(st State, a SetParticipants, now time.Time) State {
	if len(a.Participants) == 0 {
		log.Warn().Msg("rejected empty participant payload")
		return st
	}
	valid := make(map[string]Participant, len(a.Participants))
	for id, p := range a.Participants {
		if id == "" || p.ID == "" || id != p.ID {
			log.Warn().Str("participant_id", id).Msg("skipped malformed participant entry")
			continue
		}
		valid[id] = normalizeParticipant(p, now)
	}
	if len(valid) == 0 {
		log.Warn().Msg("rejected participant payload with no valid entries")
		return st
	}
	next := cloneState(st)
	next.Participants = valid
	return electMediator(next)
}

func reduceSetRound(st State, a SetRound, now time.Time) State {
	if a.Round.ID == "" || a.Round.SessionID == "" {
		log.Warn().Str("round_id", a.Round.ID).Msg("rejected round payload missing identity fields")
		return st
	}
	next := cloneState(st)
	round := a.Round
	if round.StartedAt.IsZero() {
		round.StartedAt = now
	}
	next.Round = &round
	return next
}

func reduceParticipantJoined(st State, a ParticipantJoined, now time.Time) State {
	if a.Participant.ID == "" {
		log.Warn().Msg("rejected join payload without participant id")
		return st
	}
	next := cloneState(st)
	if next.Participants == nil {
		next.Participants = make(map[string]Participant)
	}
	p := normalizeParticipant(a.Participant, now)
	p.Present = true
	next.Participants[p.ID] = p
	log.Debug().Str("participant_id", p.ID).Msg("participant joined")
	return electMediator(next)
}

func reduceParticipantLeft(st State, a ParticipantLeft) State {
	if a.ParticipantID == "" {
		log.Warn().Msg("rejected leave payload without participant id")
		return st
	}
	if _, ok := st.Participants[a.ParticipantID]; !ok {
		log.Warn().Str("participant_id", a.ParticipantID).Msg("leave for unknown participant ignored")
		return st
	}
	next := cloneState(st)
	delete(next.Participants, a.ParticipantID)
	if len(next.Participants) == 0 {
		// Last player out: the session no longer exists locally.
		log.Debug().Str("participant_id", a.ParticipantID).Msg("last participant left, clearing session")
		return State{}
	}
	return electMediator(next)
}

func reduceResponseRecorded(st State, a ResponseRecorded, now time.Time) State {
	if a.Response.ID == "" || a.Response.ParticipantID == "" {
		log.Warn().Msg("rejected response payload missing identity fields")
		return st
	}
	if st.Round == nil || st.Round.Status == RoundStatusEnded {
		log.Warn().Str("response_id", a.Response.ID).Msg("response recorded with no active round")
		return st
	}
	for _, existing := range st.Round.Responses {
		if existing.ID == a.Response.ID {
			// Responses are immutable once recorded.
			return st
		}
	}
	next := cloneState(st)
	response := a.Response
	if response.ReceivedAt.IsZero() {
		response.ReceivedAt = now
	}
	next.Round.Responses = append(next.Round.Responses, response)
	return next
}

func reduceScoresUpdated(st State, a ScoresUpdated) State {
	if len(a.Scores) == 0 {
		log.Warn().Msg("rejected empty scores payload")
		return st
	}
	next := cloneState(st)
	for id, score := range a.Scores {
		p, ok := next.Participants[id]
		if !ok {
			log.Warn().Str("participant_id", id).Msg("score for unknown participant ignored")
			continue
		}
		if score < 0 {
			score = 0
		}
		p.Score = score
		next.Participants[id] = p
	}
	return next
}

func reduceMediatorTransferred(st State, a MediatorTransferred) State {
	if a.ParticipantID == "" {
		log.Warn().Msg("rejected mediator transfer without participant id")
		return st
	}
	if _, ok := st.Participants[a.ParticipantID]; !ok {
		log.Warn().Str("participant_id", a.ParticipantID).Msg("mediator transfer to unknown participant ignored")
		return st
	}
	if st.Round == nil {
		log.Warn().Str("participant_id", a.ParticipantID).Msg("mediator transfer with no active round ignored")
		return st
	}
	next := cloneState(st)
	next.Round.MediatorID = a.ParticipantID
	return next
}

// electMediator recomputes the derived mediator caches after any change to
// the present-participant set, inside the same reduction so the flags and
// Session.MediatorID can never diverge from the derived value.
func electMediator(st State) State {
	mediatorID, ok := st.MediatorID()
	for id, p := range st.Participants {
		p.IsMediator = ok && id == mediatorID
		st.Participants[id] = p
	}
	if st.Session != nil && st.Session.MediatorID != mediatorID {
		session := *st.Session
		session.MediatorID = mediatorID
		st.Session = &session
	}
	return st
}

// normalizeParticipant fills explicit defaults for optional fields so a
// malformed upstream payload cannot corrupt local state.
func normalizeParticipant(p Participant, now time.Time) Participant {
	if p.Score < 0 {
		p.Score = 0
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now
	}
	p.IsMediator = false
	return p
}

func cloneState(st State) State {
	next := State{Participants: cloneParticipants(st.Participants)}
	if st.Session != nil {
		session := *st.Session
		next.Session = &session
	}
	if st.Round != nil {
		next.Round = cloneRound(st.Round)
	}
	return next
}

func cloneParticipants(participants map[string]Participant) map[string]Participant {
	if participants == nil {
		return nil
	}
	out := make(map[string]Participant, len(participants))
	for id, p := range participants {
		out[id] = p
	}
	return out
}

func cloneRound(round *Round) *Round {
	r := *round
	if round.Responses != nil {
		r.Responses = append([]Response(nil), round.Responses...)
	}
	if round.EndedAt != nil {
		endedAt := *round.EndedAt
		r.EndedAt = &endedAt
	}
	return &r
}

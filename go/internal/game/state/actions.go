package state

// Action is a tagged mutation applied through the Store's single reducer
// entry point. Concrete actions carry their own payloads; anything missing
// required identity fields is rejected without touching the state.
type Action interface {
	isAction()
}

// SetSession replaces the session if the incoming revision is newer than the
// stored one. Stale or equal revisions are discarded.
type SetSession struct {
	Session Session
}

// SetParticipants replaces the participant set with the structurally valid
// entries of the payload. A payload with no valid entries is a no-op rather
// than a reset, so one bad snapshot cannot wipe the roster.
type SetParticipants struct {
	Participants map[string]Participant
}

// SetRound replaces the current round.
type SetRound struct {
	Round Round
}

// ParticipantJoined upserts a single participant and recomputes the mediator.
type ParticipantJoined struct {
	Participant Participant
}

// ParticipantLeft removes a participant. Removing the last one clears the
// session entirely.
type ParticipantLeft struct {
	ParticipantID string
}

// ResponseRecorded appends a guess to the current round.
type ResponseRecorded struct {
	Response Response
}

// ScoresUpdated applies authoritative score totals by participant id.
type ScoresUpdated struct {
	Scores map[string]int
}

// MediatorTransferred marks a participant absent-for-mediation purposes by
// forcing a recompute after the authority reassigned round control.
type MediatorTransferred struct {
	ParticipantID string
}

func (SetSession) isAction()          {}
func (SetParticipants) isAction()     {}
func (SetRound) isAction()            {}
func (ParticipantJoined) isAction()   {}
func (ParticipantLeft) isAction()     {}
func (ResponseRecorded) isAction()    {}
func (ScoresUpdated) isAction()       {}
func (MediatorTransferred) isAction() {}

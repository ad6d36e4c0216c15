package state

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(clockwork.NewFakeClock())
}

func joinAt(id string, unixMs int64) ParticipantJoined {
	return ParticipantJoined{Participant: Participant{
		ID:          id,
		DisplayName: id,
		JoinedAt:    time.UnixMilli(unixMs),
	}}
}

func requireSingleMediator(t *testing.T, store *Store, wantID string) {
	t.Helper()
	mediators := 0
	for _, p := range store.Participants() {
		if p.IsMediator {
			mediators++
			require.Equal(t, wantID, p.ID)
		}
	}
	require.Equal(t, 1, mediators, "exactly one present participant must be mediator")
	gotID, ok := store.MediatorID()
	require.True(t, ok)
	require.Equal(t, wantID, gotID)
}

func TestMediatorFollowsEarliestJoin(t *testing.T) {
	store := newTestStore()

	store.Apply(joinAt("p1", 1000))
	requireSingleMediator(t, store, "p1")

	store.Apply(joinAt("p2", 2000))
	requireSingleMediator(t, store, "p1")

	store.Apply(ParticipantLeft{ParticipantID: "p1"})
	requireSingleMediator(t, store, "p2")
}

func TestMediatorUniquenessAcrossJoinLeaveSequences(t *testing.T) {
	store := newTestStore()

	store.Apply(joinAt("p3", 3000))
	store.Apply(joinAt("p1", 1000))
	store.Apply(joinAt("p2", 2000))
	requireSingleMediator(t, store, "p1")

	store.Apply(ParticipantLeft{ParticipantID: "p2"})
	requireSingleMediator(t, store, "p1")

	store.Apply(ParticipantLeft{ParticipantID: "p1"})
	requireSingleMediator(t, store, "p3")
}

func TestMediatorUpdatesSessionReference(t *testing.T) {
	store := newTestStore()
	store.Apply(SetSession{Session: Session{ID: "s1", Status: SessionStatusLobby, Revision: 1}})
	store.Apply(joinAt("p2", 2000))
	store.Apply(joinAt("p1", 1000))

	session := store.Session()
	require.NotNil(t, session)
	require.Equal(t, "p1", session.MediatorID)
}

func TestLastParticipantLeavingClearsSession(t *testing.T) {
	store := newTestStore()
	store.Apply(SetSession{Session: Session{ID: "s1", Revision: 1}})
	store.Apply(joinAt("p1", 1000))

	store.Apply(ParticipantLeft{ParticipantID: "p1"})

	require.Nil(t, store.Session())
	require.Empty(t, store.Participants())
	_, ok := store.MediatorID()
	require.False(t, ok)
}

func TestStaleSessionRevisionDiscarded(t *testing.T) {
	store := newTestStore()
	store.Apply(SetSession{Session: Session{ID: "s1", Status: SessionStatusActive, RoundIndex: 3, Revision: 5}})

	store.Apply(SetSession{Session: Session{ID: "s1", Status: SessionStatusLobby, RoundIndex: 0, Revision: 5}})
	store.Apply(SetSession{Session: Session{ID: "s1", Status: SessionStatusLobby, RoundIndex: 0, Revision: 4}})

	session := store.Session()
	require.NotNil(t, session)
	require.Equal(t, SessionStatusActive, session.Status)
	require.Equal(t, 3, session.RoundIndex)
	require.Equal(t, int64(5), session.Revision)
}

func TestRegressingStatusAcceptedOnNewerRevision(t *testing.T) {
	store := newTestStore()
	store.Apply(SetSession{Session: Session{ID: "s1", Status: SessionStatusEnded, Revision: 5}})

	// An external reset moves the session backwards on a newer revision;
	// the authority wins.
	store.Apply(SetSession{Session: Session{ID: "s1", Status: SessionStatusLobby, Revision: 6}})

	session := store.Session()
	require.NotNil(t, session)
	require.Equal(t, SessionStatusLobby, session.Status)
	require.Equal(t, int64(6), session.Revision)
}

func TestSetSessionWithoutIDRejected(t *testing.T) {
	store := newTestStore()
	store.Apply(SetSession{Session: Session{Revision: 10}})
	require.Nil(t, store.Session())
}

func TestInvalidParticipantPayloadIsNoOp(t *testing.T) {
	store := newTestStore()
	store.Apply(joinAt("p1", 1000))
	store.Apply(joinAt("p2", 2000))

	// A completely invalid payload must not wipe the roster.
	store.Apply(SetParticipants{Participants: map[string]Participant{
		"": {DisplayName: "ghost"},
	}})
	require.Len(t, store.Participants(), 2)

	store.Apply(SetParticipants{Participants: nil})
	require.Len(t, store.Participants(), 2)
}

func TestSetParticipantsSkipsMalformedEntries(t *testing.T) {
	store := newTestStore()
	store.Apply(SetParticipants{Participants: map[string]Participant{
		"p1": {ID: "p1", DisplayName: "one", JoinedAt: time.UnixMilli(1000), Present: true},
		"p2": {ID: "other", DisplayName: "mismatched key"},
	}})

	participants := store.Participants()
	require.Len(t, participants, 1)
	require.Contains(t, participants, "p1")
}

func TestJoinNormalizationDefaults(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewStore(clock)

	store.Apply(ParticipantJoined{Participant: Participant{ID: "p1", Score: -5}})

	p := store.Participants()["p1"]
	require.True(t, p.Present, "joining participant must be present")
	require.Equal(t, 0, p.Score, "negative score must default to zero")
	require.Equal(t, clock.Now(), p.JoinedAt, "missing join time stamped from the clock")
}

func TestResponseRecordedRequiresActiveRound(t *testing.T) {
	store := newTestStore()
	store.Apply(ResponseRecorded{Response: Response{ID: "r1", ParticipantID: "p1", Text: "a guess"}})
	require.Nil(t, store.Round())
}

func TestResponsesImmutableAndOrdered(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewStore(clock)
	store.Apply(SetRound{Round: Round{ID: "round-1", SessionID: "s1", Status: RoundStatusActive}})

	store.Apply(ResponseRecorded{Response: Response{ID: "r1", ParticipantID: "p1", Text: "first"}})
	store.Apply(ResponseRecorded{Response: Response{ID: "r2", ParticipantID: "p2", Text: "second"}})
	// Duplicate id must not overwrite the recorded response.
	store.Apply(ResponseRecorded{Response: Response{ID: "r1", ParticipantID: "p1", Text: "changed"}})

	round := store.Round()
	require.NotNil(t, round)
	require.Len(t, round.Responses, 2)
	require.Equal(t, "first", round.Responses[0].Text)
	require.Equal(t, "second", round.Responses[1].Text)
	require.Equal(t, clock.Now(), round.Responses[0].ReceivedAt)
}

func TestScoresUpdated(t *testing.T) {
	store := newTestStore()
	store.Apply(joinAt("p1", 1000))
	store.Apply(joinAt("p2", 2000))

	store.Apply(ScoresUpdated{Scores: map[string]int{
		"p1":      7,
		"p2":      -2,
		"unknown": 99,
	}})

	participants := store.Participants()
	require.Equal(t, 7, participants["p1"].Score)
	require.Equal(t, 0, participants["p2"].Score)
	require.NotContains(t, participants, "unknown")
}

func TestMediatorTransferredUpdatesRound(t *testing.T) {
	store := newTestStore()
	store.Apply(joinAt("p1", 1000))
	store.Apply(joinAt("p2", 2000))
	store.Apply(SetRound{Round: Round{ID: "round-1", SessionID: "s1", MediatorID: "p1", Status: RoundStatusActive}})

	store.Apply(MediatorTransferred{ParticipantID: "p2"})

	round := store.Round()
	require.NotNil(t, round)
	require.Equal(t, "p2", round.MediatorID)

	// Transfers to unknown participants are ignored.
	store.Apply(MediatorTransferred{ParticipantID: "ghost"})
	require.Equal(t, "p2", store.Round().MediatorID)
}

func TestAccessorsReturnCopies(t *testing.T) {
	store := newTestStore()
	store.Apply(joinAt("p1", 1000))
	store.Apply(SetRound{Round: Round{ID: "round-1", SessionID: "s1", Status: RoundStatusActive}})

	participants := store.Participants()
	participants["p1"] = Participant{ID: "p1", Score: 999}
	require.Equal(t, 0, store.Participants()["p1"].Score)

	round := store.Round()
	round.Status = RoundStatusEnded
	require.Equal(t, RoundStatusActive, store.Round().Status)
}

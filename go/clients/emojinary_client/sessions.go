package emojinary_client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AvaxArrogant/Emojinary-sub000/go/internal/game/state"
	"github.com/google/uuid"
)

// wireParticipant mirrors the authority's participant shape. Present is a
// pointer because older server builds omit it; a missing value means the
// participant is present.
type wireParticipant struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Score       int        `json:"score"`
	Present     *bool      `json:"present,omitempty"`
	JoinedAt    *time.Time `json:"joined_at,omitempty"`
}

type wireSnapshot struct {
	Session      *state.Session             `json:"session"`
	Participants map[string]wireParticipant `json:"participants"`
	CurrentRound *state.Round               `json:"current_round,omitempty"`
	Revision     int64                      `json:"revision"`
}

type joinRequest struct {
	DisplayName string `json:"display_name"`
}

type participantRequest struct {
	ParticipantID string `json:"participant_id"`
}

type submitRequest struct {
	ParticipantID  string `json:"participant_id"`
	Text           string `json:"text"`
	IdempotencyKey string `json:"idempotency_key"`
}

// JoinResult is the authority's confirmation of a join.
type JoinResult struct {
	Session     state.Session     `json:"session"`
	Participant state.Participant `json:"participant"`
}

// Snapshot fetches the full point-in-time session state. Idempotent; the
// revision field gates merging on the caller side.
func (c *EmojinaryClient) Snapshot(ctx context.Context, sessionID string) (*state.Snapshot, error) {
	body, err := c.Get(ctx, sessionsPath+sessionID+snapshotSuffix)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(body)
}

// Join adds a participant to a session.
func (c *EmojinaryClient) Join(ctx context.Context, sessionID, displayName string) (*JoinResult, error) {
	body, err := c.PostJSON(ctx, sessionsPath+sessionID+joinSuffix, joinRequest{DisplayName: displayName})
	if err != nil {
		return nil, err
	}
	var result JoinResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode join response: %w", err)
	}
	return &result, nil
}

// StartGame asks the authority to move the session out of the lobby. Only
// the mediator's request succeeds; others get a 403.
func (c *EmojinaryClient) StartGame(ctx context.Context, sessionID, participantID string) (*state.Session, error) {
	body, err := c.PostJSON(ctx, sessionsPath+sessionID+startSuffix, participantRequest{ParticipantID: participantID})
	if err != nil {
		return nil, err
	}
	var session state.Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to decode start response: %w", err)
	}
	return &session, nil
}

// Leave removes a participant from a session.
func (c *EmojinaryClient) Leave(ctx context.Context, sessionID, participantID string) error {
	_, err := c.PostJSON(ctx, sessionsPath+sessionID+leaveSuffix, participantRequest{ParticipantID: participantID})
	return err
}

// Refresh forces the authority to rebuild and return a fresh snapshot. Used
// by the manual-refresh path after the poller has halted.
func (c *EmojinaryClient) Refresh(ctx context.Context, sessionID string) (*state.Snapshot, error) {
	body, err := c.PostJSON(ctx, sessionsPath+sessionID+refreshSuffix, nil)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(body)
}

// SubmitResponse submits a phrase guess for the current round. A
// client-generated idempotency key keeps duplicate deliveries from recording
// two responses when a retry overlaps an in-flight call.
func (c *EmojinaryClient) SubmitResponse(ctx context.Context, sessionID, participantID, text string) (*state.Response, error) {
	req := submitRequest{
		ParticipantID:  participantID,
		Text:           text,
		IdempotencyKey: uuid.New().String(),
	}
	body, err := c.PostJSON(ctx, sessionsPath+sessionID+responsesPath, req)
	if err != nil {
		return nil, err
	}
	var response state.Response
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode submit response: %w", err)
	}
	return &response, nil
}

func decodeSnapshot(body []byte) (*state.Snapshot, error) {
	var wire wireSnapshot
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	snapshot := &state.Snapshot{
		Session:      wire.Session,
		CurrentRound: wire.CurrentRound,
		Revision:     wire.Revision,
	}
	if wire.Participants != nil {
		snapshot.Participants = make(map[string]state.Participant, len(wire.Participants))
		for id, wp := range wire.Participants {
			snapshot.Participants[id] = participantFromWire(id, wp)
		}
	}
	return snapshot, nil
}

// participantFromWire applies explicit defaults for optional fields:
// present defaults to true, a missing join time stays zero so the store can
// stamp it with its own clock.
func participantFromWire(id string, wp wireParticipant) state.Participant {
	p := state.Participant{
		ID:          wp.ID,
		DisplayName: wp.DisplayName,
		Score:       wp.Score,
		Present:     true,
	}
	if p.ID == "" {
		p.ID = id
	}
	if wp.Present != nil {
		p.Present = *wp.Present
	}
	if wp.JoinedAt != nil {
		p.JoinedAt = *wp.JoinedAt
	}
	return p
}

package emojinary_client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AvaxArrogant/Emojinary-sub000/go/clients"
	"github.com/stretchr/testify/require"
)

func TestSnapshotDecodesAndDefaults(t *testing.T) {
	joined := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/sessions/s1/snapshot", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"session": {"id": "s1", "status": "ACTIVE", "round_index": 2, "max_rounds": 5, "revision": 17},
			"participants": {
				"p1": {"id": "p1", "display_name": "alice", "score": 3, "joined_at": "2025-06-01T12:00:00Z"},
				"p2": {"display_name": "bob", "present": false}
			},
			"current_round": {"id": "r2", "session_id": "s1", "index": 2, "mediator_id": "p1", "prompt": "🎬🦈", "status": "ACTIVE"},
			"revision": 17
		}`))
	}))
	defer server.Close()

	client := NewEmojinaryClient(server.URL)
	snapshot, err := client.Snapshot(context.Background(), "s1")
	require.NoError(t, err)

	require.Equal(t, int64(17), snapshot.Revision)
	require.Equal(t, "s1", snapshot.Session.ID)
	require.Equal(t, "🎬🦈", snapshot.CurrentRound.Prompt)

	alice := snapshot.Participants["p1"]
	require.True(t, alice.Present, "missing present field defaults to true")
	require.Equal(t, joined, alice.JoinedAt)
	require.Equal(t, 3, alice.Score)

	bob := snapshot.Participants["p2"]
	require.Equal(t, "p2", bob.ID, "missing id falls back to the map key")
	require.False(t, bob.Present, "explicit present=false is preserved")
	require.True(t, bob.JoinedAt.IsZero(), "missing join time left for the store to stamp")
}

func TestJoinPostsDisplayName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/sessions/s1/join", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "alice", req["display_name"])

		_, _ = w.Write([]byte(`{
			"session": {"id": "s1", "status": "LOBBY", "revision": 4},
			"participant": {"id": "p1", "display_name": "alice", "present": true}
		}`))
	}))
	defer server.Close()

	client := NewEmojinaryClient(server.URL)
	result, err := client.Join(context.Background(), "s1", "alice")
	require.NoError(t, err)
	require.Equal(t, "p1", result.Participant.ID)
	require.Equal(t, int64(4), result.Session.Revision)
}

func TestSubmitResponseCarriesIdempotencyKey(t *testing.T) {
	var keys []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/sessions/s1/responses", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req["idempotency_key"])
		keys = append(keys, req["idempotency_key"])

		_, _ = w.Write([]byte(`{"id": "resp-1", "participant_id": "p1", "text": "jaws", "similarity": 0.92, "correct": true}`))
	}))
	defer server.Close()

	client := NewEmojinaryClient(server.URL)
	response, err := client.SubmitResponse(context.Background(), "s1", "p1", "jaws")
	require.NoError(t, err)
	require.Equal(t, "resp-1", response.ID)
	require.True(t, response.Correct)

	_, err = client.SubmitResponse(context.Background(), "s1", "p1", "jaws")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.NotEqual(t, keys[0], keys[1], "each submit generates a fresh key")
}

func TestErrorBodyClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   clients.ErrorKind
	}{
		{http.StatusForbidden, clients.KindAuth},
		{http.StatusNotFound, clients.KindNotFound},
		{http.StatusConflict, clients.KindConflict},
		{http.StatusTooManyRequests, clients.KindRateLimited},
		{http.StatusServiceUnavailable, clients.KindServer},
		{http.StatusBadRequest, clients.KindClient},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error": "structured message"}`))
		}))

		client := NewEmojinaryClient(server.URL)
		_, err := client.Snapshot(context.Background(), "s1")
		require.Error(t, err)

		var apiErr *clients.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, tc.kind, apiErr.Kind, "status %d", tc.status)
		require.Equal(t, tc.status, apiErr.StatusCode)
		require.Equal(t, "structured message", apiErr.Message)

		server.Close()
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // refuse all connections

	client := NewEmojinaryClient(server.URL)
	_, err := client.Snapshot(context.Background(), "s1")
	require.Error(t, err)

	var apiErr *clients.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, clients.KindTransient, apiErr.Kind)
	require.Zero(t, apiErr.StatusCode)
	require.True(t, clients.IsRetryable(err))
}

func TestPingMeasuresLatency(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer server.Close()

	client := NewEmojinaryClient(server.URL)
	latency, err := client.Ping(context.Background())
	require.NoError(t, err)
	require.Greater(t, latency, time.Duration(0))
}

func TestLeaveReturnsClassifiedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "no such session"}`))
	}))
	defer server.Close()

	client := NewEmojinaryClient(server.URL)
	err := client.Leave(context.Background(), "missing", "p1")

	var apiErr *clients.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, clients.KindNotFound, apiErr.Kind)
}

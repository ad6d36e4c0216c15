package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AvaxArrogant/Emojinary-sub000/go/clients/emojinary_client"
	"github.com/AvaxArrogant/Emojinary-sub000/go/internal/game/backoff"
	"github.com/AvaxArrogant/Emojinary-sub000/go/internal/game/connmon"
	"github.com/AvaxArrogant/Emojinary-sub000/go/internal/game/loading"
	"github.com/AvaxArrogant/Emojinary-sub000/go/internal/game/poller"
	"github.com/AvaxArrogant/Emojinary-sub000/go/internal/game/retry"
	"github.com/AvaxArrogant/Emojinary-sub000/go/internal/game/state"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Operation ids for the discrete user-triggered calls.
const (
	OpJoin      = "join"
	OpStartGame = "start-game"
	OpRefresh   = "refresh"
	OpSubmit    = "submit-response"
	OpLeave     = "leave"
)

// API defines what the app layer needs from the authority client.
type API interface {
	Snapshot(ctx context.Context, sessionID string) (*state.Snapshot, error)
	Join(ctx context.Context, sessionID, displayName string) (*emojinary_client.JoinResult, error)
	StartGame(ctx context.Context, sessionID, participantID string) (*state.Session, error)
	Leave(ctx context.Context, sessionID, participantID string) error
	Refresh(ctx context.Context, sessionID string) (*state.Snapshot, error)
	SubmitResponse(ctx context.Context, sessionID, participantID, text string) (*state.Response, error)
	Ping(ctx context.Context) (time.Duration, error)
}

// Config holds the app-level wiring settings.
type Config struct {
	SessionID        string
	Poller           poller.Config
	Monitor          connmon.Config
	OperationPolicy  backoff.Policy
	OperationTimeout time.Duration
}

func DefaultConfig(sessionID string) Config {
	return Config{
		SessionID:        sessionID,
		Poller:           poller.DefaultConfig(),
		Monitor:          connmon.DefaultConfig(),
		OperationPolicy:  backoff.DefaultPolicy(),
		OperationTimeout: 8 * time.Second,
	}
}

// App composes the sync core: one store, one retry manager, one timeout
// coordinator, one poller and one connection monitor, all explicitly
// constructed and torn down together. Every user-triggered operation runs
// through the retry manager under a loading deadline and merges its result
// into the store before returning.
type App struct {
	api     API
	config  Config
	clock   clockwork.Clock
	store   *state.Store
	retries *retry.Manager
	loading *loading.Coordinator
	poller  *poller.Poller
	monitor *connmon.Monitor

	mu            sync.Mutex
	participantID string
}

func NewApp(api API, cfg Config, clock clockwork.Clock) *App {
	a := &App{
		api:     api,
		config:  cfg,
		clock:   clock,
		store:   state.NewStore(clock),
		retries: retry.NewManager(clock),
		loading: loading.NewCoordinator(clock),
	}
	a.monitor = connmon.NewMonitor(api, cfg.Monitor, clock)
	a.poller = poller.NewPoller(
		snapshotProvider{a},
		a.store,
		cfg.Poller,
		poller.Callbacks{
			OnDegraded: func(err error) {
				log.Warn().Err(err).Msg("connection issues, retrying in background")
			},
			OnHalted: func(err error) {
				a.monitor.SetConnected(false)
			},
			OnRecovered: func() {
				a.monitor.SetConnected(true)
			},
		},
		clock,
	)
	return a
}

// snapshotProvider adapts the API to the poller's provider contract by
// binding the configured session id.
type snapshotProvider struct {
	app *App
}

func (p snapshotProvider) Snapshot(ctx context.Context) (*state.Snapshot, error) {
	return p.app.api.Snapshot(ctx, p.app.config.SessionID)
}

// Start begins the background reconciliation and monitoring loops.
func (a *App) Start(ctx context.Context) error {
	if err := a.poller.Start(ctx); err != nil {
		return err
	}
	if err := a.monitor.Start(ctx); err != nil {
		_ = a.poller.Stop()
		return err
	}
	return nil
}

// Stop tears down the background loops and cancels outstanding deadline
// timers.
func (a *App) Stop() {
	if err := a.poller.Stop(); err != nil {
		log.Debug().Err(err).Msg("poller stop")
	}
	if err := a.monitor.Stop(); err != nil {
		log.Debug().Err(err).Msg("monitor stop")
	}
	a.loading.Reset()
}

// Store exposes the canonical local state for the UI layer.
func (a *App) Store() *state.Store {
	return a.store
}

// Retries exposes per-operation runtime state (attempt counts, countdowns,
// exhaustion) for the UI layer.
func (a *App) Retries() *retry.Manager {
	return a.retries
}

// Loading exposes the timeout coordinator for the UI layer.
func (a *App) Loading() *loading.Coordinator {
	return a.loading
}

// Monitor exposes the connection monitor for the UI layer.
func (a *App) Monitor() *connmon.Monitor {
	return a.monitor
}

// ParticipantID returns the local player's id once joined.
func (a *App) ParticipantID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.participantID
}

// Join enrolls the local player in the session.
func (a *App) Join(ctx context.Context, displayName string) (*state.Participant, error) {
	var joined *state.Participant
	err := a.execute(ctx, OpJoin, func(opCtx context.Context) (any, error) {
		return a.api.Join(opCtx, a.config.SessionID, displayName)
	}, func(result any) {
		res, ok := result.(*emojinary_client.JoinResult)
		if !ok || res == nil {
			return
		}
		a.store.Apply(state.SetSession{Session: res.Session})
		a.store.Apply(state.ParticipantJoined{Participant: res.Participant})
		a.mu.Lock()
		a.participantID = res.Participant.ID
		a.mu.Unlock()
		participant := res.Participant
		joined = &participant
	})
	if err != nil {
		return nil, err
	}
	return joined, nil
}

// StartGame asks the authority to begin the first round. Only the mediator
// succeeds; the authority's 403 surfaces as a non-retried auth error.
func (a *App) StartGame(ctx context.Context) (*state.Session, error) {
	participantID := a.ParticipantID()
	if participantID == "" {
		return nil, fmt.Errorf("cannot start game before joining")
	}
	var started *state.Session
	err := a.execute(ctx, OpStartGame, func(opCtx context.Context) (any, error) {
		return a.api.StartGame(opCtx, a.config.SessionID, participantID)
	}, func(result any) {
		session, ok := result.(*state.Session)
		if !ok || session == nil {
			return
		}
		a.store.Apply(state.SetSession{Session: *session})
		started = session
	})
	if err != nil {
		return nil, err
	}
	return started, nil
}

// Refresh forces a fresh snapshot and re-enters a halted polling loop. This
// is the user's recovery path after a persistent connectivity error.
func (a *App) Refresh(ctx context.Context) error {
	err := a.execute(ctx, OpRefresh, func(opCtx context.Context) (any, error) {
		return a.api.Refresh(opCtx, a.config.SessionID)
	}, func(result any) {
		snapshot, ok := result.(*state.Snapshot)
		if !ok || snapshot == nil {
			return
		}
		a.mergeSnapshot(snapshot)
		a.poller.Resume()
		a.monitor.SetConnected(true)
	})
	return err
}

// SubmitGuess submits a phrase guess for the current round.
func (a *App) SubmitGuess(ctx context.Context, text string) (*state.Response, error) {
	participantID := a.ParticipantID()
	if participantID == "" {
		return nil, fmt.Errorf("cannot submit a guess before joining")
	}
	var recorded *state.Response
	err := a.execute(ctx, OpSubmit, func(opCtx context.Context) (any, error) {
		return a.api.SubmitResponse(opCtx, a.config.SessionID, participantID, text)
	}, func(result any) {
		response, ok := result.(*state.Response)
		if !ok || response == nil {
			return
		}
		a.store.Apply(state.ResponseRecorded{Response: *response})
		recorded = response
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

// Leave withdraws the local player and clears local state if nobody is left.
func (a *App) Leave(ctx context.Context) error {
	participantID := a.ParticipantID()
	if participantID == "" {
		return fmt.Errorf("not in a session")
	}
	err := a.execute(ctx, OpLeave, func(opCtx context.Context) (any, error) {
		return nil, a.api.Leave(opCtx, a.config.SessionID, participantID)
	}, func(any) {
		a.store.Apply(state.ParticipantLeft{ParticipantID: participantID})
		a.mu.Lock()
		a.participantID = ""
		a.mu.Unlock()
	})
	return err
}

// mergeSnapshot feeds a snapshot through the store the same way the poller
// does; the store's revision gate makes stale merges a no-op.
func (a *App) mergeSnapshot(snapshot *state.Snapshot) {
	if snapshot == nil || snapshot.Session == nil {
		return
	}
	revision := snapshot.Revision
	if revision == 0 {
		revision = snapshot.Session.Revision
	}
	session := *snapshot.Session
	session.Revision = revision
	a.store.Apply(state.SetSession{Session: session})
	if len(snapshot.Participants) > 0 {
		a.store.Apply(state.SetParticipants{Participants: snapshot.Participants})
	}
	if snapshot.CurrentRound != nil {
		a.store.Apply(state.SetRound{Round: *snapshot.CurrentRound})
	}
}

// RetryOperation manually re-runs an exhausted operation.
func (a *App) RetryOperation(ctx context.Context, id string) error {
	_, err := a.retries.RetryOperation(ctx, id)
	return err
}

// execute registers the operation, runs it under a loading deadline with
// retries, and merges the result via onSuccess before the retry manager
// reports the operation idle.
func (a *App) execute(ctx context.Context, id string, run retry.Operation, onSuccess func(result any)) error {
	err := a.retries.Register(id, run, retry.Policy{Policy: a.config.OperationPolicy}, retry.Callbacks{
		OnSuccess: onSuccess,
		OnFailure: func(err error) {
			log.Warn().Str("operation", id).Err(err).Msg("operation exhausted retries")
		},
	})
	if err != nil {
		return err
	}

	a.loading.StartLoading(id, loading.Options{
		Timeout: a.config.OperationTimeout,
		OnTimeout: func(id string) {
			log.Info().Str("operation", id).Msg("operation is taking longer than expected")
		},
	})
	defer a.loading.StopLoading(id)

	_, err = a.retries.ExecuteWithRetry(ctx, id)
	return err
}

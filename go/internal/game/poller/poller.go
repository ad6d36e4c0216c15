package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AvaxArrogant/Emojinary-sub000/go/clients"
	"github.com/AvaxArrogant/Emojinary-sub000/go/internal/game/backoff"
	"github.com/AvaxArrogant/Emojinary-sub000/go/internal/game/state"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// SnapshotProvider defines what the poller needs from the API client.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*state.Snapshot, error)
}

// Config holds the reconciliation loop settings.
type Config struct {
	Interval       time.Duration
	MaxInterval    time.Duration
	MaxRetries     int
	DegradedAfter  int
	JitterFactor   float64
	RateLimitFloor time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:       3 * time.Second,
		MaxInterval:    time.Minute,
		MaxRetries:     5,
		DegradedAfter:  3,
		JitterFactor:   0.2,
		RateLimitFloor: 10 * time.Second,
	}
}

// Callbacks surface poller transitions to the UI layer. OnDegraded fires
// once when consecutive failures cross the intermediate threshold, OnHalted
// once when polling gives up, OnRecovered when a poll succeeds after either.
type Callbacks struct {
	OnSnapshot  func(snapshot *state.Snapshot)
	OnDegraded  func(err error)
	OnHalted    func(err error)
	OnRecovered func()
}

// Poller periodically reconciles the local store against the authority.
// Individual failures are absorbed silently below the degraded threshold;
// after MaxRetries consecutive failures it halts and waits for the manual
// refresh path to call Resume.
type Poller struct {
	provider  SnapshotProvider
	store     *state.Store
	config    Config
	callbacks Callbacks
	clock     clockwork.Clock

	mu         sync.Mutex
	running    bool
	halted     bool
	degraded   bool
	retryCount int
	stopChan   chan struct{}
	wakeChan   chan struct{}
	wg         sync.WaitGroup
}

func NewPoller(provider SnapshotProvider, store *state.Store, cfg Config, callbacks Callbacks, clock clockwork.Clock) *Poller {
	return &Poller{
		provider:  provider,
		store:     store,
		config:    cfg,
		callbacks: callbacks,
		clock:     clock,
		wakeChan:  make(chan struct{}, 1),
	}
}

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller already running")
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)

	log.Info().Dur("interval", p.config.Interval).Msg("sync poller started")
	return nil
}

func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller not running")
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	log.Info().Msg("sync poller stopped")
	return nil
}

// Halted reports whether polling has given up pending a manual refresh.
func (p *Poller) Halted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.halted
}

// ConsecutiveFailures returns the current failure streak.
func (p *Poller) ConsecutiveFailures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retryCount
}

// Resume clears the halt and failure state and wakes the loop for an
// immediate poll. This is the manual-refresh re-entry point.
func (p *Poller) Resume() {
	p.mu.Lock()
	p.halted = false
	p.degraded = false
	p.retryCount = 0
	p.mu.Unlock()
	select {
	case p.wakeChan <- struct{}{}:
	default:
	}
	log.Debug().Msg("poller resumed by manual refresh")
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	// Reconcile immediately on start, then on the schedule.
	delay := time.Duration(0)
	for {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-p.stopChan:
				return
			case <-p.wakeChan:
			case <-p.clock.After(delay):
			}
		}

		p.mu.Lock()
		halted := p.halted
		p.mu.Unlock()
		if halted {
			// Only a Resume wake can restart the loop. The backoff delay
			// from the failed run must not apply to the resumed poll.
			select {
			case <-ctx.Done():
				return
			case <-p.stopChan:
				return
			case <-p.wakeChan:
				delay = 0
				continue
			}
		}

		err := p.PollOnce(ctx)
		delay = p.nextDelay(err)
	}
}

// PollOnce performs one reconciliation cycle: request a snapshot, compare
// revisions, merge or discard, and update the failure streak.
func (p *Poller) PollOnce(ctx context.Context) error {
	snapshot, err := p.provider.Snapshot(ctx)
	if err != nil {
		p.recordFailure(err)
		return err
	}
	p.recordSuccess()
	p.merge(snapshot)
	return nil
}

// merge feeds the accepted parts of a snapshot into the store. Participants
// are compared by key set first so an unchanged roster does not churn the
// store.
func (p *Poller) merge(snapshot *state.Snapshot) {
	if snapshot == nil || snapshot.Session == nil {
		log.Warn().Msg("discarded snapshot without session")
		return
	}
	revision := snapshot.Revision
	if revision == 0 {
		revision = snapshot.Session.Revision
	}
	stored := p.store.Revision()
	if stored != 0 && revision <= stored {
		log.Debug().
			Int64("incoming", revision).
			Int64("stored", stored).
			Msg("snapshot revision not newer, discarded")
		return
	}

	session := *snapshot.Session
	session.Revision = revision
	p.store.Apply(state.SetSession{Session: session})

	if p.participantsChanged(snapshot.Participants) {
		p.store.Apply(state.SetParticipants{Participants: snapshot.Participants})
	}
	if snapshot.CurrentRound != nil {
		p.store.Apply(state.SetRound{Round: *snapshot.CurrentRound})
	}

	if p.callbacks.OnSnapshot != nil {
		p.callbacks.OnSnapshot(snapshot)
	}
}

// participantsChanged compares the incoming roster against the stored one by
// key set and per-entry fields.
func (p *Poller) participantsChanged(incoming map[string]state.Participant) bool {
	if len(incoming) == 0 {
		return false
	}
	current := p.store.Participants()
	if len(current) != len(incoming) {
		return true
	}
	for id, next := range incoming {
		prev, ok := current[id]
		if !ok {
			return true
		}
		if prev.DisplayName != next.DisplayName ||
			prev.Score != next.Score ||
			prev.Present != next.Present ||
			!prev.JoinedAt.Equal(next.JoinedAt) {
			return true
		}
	}
	return false
}

func (p *Poller) recordFailure(err error) {
	p.mu.Lock()
	p.retryCount++
	count := p.retryCount
	wasDegraded := p.degraded
	if count >= p.config.DegradedAfter {
		p.degraded = true
	}
	degraded := p.degraded
	halted := false
	if count >= p.config.MaxRetries {
		p.halted = true
		halted = true
	}
	p.mu.Unlock()

	log.Warn().Err(err).Int("consecutive_failures", count).Msg("snapshot poll failed")

	if halted {
		log.Error().Err(err).Int("failures", count).Msg("polling halted, manual refresh required")
		if p.callbacks.OnHalted != nil {
			p.callbacks.OnHalted(err)
		}
		return
	}
	if degraded && !wasDegraded && p.callbacks.OnDegraded != nil {
		p.callbacks.OnDegraded(err)
	}
}

func (p *Poller) recordSuccess() {
	p.mu.Lock()
	hadTrouble := p.retryCount > 0 || p.degraded
	p.retryCount = 0
	p.degraded = false
	p.mu.Unlock()

	if hadTrouble && p.callbacks.OnRecovered != nil {
		p.callbacks.OnRecovered()
	}
}

// nextDelay computes the wait before the next cycle: the nominal interval
// after success, exponential backoff with jitter after a failure, with the
// mandatory floor on rate-limit responses.
func (p *Poller) nextDelay(err error) time.Duration {
	if err == nil {
		return p.config.Interval
	}

	p.mu.Lock()
	attempt := p.retryCount - 1
	p.mu.Unlock()
	if attempt < 0 {
		attempt = 0
	}

	policy := backoff.Policy{
		BaseDelay:    p.config.Interval,
		MaxDelay:     p.config.MaxInterval,
		Factor:       2,
		JitterFactor: p.config.JitterFactor,
	}
	delay := policy.JitteredDelay(attempt)
	if clients.IsRateLimited(err) && delay < p.config.RateLimitFloor {
		delay = p.config.RateLimitFloor
	}
	return delay
}

package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AvaxArrogant/Emojinary-sub000/go/clients"
	"github.com/AvaxArrogant/Emojinary-sub000/go/internal/game/backoff"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Operation is a discrete named call against the authority (join, start,
// refresh, submit).
type Operation func(ctx context.Context) (any, error)

// Predicate decides whether a failed attempt is eligible for another try.
type Predicate func(err error, attempt int) bool

// DefaultPredicate retries transport failures, timeouts, 5xx and 429.
func DefaultPredicate(err error, _ int) bool {
	return clients.IsRetryable(err)
}

// Policy combines the shared backoff schedule with a retry predicate. A nil
// Predicate falls back to DefaultPredicate.
type Policy struct {
	backoff.Policy
	Predicate Predicate
}

// Callbacks are invoked at the edges of an execution. OnSuccess runs before
// the retrying flag clears so callers can merge results into the state store
// before any UI re-render observes the idle state.
type Callbacks struct {
	OnSuccess        func(result any)
	OnFailure        func(err error)
	OnRetryScheduled func(attempt int, delay time.Duration)
}

// Runtime is the observable state of one registered operation.
type Runtime struct {
	Attempt     int
	IsRetrying  bool
	LastError   error
	Exhausted   bool
	NextRetryAt time.Time
}

type operation struct {
	run       Operation
	policy    Policy
	callbacks Callbacks
	runtime   Runtime
	cancelCh  chan struct{}
}

// Manager executes registered operations with per-operation retry policies.
// At most one live execution per id; a second ExecuteWithRetry for an id that
// is already retrying is rejected.
type Manager struct {
	mu    sync.Mutex
	ops   map[string]*operation
	clock clockwork.Clock
}

func NewManager(clock clockwork.Clock) *Manager {
	return &Manager{
		ops:   make(map[string]*operation),
		clock: clock,
	}
}

// Register adds a named operation. Registering an id twice replaces the
// previous registration unless it is mid-retry.
func (m *Manager) Register(id string, run Operation, policy Policy, callbacks Callbacks) error {
	if id == "" || run == nil {
		return fmt.Errorf("operation id and function are required")
	}
	if policy.Predicate == nil {
		policy.Predicate = DefaultPredicate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.ops[id]; ok && existing.runtime.IsRetrying {
		return fmt.Errorf("operation %q is currently retrying", id)
	}
	m.ops[id] = &operation{run: run, policy: policy, callbacks: callbacks}
	return nil
}

// Unregister discards an operation and cancels any pending scheduled attempt.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op, ok := m.ops[id]; ok && op.cancelCh != nil {
		close(op.cancelCh)
		op.cancelCh = nil
	}
	delete(m.ops, id)
}

// Runtime returns a copy of the operation's runtime state.
func (m *Manager) Runtime(id string) (Runtime, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	if !ok {
		return Runtime{}, false
	}
	return op.runtime, true
}

// NextRetryIn returns how long until the next scheduled attempt, computed
// from the scheduled deadline and the injected clock. Zero when no attempt
// is pending.
func (m *Manager) NextRetryIn(id string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	if !ok || !op.runtime.IsRetrying || op.runtime.NextRetryAt.IsZero() {
		return 0
	}
	remaining := op.runtime.NextRetryAt.Sub(m.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ExecuteWithRetry runs the operation, retrying per its policy. Attempt 0
// runs immediately. Failures never escape this boundary: on exhaustion or a
// non-retryable error the failure callback fires, the runtime is marked
// exhausted and the result is nil. A non-nil error is returned only for
// usage mistakes (unknown id, re-entrant call).
func (m *Manager) ExecuteWithRetry(ctx context.Context, id string) (any, error) {
	m.mu.Lock()
	op, ok := m.ops[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("operation %q is not registered", id)
	}
	if op.runtime.IsRetrying {
		m.mu.Unlock()
		return nil, fmt.Errorf("operation %q is already executing", id)
	}
	op.runtime = Runtime{IsRetrying: true}
	cancelCh := make(chan struct{})
	op.cancelCh = cancelCh
	m.mu.Unlock()

	for attempt := 0; ; attempt++ {
		m.setAttempt(op, cancelCh, attempt)

		result, err := op.run(ctx)
		if err == nil {
			// Success callback first, so the result is merged before
			// anyone observes the idle runtime.
			if op.callbacks.OnSuccess != nil {
				op.callbacks.OnSuccess(result)
			}
			m.finish(op, cancelCh, nil, false)
			return result, nil
		}

		m.setLastError(op, cancelCh, err)
		retryable := op.policy.Predicate(err, attempt)
		if !retryable || attempt >= op.policy.MaxAttempts {
			log.Warn().
				Str("operation", id).
				Int("attempts", attempt+1).
				Bool("retryable", retryable).
				Err(err).
				Msg("operation failed permanently")
			m.finish(op, cancelCh, err, true)
			if op.callbacks.OnFailure != nil {
				op.callbacks.OnFailure(err)
			}
			return nil, nil
		}

		delay := op.policy.JitteredDelay(attempt)
		if clients.IsRateLimited(err) && delay < op.policy.RateLimitFloor {
			delay = op.policy.RateLimitFloor
		}
		m.setNextRetryAt(op, cancelCh, m.clock.Now().Add(delay))
		log.Debug().
			Str("operation", id).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("operation failed, retry scheduled")
		if op.callbacks.OnRetryScheduled != nil {
			op.callbacks.OnRetryScheduled(attempt+1, delay)
		}

		select {
		case <-m.clock.After(delay):
		case <-cancelCh:
			log.Debug().Str("operation", id).Msg("retry cancelled")
			m.finish(op, cancelCh, err, false)
			return nil, nil
		case <-ctx.Done():
			m.finish(op, cancelCh, ctx.Err(), false)
			return nil, nil
		}
	}
}

// RetryOperation resets the runtime state of an exhausted operation and
// re-invokes it. This is the manual-retry affordance.
func (m *Manager) RetryOperation(ctx context.Context, id string) (any, error) {
	m.mu.Lock()
	op, ok := m.ops[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("operation %q is not registered", id)
	}
	if op.runtime.IsRetrying {
		m.mu.Unlock()
		return nil, fmt.Errorf("operation %q is already executing", id)
	}
	op.runtime = Runtime{}
	m.mu.Unlock()
	return m.ExecuteWithRetry(ctx, id)
}

// CancelRetry stops any pending scheduled attempt and clears the retrying
// flag. An attempt whose network call is already in flight runs to
// completion; only the wait between attempts is interruptible.
func (m *Manager) CancelRetry(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	if !ok {
		return
	}
	if op.cancelCh != nil {
		close(op.cancelCh)
		op.cancelCh = nil
	}
	op.runtime.IsRetrying = false
	op.runtime.NextRetryAt = time.Time{}
}

// The runtime mutators all take the execution's own cancel channel and no-op
// when it no longer matches op.cancelCh. A cancelled execution can wake after
// a newer ExecuteWithRetry has claimed the operation; without the identity
// check its finish would clobber the live execution's runtime and clear the
// re-entrancy guard.

func (m *Manager) setAttempt(op *operation, cancelCh chan struct{}, attempt int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op.cancelCh != cancelCh {
		return
	}
	op.runtime.Attempt = attempt
	op.runtime.NextRetryAt = time.Time{}
}

func (m *Manager) setLastError(op *operation, cancelCh chan struct{}, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op.cancelCh != cancelCh {
		return
	}
	op.runtime.LastError = err
}

func (m *Manager) setNextRetryAt(op *operation, cancelCh chan struct{}, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op.cancelCh != cancelCh {
		return
	}
	op.runtime.NextRetryAt = at
}

func (m *Manager) finish(op *operation, cancelCh chan struct{}, err error, exhausted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op.cancelCh != cancelCh {
		return
	}
	op.runtime.IsRetrying = false
	op.runtime.Exhausted = exhausted
	op.runtime.LastError = err
	op.runtime.NextRetryAt = time.Time{}
	op.cancelCh = nil
}

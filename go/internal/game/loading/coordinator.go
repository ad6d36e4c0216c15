package loading

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Options configures one tracked operation. OnTimeout fires if the deadline
// elapses before StopLoading; the underlying call is left alone.
type Options struct {
	Timeout   time.Duration
	OnTimeout func(id string)
}

type entry struct {
	timer    clockwork.Timer
	cancelCh chan struct{}
	timedOut bool
}

// Coordinator tracks deadlines for in-flight operations. Taking too long is
// decoupled from failing: expiry only flips a flag and raises a UI signal,
// it never cancels or retries the call itself.
type Coordinator struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]*entry
}

func NewCoordinator(clock clockwork.Clock) *Coordinator {
	return &Coordinator{
		clock:   clock,
		entries: make(map[string]*entry),
	}
}

// StartLoading begins a deadline for the operation id, replacing any
// existing one for the same id.
func (c *Coordinator) StartLoading(id string, opts Options) {
	if opts.Timeout <= 0 {
		return
	}

	c.mu.Lock()
	if existing, ok := c.entries[id]; ok {
		c.release(existing)
	}
	e := &entry{
		timer:    c.clock.NewTimer(opts.Timeout),
		cancelCh: make(chan struct{}),
	}
	c.entries[id] = e
	c.mu.Unlock()

	go func() {
		select {
		case <-e.timer.Chan():
			c.mu.Lock()
			// The entry may have been stopped between the timer firing
			// and this goroutine running.
			if current, ok := c.entries[id]; !ok || current != e {
				c.mu.Unlock()
				return
			}
			e.timedOut = true
			c.mu.Unlock()

			log.Debug().Str("operation", id).Dur("timeout", opts.Timeout).Msg("operation deadline elapsed")
			if opts.OnTimeout != nil {
				opts.OnTimeout(id)
			}
		case <-e.cancelCh:
		}
	}()
}

// StopLoading clears the deadline and any timed-out flag for the id,
// regardless of whether the operation succeeded or failed.
func (c *Coordinator) StopLoading(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return
	}
	c.release(e)
	delete(c.entries, id)
}

// IsLoading reports whether a deadline is being tracked for the id.
func (c *Coordinator) IsLoading(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// HasTimedOut reports whether the id's deadline has elapsed without a
// StopLoading.
func (c *Coordinator) HasTimedOut(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return ok && e.timedOut
}

// TimedOut returns the ids of all operations past their deadline, sorted for
// stable presentation.
func (c *Coordinator) TimedOut() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, e := range c.entries {
		if e.timedOut {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Summary aggregates simultaneous timed-out operations into one consolidated
// message instead of one alert per operation. Empty when nothing is late.
func (c *Coordinator) Summary() string {
	ids := c.TimedOut()
	switch len(ids) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is taking longer than expected", ids[0])
	default:
		return fmt.Sprintf("%d operations are taking longer than expected", len(ids))
	}
}

// Reset stops every tracked deadline. Used on component teardown so no
// timers leak.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		c.release(e)
		delete(c.entries, id)
	}
}

// release stops and drains the timer and wakes the watcher goroutine.
// Callers must hold c.mu.
func (c *Coordinator) release(e *entry) {
	if !e.timer.Stop() {
		select {
		case <-e.timer.Chan():
		default:
		}
	}
	close(e.cancelCh)
}

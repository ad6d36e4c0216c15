package connmon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const rollingWindow = 10

// Prober defines what the monitor needs from the API client: a lightweight
// reachability probe returning round-trip latency.
type Prober interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Stability classifies the recent probe history.
type Stability string

const (
	StabilityStable   Stability = "STABLE"
	StabilityUnstable Stability = "UNSTABLE"
	StabilityPoor     Stability = "POOR"
)

// Alert names a user-facing connectivity signal. Each is independently
// dismissible; dismissal state lives in the monitor and is never persisted.
type Alert string

const (
	AlertOffline          Alert = "offline"
	AlertDisconnected     Alert = "disconnected"
	AlertSlow             Alert = "slow"
	AlertUnstable         Alert = "unstable"
	AlertPoor             Alert = "poor"
	AlertMultipleFailures Alert = "multiple-failures"
)

// Sample is the monitor's view after the latest probe. Quality is a pure
// function of the other fields and is recomputed on every sample.
type Sample struct {
	Latency             time.Duration
	ConsecutiveFailures int
	RollingAvgLatency   time.Duration
	Stability           Stability
	Quality             int
}

// Config holds the sampling cadence and thresholds.
type Config struct {
	Interval         time.Duration
	ProbeTimeout     time.Duration
	PoorThreshold    int
	OfflineThreshold int
}

func DefaultConfig() Config {
	return Config{
		Interval:         10 * time.Second,
		ProbeTimeout:     5 * time.Second,
		PoorThreshold:    2,
		OfflineThreshold: 6,
	}
}

// Monitor probes the authority on its own cadence, independent of the sync
// poller, and derives stability, quality and alert signals from the probe
// history.
type Monitor struct {
	prober Prober
	config Config
	clock  clockwork.Clock

	mu        sync.Mutex
	running   bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
	latencies []time.Duration
	sample    Sample
	probed    bool
	connected bool
	dismissed map[Alert]bool
	active    map[Alert]bool
}

func NewMonitor(prober Prober, cfg Config, clock clockwork.Clock) *Monitor {
	return &Monitor{
		prober:    prober,
		config:    cfg,
		clock:     clock,
		connected: true,
		dismissed: make(map[Alert]bool),
		active:    make(map[Alert]bool),
	}
}

func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("connection monitor already running")
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx)

	log.Info().Dur("interval", m.config.Interval).Msg("connection monitor started")
	return nil
}

func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("connection monitor not running")
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
	log.Info().Msg("connection monitor stopped")
	return nil
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	m.ProbeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-m.clock.After(m.config.Interval):
			m.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce issues one reachability probe under its own timeout and records
// the outcome.
func (m *Monitor) ProbeOnce(ctx context.Context) Sample {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	latency, err := m.prober.Ping(probeCtx)
	if err != nil {
		log.Debug().Err(err).Msg("reachability probe failed")
		return m.RecordFailure()
	}
	return m.RecordLatency(latency)
}

// RecordLatency records a successful probe round trip.
func (m *Monitor) RecordLatency(latency time.Duration) Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latencies = append(m.latencies, latency)
	if len(m.latencies) > rollingWindow {
		m.latencies = m.latencies[len(m.latencies)-rollingWindow:]
	}
	m.sample.Latency = latency
	m.sample.ConsecutiveFailures = 0
	m.probed = true
	m.recompute()
	return m.sample
}

// RecordFailure records a failed or timed-out probe.
func (m *Monitor) RecordFailure() Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sample.ConsecutiveFailures++
	m.probed = true
	m.recompute()
	return m.sample
}

// SetConnected records whether the sync layer currently holds a live session
// with the authority. The app layer flips this when the poller halts or
// recovers; reachability and session connectivity are separate signals.
func (m *Monitor) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected == connected {
		return
	}
	m.connected = connected
	m.recompute()
}

// Sample returns the monitor's latest view.
func (m *Monitor) Sample() Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sample
}

// Alerts returns the currently raised, undismissed alert signals.
func (m *Monitor) Alerts() map[Alert]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Alert]bool)
	for alert, raised := range m.active {
		if raised && !m.dismissed[alert] {
			out[alert] = true
		}
	}
	return out
}

// Dismiss hides an alert until its condition clears and re-raises.
func (m *Monitor) Dismiss(alert Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dismissed[alert] = true
}

func (m *Monitor) recompute() {
	s := &m.sample
	s.RollingAvgLatency = meanLatency(m.latencies)
	failures := s.ConsecutiveFailures

	switch {
	case failures >= m.config.PoorThreshold:
		s.Stability = StabilityPoor
	case failures > 1 || s.Latency > time.Second:
		s.Stability = StabilityUnstable
	default:
		s.Stability = StabilityStable
	}

	s.Quality = m.quality()
	m.updateAlerts()
}

// quality computes the 0-100 score: tiered latency penalties, a per-failure
// penalty and a stability penalty, clamped to the range. Offline forces 0
// and online-but-disconnected forces 10.
func (m *Monitor) quality() int {
	s := m.sample
	if s.ConsecutiveFailures >= m.config.OfflineThreshold {
		return 0
	}
	if !m.connected {
		return 10
	}

	score := 100
	latencyMs := s.Latency.Milliseconds()
	switch {
	case latencyMs > 1000:
		score -= 50
	case latencyMs > 500:
		score -= 30
	case latencyMs > 200:
		score -= 15
	case latencyMs > 100:
		score -= 5
	}
	score -= 15 * s.ConsecutiveFailures
	switch s.Stability {
	case StabilityPoor:
		score -= 30
	case StabilityUnstable:
		score -= 15
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// updateAlerts recomputes the named signals. A condition transitioning from
// clear to raised resets its dismissal so the alert shows again.
func (m *Monitor) updateAlerts() {
	s := m.sample
	conditions := map[Alert]bool{
		AlertOffline:          s.ConsecutiveFailures >= m.config.OfflineThreshold,
		AlertDisconnected:     !m.connected && s.ConsecutiveFailures < m.config.OfflineThreshold,
		AlertSlow:             m.probed && s.ConsecutiveFailures == 0 && s.Latency > time.Second,
		AlertUnstable:         s.Stability == StabilityUnstable,
		AlertPoor:             s.Stability == StabilityPoor,
		AlertMultipleFailures: s.ConsecutiveFailures > 1,
	}
	for alert, raised := range conditions {
		if raised && !m.active[alert] {
			delete(m.dismissed, alert)
		}
		m.active[alert] = raised
	}
}

func meanLatency(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	return total / time.Duration(len(latencies))
}

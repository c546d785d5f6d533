package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type State string

const (
	Online  State = "online"
	Offline State = "offline"
)

// Snapshot is the synchronously-readable connectivity state.
type Snapshot struct {
	State State
	Since time.Time
}

// Transition is a committed state change, published in order to every
// subscriber.
type Transition struct {
	To State
	At time.Time
}

// Probe reports raw transport reachability. The HTTP probe below is the
// production implementation; tests inject their own.
type Probe func(ctx context.Context) bool

// Source is the read-only view consumed by the scheduler, negotiator and
// sync queue.
type Source interface {
	Current() Snapshot
}

// Monitor tracks online/offline transitions. Raw probe flips are debounced:
// a new state must hold for the dwell time before a transition is committed
// and fanned out, so flapping links do not thrash dependent state machines.
type Monitor struct {
	probe    Probe
	interval time.Duration
	dwell    time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu           sync.Mutex
	state        State
	since        time.Time
	pending      State
	pendingSince time.Time
	subs         map[int]chan Transition
	nextSub      int
	closed       bool
}

type Option func(*Monitor)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// NewMonitor probes once to establish the initial state, per the startup
// contract: the monitor never begins in an assumed state.
func NewMonitor(probe Probe, interval, dwell time.Duration, opts ...Option) *Monitor {
	m := &Monitor{
		probe:    probe,
		interval: interval,
		dwell:    dwell,
		now:      time.Now,
		logger:   zerolog.Nop(),
		subs:     make(map[int]chan Transition),
	}
	for _, opt := range opts {
		opt(m)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.state = Offline
	if probe(initCtx) {
		m.state = Online
	}
	m.since = m.now()
	m.pending = m.state
	return m
}

// HTTPProbe builds a Probe that treats any successful response from url as
// reachability.
func HTTPProbe(client *http.Client, url string) Probe {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode < 500
	}
}

func (m *Monitor) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, Since: m.since}
}

// Subscribe returns an ordered transition channel and an unsubscribe func.
// Subscribers must drain promptly; the channel is buffered but never dropped
// from.
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Transition, 64)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Run drives the probe loop until ctx is done, then tears down all
// subscriptions.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer m.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			raw := Offline
			if m.probe(ctx) {
				raw = Online
			}
			m.Observe(raw)
		}
	}
}

// Observe feeds one raw reachability reading through the debounce. Exported
// so tests can drive the monitor without timers.
func (m *Monitor) Observe(raw State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if raw == m.state {
		m.pending = m.state
		return
	}

	if m.pending != raw {
		m.pending = raw
		m.pendingSince = now
		return
	}

	if now.Sub(m.pendingSince) < m.dwell {
		return
	}

	m.state = raw
	m.since = now
	m.logger.Info().Str("state", string(raw)).Msg("connectivity transition")

	t := Transition{To: raw, At: now}
	for _, ch := range m.subs {
		ch <- t
	}
}

// Close closes every subscription channel. Idempotent.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

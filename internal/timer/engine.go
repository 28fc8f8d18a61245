package timer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Settings keys persisted across restarts.
const (
	SettingStartedAt = "started_at"
	SettingBaseTime  = "base_time"
)

// graphRingSize bounds the number of retained graph samples.
const graphRingSize = 120

// snapshotInterval is how often the running timer is sampled for the
// historical graph.
const snapshotInterval = time.Minute

// Store is what the engine needs from the persistence layer. Writes are a
// best-effort audit trail: failures are logged and never roll back memory.
type Store interface {
	UpsertSetting(key string, value int64) error
	InsertGraphSample(ts, endingAt time.Time) error
	PruneGraphSamples(keep int) error
}

// Broadcaster fans state changes out to all connected overlays.
type Broadcaster interface {
	BroadcastTimer(endingAt time.Time, forced bool)
	BroadcastUptime(startedAt time.Time)
	BroadcastIncentives(inc Incentives)
}

// State is the authoritative countdown state. EndingAt is always an absolute
// instant; every mutation adds to it or replaces it, never stores a duration.
type State struct {
	IsStarted bool
	StartedAt time.Time
	EndingAt  time.Time
	BaseTime  float64
}

// ViewState is the snapshot a late-joining overlay needs to render without
// replaying history.
type ViewState struct {
	EndingAt   time.Time
	StartedAt  time.Time
	Incentives Incentives
}

// Engine owns the timer state. All mutation goes through its methods; a
// mutex serializes writers so arrival order defines event order. Memory is
// mutated before any persistence or broadcast I/O is issued, so readers
// always observe the newest value regardless of I/O latency.
type Engine struct {
	mu    sync.Mutex
	state State

	calc      Calculator
	store     Store
	broadcast Broadcaster
	clock     clockwork.Clock
}

func NewEngine(initial State, calc Calculator, store Store, broadcast Broadcaster, clock clockwork.Clock) *Engine {
	return &Engine{
		state:     initial,
		calc:      calc,
		store:     store,
		broadcast: broadcast,
		clock:     clock,
	}
}

// Start begins the countdown with the given initial duration. A second call
// while already started is a full no-op: StartedAt is set once and EndingAt
// is untouched.
func (e *Engine) Start(seconds float64) {
	e.mu.Lock()
	if e.state.IsStarted {
		e.mu.Unlock()
		log.Info().Msg("timer already started, ignoring start")
		return
	}
	e.state.IsStarted = true
	e.state.StartedAt = e.clock.Now()
	startedAt := e.state.StartedAt
	e.mu.Unlock()

	e.ForceTime(seconds)
	e.broadcast.BroadcastUptime(startedAt)
	e.persistSetting(SettingStartedAt, startedAt.UnixMilli())

	log.Info().Time("started_at", startedAt).Float64("seconds", seconds).Msg("timer started")
}

// ForceTime overrides the countdown to end the given seconds from now. The
// forced flag tells overlays to replace their local countdown instead of
// animating towards it. Permitted even before Start; the ?forcetimer command
// path applies its own started gate.
func (e *Engine) ForceTime(seconds float64) {
	e.mu.Lock()
	e.state.EndingAt = e.clock.Now().Add(durationOf(seconds))
	endingAt := e.state.EndingAt
	e.mu.Unlock()

	e.broadcast.BroadcastTimer(endingAt, true)
}

// AddTime extends the countdown by the given seconds and returns the new end
// instant so callers can record it in history rows. Unconditional: the
// "only while not expired" gate belongs to the contribution call sites.
func (e *Engine) AddTime(seconds float64) time.Time {
	e.mu.Lock()
	e.state.EndingAt = e.state.EndingAt.Add(durationOf(seconds))
	endingAt := e.state.EndingAt
	e.mu.Unlock()

	e.broadcast.BroadcastTimer(endingAt, false)
	log.Info().Float64("seconds", seconds).Time("ending_at", endingAt).Msg("added time")
	return endingAt
}

// UpdateBaseTime replaces the baseline seconds-per-sub and pushes a fresh
// incentives snapshot so overlays immediately advertise the new amounts.
// History rows already written keep the old value.
func (e *Engine) UpdateBaseTime(base float64) {
	e.mu.Lock()
	e.state.BaseTime = base
	e.mu.Unlock()

	e.broadcast.BroadcastIncentives(e.calc.Incentives(base))
	e.persistSetting(SettingBaseTime, int64(base))

	log.Info().Float64("base_time", base).Msg("base time updated")
}

// BaseTime returns the current baseline seconds-per-sub.
func (e *Engine) BaseTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.BaseTime
}

// IsStarted reports whether the countdown has ever been started.
func (e *Engine) IsStarted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.IsStarted
}

// Expired reports whether the countdown has already reached zero.
func (e *Engine) Expired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.EndingAt.Before(e.clock.Now())
}

// Snapshot returns the view state sent to late-joining overlays.
func (e *Engine) Snapshot() ViewState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ViewState{
		EndingAt:   e.state.EndingAt,
		StartedAt:  e.state.StartedAt,
		Incentives: e.calc.Incentives(e.state.BaseTime),
	}
}

// Run samples the running timer into the graph ring on a fixed interval
// until ctx is cancelled. Independent of the event flow; it shares nothing
// with the handlers besides the engine itself.
func (e *Engine) Run(ctx context.Context) {
	ticker := e.clock.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.sample()
		}
	}
}

// sample appends one graph row and prunes the ring. No-op while the timer is
// stopped or expired.
func (e *Engine) sample() {
	now := e.clock.Now()

	e.mu.Lock()
	started := e.state.IsStarted
	endingAt := e.state.EndingAt
	e.mu.Unlock()

	if !started || endingAt.Before(now) {
		return
	}

	if err := e.store.InsertGraphSample(now, endingAt); err != nil {
		log.Error().Err(err).Msg("failed to insert graph sample")
		return
	}
	if err := e.store.PruneGraphSamples(graphRingSize); err != nil {
		log.Error().Err(err).Msg("failed to prune graph samples")
	}
}

// persistSetting writes a settings row without blocking the mutation path.
func (e *Engine) persistSetting(key string, value int64) {
	go func() {
		if err := e.store.UpsertSetting(key, value); err != nil {
			log.Error().Err(err).Str("key", key).Msg("failed to persist setting")
		}
	}()
}

func durationOf(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

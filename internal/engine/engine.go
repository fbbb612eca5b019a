// Package engine orchestrates the per-sample filter pipeline: gate
// evaluation over a rolling window, the steady-state dwell timer, bucket
// recording, and the status broadcast.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/saltline/polar-engine/internal/domain"
	"github.com/saltline/polar-engine/internal/observability"
	"github.com/saltline/polar-engine/internal/polar"
)

// SampleSource delivers instrument samples one at a time, in arrival order.
// Subscribe returns an unsubscribe function.
type SampleSource interface {
	Subscribe(handler func(domain.InstrumentSample)) (func(), error)
}

// RecordedObservation is one accepted sample as it entered the bucket grid.
type RecordedObservation struct {
	Time        time.Time `json:"time"`
	TWS         float64   `json:"tws"`
	TWA         float64   `json:"twa"`
	STW         float64   `json:"stw"`
	SpeedBucket int       `json:"speed_bucket"`
	AngleBucket int       `json:"angle_bucket"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ObservationSink receives recorded observations. Publish must not block;
// implementations queue internally and drop on overflow.
type ObservationSink interface {
	Publish(obs RecordedObservation)
}

// Status is the snapshot broadcast after every processed sample.
type Status struct {
	Gates          domain.GateSnapshot `json:"gates"`
	Recording      bool                `json:"recording"`
	SteadySeconds  float64             `json:"steady_seconds"`
	Accepted       uint64              `json:"accepted"`
	Rejected       uint64              `json:"rejected"`
	LastSampleTime time.Time           `json:"last_sample_time"`
	GeneratedAt    time.Time           `json:"generated_at"`
}

// Config holds the engine's tuning. Zero values fall back to defaults.
type Config struct {
	Thresholds domain.GateThresholds
	// SteadyDwell is how long all gates must hold before recording starts.
	SteadyDwell time.Duration
	// WindowCapacity bounds the rolling window against bursty sources.
	WindowCapacity int
	// Clock stamps status snapshots and recorded observations; tests
	// inject a fake. Sample-relative timing (dwell, wind windows) uses
	// sample timestamps, not this clock, so replayed logs behave
	// identically to live data.
	Clock clockwork.Clock
	// Sink optionally receives every recorded observation.
	Sink ObservationSink
}

// Engine is the learning pipeline for one session. It owns only transient
// state; the bucket store persists across sessions.
type Engine struct {
	source  SampleSource
	store   *polar.Store
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics

	broadcaster *Broadcaster

	mu          sync.Mutex
	window      *domain.Window
	steadyStart time.Time // zero while idle
	recording   bool
	accepted    uint64
	rejected    uint64
	lastStatus  Status
	processed   bool
	unsubscribe func()
	started     bool
}

// New creates an Engine wired to a sample source and bucket store.
func New(source SampleSource, store *polar.Store, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if cfg.SteadyDwell <= 0 {
		cfg.SteadyDwell = 30 * time.Second
	}
	if cfg.Thresholds == (domain.GateThresholds{}) {
		cfg.Thresholds = domain.DefaultGateThresholds()
	}
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = 512
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	// Retain a little more than the wind window so the trailing-window
	// filter always has full coverage.
	retention := cfg.Thresholds.WindWindow + 5*time.Second

	return &Engine{
		source:      source,
		store:       store,
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		broadcaster: NewBroadcaster(logger),
		window:      domain.NewWindow(retention, cfg.WindowCapacity),
	}
}

// Start subscribes to the sample source. Calling Start on a started engine
// is a no-op.
func (e *Engine) Start(_ context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	unsub, err := e.source.Subscribe(e.Process)
	if err != nil {
		e.mu.Lock()
		e.started = false
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	e.unsubscribe = unsub
	e.mu.Unlock()

	e.logger.Info("engine started", "steady_dwell", e.cfg.SteadyDwell)
	return nil
}

// Stop unsubscribes from the source and clears transient state: the rolling
// window and the steady-state timer. The bucket store is untouched.
// Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	unsub := e.unsubscribe
	e.unsubscribe = nil
	wasStarted := e.started
	e.started = false
	e.window.Reset()
	e.steadyStart = time.Time{}
	e.recording = false
	e.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if wasStarted {
		e.metrics.Recording.Set(0)
		e.metrics.SteadySeconds.Set(0)
		e.logger.Info("engine stopped")
	}
}

// CheckReadiness returns nil once at least one sample has been processed.
func (e *Engine) CheckReadiness(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.processed {
		return errors.New("engine has not processed any samples yet")
	}
	return nil
}

// Subscribe registers a status observer; see Broadcaster.
func (e *Engine) Subscribe(fn func(Status)) func() {
	return e.broadcaster.Subscribe(fn)
}

// Status returns the snapshot from the most recently processed sample.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastStatus
}

// Process runs one sample through the pipeline to completion. Samples are
// processed synchronously in arrival order; no failure mode escapes as a
// panic — everything degrades to "do not record" plus counters.
func (e *Engine) Process(s domain.InstrumentSample) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("sample processing panicked", "panic", r)
		}
	}()

	e.metrics.SamplesConsumed.Inc()

	st := e.processOne(s)

	// Broadcast outside the lock so observers may query the engine.
	e.broadcaster.Publish(st)
}

func (e *Engine) processOne(s domain.InstrumentSample) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	var gates domain.GateSnapshot
	if err := s.Validate(); err != nil {
		e.rejected++
		e.metrics.SamplesRejected.WithLabelValues("invalid").Inc()
		e.logger.Debug("sample rejected", "error", err)
		gates = e.lastStatus.Gates
	} else {
		e.window.Append(s)

		gates = domain.EvaluateGates(s, e.window, e.cfg.Thresholds)
		e.countGateFailures(gates)

		gates.SteadyState = e.advanceSteadyState(gates.Eligible(), s.Time)

		if e.recording {
			e.record(s)
		}
	}

	return e.snapshotLocked(gates, s.Time)
}

// advanceSteadyState moves the dwell timer and returns the derived
// steady-state verdict: fail while idle after a gate failure, unavailable
// while accumulating toward the dwell, pass while recording. Any single
// ineligible sample resets the timer immediately; recording is not sticky.
func (e *Engine) advanceSteadyState(eligible bool, now time.Time) domain.Verdict {
	if !eligible {
		e.steadyStart = time.Time{}
		e.recording = false
		e.metrics.Recording.Set(0)
		e.metrics.SteadySeconds.Set(0)
		return domain.VerdictFail
	}

	if e.steadyStart.IsZero() {
		e.steadyStart = now
	}
	elapsed := now.Sub(e.steadyStart)
	e.metrics.SteadySeconds.Set(elapsed.Seconds())

	if elapsed >= e.cfg.SteadyDwell {
		if !e.recording {
			e.logger.Info("steady state reached, recording", "dwell", e.cfg.SteadyDwell)
		}
		e.recording = true
		e.metrics.Recording.Set(1)
		return domain.VerdictPass
	}
	return domain.VerdictUnavailable
}

// record feeds the sample into the bucket store when the wind triple is
// complete. A missing field is not an error; the gates that needed it
// already reported unavailable.
func (e *Engine) record(s domain.InstrumentSample) {
	if s.TWS == nil || s.TWA == nil || s.STW == nil {
		return
	}

	key, ok := e.store.Record(*s.TWS, *s.TWA, *s.STW)
	if !ok {
		e.rejected++
		e.metrics.SamplesRejected.WithLabelValues("outlier").Inc()
		return
	}

	e.accepted++
	e.metrics.SamplesAccepted.Inc()

	if e.cfg.Sink != nil {
		e.cfg.Sink.Publish(RecordedObservation{
			Time:        s.Time,
			TWS:         *s.TWS,
			TWA:         *s.TWA,
			STW:         *s.STW,
			SpeedBucket: key.Speed,
			AngleBucket: key.Angle,
			RecordedAt:  e.cfg.Clock.Now().UTC(),
		})
	}
}

func (e *Engine) countGateFailures(g domain.GateSnapshot) {
	for gate, v := range map[string]domain.Verdict{
		"engine_off":     g.EngineOff,
		"stable_heading": g.StableHeading,
		"steady_wind":    g.SteadyWind,
		"min_speed":      g.MinSpeed,
	} {
		if v == domain.VerdictFail {
			e.metrics.GateFailures.WithLabelValues(gate).Inc()
		}
	}
}

// snapshotLocked builds the status snapshot and records it as the latest.
// Caller holds mu.
func (e *Engine) snapshotLocked(gates domain.GateSnapshot, sampleTime time.Time) Status {
	steady := 0.0
	if !e.steadyStart.IsZero() {
		steady = sampleTime.Sub(e.steadyStart).Seconds()
	}

	st := Status{
		Gates:          gates,
		Recording:      e.recording,
		SteadySeconds:  steady,
		Accepted:       e.accepted,
		Rejected:       e.rejected,
		LastSampleTime: sampleTime,
		GeneratedAt:    e.cfg.Clock.Now().UTC(),
	}
	e.lastStatus = st
	e.processed = true
	return st
}

// Package controller owns the lifecycle of one strategy session: it starts
// and stops runs through the control plane, consumes the session's event
// channel, routes every envelope to the session fold it belongs to, and
// exposes the aggregate snapshot to the dashboard. It performs no business
// logic of its own beyond routing and lifecycle flags.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradeboard/internal/control"
	"tradeboard/internal/mirror"
	"tradeboard/internal/protocol"
	"tradeboard/internal/session"
	"tradeboard/internal/transport"
)

// Phase is the controller's lifecycle state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseStopped  Phase = "stopped"
	PhaseErrored  Phase = "errored"
)

// ErrSessionActive is returned by Start while a session is starting or
// running; the caller must stop it first.
var ErrSessionActive = errors.New("a session is already active")

const defaultMaxExportPoints = 1000

// ControlPlane is the slice of the engine's REST API the controller needs.
type ControlPlane interface {
	StartSession(ctx context.Context, req control.StartRequest) (string, error)
	StopSession(ctx context.Context, sessionID string) error
}

// Recorder receives best-effort run/trade records. Implemented by db.Recorder.
type Recorder interface {
	RunStarted(sessionID, strategyClass string, async bool)
	RunStopped(sessionID, status, failure string)
	TradeClosed(sessionID, serverID string, displaySeq int, details any)
}

// Config is the session configuration received from the dashboard.
type Config struct {
	StrategyClass string             `json:"strategyClass"`
	Instrument    string             `json:"instrument,omitempty"`
	Period        string             `json:"period,omitempty"`
	Async         bool               `json:"async"`
	ChartVisible  bool               `json:"chartVisible"`
	Params        map[string]float64 `json:"params,omitempty"`
}

// Options wires a Controller.
type Options struct {
	Control  ControlPlane
	Opener   transport.Opener
	Mirror   *mirror.Mirror
	Recorder Recorder // optional
	Log      zerolog.Logger
	// LogCap bounds the session log sink; <= 0 selects the session default.
	LogCap int
	// MaxExportPoints caps candle/equity series on exported and persisted
	// views; <= 0 selects the default.
	MaxExportPoints int
}

// Controller runs at most one session at a time. Envelope processing happens
// on a single goroutine per session, so the folds never race each other;
// Stop, SwitchStrategy, and Snapshot may be called from other goroutines.
type Controller struct {
	log             zerolog.Logger
	control         ControlPlane
	opener          transport.Opener
	mirror          *mirror.Mirror
	recorder        Recorder
	logCap          int
	maxExportPoints int

	mu            sync.Mutex
	phase         Phase
	strategyClass string
	sessionID     string
	state         *session.State
	channel       transport.Channel
	loopDone      chan struct{}
}

// New creates an idle controller.
func New(opts Options) *Controller {
	maxPoints := opts.MaxExportPoints
	if maxPoints <= 0 {
		maxPoints = defaultMaxExportPoints
	}
	return &Controller{
		log:             opts.Log,
		control:         opts.Control,
		opener:          opts.Opener,
		mirror:          opts.Mirror,
		recorder:        opts.Recorder,
		logCap:          opts.LogCap,
		maxExportPoints: maxPoints,
		phase:           PhaseIdle,
		state:           session.NewState(true, opts.LogCap),
	}
}

// Start launches a new session: clears folder state, rehydrates mirrored
// slices for the strategy class, issues the remote start call, and opens the
// event channel. Valid from idle, stopped, and errored.
func (c *Controller) Start(ctx context.Context, cfg Config) error {
	c.mu.Lock()
	if c.phase == PhaseStarting || c.phase == PhaseRunning {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.phase = PhaseStarting
	c.strategyClass = cfg.StrategyClass
	c.sessionID = ""
	st := session.NewState(cfg.ChartVisible, c.logCap)
	c.state = st
	c.mu.Unlock()

	c.rehydrate(cfg.StrategyClass, st)

	id, err := c.control.StartSession(ctx, control.StartRequest{
		StrategyClass: cfg.StrategyClass,
		Instrument:    cfg.Instrument,
		Period:        cfg.Period,
		Async:         cfg.Async,
		Params:        cfg.Params,
	})
	if err != nil {
		c.failStart(st, "session start call failed: "+err.Error())
		return fmt.Errorf("start session: %w", err)
	}

	ch, err := c.opener.Open(ctx, id)
	if err != nil {
		if stopErr := c.control.StopSession(ctx, id); stopErr != nil {
			c.log.Warn().Err(stopErr).Str("session", id).Msg("stop after failed channel open failed too")
		}
		c.failStart(st, "session channel open failed: "+err.Error())
		return fmt.Errorf("open session channel: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.sessionID = id
	c.channel = ch
	c.loopDone = done
	c.phase = PhaseRunning
	c.mu.Unlock()

	st.Begin(id, cfg.Async, time.Now())
	if c.recorder != nil {
		c.recorder.RunStarted(id, cfg.StrategyClass, cfg.Async)
	}
	c.log.Info().Str("session", id).Str("strategy", cfg.StrategyClass).Bool("async", cfg.Async).Msg("session started")

	go c.processLoop(st, ch, cfg.StrategyClass, done)
	return nil
}

// Stop ends the running session: remote stop call, channel close, folder
// state retained for inspection. A no-op when nothing is active.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	id := c.sessionID
	active := c.phase == PhaseRunning || c.phase == PhaseStarting
	c.mu.Unlock()
	if !active {
		return nil
	}

	if id != "" {
		if err := c.control.StopSession(ctx, id); err != nil {
			c.log.Warn().Err(err).Str("session", id).Msg("remote stop call failed")
		}
	}
	c.finish(PhaseStopped, "")
	return nil
}

// SwitchStrategy selects a different strategy class. A running session is
// stopped first, then all folder state is reset so nothing leaks between
// strategies; mirrored state is keyed per class and left untouched.
func (c *Controller) SwitchStrategy(ctx context.Context, strategyClass string) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.strategyClass = strategyClass
	c.sessionID = ""
	c.phase = PhaseIdle
	c.state = session.NewState(true, c.logCap)
	c.mu.Unlock()
	c.log.Info().Str("strategy", strategyClass).Msg("strategy switched")
	return nil
}

// View is the read-only aggregate exposed to the dashboard.
type View struct {
	Phase         Phase  `json:"phase"`
	StrategyClass string `json:"strategyClass,omitempty"`
	session.Snapshot
}

// Snapshot returns the current aggregate view with large series decimated.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	phase := c.phase
	class := c.strategyClass
	st := c.state
	c.mu.Unlock()
	return View{Phase: phase, StrategyClass: class, Snapshot: st.Snapshot(c.maxExportPoints)}
}

// Phase returns the current lifecycle state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Wait blocks until the current session's processing loop has drained.
// Intended for shutdown and tests.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.loopDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// processLoop is the single consumer of the session's event channel. One
// envelope at a time, no concurrent folding.
func (c *Controller) processLoop(st *session.State, ch transport.Channel, strategyClass string, done chan struct{}) {
	defer close(done)

	for frame := range ch.Frames() {
		env, err := protocol.Decode(frame)
		if err != nil {
			// Protocol fault: drop the frame, keep the session alive.
			c.log.Warn().Err(err).Msg("dropping bad envelope")
			continue
		}
		c.apply(st, strategyClass, env)
	}

	if err := ch.Err(); err != nil {
		// Transport fault while the session was still live.
		c.finish(PhaseErrored, "session channel failed: "+err.Error())
	}
}

// folds maps each data envelope kind to exactly one session fold.
var folds = map[protocol.Kind]func(*session.State, protocol.Envelope){
	protocol.KindBar: func(st *session.State, env protocol.Envelope) {
		if env.Bar != nil {
			st.ApplyBar(*env.Bar)
		}
	},
	protocol.KindBarSeries: func(st *session.State, env protocol.Envelope) {
		st.ApplyBarSeries(env.Bars)
	},
	protocol.KindTrade: func(st *session.State, env protocol.Envelope) {
		if env.Trade != nil {
			st.ApplyTrade(*env.Trade)
		}
	},
	protocol.KindAllTrades: func(st *session.State, env protocol.Envelope) {
		st.ApplyAllTrades(env.AllTrades)
	},
	protocol.KindIndicator: func(st *session.State, env protocol.Envelope) {
		if env.Indicator != nil {
			st.ApplyIndicatorPoint(*env.Indicator)
		}
	},
	protocol.KindAllIndicators: func(st *session.State, env protocol.Envelope) {
		st.ApplyAllIndicators(env.AllIndicators)
	},
	protocol.KindAccount: func(st *session.State, env protocol.Envelope) {
		if env.Account != nil {
			st.ApplyAccount(*env.Account)
		}
	},
	protocol.KindAsyncAccount: func(st *session.State, env protocol.Envelope) {
		if env.Account != nil {
			st.ApplyAccount(*env.Account)
		}
	},
	protocol.KindAnalysis: func(st *session.State, env protocol.Envelope) {
		if env.Analysis != nil {
			st.ApplyAnalysis(*env.Analysis)
		}
	},
	protocol.KindLiveAnalysis: func(st *session.State, env protocol.Envelope) {
		if env.Analysis != nil {
			st.ApplyAnalysis(*env.Analysis)
		}
	},
	protocol.KindLog: func(st *session.State, env protocol.Envelope) {
		if env.Log != nil {
			st.ApplyLog(*env.Log)
		}
	},
	protocol.KindProgress: func(st *session.State, env protocol.Envelope) {
		if env.Progress != nil {
			st.ApplyProgress(*env.Progress)
		}
	},
}

// apply routes one envelope. Lifecycle kinds transition the controller; data
// kinds go through the fold map and then write through to the mirror.
func (c *Controller) apply(st *session.State, strategyClass string, env protocol.Envelope) {
	switch env.Kind {
	case protocol.KindStrategyStop:
		c.log.Info().Msg("engine reported strategy stop")
		c.finish(PhaseStopped, "")
		return
	case protocol.KindError:
		msg := "strategy error"
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		c.log.Warn().Str("reason", msg).Msg("engine reported error")
		// Policy: an ERROR envelope always closes the channel.
		c.finish(PhaseErrored, msg)
		return
	}

	c.mu.Lock()
	running := c.phase == PhaseRunning
	c.mu.Unlock()
	if !running {
		// Stale envelope queued behind a terminal transition.
		c.log.Debug().Str("kind", string(env.Kind)).Msg("dropping stale envelope")
		return
	}

	fold, ok := folds[env.Kind]
	if !ok {
		c.log.Warn().Str("kind", string(env.Kind)).Msg("no fold for envelope kind, dropping")
		return
	}
	fold(st, env)

	c.writeThrough(st, strategyClass, env)
}

// writeThrough persists the slice the envelope touched and records closed
// trades. Decimation applies only to these exported copies.
func (c *Controller) writeThrough(st *session.State, strategyClass string, env protocol.Envelope) {
	switch env.Kind {
	case protocol.KindBar, protocol.KindBarSeries:
		c.mirror.Persist(strategyClass, mirror.SliceCandles, session.Decimate(st.Candles(), c.maxExportPoints))

	case protocol.KindTrade, protocol.KindAllTrades:
		trades := st.Trades()
		c.mirror.Persist(strategyClass, mirror.SliceTrades, trades)
		if c.recorder != nil && env.Kind == protocol.KindTrade && env.Trade.Action == protocol.ActionClose {
			for _, t := range trades {
				if t.ServerID == env.Trade.ServerID {
					c.recorder.TradeClosed(st.Identity(), t.ServerID, t.DisplaySeq, t)
					break
				}
			}
		}

	case protocol.KindIndicator, protocol.KindAllIndicators:
		c.mirror.Persist(strategyClass, mirror.SliceIndicators, st.Indicators())

	case protocol.KindAccount, protocol.KindAsyncAccount:
		c.mirror.Persist(strategyClass, mirror.SliceAccount, st.Account())

	case protocol.KindAnalysis, protocol.KindLiveAnalysis:
		if report := st.Analysis(); report != nil {
			report.EquityHistory = session.Decimate(report.EquityHistory, c.maxExportPoints)
			c.mirror.Persist(strategyClass, mirror.SliceAnalysis, report)
		}
	}
}

// rehydrate restores mirrored slices for the strategy class into a fresh
// state. Each slice loads independently; a missing or corrupt one simply
// stays empty.
func (c *Controller) rehydrate(strategyClass string, st *session.State) {
	var candles []session.Candle
	if c.mirror.Rehydrate(strategyClass, mirror.SliceCandles, &candles) {
		st.RestoreCandles(candles)
	}
	var trades []session.Trade
	if c.mirror.Rehydrate(strategyClass, mirror.SliceTrades, &trades) {
		st.RestoreTrades(trades)
	}
	var indicators map[string][]session.IndicatorPoint
	if c.mirror.Rehydrate(strategyClass, mirror.SliceIndicators, &indicators) {
		st.RestoreIndicators(indicators)
	}
	var account session.AccountSnapshot
	if c.mirror.Rehydrate(strategyClass, mirror.SliceAccount, &account) {
		st.RestoreAccount(account)
	}
	var report session.AnalysisReport
	if c.mirror.Rehydrate(strategyClass, mirror.SliceAnalysis, &report) {
		st.RestoreAnalysis(&report)
	}
}

// failStart marks a failed start attempt as errored. No run record exists
// yet, so the recorder is not involved.
func (c *Controller) failStart(st *session.State, reason string) {
	c.mu.Lock()
	c.phase = PhaseErrored
	c.mu.Unlock()
	st.SetError(reason)
	c.log.Warn().Str("reason", reason).Msg("session start failed")
}

// finish performs the terminal transition exactly once per session: flips
// the phase, closes the channel, and records the outcome. Later callers
// find the phase already terminal and return.
func (c *Controller) finish(phase Phase, failure string) {
	c.mu.Lock()
	if c.phase != PhaseRunning && c.phase != PhaseStarting {
		c.mu.Unlock()
		return
	}
	c.phase = phase
	ch := c.channel
	c.channel = nil
	id := c.sessionID
	st := c.state
	c.mu.Unlock()

	if phase == PhaseErrored {
		st.SetError(failure)
	} else {
		st.End()
	}
	if ch != nil {
		_ = ch.Close()
	}
	if c.recorder != nil && id != "" {
		status := "stopped"
		if phase == PhaseErrored {
			status = "errored"
		}
		c.recorder.RunStopped(id, status, failure)
	}
	c.log.Info().Str("session", id).Str("phase", string(phase)).Msg("session ended")
}

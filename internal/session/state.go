package session

import (
	"sort"
	"sync"
	"time"
)

// DefaultLogCap bounds the log sink when no explicit cap is configured.
const DefaultLogCap = 500

// State is the aggregate of everything known about one running session. All
// mutation happens through the fold methods, which are invoked by a single
// processing goroutine per session; the lock exists so snapshot readers (the
// hub broadcaster, the mirror) can run concurrently with folding.
type State struct {
	mu sync.RWMutex

	identity     string
	running      bool
	asyncMode    bool
	chartVisible bool
	startedAt    time.Time
	lastError    string

	candles    []Candle
	trades     map[string]*Trade
	tradeSeq   int
	indicators map[string][]IndicatorPoint
	account    AccountSnapshot
	analysis   *AnalysisReport
	logs       []LogEntry
	logCap     int
	progress   *ProgressInfo
}

// NewState creates an empty session state. logCap <= 0 selects DefaultLogCap.
func NewState(chartVisible bool, logCap int) *State {
	if logCap <= 0 {
		logCap = DefaultLogCap
	}
	return &State{
		chartVisible: chartVisible,
		trades:       make(map[string]*Trade),
		indicators:   make(map[string][]IndicatorPoint),
		logCap:       logCap,
	}
}

// Begin marks the session live under the given identity.
func (s *State) Begin(identity string, async bool, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
	s.asyncMode = async
	s.startedAt = at
	s.running = true
	s.lastError = ""
}

// End clears the running flag. Folded data is retained for inspection.
func (s *State) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// SetError records the run's failure reason and clears the running flag.
func (s *State) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = msg
	s.running = false
}

// Identity returns the session id assigned at start.
func (s *State) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Running reports whether the session is live.
func (s *State) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// AsyncMode reports whether the session runs as an asynchronous batch.
func (s *State) AsyncMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.asyncMode
}

// ChartVisible reports whether chart population is enabled.
func (s *State) ChartVisible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chartVisible
}

// LastError returns the recorded failure reason, if any.
func (s *State) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Candles returns a copy of the full candle series, ascending by time.
func (s *State) Candles() []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Trades returns the ledger in ascending openTime order. DisplaySeq labels
// are untouched by this ordering.
func (s *State) Trades() []Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tradesLocked()
}

func (s *State) tradesLocked() []Trade {
	out := make([]Trade, 0, len(s.trades))
	for _, t := range s.trades {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenTime != out[j].OpenTime {
			return out[i].OpenTime < out[j].OpenTime
		}
		return out[i].DisplaySeq < out[j].DisplaySeq
	})
	return out
}

// Indicators returns a copy of every indicator series.
func (s *State) Indicators() map[string][]IndicatorPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]IndicatorPoint, len(s.indicators))
	for name, series := range s.indicators {
		cp := make([]IndicatorPoint, len(series))
		copy(cp, series)
		out[name] = cp
	}
	return out
}

// Account returns the latest account snapshot.
func (s *State) Account() AccountSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Analysis returns a copy of the latest performance report, or nil if none
// has arrived.
func (s *State) Analysis() *AnalysisReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAnalysis(s.analysis)
}

func copyAnalysis(r *AnalysisReport) *AnalysisReport {
	if r == nil {
		return nil
	}
	cp := AnalysisReport{Metrics: r.Metrics}
	if r.EquityHistory != nil {
		cp.EquityHistory = make([]EquityPoint, len(r.EquityHistory))
		copy(cp.EquityHistory, r.EquityHistory)
	}
	return &cp
}

// Logs returns the log sink, newest first.
func (s *State) Logs() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// Progress returns a copy of the current progress record, or nil.
func (s *State) Progress() *ProgressInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.progress == nil {
		return nil
	}
	p := *s.progress
	return &p
}

// Snapshot is the read-only aggregate view handed to consumers outside the
// reducer. Large series are decimated; the authoritative in-memory series
// are never touched.
type Snapshot struct {
	Identity     string                      `json:"identity"`
	Running      bool                        `json:"running"`
	AsyncMode    bool                        `json:"asyncMode"`
	ChartVisible bool                        `json:"chartVisible"`
	StartedAt    int64                       `json:"startedAt,omitempty"`
	LastError    string                      `json:"lastError,omitempty"`
	Candles      []Candle                    `json:"candles"`
	Trades       []Trade                     `json:"trades"`
	Indicators   map[string][]IndicatorPoint `json:"indicators"`
	Account      AccountSnapshot             `json:"account"`
	Analysis     *AnalysisReport             `json:"analysis,omitempty"`
	Logs         []LogEntry                  `json:"logs"`
	Progress     *ProgressInfo               `json:"progress,omitempty"`
}

// Snapshot assembles the exported view. maxPoints caps the candle series and
// the analysis equity curve; maxPoints <= 0 disables decimation.
func (s *State) Snapshot(maxPoints int) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Identity:     s.identity,
		Running:      s.running,
		AsyncMode:    s.asyncMode,
		ChartVisible: s.chartVisible,
		LastError:    s.lastError,
		Trades:       s.tradesLocked(),
		Account:      s.account,
		Analysis:     copyAnalysis(s.analysis),
	}
	if !s.startedAt.IsZero() {
		snap.StartedAt = s.startedAt.UnixMilli()
	}

	snap.Candles = Decimate(s.candles, maxPoints)
	if snap.Analysis != nil {
		snap.Analysis.EquityHistory = Decimate(snap.Analysis.EquityHistory, maxPoints)
	}

	snap.Indicators = make(map[string][]IndicatorPoint, len(s.indicators))
	for name, series := range s.indicators {
		cp := make([]IndicatorPoint, len(series))
		copy(cp, series)
		snap.Indicators[name] = cp
	}

	snap.Logs = make([]LogEntry, len(s.logs))
	copy(snap.Logs, s.logs)

	if s.progress != nil {
		p := *s.progress
		snap.Progress = &p
	}

	return snap
}

package session

import "tradeboard/internal/protocol"

// ApplyAccount replaces the account snapshot with the latest values. Both
// ACCOUNT and ASYNC_ACCOUNT land here; no history is kept.
func (s *State) ApplyAccount(p protocol.AccountPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = AccountSnapshot{
		InitialBalance: p.InitialBalance,
		Balance:        p.Balance,
		Equity:         p.Equity,
	}
}

// RestoreAccount reloads a mirrored account snapshot.
func (s *State) RestoreAccount(a AccountSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = a
}

// ApplyAnalysis replaces the performance report atomically. Reports are
// never partially updated; a new one fully supersedes the old.
func (s *State) ApplyAnalysis(p protocol.AnalysisPayload) {
	report := &AnalysisReport{Metrics: p.Metrics}
	if len(p.EquityHistory) > 0 {
		report.EquityHistory = make([]EquityPoint, 0, len(p.EquityHistory))
		for _, pt := range p.EquityHistory {
			report.EquityHistory = append(report.EquityHistory, EquityPoint{Timestamp: pt.Timestamp, Equity: pt.Equity})
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysis = report
}

// RestoreAnalysis reloads a mirrored report.
func (s *State) RestoreAnalysis(r *AnalysisReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysis = r
}

// ApplyLog prepends one log line, newest first, and trims to the configured
// cap. Entries are never reordered once inserted.
func (s *State) ApplyLog(p protocol.LogPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append([]LogEntry{{Timestamp: p.Timestamp, Level: p.Level, Message: p.Message}}, s.logs...)
	if len(s.logs) > s.logCap {
		s.logs = s.logs[:s.logCap]
	}
}

// ApplyProgress fully replaces the progress record.
func (s *State) ApplyProgress(p protocol.ProgressPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = &ProgressInfo{
		PercentComplete:      p.PercentComplete,
		CompletedUnits:       p.CompletedUnits,
		RemainingUnits:       p.RemainingUnits,
		EstimatedMsRemaining: p.EstimatedMsRemaining,
	}
}

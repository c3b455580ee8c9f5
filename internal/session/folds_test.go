package session

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeboard/internal/protocol"
)

func TestApplyAccountKeepsLatestOnly(t *testing.T) {
	st := NewState(true, 0)
	st.ApplyAccount(protocol.AccountPayload{InitialBalance: 1000, Balance: 1000, Equity: 1000})
	st.ApplyAccount(protocol.AccountPayload{InitialBalance: 1000, Balance: 1100, Equity: 1050})

	acct := st.Account()
	assert.Equal(t, 1100.0, acct.Balance)
	assert.Equal(t, 1050.0, acct.Equity)
	assert.Equal(t, 1000.0, acct.InitialBalance)
}

func TestApplyAnalysisReplacesWholesale(t *testing.T) {
	st := NewState(true, 0)
	st.ApplyAnalysis(protocol.AnalysisPayload{
		Metrics:       json.RawMessage(`{"sharpe":0.5}`),
		EquityHistory: []protocol.EquityPointPayload{{Timestamp: 1, Equity: 1000}},
	})
	st.ApplyAnalysis(protocol.AnalysisPayload{
		Metrics: json.RawMessage(`{"sharpe":1.2}`),
	})

	report := st.Analysis()
	require.NotNil(t, report)
	assert.JSONEq(t, `{"sharpe":1.2}`, string(report.Metrics))
	// The old equity curve does not survive a report without one.
	assert.Empty(t, report.EquityHistory)
}

func TestApplyLogNewestFirstBounded(t *testing.T) {
	st := NewState(true, 3)
	for i := 1; i <= 5; i++ {
		st.ApplyLog(protocol.LogPayload{Timestamp: int64(i), Message: fmt.Sprintf("line %d", i)})
	}

	logs := st.Logs()
	require.Len(t, logs, 3)
	assert.Equal(t, "line 5", logs[0].Message)
	assert.Equal(t, "line 4", logs[1].Message)
	assert.Equal(t, "line 3", logs[2].Message)
}

func TestApplyProgressReplaces(t *testing.T) {
	st := NewState(true, 0)
	assert.Nil(t, st.Progress())

	st.ApplyProgress(protocol.ProgressPayload{PercentComplete: 10, CompletedUnits: 10, RemainingUnits: 90})
	st.ApplyProgress(protocol.ProgressPayload{PercentComplete: 40, CompletedUnits: 40, RemainingUnits: 60, EstimatedMsRemaining: 12000})

	p := st.Progress()
	require.NotNil(t, p)
	assert.Equal(t, 40.0, p.PercentComplete)
	assert.Equal(t, int64(12000), p.EstimatedMsRemaining)
}

func TestSnapshotDecimatesCandlesAndEquity(t *testing.T) {
	st := NewState(true, 0)
	for i := 0; i < 3000; i++ {
		st.ApplyBar(protocol.BarPayload{Time: int64(i), Open: 1, High: 1, Low: 1, Close: 1})
	}
	history := make([]protocol.EquityPointPayload, 2500)
	for i := range history {
		history[i] = protocol.EquityPointPayload{Timestamp: int64(i), Equity: 1000 + float64(i)}
	}
	st.ApplyAnalysis(protocol.AnalysisPayload{Metrics: json.RawMessage(`{}`), EquityHistory: history})

	snap := st.Snapshot(1000)
	assert.LessOrEqual(t, len(snap.Candles), 1000)
	assert.Equal(t, int64(0), snap.Candles[0].Time)
	assert.Equal(t, int64(2999), snap.Candles[len(snap.Candles)-1].Time)

	require.NotNil(t, snap.Analysis)
	assert.LessOrEqual(t, len(snap.Analysis.EquityHistory), 1000)
	last := snap.Analysis.EquityHistory[len(snap.Analysis.EquityHistory)-1]
	assert.Equal(t, int64(2499), last.Timestamp)

	// The internal series stays intact.
	assert.Len(t, st.Candles(), 3000)
}

func TestSnapshotReflectsLifecycle(t *testing.T) {
	st := NewState(true, 0)
	st.Begin("sess-1", true, time.Unix(1700000000, 0))

	snap := st.Snapshot(0)
	assert.Equal(t, "sess-1", snap.Identity)
	assert.True(t, snap.Running)
	assert.True(t, snap.AsyncMode)
	assert.NotZero(t, snap.StartedAt)

	st.SetError("engine connection lost")
	snap = st.Snapshot(0)
	assert.False(t, snap.Running)
	assert.Equal(t, "engine connection lost", snap.LastError)
}

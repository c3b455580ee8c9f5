package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBar(t *testing.T) {
	env, err := Decode([]byte(`{"kind":"BAR","payload":{"time":100,"open":1,"high":2,"low":0.5,"close":1.5,"instrument":"EURUSD"}}`))
	require.NoError(t, err)
	require.Equal(t, KindBar, env.Kind)
	require.NotNil(t, env.Bar)
	assert.Equal(t, int64(100), env.Bar.Time)
	assert.Equal(t, 2.0, env.Bar.High)
	assert.Equal(t, "EURUSD", env.Bar.Instrument)
}

func TestDecodeBarSeries(t *testing.T) {
	env, err := Decode([]byte(`{"kind":"BAR_SERIES","payload":[{"time":1},{"time":2}]}`))
	require.NoError(t, err)
	require.Len(t, env.Bars, 2)
	assert.Equal(t, int64(2), env.Bars[1].Time)
}

func TestDecodeTrade(t *testing.T) {
	env, err := Decode([]byte(`{"kind":"TRADE","payload":{"serverId":"a","action":"UPDATE","profit":5}}`))
	require.NoError(t, err)
	require.NotNil(t, env.Trade)
	assert.Equal(t, ActionUpdate, env.Trade.Action)
	require.NotNil(t, env.Trade.Profit)
	assert.Equal(t, 5.0, *env.Trade.Profit)
	// Absent optional fields stay nil so merges can tell absent from zero.
	assert.Nil(t, env.Trade.ExitPrice)
	assert.Nil(t, env.Trade.OpenTime)
}

func TestDecodeTradeRejectsBadAction(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"TRADE","payload":{"serverId":"a","action":"REOPEN"}}`))
	require.Error(t, err)
}

func TestDecodeTradeRequiresServerID(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"TRADE","payload":{"action":"OPEN"}}`))
	require.Error(t, err)
}

func TestDecodeAllTrades(t *testing.T) {
	env, err := Decode([]byte(`{"kind":"ALL_TRADES","payload":{"a":{"serverId":"a","openTime":1},"b":{"serverId":"b","openTime":2,"closeTime":3}}}`))
	require.NoError(t, err)
	require.Len(t, env.AllTrades, 2)
	require.NotNil(t, env.AllTrades["b"].CloseTime)
	assert.Equal(t, int64(3), *env.AllTrades["b"].CloseTime)
}

func TestDecodeAnalysisKeepsMetricsOpaque(t *testing.T) {
	raw := `{"kind":"ANALYSIS","payload":{"metrics":{"sharpe":1.2,"trades":10},"equityHistory":[{"timestamp":1,"equity":1000}]}}`
	env, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.NotNil(t, env.Analysis)
	assert.JSONEq(t, `{"sharpe":1.2,"trades":10}`, string(env.Analysis.Metrics))
	require.Len(t, env.Analysis.EquityHistory, 1)
}

func TestDecodeStrategyStopNeedsNoPayload(t *testing.T) {
	env, err := Decode([]byte(`{"kind":"STRATEGY_STOP"}`))
	require.NoError(t, err)
	assert.Equal(t, KindStrategyStop, env.Kind)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"HEARTBEAT","payload":{}}`))
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecodeMalformed(t *testing.T) {
	for _, frame := range []string{
		``,
		`not json`,
		`{}`,
		`{"kind":"BAR"}`,
		`{"kind":"BAR","payload":"nope"}`,
		`{"kind":"INDICATOR","payload":{"time":1,"value":2}}`,
	} {
		_, err := Decode([]byte(frame))
		require.Error(t, err, "frame %q should not decode", frame)
	}
}

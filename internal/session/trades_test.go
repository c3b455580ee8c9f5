package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeboard/internal/protocol"
)

func ptr[T any](v T) *T { return &v }

func TestTradeLifecycleKeepsDisplaySeq(t *testing.T) {
	st := NewState(true, 0)

	st.ApplyTrade(protocol.TradePayload{
		ServerID:   "a",
		Action:     protocol.ActionOpen,
		OpenTime:   ptr[int64](10),
		EntryPrice: ptr(10.0),
		Side:       ptr("long"),
	})
	st.ApplyTrade(protocol.TradePayload{ServerID: "a", Action: protocol.ActionUpdate, Profit: ptr(5.0)})
	st.ApplyTrade(protocol.TradePayload{ServerID: "a", Action: protocol.ActionClose, ExitPrice: ptr(12.0), CloseTime: ptr[int64](20)})

	trades := st.Trades()
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, 1, tr.DisplaySeq)
	assert.Equal(t, StatusClosed, tr.Status)
	assert.Equal(t, 10.0, tr.EntryPrice)
	require.NotNil(t, tr.Profit)
	assert.Equal(t, 5.0, *tr.Profit)
	require.NotNil(t, tr.ExitPrice)
	assert.Equal(t, 12.0, *tr.ExitPrice)
	require.NotNil(t, tr.CloseTime)
	assert.Equal(t, int64(20), *tr.CloseTime)
}

func TestDisplaySeqAssignedOncePerServerID(t *testing.T) {
	st := NewState(true, 0)

	st.ApplyTrade(protocol.TradePayload{ServerID: "a", Action: protocol.ActionOpen, OpenTime: ptr[int64](10)})
	st.ApplyTrade(protocol.TradePayload{ServerID: "b", Action: protocol.ActionOpen, OpenTime: ptr[int64](5)})
	// Re-open of an already known id must not allocate a new ordinal.
	st.ApplyTrade(protocol.TradePayload{ServerID: "a", Action: protocol.ActionOpen, OpenTime: ptr[int64](10)})

	trades := st.Trades()
	require.Len(t, trades, 2)
	// Enumeration is ascending openTime; displaySeq stays as assigned.
	assert.Equal(t, "b", trades[0].ServerID)
	assert.Equal(t, 2, trades[0].DisplaySeq)
	assert.Equal(t, "a", trades[1].ServerID)
	assert.Equal(t, 1, trades[1].DisplaySeq)
}

func TestUpdateForUnknownServerIDIsNoop(t *testing.T) {
	st := NewState(true, 0)
	st.ApplyTrade(protocol.TradePayload{ServerID: "ghost", Action: protocol.ActionUpdate, Profit: ptr(1.0)})
	assert.Empty(t, st.Trades())
}

func TestCloseForUnknownServerIDCreatesClosedTrade(t *testing.T) {
	st := NewState(true, 0)
	st.ApplyTrade(protocol.TradePayload{ServerID: "a", Action: protocol.ActionClose, ExitPrice: ptr(3.0)})

	trades := st.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, StatusClosed, trades[0].Status)
	assert.Equal(t, 1, trades[0].DisplaySeq)
}

func TestApplyAllTradesReplacesLedger(t *testing.T) {
	st := NewState(true, 0)
	st.ApplyTrade(protocol.TradePayload{ServerID: "old", Action: protocol.ActionOpen, OpenTime: ptr[int64](1)})

	st.ApplyAllTrades(map[string]protocol.TradePayload{
		"x": {ServerID: "x", OpenTime: ptr[int64](30)},
		"y": {ServerID: "y", OpenTime: ptr[int64](10), CloseTime: ptr[int64](40)},
	})

	trades := st.Trades()
	require.Len(t, trades, 2)
	for _, tr := range trades {
		assert.NotEqual(t, "old", tr.ServerID)
	}
	assert.Equal(t, "y", trades[0].ServerID)
	assert.Equal(t, StatusClosed, trades[0].Status)
	assert.Equal(t, 1, trades[0].DisplaySeq)
	assert.Equal(t, "x", trades[1].ServerID)
	assert.Equal(t, StatusOpen, trades[1].Status)

	// A second replace with a disjoint set retains nothing from the first.
	st.ApplyAllTrades(map[string]protocol.TradePayload{
		"z": {ServerID: "z", OpenTime: ptr[int64](5)},
	})
	trades = st.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "z", trades[0].ServerID)
}

func TestAllTradesCounterNeverMovesBackward(t *testing.T) {
	st := NewState(true, 0)
	for _, id := range []string{"a", "b", "c"} {
		st.ApplyTrade(protocol.TradePayload{ServerID: id, Action: protocol.ActionOpen, OpenTime: ptr[int64](1)})
	}

	// Rehydration with a smaller batch must not rewind the counter…
	st.ApplyAllTrades(map[string]protocol.TradePayload{
		"a": {ServerID: "a", OpenTime: ptr[int64](1)},
	})

	// …so the next fresh trade cannot collide with an ordinal already shown.
	st.ApplyTrade(protocol.TradePayload{ServerID: "d", Action: protocol.ActionOpen, OpenTime: ptr[int64](2)})

	trades := st.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, 4, trades[1].DisplaySeq)
}

func TestRestoreTradesResumesCounter(t *testing.T) {
	st := NewState(true, 0)
	st.RestoreTrades([]Trade{
		{ServerID: "a", DisplaySeq: 7, OpenTime: 1, Status: StatusClosed},
	})
	st.ApplyTrade(protocol.TradePayload{ServerID: "b", Action: protocol.ActionOpen, OpenTime: ptr[int64](2)})

	trades := st.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, 8, trades[1].DisplaySeq)
}

// Package session holds the in-memory state of one strategy session and the
// fold functions that build it from engine envelopes. It is the single source
// of truth read by the dashboard hub and mirrored by the persistence layer.
package session

import "encoding/json"

// Candle is one OHLC bar of the session's price series. Within a session
// there is at most one candle per distinct Time; a later bar for the same
// Time extends the existing candle in place.
type Candle struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Instrument string  `json:"instrument,omitempty"`
}

// Side is the direction of a trade.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// TradeStatus tracks whether a trade is still open.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "open"
	StatusClosed TradeStatus = "closed"
)

// Trade is one ledger record. DisplaySeq is the stable ordinal shown to the
// user: assigned once when the server id is first seen and never changed,
// even as the trade closes or the ledger is re-sorted.
type Trade struct {
	DisplaySeq int         `json:"displaySeq"`
	ServerID   string      `json:"serverId"`
	OpenTime   int64       `json:"openTime"`
	CloseTime  *int64      `json:"closeTime,omitempty"`
	Instrument string      `json:"instrument,omitempty"`
	Side       Side        `json:"side"`
	EntryPrice float64     `json:"entryPrice"`
	ExitPrice  *float64    `json:"exitPrice,omitempty"`
	StopLoss   float64     `json:"stopLoss"`
	TakeProfit float64     `json:"takeProfit"`
	Quantity   float64     `json:"quantity"`
	Profit     *float64    `json:"profit,omitempty"`
	Status     TradeStatus `json:"status"`
}

// IndicatorPoint is one sample of a named indicator series. Zero-valued
// samples are dropped at ingestion and never stored.
type IndicatorPoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// AccountSnapshot is the latest balance/equity view. No history is kept
// here; the equity curve lives in the analysis report.
type AccountSnapshot struct {
	InitialBalance float64 `json:"initialBalance"`
	Balance        float64 `json:"balance"`
	Equity         float64 `json:"equity"`
}

// EquityPoint is one point of the analysis equity curve.
type EquityPoint struct {
	Timestamp int64   `json:"timestamp"`
	Equity    float64 `json:"equity"`
}

// AnalysisReport is a complete performance report produced atomically by a
// single envelope. Metrics is opaque: stored and served verbatim.
type AnalysisReport struct {
	Metrics       json.RawMessage `json:"metrics,omitempty"`
	EquityHistory []EquityPoint   `json:"equityHistory,omitempty"`
}

// LogEntry is one engine log line. The sink is newest-first and bounded.
type LogEntry struct {
	Timestamp int64  `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// ProgressInfo is the current progress of an asynchronous run, fully
// replaced on each PROGRESS envelope.
type ProgressInfo struct {
	PercentComplete      float64 `json:"percentComplete"`
	CompletedUnits       int64   `json:"completedUnits"`
	RemainingUnits       int64   `json:"remainingUnits"`
	EstimatedMsRemaining int64   `json:"estimatedMsRemaining"`
}

// Package protocol defines the wire protocol spoken by the strategy engine
// over a session's event channel. Every inbound frame is a single envelope:
// a kind tag plus a kind-specific payload. Decode is the only entry point;
// payloads are validated here so downstream folds never see a malformed one.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies the payload type carried by an envelope.
type Kind string

const (
	KindBar           Kind = "BAR"
	KindBarSeries     Kind = "BAR_SERIES"
	KindTrade         Kind = "TRADE"
	KindAllTrades     Kind = "ALL_TRADES"
	KindIndicator     Kind = "INDICATOR"
	KindAllIndicators Kind = "ALL_INDICATORS"
	KindAccount       Kind = "ACCOUNT"
	KindAsyncAccount  Kind = "ASYNC_ACCOUNT"
	KindAnalysis      Kind = "ANALYSIS"
	KindLiveAnalysis  Kind = "LIVE_ANALYSIS"
	KindLog           Kind = "LOG"
	KindProgress      Kind = "PROGRESS"
	KindError         Kind = "ERROR"
	KindStrategyStop  Kind = "STRATEGY_STOP"
)

// TradeAction distinguishes the three lifecycle messages a TRADE envelope
// can carry.
type TradeAction string

const (
	ActionOpen   TradeAction = "OPEN"
	ActionClose  TradeAction = "CLOSE"
	ActionUpdate TradeAction = "UPDATE"
)

// ErrUnknownKind is returned by Decode for kinds this build does not
// recognise. Callers log and drop the envelope; new kinds must never be
// fatal.
var ErrUnknownKind = errors.New("unknown envelope kind")

// BarPayload is one candle, either the currently forming bar or a closed one.
type BarPayload struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Instrument string  `json:"instrument,omitempty"`
}

// TradePayload carries a trade open/update/close. All fields other than the
// server id are optional: an UPDATE patches only the fields it supplies, so
// absent and zero must be distinguishable.
type TradePayload struct {
	ServerID   string      `json:"serverId"`
	Action     TradeAction `json:"action,omitempty"`
	OpenTime   *int64      `json:"openTime,omitempty"`
	CloseTime  *int64      `json:"closeTime,omitempty"`
	Instrument *string     `json:"instrument,omitempty"`
	Side       *string     `json:"side,omitempty"`
	EntryPrice *float64    `json:"entryPrice,omitempty"`
	ExitPrice  *float64    `json:"exitPrice,omitempty"`
	StopLoss   *float64    `json:"stopLoss,omitempty"`
	TakeProfit *float64    `json:"takeProfit,omitempty"`
	Quantity   *float64    `json:"quantity,omitempty"`
	Profit     *float64    `json:"profit,omitempty"`
}

// IndicatorPayload is a single named indicator sample.
type IndicatorPayload struct {
	Name  string  `json:"name"`
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// IndicatorPointPayload is one sample inside an ALL_INDICATORS batch.
type IndicatorPointPayload struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// AccountPayload is the latest balance/equity snapshot.
type AccountPayload struct {
	InitialBalance float64 `json:"initialBalance"`
	Balance        float64 `json:"balance"`
	Equity         float64 `json:"equity"`
}

// EquityPointPayload is one point of an analysis equity curve.
type EquityPointPayload struct {
	Timestamp int64   `json:"timestamp"`
	Equity    float64 `json:"equity"`
}

// AnalysisPayload carries a complete performance report. Metrics is opaque to
// this service; it is stored and re-served verbatim.
type AnalysisPayload struct {
	Metrics       json.RawMessage      `json:"metrics,omitempty"`
	EquityHistory []EquityPointPayload `json:"equityHistory,omitempty"`
}

// LogPayload is a single engine log line.
type LogPayload struct {
	Timestamp int64  `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// ProgressPayload reports progress of an asynchronous run.
type ProgressPayload struct {
	PercentComplete      float64 `json:"percentComplete"`
	CompletedUnits       int64   `json:"completedUnits"`
	RemainingUnits       int64   `json:"remainingUnits"`
	EstimatedMsRemaining int64   `json:"estimatedMsRemaining"`
}

// ErrorPayload carries the engine's failure reason for a run.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Envelope is the decoded form of one wire frame. Exactly one payload field
// is populated, matching Kind.
type Envelope struct {
	Kind Kind

	Bar           *BarPayload
	Bars          []BarPayload
	Trade         *TradePayload
	AllTrades     map[string]TradePayload
	Indicator     *IndicatorPayload
	AllIndicators map[string][]IndicatorPointPayload
	Account       *AccountPayload
	Analysis      *AnalysisPayload
	Log           *LogPayload
	Progress      *ProgressPayload
	Error         *ErrorPayload
}

type rawEnvelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses a single wire frame into an Envelope. It returns
// ErrUnknownKind (wrapped) for unrecognised kinds and a plain error for
// frames that fail to parse or validate; in both cases the caller is
// expected to log and drop the frame.
func Decode(data []byte) (Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if raw.Kind == "" {
		return Envelope{}, errors.New("decode envelope: missing kind")
	}

	env := Envelope{Kind: raw.Kind}

	switch raw.Kind {
	case KindBar:
		env.Bar = &BarPayload{}
		if err := unmarshalPayload(raw, env.Bar); err != nil {
			return Envelope{}, err
		}

	case KindBarSeries:
		if err := unmarshalPayload(raw, &env.Bars); err != nil {
			return Envelope{}, err
		}

	case KindTrade:
		env.Trade = &TradePayload{}
		if err := unmarshalPayload(raw, env.Trade); err != nil {
			return Envelope{}, err
		}
		if env.Trade.ServerID == "" {
			return Envelope{}, errors.New("decode TRADE: missing serverId")
		}
		switch env.Trade.Action {
		case ActionOpen, ActionClose, ActionUpdate:
		default:
			return Envelope{}, fmt.Errorf("decode TRADE: bad action %q", env.Trade.Action)
		}

	case KindAllTrades:
		if err := unmarshalPayload(raw, &env.AllTrades); err != nil {
			return Envelope{}, err
		}

	case KindIndicator:
		env.Indicator = &IndicatorPayload{}
		if err := unmarshalPayload(raw, env.Indicator); err != nil {
			return Envelope{}, err
		}
		if env.Indicator.Name == "" {
			return Envelope{}, errors.New("decode INDICATOR: missing name")
		}

	case KindAllIndicators:
		if err := unmarshalPayload(raw, &env.AllIndicators); err != nil {
			return Envelope{}, err
		}

	case KindAccount, KindAsyncAccount:
		env.Account = &AccountPayload{}
		if err := unmarshalPayload(raw, env.Account); err != nil {
			return Envelope{}, err
		}

	case KindAnalysis, KindLiveAnalysis:
		env.Analysis = &AnalysisPayload{}
		if err := unmarshalPayload(raw, env.Analysis); err != nil {
			return Envelope{}, err
		}

	case KindLog:
		env.Log = &LogPayload{}
		if err := unmarshalPayload(raw, env.Log); err != nil {
			return Envelope{}, err
		}

	case KindProgress:
		env.Progress = &ProgressPayload{}
		if err := unmarshalPayload(raw, env.Progress); err != nil {
			return Envelope{}, err
		}

	case KindError:
		env.Error = &ErrorPayload{}
		if err := unmarshalPayload(raw, env.Error); err != nil {
			return Envelope{}, err
		}

	case KindStrategyStop:
		// No payload.

	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, raw.Kind)
	}

	return env, nil
}

func unmarshalPayload(raw rawEnvelope, dst any) error {
	if len(raw.Payload) == 0 {
		return fmt.Errorf("decode %s: missing payload", raw.Kind)
	}
	if err := json.Unmarshal(raw.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", raw.Kind, err)
	}
	return nil
}

package session

import (
	"sort"

	"tradeboard/internal/protocol"
)

// ApplyBar folds a single BAR envelope into the candle series. The engine
// re-sends the currently forming bar on every tick, so a bar whose time
// matches the last stored candle extends that candle in place: the open is
// immutable, the high/low widen, the close tracks the latest value. A new
// time appends a new candle.
func (s *State) ApplyBar(bar protocol.BarPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.candles); n > 0 && s.candles[n-1].Time == bar.Time {
		last := &s.candles[n-1]
		if bar.High > last.High {
			last.High = bar.High
		}
		if bar.Low < last.Low {
			last.Low = bar.Low
		}
		last.Close = bar.Close
		return
	}

	s.candles = append(s.candles, Candle{
		Time:       bar.Time,
		Open:       bar.Open,
		High:       bar.High,
		Low:        bar.Low,
		Close:      bar.Close,
		Instrument: bar.Instrument,
	})
}

// ApplyBarSeries replaces the whole candle series with a server-provided
// snapshot, sorted ascending by time. It is a rehydration load, never merged
// with prior state. When the chart is hidden the load is skipped entirely.
func (s *State) ApplyBarSeries(bars []protocol.BarPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.chartVisible {
		return
	}

	candles := make([]Candle, 0, len(bars))
	for _, b := range bars {
		candles = append(candles, Candle{
			Time:       b.Time,
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Instrument: b.Instrument,
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time < candles[j].Time })
	s.candles = candles
}

// RestoreCandles reloads a mirrored candle series, replacing any current one.
func (s *State) RestoreCandles(candles []Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time < candles[j].Time })
	s.candles = candles
}

package session

import "tradeboard/internal/protocol"

// ApplyIndicatorPoint appends one sample to a named series. Zero values are
// the engine's placeholder for "not yet computed" and are dropped here so no
// series ever contains them. Samples are append-only; repeated times are
// legal and kept, reflecting successive recomputation of the same bar.
func (s *State) ApplyIndicatorPoint(p protocol.IndicatorPayload) {
	if p.Value == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indicators[p.Name] = append(s.indicators[p.Name], IndicatorPoint{Time: p.Time, Value: p.Value})
}

// ApplyAllIndicators replaces every series with a server snapshot, filtering
// zero samples and keeping the server's arrival order. Rehydration only.
func (s *State) ApplyAllIndicators(batch map[string][]protocol.IndicatorPointPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	series := make(map[string][]IndicatorPoint, len(batch))
	for name, points := range batch {
		kept := make([]IndicatorPoint, 0, len(points))
		for _, p := range points {
			if p.Value == 0 {
				continue
			}
			kept = append(kept, IndicatorPoint{Time: p.Time, Value: p.Value})
		}
		series[name] = kept
	}
	s.indicators = series
}

// RestoreIndicators reloads mirrored indicator series.
func (s *State) RestoreIndicators(series map[string][]IndicatorPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if series == nil {
		series = make(map[string][]IndicatorPoint)
	}
	s.indicators = series
}

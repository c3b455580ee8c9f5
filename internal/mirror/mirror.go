package mirror

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Slice names a persisted portion of session state. Keys are scoped per
// strategy class so switching strategies never mixes persisted state.
type Slice string

const (
	SliceCandles    Slice = "candles"
	SliceTrades     Slice = "trades"
	SliceIndicators Slice = "indicators"
	SliceAccount    Slice = "account"
	SliceAnalysis   Slice = "analysis"
)

// allSlices is the set cleared by Clear.
var allSlices = []Slice{SliceCandles, SliceTrades, SliceIndicators, SliceAccount, SliceAnalysis}

const opTimeout = 3 * time.Second

// Mirror writes session slices through to a Store and rehydrates them on
// session start. Every operation is best-effort: a storage fault or corrupt
// value is logged and then treated as "no prior state".
type Mirror struct {
	store Store
	log   zerolog.Logger
}

// New wraps a Store.
func New(store Store, log zerolog.Logger) *Mirror {
	return &Mirror{store: store, log: log}
}

// Persist marshals v and writes it under the session key. Failures are
// logged and swallowed; folding must never block or break on persistence.
func (m *Mirror) Persist(sessionKey string, slice Slice, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.log.Warn().Err(err).Str("slice", string(slice)).Msg("mirror: marshal failed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := m.store.Set(ctx, m.key(sessionKey, slice), data); err != nil {
		m.log.Warn().Err(err).Str("slice", string(slice)).Msg("mirror: write failed")
	}
}

// Rehydrate loads a persisted slice into out. It reports false — and logs,
// where there is anything to say — on missing keys, storage faults, and
// corrupt values alike.
func (m *Mirror) Rehydrate(sessionKey string, slice Slice, out any) bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	data, found, err := m.store.Get(ctx, m.key(sessionKey, slice))
	if err != nil {
		m.log.Warn().Err(err).Str("slice", string(slice)).Msg("mirror: read failed")
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		m.log.Warn().Err(err).Str("slice", string(slice)).Msg("mirror: corrupt value, ignoring")
		return false
	}
	return true
}

// Clear drops every persisted slice for the session key.
func (m *Mirror) Clear(sessionKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	for _, slice := range allSlices {
		if err := m.store.Delete(ctx, m.key(sessionKey, slice)); err != nil {
			m.log.Warn().Err(err).Str("slice", string(slice)).Msg("mirror: delete failed")
		}
	}
}

func (m *Mirror) key(sessionKey string, slice Slice) string {
	return sessionKey + ":" + string(slice)
}

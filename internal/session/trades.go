package session

import "tradeboard/internal/protocol"

// ApplyTrade folds one TRADE envelope into the ledger.
//
// First sight of a server id allocates the next display sequence number; the
// counter starts at 1 and is never reused, so the user-facing ordinal stays
// stable across the whole session. Later envelopes for the same id merge the
// supplied fields in place. An UPDATE for an unknown id is dropped: updates
// can arrive after an ALL_TRADES replace removed the record, and recreating
// a half-populated trade would be worse than losing the patch.
func (s *State) ApplyTrade(t protocol.TradePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.trades[t.ServerID]
	if !ok {
		if t.Action == protocol.ActionUpdate {
			return
		}
		s.tradeSeq++
		rec := &Trade{
			DisplaySeq: s.tradeSeq,
			ServerID:   t.ServerID,
			Status:     StatusOpen,
		}
		if t.Action == protocol.ActionClose {
			rec.Status = StatusClosed
		}
		mergeTrade(rec, t)
		s.trades[t.ServerID] = rec
		return
	}

	mergeTrade(existing, t)
	if t.Action == protocol.ActionClose {
		existing.Status = StatusClosed
	}
}

// mergeTrade patches only the fields the payload supplies. DisplaySeq and
// Status are owned by ApplyTrade and never touched here.
func mergeTrade(rec *Trade, t protocol.TradePayload) {
	if t.OpenTime != nil {
		rec.OpenTime = *t.OpenTime
	}
	if t.CloseTime != nil {
		v := *t.CloseTime
		rec.CloseTime = &v
	}
	if t.Instrument != nil {
		rec.Instrument = *t.Instrument
	}
	if t.Side != nil {
		rec.Side = Side(*t.Side)
	}
	if t.EntryPrice != nil {
		rec.EntryPrice = *t.EntryPrice
	}
	if t.ExitPrice != nil {
		v := *t.ExitPrice
		rec.ExitPrice = &v
	}
	if t.StopLoss != nil {
		rec.StopLoss = *t.StopLoss
	}
	if t.TakeProfit != nil {
		rec.TakeProfit = *t.TakeProfit
	}
	if t.Quantity != nil {
		rec.Quantity = *t.Quantity
	}
	if t.Profit != nil {
		v := *t.Profit
		rec.Profit = &v
	}
}

// ApplyAllTrades rebuilds the ledger from a server snapshot keyed by server
// id. Status is derived from closeTime presence. Display sequence numbers
// are assigned in ascending openTime order so the visible numbering matches
// the chronological ledger, and the counter only ever moves forward: after a
// rehydration it continues from max(previous counter, batch size), so ids
// handed out before the replace are never reissued.
func (s *State) ApplyAllTrades(batch map[string]protocol.TradePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]*Trade, 0, len(batch))
	byID := make(map[string]*Trade, len(batch))
	for id, t := range batch {
		rec := &Trade{ServerID: id, Status: StatusOpen}
		mergeTrade(rec, t)
		if rec.CloseTime != nil {
			rec.Status = StatusClosed
		}
		ordered = append(ordered, rec)
		byID[id] = rec
	}

	sortTradesByOpenTime(ordered)
	for i, rec := range ordered {
		rec.DisplaySeq = i + 1
	}

	if len(batch) > s.tradeSeq {
		s.tradeSeq = len(batch)
	}
	s.trades = byID
}

// RestoreTrades reloads a mirrored ledger, replacing any current one. The
// counter resumes past the highest persisted display sequence.
func (s *State) RestoreTrades(trades []Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[string]*Trade, len(trades))
	maxSeq := s.tradeSeq
	for i := range trades {
		t := trades[i]
		byID[t.ServerID] = &t
		if t.DisplaySeq > maxSeq {
			maxSeq = t.DisplaySeq
		}
	}
	s.trades = byID
	s.tradeSeq = maxSeq
}

func sortTradesByOpenTime(trades []*Trade) {
	for i := 0; i < len(trades)-1; i++ {
		for j := i + 1; j < len(trades); j++ {
			if trades[j].OpenTime < trades[i].OpenTime ||
				(trades[j].OpenTime == trades[i].OpenTime && trades[j].ServerID < trades[i].ServerID) {
				trades[i], trades[j] = trades[j], trades[i]
			}
		}
	}
}

package testutil

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"TradeStore/internal/trade"
)

// MemLedger is an in-memory ledger store with the same conditional-upsert
// semantics as the Postgres implementation: the incoming row only
// overwrites when its version is >= the stored version, equal versions
// overwrite, and the current row is always returned. Safe for concurrent
// use.
type MemLedger struct {
	mu     sync.Mutex
	trades map[string]trade.Trade

	// FailFind / FailUpsert inject storage failures.
	FailFind   error
	FailUpsert error
}

func NewMemLedger() *MemLedger {
	return &MemLedger{trades: make(map[string]trade.Trade)}
}

func (l *MemLedger) FindByTradeID(ctx context.Context, tradeID string) (*trade.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailFind != nil {
		return nil, l.FailFind
	}
	t, ok := l.trades[tradeID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (l *MemLedger) Upsert(ctx context.Context, t trade.Trade) (trade.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailUpsert != nil {
		return trade.Trade{}, l.FailUpsert
	}

	now := time.Now().UTC()
	existing, ok := l.trades[t.TradeID]
	if !ok {
		t.CreatedAt = now
		t.UpdatedAt = now
		l.trades[t.TradeID] = t
		return t, nil
	}
	if t.Version >= existing.Version {
		t.CreatedAt = existing.CreatedAt
		t.UpdatedAt = now
		l.trades[t.TradeID] = t
		return t, nil
	}
	return existing, nil
}

func (l *MemLedger) MaxVersion(ctx context.Context, tradeID string) (*int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.trades[tradeID]
	if !ok {
		return nil, nil
	}
	v := t.Version
	return &v, nil
}

func (l *MemLedger) FindActiveMaturedBefore(ctx context.Context, cutoff time.Time) ([]trade.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []trade.Trade
	for _, t := range l.trades {
		if t.Status == trade.StatusActive && t.MaturityDate != nil && t.MaturityDate.Before(cutoff) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeID < out[j].TradeID })
	return out, nil
}

func (l *MemLedger) ExpireBatch(ctx context.Context, tradeIDs []string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range tradeIDs {
		t, ok := l.trades[id]
		if !ok || t.Status != trade.StatusActive {
			continue
		}
		t.Status = trade.StatusExpired
		t.UpdatedAt = now
		l.trades[id] = t
	}
	return nil
}

// Get returns the stored row. Test inspection only.
func (l *MemLedger) Get(tradeID string) (trade.Trade, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.trades[tradeID]
	return t, ok
}

// Put seeds a row directly, bypassing the conditional write.
func (l *MemLedger) Put(t trade.Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades[t.TradeID] = t
}

// FakeSequencer issues sequence numbers from an in-process atomic
// counter.
type FakeSequencer struct {
	counter atomic.Uint64

	// Fail makes every allocation return an error.
	Fail error
}

func (s *FakeSequencer) NextSequence(ctx context.Context) (uint64, error) {
	if s.Fail != nil {
		return 0, s.Fail
	}
	return s.counter.Add(1), nil
}

// Last returns the most recently issued sequence number.
func (s *FakeSequencer) Last() uint64 {
	return s.counter.Load()
}

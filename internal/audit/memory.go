package audit

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used by unit tests and local runs
// without a MongoDB.
type MemoryStore struct {
	mu   sync.Mutex
	recs []ChangeRecord

	// FailWrites makes every append return an error. Used to exercise the
	// best-effort audit path.
	FailWrites error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, rec ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *MemoryStore) AppendBatch(ctx context.Context, recs []ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.recs = append(s.recs, recs...)
	return nil
}

func (s *MemoryStore) FindByTradeID(ctx context.Context, tradeID string) ([]ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ChangeRecord
	for _, r := range s.recs {
		if r.TradeID == tradeID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version > out[j].Version
	})
	return out, nil
}

// All returns every record in append order.
func (s *MemoryStore) All() []ChangeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChangeRecord, len(s.recs))
	copy(out, s.recs)
	return out
}

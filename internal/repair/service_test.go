package repair_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"TradeStore/internal/audit"
	"TradeStore/internal/clock"
	"TradeStore/internal/ingest"
	"TradeStore/internal/repair"
	"TradeStore/internal/testutil"
	"TradeStore/internal/trade"
)

var today = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

// memParked is an in-memory Parked implementation.
type memParked struct {
	items map[string]repair.FailedTrade
}

func newMemParked() *memParked {
	return &memParked{items: make(map[string]repair.FailedTrade)}
}

func (m *memParked) List(ctx context.Context) ([]repair.FailedTrade, error) {
	var out []repair.FailedTrade
	for _, ft := range m.items {
		out = append(out, ft)
	}
	return out, nil
}

func (m *memParked) Get(ctx context.Context, id string) (*repair.FailedTrade, error) {
	ft, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &ft, nil
}

func (m *memParked) Delete(ctx context.Context, id string) error {
	delete(m.items, id)
	return nil
}

func newIngestService(ledger *testutil.MemLedger) *ingest.Service {
	return ingest.NewService(ledger, audit.NewMemoryStore(), &testutil.FakeSequencer{},
		clock.FixedAt(today), zerolog.Nop(), nil)
}

func TestResubmit_BumpsVersionPastCurrentMax(t *testing.T) {
	ledger := testutil.NewMemLedger()
	ledger.Put(trade.Trade{
		TradeID: "T1",
		Version: 9,
		Price:   decimal.New(100, 0),
		Status:  trade.StatusActive,
	})

	parked := newMemParked()
	// The parked payload carries version 3, which originally lost to
	// version 9.
	parked.items["f1"] = repair.FailedTrade{
		ID:      "f1",
		TradeID: "T1",
		Payload: []byte(`{"tradeId":"T1","version":3,"price":"55.50","quantity":20,"maturityDate":"2030-01-01T00:00:00Z"}`),
		Reason:  string(trade.RejectVersionTooLow),
	}

	svc := repair.NewService(parked, newIngestService(ledger), zerolog.Nop())
	persisted, err := svc.Resubmit(context.Background(), "f1")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if persisted.Version != 10 {
		t.Errorf("resubmitted version = %d, want 10 (max 9 + 1)", persisted.Version)
	}
	if persisted.Price.String() != "55.5" {
		t.Errorf("price = %s, want 55.5", persisted.Price)
	}

	if ft, _ := parked.Get(context.Background(), "f1"); ft != nil {
		t.Error("parked payload should be deleted after successful resubmission")
	}
}

func TestResubmit_UnknownTradeDefaultsVersion(t *testing.T) {
	parked := newMemParked()
	parked.items["f1"] = repair.FailedTrade{
		ID:      "f1",
		TradeID: "TX",
		Payload: []byte(`{"tradeId":"TX","price":"10","quantity":1}`),
		Reason:  "MALFORMED",
	}

	ledger := testutil.NewMemLedger()
	svc := repair.NewService(parked, newIngestService(ledger), zerolog.Nop())

	persisted, err := svc.Resubmit(context.Background(), "f1")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if persisted.Version != 1 {
		t.Errorf("version = %d, want 1 for an unknown trade with no version", persisted.Version)
	}
}

func TestResubmit_FailureKeepsPayloadParked(t *testing.T) {
	parked := newMemParked()
	// Payload without a tradeId can never ingest.
	parked.items["f1"] = repair.FailedTrade{
		ID:      "f1",
		Payload: []byte(`{"price":"10"}`),
		Reason:  "MALFORMED",
	}

	svc := repair.NewService(parked, newIngestService(testutil.NewMemLedger()), zerolog.Nop())
	if _, err := svc.Resubmit(context.Background(), "f1"); err == nil {
		t.Fatal("expected resubmit to fail")
	}
	if ft, _ := parked.Get(context.Background(), "f1"); ft == nil {
		t.Error("failed resubmission must leave the payload parked")
	}
}

func TestResubmit_MissingID(t *testing.T) {
	svc := repair.NewService(newMemParked(), newIngestService(testutil.NewMemLedger()), zerolog.Nop())
	if _, err := svc.Resubmit(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown parked id")
	}
}

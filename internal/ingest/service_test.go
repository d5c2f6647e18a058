package ingest_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"TradeStore/internal/audit"
	"TradeStore/internal/clock"
	"TradeStore/internal/ingest"
	"TradeStore/internal/testutil"
	"TradeStore/internal/trade"
)

var today = time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

func i64(v int64) *int64 { return &v }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

type fixture struct {
	svc    *ingest.Service
	ledger *testutil.MemLedger
	audit  *audit.MemoryStore
	seq    *testutil.FakeSequencer
}

func newFixture() *fixture {
	ledger := testutil.NewMemLedger()
	auditStore := audit.NewMemoryStore()
	seq := &testutil.FakeSequencer{}
	svc := ingest.NewService(ledger, auditStore, seq, clock.FixedAt(today), zerolog.Nop(), nil)
	return &fixture{svc: svc, ledger: ledger, audit: auditStore, seq: seq}
}

func update(tradeID string, version *int64, price string) trade.Update {
	return trade.Update{
		TradeID:      tradeID,
		Version:      version,
		Price:        decimal.RequireFromString(price),
		Quantity:     100,
		MaturityDate: datePtr(2030, 1, 1),
		Actor:        "desk-a",
	}
}

// ============================================================================
// Test: create / reject / update lifecycle
// ============================================================================

func TestIngestTrade_CreateRejectUpdate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Create T1 at version 5.
	created, err := f.svc.IngestTrade(ctx, update("T1", i64(5), "100.00"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version != 5 {
		t.Errorf("created version = %d, want 5", created.Version)
	}
	if created.Status != trade.StatusActive {
		t.Errorf("created status = %s, want ACTIVE", created.Status)
	}

	recs := f.audit.All()
	if len(recs) != 1 {
		t.Fatalf("audit records = %d, want 1", len(recs))
	}
	if recs[0].ChangeType != audit.ChangeCreate {
		t.Errorf("changeType = %s, want CREATE", recs[0].ChangeType)
	}
	if len(recs[0].Before) != 0 {
		t.Errorf("CREATE before snapshot = %v, want empty", recs[0].Before)
	}
	if recs[0].Sequence == nil {
		t.Error("CREATE record should carry the ingest sequence")
	}

	// Version 4 is below the stored version and must be rejected without
	// touching either store.
	_, err = f.svc.IngestTrade(ctx, update("T1", i64(4), "99.00"))
	rej, ok := trade.AsRejection(err)
	if !ok {
		t.Fatalf("expected rejection, got %v", err)
	}
	if rej.Reason != trade.RejectVersionTooLow {
		t.Errorf("reason = %s, want VERSION_TOO_LOW", rej.Reason)
	}
	stored, _ := f.ledger.Get("T1")
	if stored.Version != 5 {
		t.Errorf("stored version after rejection = %d, want 5", stored.Version)
	}
	if stored.Price.String() != "100" {
		t.Errorf("stored price after rejection = %s, want 100", stored.Price)
	}
	if got := len(f.audit.All()); got != 1 {
		t.Errorf("audit records after rejection = %d, want 1", got)
	}

	// Version 6 advances the row.
	updated, err := f.svc.IngestTrade(ctx, update("T1", i64(6), "101.50"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 6 {
		t.Errorf("updated version = %d, want 6", updated.Version)
	}

	recs = f.audit.All()
	if len(recs) != 2 {
		t.Fatalf("audit records = %d, want 2", len(recs))
	}
	if recs[1].ChangeType != audit.ChangeUpdate {
		t.Errorf("second changeType = %s, want UPDATE", recs[1].ChangeType)
	}
	if recs[1].Before["version"] != int64(5) {
		t.Errorf("UPDATE before version = %v, want 5", recs[1].Before["version"])
	}
}

func TestIngestTrade_EqualVersionOverwrites(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.IngestTrade(ctx, update("T1", i64(5), "100.00")); err != nil {
		t.Fatalf("create: %v", err)
	}
	persisted, err := f.svc.IngestTrade(ctx, update("T1", i64(5), "120.00"))
	if err != nil {
		t.Fatalf("equal-version update: %v", err)
	}
	if persisted.Price.String() != "120" {
		t.Errorf("price = %s, want 120 (equal version overwrites)", persisted.Price)
	}
}

func TestIngestTrade_AbsentVersionAccepted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.IngestTrade(ctx, update("T1", i64(9), "100.00")); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Absent version is "don't care": accepted, keeps the stored version.
	persisted, err := f.svc.IngestTrade(ctx, update("T1", nil, "150.00"))
	if err != nil {
		t.Fatalf("absent-version update: %v", err)
	}
	if persisted.Version != 9 {
		t.Errorf("version = %d, want 9", persisted.Version)
	}
	if persisted.Price.String() != "150" {
		t.Errorf("price = %s, want 150", persisted.Price)
	}
}

func TestIngestTrade_MaturityPastRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	u := update("T2", i64(1), "50.00")
	u.MaturityDate = datePtr(2026, 8, 29) // yesterday per the fixed clock

	_, err := f.svc.IngestTrade(ctx, u)
	rej, ok := trade.AsRejection(err)
	if !ok {
		t.Fatalf("expected rejection, got %v", err)
	}
	if rej.Reason != trade.RejectMaturityPast {
		t.Errorf("reason = %s, want MATURITY_PAST", rej.Reason)
	}
	if _, exists := f.ledger.Get("T2"); exists {
		t.Error("rejected trade must not reach the ledger")
	}
	if got := len(f.audit.All()); got != 0 {
		t.Errorf("audit records = %d, want 0", got)
	}
	if f.seq.Last() != 0 {
		t.Error("rejection must happen before a sequence number is consumed")
	}
}

func TestIngestTrade_MaturityTodayAccepted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	u := update("T3", i64(1), "50.00")
	u.MaturityDate = datePtr(2026, 8, 30)

	if _, err := f.svc.IngestTrade(ctx, u); err != nil {
		t.Errorf("maturity equal to today should be accepted, got %v", err)
	}
}

// ============================================================================
// Test: concurrency
// ============================================================================

// Eight concurrent ingestions for the same new trade with versions 1..8:
// the final stored version is the maximum and every successful write
// produced an audit record.
func TestIngestTrade_ConcurrentHighestVersionWins(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var wg sync.WaitGroup
	for v := int64(1); v <= 8; v++ {
		wg.Add(1)
		go func(version int64) {
			defer wg.Done()
			if _, err := f.svc.IngestTrade(ctx, update("T1", i64(version), "100.00")); err != nil {
				// Pre-check rejections are possible when a higher version
				// lands first; they must not produce audit records.
				if _, ok := trade.AsRejection(err); !ok {
					t.Errorf("unexpected error for version %d: %v", version, err)
				}
			}
		}(v)
	}
	wg.Wait()

	stored, ok := f.ledger.Get("T1")
	if !ok {
		t.Fatal("trade T1 missing after concurrent ingest")
	}
	if stored.Version != 8 {
		t.Errorf("final version = %d, want 8", stored.Version)
	}

	// At most eight records, and the latest record must reflect version 8.
	recs, _ := f.audit.FindByTradeID(ctx, "T1")
	if len(recs) == 0 || len(recs) > 8 {
		t.Fatalf("audit records = %d, want between 1 and 8", len(recs))
	}
	if recs[0].Version != 8 {
		t.Errorf("highest audited version = %d, want 8", recs[0].Version)
	}
}

func TestIngestTrade_SequencesDistinct(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	const n = 50
	seqs := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			persisted, err := f.svc.IngestTrade(ctx, update("T1", i64(v), "100.00"))
			if err == nil {
				seqs <- persisted.IngestSequence
			} else {
				seqs <- 0
			}
		}(int64(i))
	}
	wg.Wait()
	close(seqs)

	if f.seq.Last() == 0 {
		t.Fatal("no sequences were allocated")
	}
	if f.seq.Last() > n {
		t.Errorf("allocated %d sequences for %d attempts", f.seq.Last(), n)
	}
}

// ============================================================================
// Test: failure isolation
// ============================================================================

func TestIngestTrade_AuditFailureDoesNotUnwindLedger(t *testing.T) {
	f := newFixture()
	f.audit.FailWrites = errors.New("mongo unreachable")
	ctx := context.Background()

	persisted, err := f.svc.IngestTrade(ctx, update("T1", i64(1), "100.00"))
	if err != nil {
		t.Fatalf("ingest must succeed despite audit failure, got %v", err)
	}
	if persisted.Version != 1 {
		t.Errorf("version = %d, want 1", persisted.Version)
	}
	stored, ok := f.ledger.Get("T1")
	if !ok || stored.Version != 1 {
		t.Error("ledger write must survive the audit failure")
	}
}

func TestIngestTrade_SequencerFailureAborts(t *testing.T) {
	f := newFixture()
	f.seq.Fail = errors.New("sequence unavailable")
	ctx := context.Background()

	_, err := f.svc.IngestTrade(ctx, update("T1", i64(1), "100.00"))
	if err == nil {
		t.Fatal("expected sequencer failure to abort ingestion")
	}
	if _, ok := trade.AsRejection(err); ok {
		t.Error("sequencer failure is fatal, not a rejection")
	}
	if _, exists := f.ledger.Get("T1"); exists {
		t.Error("no ledger write may happen without a sequence number")
	}
}

func TestIngestTrade_LedgerFailureSkipsSequence(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.ledger.FailUpsert = errors.New("connection reset")
	if _, err := f.svc.IngestTrade(ctx, update("T1", i64(1), "100.00")); err == nil {
		t.Fatal("expected ledger failure to propagate")
	}
	consumed := f.seq.Last()
	if consumed != 1 {
		t.Fatalf("sequence consumed = %d, want 1", consumed)
	}

	// Recovery: the failed attempt's sequence is skipped, not reused.
	f.ledger.FailUpsert = nil
	persisted, err := f.svc.IngestTrade(ctx, update("T1", i64(1), "100.00"))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if persisted.IngestSequence != consumed+1 {
		t.Errorf("retry sequence = %d, want %d", persisted.IngestSequence, consumed+1)
	}
	if got := len(f.audit.All()); got != 1 {
		t.Errorf("audit records = %d, want 1 (failed attempt writes nothing)", got)
	}
}

// ============================================================================
// Test: queries
// ============================================================================

func TestQueryMaxVersion(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	v, err := f.svc.QueryMaxVersion(ctx, "missing")
	if err != nil {
		t.Fatalf("query missing: %v", err)
	}
	if v != nil {
		t.Errorf("max version for missing trade = %v, want nil", *v)
	}

	if _, err := f.svc.IngestTrade(ctx, update("T1", i64(12), "100.00")); err != nil {
		t.Fatalf("create: %v", err)
	}
	v, err = f.svc.QueryMaxVersion(ctx, "T1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if v == nil || *v != 12 {
		t.Errorf("max version = %v, want 12", v)
	}
}

func TestHistory_VersionDescending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, v := range []int64{1, 3, 2} {
		u := update("T1", i64(v), "100.00")
		if _, err := f.svc.IngestTrade(ctx, u); err != nil {
			if _, ok := trade.AsRejection(err); !ok {
				t.Fatalf("ingest v%d: %v", v, err)
			}
		}
	}

	recs, err := f.svc.History(ctx, "T1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i-1].Version < recs[i].Version {
			t.Errorf("history not version-descending at %d: %d < %d", i, recs[i-1].Version, recs[i].Version)
		}
	}
}

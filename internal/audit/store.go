package audit

import "context"

// Store is the append-only audit trail. Writes are best-effort relative to
// the ledger transaction: callers log failures and never unwind or retry
// the already-committed ledger mutation because of them.
type Store interface {
	Append(ctx context.Context, rec ChangeRecord) error
	AppendBatch(ctx context.Context, recs []ChangeRecord) error
	// FindByTradeID returns all records for a trade, version descending.
	FindByTradeID(ctx context.Context, tradeID string) ([]ChangeRecord, error)
}

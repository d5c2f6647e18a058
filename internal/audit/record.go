package audit

import (
	"time"

	"github.com/google/uuid"

	"TradeStore/internal/trade"
)

// ChangeType classifies a ledger mutation in the audit trail.
type ChangeType string

const (
	ChangeCreate ChangeType = "CREATE"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeExpire ChangeType = "EXPIRE"
)

// ChangeRecord is one immutable audit document: a before/after snapshot of
// a single successful ledger mutation. Records are append-only and are
// never updated or deleted.
type ChangeRecord struct {
	ID         string         `bson:"_id" json:"id"`
	TradeID    string         `bson:"trade_id" json:"tradeId"`
	Version    int64          `bson:"version" json:"version"`
	ChangeType ChangeType     `bson:"change_type" json:"changeType"`
	Before     map[string]any `bson:"before" json:"before"`
	After      map[string]any `bson:"after" json:"after"`
	Actor      string         `bson:"actor" json:"actor"`
	Timestamp  time.Time      `bson:"timestamp" json:"timestamp"`
	// Sequence carries the ingest sequence of the corresponding ledger
	// write. Sweeper-driven expirations happen outside the per-record
	// sequencing path and leave it nil.
	Sequence *uint64 `bson:"sequence,omitempty" json:"sequence,omitempty"`
}

// NewRecord builds a ChangeRecord with a fresh identifier.
func NewRecord(tradeID string, version int64, changeType ChangeType, actor string, ts time.Time) ChangeRecord {
	return ChangeRecord{
		ID:         uuid.NewString(),
		TradeID:    tradeID,
		Version:    version,
		ChangeType: changeType,
		Before:     map[string]any{},
		After:      map[string]any{},
		Actor:      actor,
		Timestamp:  ts,
	}
}

// Snapshot flattens a trade row into the map shape stored in the
// before/after fields of ingestion records.
func Snapshot(t *trade.Trade) map[string]any {
	if t == nil {
		return map[string]any{}
	}
	m := map[string]any{
		"tradeId":  t.TradeID,
		"version":  t.Version,
		"price":    t.Price.String(),
		"quantity": t.Quantity,
		"status":   string(t.Status),
	}
	if t.MaturityDate != nil {
		m["maturityDate"] = t.MaturityDate.Format("2006-01-02")
	}
	return m
}

// StatusSnapshot is the narrow snapshot used by expiry records.
func StatusSnapshot(t trade.Trade, status trade.Status) map[string]any {
	return map[string]any{
		"tradeId": t.TradeID,
		"version": t.Version,
		"status":  string(status),
	}
}

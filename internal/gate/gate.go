// Package gate holds the pure pre-write decision functions for ingestion.
// Both gates are fast-fail checks evaluated against the snapshot read just
// before the atomic upsert; the version rule is additionally encoded into
// the upsert's conditional predicate, which is what actually resolves
// concurrent races. The gates exist for early rejection and clear
// client-facing error codes.
package gate

import (
	"time"

	"TradeStore/internal/clock"
	"TradeStore/internal/trade"
)

// AcceptVersion reports whether an incoming version may overwrite the
// existing one. Rules, in order: no existing trade accepts; absent
// incoming version accepts; a strictly lower incoming version rejects;
// everything else, equality included, accepts.
func AcceptVersion(incoming *int64, existing *int64) bool {
	if existing == nil {
		return true
	}
	if incoming == nil {
		return true
	}
	return *incoming >= *existing
}

// AcceptMaturity reports whether a maturity date is ingestible relative to
// today. Absent maturity accepts; a maturity equal to today accepts; only
// a maturity strictly before today rejects.
func AcceptMaturity(maturity *time.Time, today time.Time) bool {
	if maturity == nil {
		return true
	}
	return !clock.DateOf(*maturity).Before(clock.DateOf(today))
}

// CheckUpdate validates an update's required fields and runs both gates
// against the existing snapshot. It returns a typed RejectionError and
// performs no I/O.
func CheckUpdate(u trade.Update, existing *trade.Trade, today time.Time) error {
	if u.TradeID == "" {
		return trade.NewRejection(trade.RejectMalformed, u.TradeID, "tradeId is required")
	}
	if u.Version != nil && *u.Version < 0 {
		return trade.NewRejection(trade.RejectMalformed, u.TradeID, "version must be non-negative")
	}
	if u.Quantity < 0 {
		return trade.NewRejection(trade.RejectMalformed, u.TradeID, "quantity must be non-negative")
	}
	if !AcceptMaturity(u.MaturityDate, today) {
		return trade.NewRejection(trade.RejectMaturityPast, u.TradeID, "maturity date is in the past")
	}
	var existingVersion *int64
	if existing != nil {
		existingVersion = &existing.Version
	}
	if !AcceptVersion(u.Version, existingVersion) {
		return trade.NewRejection(trade.RejectVersionTooLow, u.TradeID, "incoming version is lower than existing")
	}
	return nil
}

package trade

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a trade row.
// Transitions only ACTIVE -> EXPIRED; ingestion always writes ACTIVE,
// only the expiry sweeper writes EXPIRED.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
)

// Trade is the current state of one trade identifier in the ledger store.
// There is exactly one row per TradeID; it is mutated in place and never
// deleted.
type Trade struct {
	TradeID        string          `json:"tradeId"`
	Version        int64           `json:"version"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int64           `json:"quantity"`
	MaturityDate   *time.Time      `json:"maturityDate,omitempty"` // calendar date, UTC midnight
	Status         Status          `json:"status"`
	IngestSequence uint64          `json:"ingestSequence"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Update is an inbound create-or-update request as produced by the HTTP
// and queue adapters. Version and MaturityDate are optional: an absent
// version means "don't care" and an absent maturity date is unconstrained.
type Update struct {
	TradeID      string          `json:"tradeId"`
	Version      *int64          `json:"version,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int64           `json:"quantity"`
	MaturityDate *time.Time      `json:"maturityDate,omitempty"`
	Actor        string          `json:"actor,omitempty"`
}

// EffectiveVersion resolves the version an update will persist: an absent
// incoming version keeps the existing stored version, or 0 on first write.
func (u Update) EffectiveVersion(existing *Trade) int64 {
	if u.Version != nil {
		return *u.Version
	}
	if existing != nil {
		return existing.Version
	}
	return 0
}

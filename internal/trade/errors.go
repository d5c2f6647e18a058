package trade

import (
	"errors"
	"fmt"
)

// RejectReason classifies why an ingestion attempt was refused before any
// store mutation took place.
type RejectReason string

const (
	RejectVersionTooLow RejectReason = "VERSION_TOO_LOW"
	RejectMaturityPast  RejectReason = "MATURITY_PAST"
	RejectMalformed     RejectReason = "MALFORMED"
)

// RejectionError is returned to callers synchronously for validation
// failures. No ledger or audit write has happened when it is returned,
// and the core never retries it.
type RejectionError struct {
	Reason  RejectReason
	TradeID string
	Detail  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("trade %s rejected (%s): %s", e.TradeID, e.Reason, e.Detail)
}

// NewRejection builds a RejectionError for the given trade and reason.
func NewRejection(reason RejectReason, tradeID, detail string) *RejectionError {
	return &RejectionError{Reason: reason, TradeID: tradeID, Detail: detail}
}

// AsRejection unwraps err into a RejectionError if it is one.
func AsRejection(err error) (*RejectionError, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

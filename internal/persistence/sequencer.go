package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresSequencer issues strictly increasing ingest sequence numbers
// from the trade_ingest_seq database sequence. The counter is durable and
// store-native, so values survive restarts and stay unique across all
// processes sharing the database. Gaps are permitted: a sequence consumed
// by an ingestion whose ledger write then fails is simply skipped.
type PostgresSequencer struct {
	db *sql.DB
}

func NewPostgresSequencer(db *sql.DB) *PostgresSequencer {
	return &PostgresSequencer{db: db}
}

// NextSequence returns a value strictly greater than every previously
// returned value. Any error aborts the enclosing ingestion; sequence
// numbers are never reused.
func (s *PostgresSequencer) NextSequence(ctx context.Context) (uint64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('trade_ingest_seq')`).Scan(&v); err != nil {
		return 0, fmt.Errorf("next ingest sequence: %w", err)
	}
	return uint64(v), nil
}

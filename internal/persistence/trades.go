package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"TradeStore/internal/trade"
)

// TradeStore is the durable keyed store of current trade state, one row
// per trade_id in the Postgres trades table.
type TradeStore struct {
	db *sql.DB
}

func NewTradeStore(db *sql.DB) *TradeStore {
	return &TradeStore{db: db}
}

const tradeColumns = `trade_id, version, price, quantity, maturity_date, status, ingest_sequence, created_at, updated_at`

// upsertSQL performs the conditional overwrite entirely inside Postgres.
// Each mutable column only takes the incoming value when
// EXCLUDED.version >= trades.version, so the highest version wins under
// concurrency regardless of arrival order, with equal versions
// overwriting. The statement is atomic per row; there is no
// read-modify-write at the application layer. RETURNING yields the row as
// it stands after the statement, which in the lost-race case is the other
// writer's higher-version row, not the caller's input.
const upsertSQL = `
	INSERT INTO trades (trade_id, version, price, quantity, maturity_date, status, ingest_sequence, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	ON CONFLICT (trade_id) DO UPDATE SET
		version         = CASE WHEN EXCLUDED.version >= trades.version THEN EXCLUDED.version         ELSE trades.version         END,
		price           = CASE WHEN EXCLUDED.version >= trades.version THEN EXCLUDED.price           ELSE trades.price           END,
		quantity        = CASE WHEN EXCLUDED.version >= trades.version THEN EXCLUDED.quantity        ELSE trades.quantity        END,
		maturity_date   = CASE WHEN EXCLUDED.version >= trades.version THEN EXCLUDED.maturity_date   ELSE trades.maturity_date   END,
		status          = CASE WHEN EXCLUDED.version >= trades.version THEN EXCLUDED.status          ELSE trades.status          END,
		ingest_sequence = CASE WHEN EXCLUDED.version >= trades.version THEN EXCLUDED.ingest_sequence ELSE trades.ingest_sequence END,
		updated_at      = CASE WHEN EXCLUDED.version >= trades.version THEN now()                    ELSE trades.updated_at      END
	RETURNING ` + tradeColumns

// Upsert inserts a new trade row or conditionally overwrites an existing
// one, and returns the current row for the trade_id. A lost conditional
// race is not an error: the returned row simply reflects the winning
// write.
func (s *TradeStore) Upsert(ctx context.Context, t trade.Trade) (trade.Trade, error) {
	var maturity sql.NullTime
	if t.MaturityDate != nil {
		maturity = sql.NullTime{Time: *t.MaturityDate, Valid: true}
	}

	row := s.db.QueryRowContext(ctx, upsertSQL,
		t.TradeID, t.Version, t.Price, t.Quantity, maturity,
		string(t.Status), int64(t.IngestSequence),
	)
	persisted, err := scanTrade(row)
	if err != nil {
		return trade.Trade{}, fmt.Errorf("upsert trade %s: %w", t.TradeID, err)
	}
	return *persisted, nil
}

// FindByTradeID returns the current row for a trade, or nil when the
// trade has never been ingested.
func (s *TradeStore) FindByTradeID(ctx context.Context, tradeID string) (*trade.Trade, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE trade_id = $1`, tradeID)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find trade %s: %w", tradeID, err)
	}
	return t, nil
}

// MaxVersion returns the stored version for a trade, or nil when absent.
// Consumed by external repair tooling.
func (s *TradeStore) MaxVersion(ctx context.Context, tradeID string) (*int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM trades WHERE trade_id = $1`, tradeID).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("max version %s: %w", tradeID, err)
	}
	return &v, nil
}

// FindActiveMaturedBefore returns ACTIVE trades whose maturity date is
// strictly before the cutoff calendar date.
func (s *TradeStore) FindActiveMaturedBefore(ctx context.Context, cutoff time.Time) ([]trade.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE status = $1 AND maturity_date IS NOT NULL AND maturity_date < $2
		 ORDER BY trade_id`,
		string(trade.StatusActive), cutoff)
	if err != nil {
		return nil, fmt.Errorf("find matured trades: %w", err)
	}
	defer rows.Close()

	var out []trade.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan matured trade: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ExpireBatch transitions the given ACTIVE trades to EXPIRED and stamps
// updated_at. The status guard makes a repeated sweep a no-op.
func (s *TradeStore) ExpireBatch(ctx context.Context, tradeIDs []string, now time.Time) error {
	if len(tradeIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE trades SET status = $1, updated_at = $2
		 WHERE trade_id = ANY($3) AND status = $4`,
		string(trade.StatusExpired), now, pq.Array(tradeIDs), string(trade.StatusActive))
	if err != nil {
		return fmt.Errorf("expire %d trades: %w", len(tradeIDs), err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(r rowScanner) (*trade.Trade, error) {
	var (
		t        trade.Trade
		maturity sql.NullTime
		status   string
		seq      int64
	)
	if err := r.Scan(
		&t.TradeID, &t.Version, &t.Price, &t.Quantity,
		&maturity, &status, &seq, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if maturity.Valid {
		d := maturity.Time.UTC()
		t.MaturityDate = &d
	}
	t.Status = trade.Status(status)
	t.IngestSequence = uint64(seq)
	return &t, nil
}

// Package repair parks queue payloads that failed ingestion and resubmits
// them through the orchestrator with a repaired version.
package repair

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FailedTrade is one parked payload awaiting repair.
type FailedTrade struct {
	ID         string    `json:"id"`
	TradeID    string    `json:"tradeId"`
	Payload    []byte    `json:"payload"`
	Reason     string    `json:"reason"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// FailedTradeStore keeps failed payloads in the failed_trades table.
type FailedTradeStore struct {
	db *sql.DB
}

func NewFailedTradeStore(db *sql.DB) *FailedTradeStore {
	return &FailedTradeStore{db: db}
}

// Save parks a payload and returns the assigned identifier.
func (s *FailedTradeStore) Save(ctx context.Context, tradeID string, payload []byte, reason string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failed_trades (id, trade_id, payload, reason, received_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		id, tradeID, payload, reason)
	if err != nil {
		return "", fmt.Errorf("save failed trade: %w", err)
	}
	return id, nil
}

// List returns all parked payloads, oldest first.
func (s *FailedTradeStore) List(ctx context.Context) ([]FailedTrade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trade_id, payload, reason, received_at
		 FROM failed_trades ORDER BY received_at`)
	if err != nil {
		return nil, fmt.Errorf("list failed trades: %w", err)
	}
	defer rows.Close()

	var out []FailedTrade
	for rows.Next() {
		var ft FailedTrade
		var tradeID sql.NullString
		if err := rows.Scan(&ft.ID, &tradeID, &ft.Payload, &ft.Reason, &ft.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan failed trade: %w", err)
		}
		ft.TradeID = tradeID.String
		out = append(out, ft)
	}
	return out, rows.Err()
}

// Get returns one parked payload, or nil when absent.
func (s *FailedTradeStore) Get(ctx context.Context, id string) (*FailedTrade, error) {
	var ft FailedTrade
	var tradeID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, trade_id, payload, reason, received_at
		 FROM failed_trades WHERE id = $1`, id).
		Scan(&ft.ID, &tradeID, &ft.Payload, &ft.Reason, &ft.ReceivedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failed trade %s: %w", id, err)
	}
	ft.TradeID = tradeID.String
	return &ft, nil
}

// Delete removes a parked payload after successful resubmission.
func (s *FailedTradeStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM failed_trades WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete failed trade %s: %w", id, err)
	}
	return nil
}

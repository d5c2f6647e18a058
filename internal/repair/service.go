package repair

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"TradeStore/internal/trade"
)

// Ingestor is the slice of the orchestrator the repair service drives.
type Ingestor interface {
	IngestTrade(ctx context.Context, u trade.Update) (trade.Trade, error)
	QueryMaxVersion(ctx context.Context, tradeID string) (*int64, error)
}

// Parked is the failed-trade parking lot.
type Parked interface {
	List(ctx context.Context) ([]FailedTrade, error)
	Get(ctx context.Context, id string) (*FailedTrade, error)
	Delete(ctx context.Context, id string) error
}

// Service resubmits parked payloads. Before resubmission it queries the
// ledger's current max version for the trade and bumps the payload's
// version to max+1 so the resubmission cannot lose to the row that
// originally beat it.
type Service struct {
	parked Parked
	ing    Ingestor
	log    zerolog.Logger
}

func NewService(parked Parked, ing Ingestor, log zerolog.Logger) *Service {
	return &Service{parked: parked, ing: ing, log: log}
}

// ListFailed returns all parked payloads.
func (s *Service) ListFailed(ctx context.Context) ([]FailedTrade, error) {
	return s.parked.List(ctx)
}

// GetFailed returns one parked payload, or nil when absent.
func (s *Service) GetFailed(ctx context.Context, id string) (*FailedTrade, error) {
	return s.parked.Get(ctx, id)
}

// Resubmit replays a parked payload through the orchestrator. On success
// the parked row is deleted; on failure it stays parked for another
// attempt.
func (s *Service) Resubmit(ctx context.Context, id string) (trade.Trade, error) {
	ft, err := s.parked.Get(ctx, id)
	if err != nil {
		return trade.Trade{}, err
	}
	if ft == nil {
		return trade.Trade{}, fmt.Errorf("failed trade %s not found", id)
	}

	var u trade.Update
	if err := json.Unmarshal(ft.Payload, &u); err != nil {
		return trade.Trade{}, fmt.Errorf("decode parked payload %s: %w", id, err)
	}

	if err := s.repairVersion(ctx, &u); err != nil {
		s.log.Warn().Err(err).Str("trade_id", u.TradeID).
			Msg("max-version lookup failed, resubmitting payload as-is")
	}

	persisted, err := s.ing.IngestTrade(ctx, u)
	if err != nil {
		return trade.Trade{}, fmt.Errorf("resubmit %s: %w", id, err)
	}

	if err := s.parked.Delete(ctx, id); err != nil {
		// The trade is already persisted; deleting the parked row again
		// later is harmless.
		s.log.Error().Err(err).Str("id", id).Msg("delete parked payload failed")
	}

	s.log.Info().Str("id", id).Str("trade_id", u.TradeID).Msg("parked trade resubmitted")
	return persisted, nil
}

// repairVersion bumps the payload to the ledger's current max version
// plus one, or defaults a missing version to 1 for unknown trades.
func (s *Service) repairVersion(ctx context.Context, u *trade.Update) error {
	if u.TradeID == "" {
		if u.Version == nil {
			v := int64(1)
			u.Version = &v
		}
		return nil
	}

	max, err := s.ing.QueryMaxVersion(ctx, u.TradeID)
	if err != nil {
		return err
	}
	if max != nil {
		v := *max + 1
		u.Version = &v
	} else if u.Version == nil {
		v := int64(1)
		u.Version = &v
	}
	return nil
}

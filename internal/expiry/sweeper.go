// Package expiry transitions trades past their maturity date to EXPIRED.
package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"TradeStore/internal/audit"
	"TradeStore/internal/clock"
	"TradeStore/internal/observability"
	"TradeStore/internal/trade"
)

// Ledger is the subset of the trade store the sweeper needs.
type Ledger interface {
	FindActiveMaturedBefore(ctx context.Context, cutoff time.Time) ([]trade.Trade, error)
	ExpireBatch(ctx context.Context, tradeIDs []string, now time.Time) error
}

// Sweeper periodically expires ACTIVE trades whose maturity date is
// strictly before today (UTC, per the injected clock). A sweep is
// idempotent: an immediate second run finds nothing to do.
type Sweeper struct {
	ledger   Ledger
	audit    audit.Store
	clock    clock.Clock
	interval time.Duration
	log      zerolog.Logger
	metrics  *observability.Metrics
}

func NewSweeper(ledger Ledger, auditStore audit.Store, clk clock.Clock, interval time.Duration, log zerolog.Logger, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{
		ledger:   ledger,
		audit:    auditStore,
		clock:    clk,
		interval: interval,
		log:      log,
		metrics:  metrics,
	}
}

// Run executes SweepExpired on the configured interval until ctx is
// cancelled. Sweep errors are logged and the loop keeps going.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil {
				if s.metrics != nil {
					s.metrics.SweepErrors.Inc()
				}
				s.log.Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}

// SweepExpired finds ACTIVE trades matured strictly before today,
// transitions them to EXPIRED stamping updated_at, and appends one EXPIRE
// change record per trade to the audit store. The audit batch is
// best-effort: a failure there is logged and does not revert the ledger
// transition. Returns the transitioned trades.
func (s *Sweeper) SweepExpired(ctx context.Context) ([]trade.Trade, error) {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.SweepRuns.Inc()
	}

	today := clock.Today(s.clock)
	due, err := s.ledger.FindActiveMaturedBefore(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("find matured trades: %w", err)
	}
	if len(due) == 0 {
		return nil, nil
	}

	now := s.clock.Now().UTC()
	ids := make([]string, len(due))
	for i, t := range due {
		ids[i] = t.TradeID
	}
	if err := s.ledger.ExpireBatch(ctx, ids, now); err != nil {
		return nil, fmt.Errorf("expire batch: %w", err)
	}

	records := make([]audit.ChangeRecord, 0, len(due))
	expired := make([]trade.Trade, 0, len(due))
	for _, t := range due {
		rec := audit.NewRecord(t.TradeID, t.Version, audit.ChangeExpire, "system", now)
		rec.Before = audit.StatusSnapshot(t, trade.StatusActive)
		rec.After = audit.StatusSnapshot(t, trade.StatusExpired)
		records = append(records, rec)

		t.Status = trade.StatusExpired
		t.UpdatedAt = now
		expired = append(expired, t)
	}

	if err := s.audit.AppendBatch(ctx, records); err != nil {
		if s.metrics != nil {
			s.metrics.AuditWriteFailures.Inc()
		}
		s.log.Error().Err(err).Int("records", len(records)).
			Msg("audit batch append failed, records dropped")
	} else if s.metrics != nil {
		s.metrics.AuditRecordsWritten.WithLabelValues(string(audit.ChangeExpire)).Add(float64(len(records)))
	}

	if s.metrics != nil {
		s.metrics.SweepExpired.Add(float64(len(expired)))
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	s.log.Info().Int("expired", len(expired)).Time("cutoff", today).Msg("expiry sweep complete")

	return expired, nil
}

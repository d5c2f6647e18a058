// Package ingest composes the gates, sequencer, ledger store and audit
// store into the end-to-end create-or-update operation.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"TradeStore/internal/audit"
	"TradeStore/internal/clock"
	"TradeStore/internal/gate"
	"TradeStore/internal/observability"
	"TradeStore/internal/trade"
)

// Ledger is the strongly consistent keyed store of current trade state.
// Upsert must be a single atomic conditional write inside the backing
// store; it is the only serialization point for concurrent ingestion.
type Ledger interface {
	FindByTradeID(ctx context.Context, tradeID string) (*trade.Trade, error)
	Upsert(ctx context.Context, t trade.Trade) (trade.Trade, error)
	MaxVersion(ctx context.Context, tradeID string) (*int64, error)
}

// Sequencer issues strictly increasing ingest sequence numbers backed by
// a durable store-native counter.
type Sequencer interface {
	NextSequence(ctx context.Context) (uint64, error)
}

// Service is the ingestion orchestrator. It is safe for arbitrary
// concurrent use: it holds no per-trade locks and relies on the ledger's
// atomic conditional write to resolve races.
type Service struct {
	ledger  Ledger
	audit   audit.Store
	seq     Sequencer
	clock   clock.Clock
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewService(ledger Ledger, auditStore audit.Store, seq Sequencer, clk clock.Clock, log zerolog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		ledger:  ledger,
		audit:   auditStore,
		seq:     seq,
		clock:   clk,
		log:     log,
		metrics: metrics,
	}
}

// IngestTrade runs one ingestion attempt end to end: snapshot read,
// maturity and version gates, sequence allocation, atomic upsert, then a
// best-effort audit append. It returns the persisted row, a
// *trade.RejectionError for validation refusals, or a fatal error when
// the sequencer or ledger store fails.
//
// The gate checks run against the snapshot just read and exist for cheap
// early rejection; a concurrent writer may still advance the version
// before the upsert executes, in which case the upsert's conditional
// predicate keeps the higher-version row and the returned trade reflects
// that winning write.
func (s *Service) IngestTrade(ctx context.Context, u trade.Update) (trade.Trade, error) {
	start := time.Now()

	before, err := s.ledger.FindByTradeID(ctx, u.TradeID)
	if err != nil {
		s.countFailure("ledger")
		return trade.Trade{}, fmt.Errorf("read trade snapshot: %w", err)
	}

	if err := gate.CheckUpdate(u, before, clock.Today(s.clock)); err != nil {
		if rej, ok := trade.AsRejection(err); ok {
			s.countRejection(rej.Reason)
			s.log.Info().
				Str("trade_id", u.TradeID).
				Str("reason", string(rej.Reason)).
				Msg("trade rejected")
		}
		return trade.Trade{}, err
	}

	seq, err := s.seq.NextSequence(ctx)
	if err != nil {
		s.countFailure("sequence")
		return trade.Trade{}, fmt.Errorf("allocate ingest sequence: %w", err)
	}

	candidate := trade.Trade{
		TradeID:        u.TradeID,
		Version:        u.EffectiveVersion(before),
		Price:          u.Price,
		Quantity:       u.Quantity,
		MaturityDate:   u.MaturityDate,
		Status:         trade.StatusActive,
		IngestSequence: seq,
	}

	upsertStart := time.Now()
	persisted, err := s.ledger.Upsert(ctx, candidate)
	if err != nil {
		// The consumed sequence number is skipped; gaps are expected.
		s.countFailure("ledger")
		return trade.Trade{}, fmt.Errorf("ledger upsert: %w", err)
	}
	if s.metrics != nil {
		s.metrics.UpsertDuration.Observe(time.Since(upsertStart).Seconds())
		s.metrics.IngestSequence.Set(float64(seq))
	}

	changeType := audit.ChangeUpdate
	if before == nil {
		changeType = audit.ChangeCreate
	}
	s.appendAudit(ctx, u, before, persisted, seq, changeType)

	if s.metrics != nil {
		s.metrics.IngestAccepted.WithLabelValues(string(changeType)).Inc()
		s.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}
	s.log.Debug().
		Str("trade_id", persisted.TradeID).
		Int64("version", persisted.Version).
		Uint64("sequence", seq).
		Str("change_type", string(changeType)).
		Msg("trade persisted")

	return persisted, nil
}

// appendAudit writes the change record for a committed ledger mutation.
// The ledger write is already durable here, so an audit failure is logged
// and dropped; it must never unwind or retry the primary write.
func (s *Service) appendAudit(ctx context.Context, u trade.Update, before *trade.Trade, after trade.Trade, seq uint64, changeType audit.ChangeType) {
	actor := u.Actor
	if actor == "" {
		actor = "system"
	}

	rec := audit.NewRecord(after.TradeID, after.Version, changeType, actor, s.clock.Now().UTC())
	rec.Before = audit.Snapshot(before)
	rec.After = audit.Snapshot(&after)
	rec.Sequence = &seq

	if err := s.audit.Append(ctx, rec); err != nil {
		if s.metrics != nil {
			s.metrics.AuditWriteFailures.Inc()
		}
		s.log.Error().
			Err(err).
			Str("trade_id", after.TradeID).
			Str("change_type", string(changeType)).
			Msg("audit append failed, record dropped")
		return
	}
	if s.metrics != nil {
		s.metrics.AuditRecordsWritten.WithLabelValues(string(changeType)).Inc()
	}
}

// QueryMaxVersion returns the stored version for a trade, or nil when the
// trade does not exist. Consumed by repair and reconciliation tooling.
func (s *Service) QueryMaxVersion(ctx context.Context, tradeID string) (*int64, error) {
	return s.ledger.MaxVersion(ctx, tradeID)
}

// History returns the audit trail for a trade, version descending.
func (s *Service) History(ctx context.Context, tradeID string) ([]audit.ChangeRecord, error) {
	return s.audit.FindByTradeID(ctx, tradeID)
}

// Find returns the current row for a trade, or nil when absent.
func (s *Service) Find(ctx context.Context, tradeID string) (*trade.Trade, error) {
	return s.ledger.FindByTradeID(ctx, tradeID)
}

func (s *Service) countRejection(reason trade.RejectReason) {
	if s.metrics != nil {
		s.metrics.IngestRejected.WithLabelValues(string(reason)).Inc()
	}
}

func (s *Service) countFailure(stage string) {
	if s.metrics != nil {
		s.metrics.IngestFailures.WithLabelValues(stage).Inc()
	}
}

// Package ingestion is the queue-consumer adapter: it reads trade update
// messages from NATS JetStream and drives the orchestrator. It contains
// no business logic of its own.
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"TradeStore/internal/trade"
)

const (
	StreamName   = "TRADES"
	Subject      = "trades.ingest"
	ConsumerName = "trade-store"
)

// Ingestor is the orchestrator surface the consumer drives.
type Ingestor interface {
	IngestTrade(ctx context.Context, u trade.Update) (trade.Trade, error)
}

// Parker parks payloads that can never succeed as delivered.
type Parker interface {
	Save(ctx context.Context, tradeID string, payload []byte, reason string) (string, error)
}

// Consumer subscribes to the trades subject and feeds each message
// through the orchestrator. Delivery policy: rejections are terminal for
// the message (ACK + park for repair), store failures are transient
// (NAK, redelivered).
type Consumer struct {
	js       jetstream.JetStream
	ing      Ingestor
	parked   Parker
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewConsumer(js jetstream.JetStream, ing Ingestor, parked Parker, log zerolog.Logger) *Consumer {
	return &Consumer{js: js, ing: ing, parked: parked, log: log}
}

// Start creates the durable consumer and begins processing. Explicit ACK,
// max_deliver=5, ack_wait=30s.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", ConsumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		c.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", ConsumerName, err)
	}
	c.consumer = cc

	c.log.Info().Str("subject", Subject).Str("consumer", ConsumerName).Msg("subscribed")
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg jetstream.Msg) {
	var u trade.Update
	if err := json.Unmarshal(msg.Data(), &u); err != nil {
		c.park(ctx, "", msg.Data(), fmt.Sprintf("malformed JSON: %v", err))
		msg.Ack()
		return
	}

	_, err := c.ing.IngestTrade(ctx, u)
	if err == nil {
		msg.Ack()
		return
	}

	if rej, ok := trade.AsRejection(err); ok {
		// Redelivery cannot change the outcome; park for repair instead.
		c.park(ctx, u.TradeID, msg.Data(), string(rej.Reason))
		msg.Ack()
		return
	}

	if errors.Is(err, context.Canceled) {
		msg.Nak()
		return
	}

	c.log.Warn().Err(err).Str("trade_id", u.TradeID).Msg("transient ingest failure, message redelivered")
	msg.Nak()
}

func (c *Consumer) park(ctx context.Context, tradeID string, payload []byte, reason string) {
	if c.parked == nil {
		return
	}
	if _, err := c.parked.Save(ctx, tradeID, payload, reason); err != nil {
		c.log.Error().Err(err).Str("trade_id", tradeID).Msg("park failed trade")
		return
	}
	c.log.Info().Str("trade_id", tradeID).Str("reason", reason).Msg("trade parked for repair")
}

// Stop gracefully stops the consumer.
func (c *Consumer) Stop() {
	if c.consumer != nil {
		c.consumer.Stop()
	}
	c.log.Info().Msg("NATS consumer stopped")
}

// EnsureStream creates the trades stream if it doesn't exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{Subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream
// context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}

// Package publisher ships journal events to Kafka for order tracking. Delivery is best effort and
// at least once; consumers dedupe on event_id.
package publisher

import (
	"context"
	"time"

	"github.com/fjod/helmet-storefront/internal/journal"
	"github.com/fjod/helmet-storefront/pkg/logger"
	"github.com/segmentio/kafka-go"
)

type Outbox interface {
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*journal.Event, error)
	MarkEventAsPublished(ctx context.Context, id int64) error
	PrunePublishedEvents(ctx context.Context, before time.Time) (int64, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	pruneTick time.Duration
	retention time.Duration
	batch     int
	repo      Outbox
	writer    MessageWriter
}

func NewOutboxPoller(repo Outbox, topic string, retention time.Duration, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: time.Second,
		pruneTick: time.Hour,
		retention: retention,
		batch:     100,
		repo:      repo,
		writer:    w,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	pruneTicker := time.NewTicker(p.pruneTick)
	defer eventTicker.Stop()
	defer pruneTicker.Stop()

	logger.L().Info().Dur("event_tick", p.eventTick).Msg("outbox poller started")
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-pruneTicker.C:
			p.pruneEvents(ctx)
		case <-ctx.Done():
			logger.L().Info().Msg("outbox poller stopped")
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents stops at the first failed write so events of one order stay in order.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnpublishedEvents(ctx, p.batch)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to fetch unpublished events")
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Int64("event_id", event.ID).Msg("failed to publish event")
			return published
		}

		if err := p.repo.MarkEventAsPublished(ctx, event.ID); err != nil {
			// it will be sent again; consumers dedupe on event_id
			logger.Ctx(ctx).Error().Err(err).Int64("event_id", event.ID).Msg("failed to mark event as published")
			return published
		}
		published++
	}
	return published
}

func (p *OutboxPoller) pruneEvents(ctx context.Context) {
	n, err := p.repo.PrunePublishedEvents(ctx, time.Now().Add(-p.retention))
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to prune published events")
		return
	}
	if n > 0 {
		logger.Ctx(ctx).Info().Int64("count", n).Msg("pruned published events")
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *journal.Event) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateKey()),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DeliveryHandler emits events to a downstream transport.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry Entry) error
}

// PendingStore is the outbox slice the deliverer polls.
type PendingStore interface {
	FetchPending(ctx context.Context, limit int32) ([]Entry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
}

// Deliverer polls the outbox and hands pending entries to the handler.
// Entries are only marked delivered after the handler succeeds, so delivery
// is at-least-once and consumers must dedupe by event id.
type Deliverer struct {
	store     PendingStore
	handler   DeliveryHandler
	logger    *zap.Logger
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(store PendingStore, handler DeliveryHandler, logger *zap.Logger) *Deliverer {
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Run polls until the context is cancelled.
func (d *Deliverer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce drains one batch. Failed entries stay pending for the next tick.
func (d *Deliverer) RunOnce(ctx context.Context) {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("fetch pending events failed", zap.Error(err))
		return
	}

	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Warn("event delivery failed, will retry",
				zap.String("event_id", entry.ID.String()),
				zap.String("type", entry.Type),
				zap.Error(err),
			)
			continue
		}
		if _, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("mark delivered failed",
				zap.String("event_id", entry.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// Channel is the Redis pub/sub channel lifecycle events are published on.
const Channel = "scheduling.appointments"

// RedisPublisher ships events over Redis pub/sub, the transport the
// notification subsystem subscribes to.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: Channel,
	}
}

type envelope struct {
	ID            string          `json:"id"`
	AppointmentID string          `json:"appointment_id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (p *RedisPublisher) Handle(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(envelope{
		ID:            entry.ID.String(),
		AppointmentID: entry.AppointmentID.String(),
		Type:          entry.Type,
		Payload:       entry.Payload,
		CreatedAt:     entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

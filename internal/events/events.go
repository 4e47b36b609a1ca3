// Package events publishes domain events after a transaction has committed.
// Delivery is best effort; subscribers must tolerate gaps.
package events

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	TransferCreated     = "transfer.created"
	TransferAccepted    = "transfer.accepted"
	TransferDeclined    = "transfer.declined"
	TransferCancelled   = "transfer.cancelled"
	BatchRequested      = "batch.requested"
	BatchApproved       = "batch.approved"
	BatchDeclined       = "batch.declined"
	BatchCancelled      = "batch.cancelled"
	BatchCompleted      = "batch.completed"
	SaleRecorded        = "sale.recorded"
	PaymentQueued       = "payment.queued"
	PaymentApproved     = "payment.approved"
	PaymentDeclined     = "payment.declined"
	RunCompleted        = "run.completed"
	RunStockReturned    = "run.stock_returned"
	StockLow            = "stock.low"
	StockWasted         = "stock.wasted"
	IngredientsReceived = "ingredients.received"
)

type Event struct {
	Type       string         `json:"type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Actor      string         `json:"actor,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	At         time.Time      `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Noop struct{}

func (Noop) Publish(_ context.Context, _ Event) error {
	return nil
}

// RedisPublisher fans events out on a redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = "bakehouse.events"
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// internal/notify/notify.go
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mpesa-gateway/internal/domain"
)

// RedisNotifier publishes completed-payment events to a redis channel for
// downstream consumers (accounting exports, SMS receipts). Delivery is
// best-effort: a failed publish is logged and dropped.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger
}

func NewRedisNotifier(client redis.UniversalClient, channel string, logger *zap.Logger) *RedisNotifier {
	if channel == "" {
		channel = "mpesa:payments"
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

type paymentEvent struct {
	OrderID       int64          `json:"order_id"`
	TransactionID string         `json:"transaction_id"`
	Status        string         `json:"status"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

func (n *RedisNotifier) PaymentReceived(ctx context.Context, order *domain.Order, metadata map[string]any) {
	event := paymentEvent{
		OrderID:       order.ID,
		TransactionID: order.TransactionID,
		Status:        string(order.Status),
		Metadata:      metadata,
		OccurredAt:    time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("payment event marshal failed", zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.logger.Warn("payment event publish failed",
			zap.Int64("order_id", order.ID),
			zap.String("channel", n.channel),
			zap.Error(err))
	}
}

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/storage"
	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
)

// Deduplicator suppresses repeat notifications for the same rule on the same
// trading date within a window. A rule re-fires when its write-back failed;
// the idempotency key absorbs that repeat, also across service replicas.
type Deduplicator struct {
	next   Notifier
	redis  storage.RedisClient
	window time.Duration
}

// NewDeduplicator wraps next
func NewDeduplicator(next Notifier, redis storage.RedisClient, window time.Duration) *Deduplicator {
	return &Deduplicator{
		next:   next,
		redis:  redis,
		window: window,
	}
}

// IdempotencyKey identifies one firing of a rule.
// Format: {monitor_id}:{rule_id}:{trading_date}
func IdempotencyKey(n Notification) string {
	return fmt.Sprintf("%s:%s:%s", n.Event.Monitor.ID, n.Event.Rule.ID, n.Event.Monitor.LastResetDate)
}

func (d *Deduplicator) Notify(ctx context.Context, n Notification) {
	key := IdempotencyKey(n)

	fresh, err := d.redis.SetNX(ctx, "notify:dedupe:"+key, n.Event.TriggeredAt, d.window)
	if err != nil {
		// Deliver anyway; a duplicate beats a lost alert
		logger.WithContext(ctx).Warn("Failed to set deduplication key",
			logger.String("idempotency_key", key),
			logger.ErrorField(err),
		)
	} else if !fresh {
		logger.NotificationsTotal.WithLabelValues("dedupe", "suppressed").Inc()
		logger.WithContext(ctx).Debug("Duplicate notification suppressed",
			logger.String("idempotency_key", key),
		)
		return
	}

	d.next.Notify(ctx, n)
}

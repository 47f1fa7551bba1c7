package notify

import (
	"context"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/storage"
	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
)

// StreamNotifier publishes notifications as JSON to a Redis stream for
// downstream consumers
type StreamNotifier struct {
	redis   storage.RedisClient
	stream  string
	timeout time.Duration
}

// NewStreamNotifier creates a notifier publishing to stream
func NewStreamNotifier(redis storage.RedisClient, stream string, timeout time.Duration) *StreamNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StreamNotifier{
		redis:   redis,
		stream:  stream,
		timeout: timeout,
	}
}

func (s *StreamNotifier) Notify(ctx context.Context, n Notification) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.redis.PublishToStream(ctx, s.stream, "notification", n); err != nil {
		logger.NotificationsTotal.WithLabelValues("stream", "error").Inc()
		logger.WithContext(ctx).Warn("Failed to publish notification",
			logger.String("stream", s.stream),
			logger.String("monitor_id", n.Event.Monitor.ID),
			logger.ErrorField(err),
		)
		return
	}
	logger.NotificationsTotal.WithLabelValues("stream", "success").Inc()
}

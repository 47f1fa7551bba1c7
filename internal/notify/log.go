package notify

import (
	"context"

	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
)

// LogNotifier writes notifications to the service log
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n Notification) {
	logger.WithContext(ctx).Info("Monitor triggered",
		logger.String("owner_id", n.OwnerID),
		logger.String("monitor_id", n.Event.Monitor.ID),
		logger.String("rule_id", n.Event.Rule.ID),
		logger.String("code", n.Event.Monitor.Code),
		logger.String("title", n.Title),
		logger.String("body", n.Body),
	)
	logger.NotificationsTotal.WithLabelValues("log", "success").Inc()
}

package usecase

import (
	"context"

	"github.com/avralt/eduwallet/internal/core/logger"
	"github.com/google/uuid"
)

// NotificationEvent - вид события для уведомления пользователя.
type NotificationEvent string

const (
	EventRequestCreated    NotificationEvent = "request_created"
	EventRequestApproved   NotificationEvent = "request_approved"
	EventRequestRejected   NotificationEvent = "request_rejected"
	EventRequestPaid       NotificationEvent = "request_paid"
	EventRequestCancelled  NotificationEvent = "request_cancelled"
	EventInsufficientFunds NotificationEvent = "insufficient_funds"
	EventOrderPaid         NotificationEvent = "order_paid"
	EventOrderRefunded     NotificationEvent = "order_refunded"
)

// Notifier - внешний коллаборатор доставки уведомлений (email, Telegram).
// Вызовы fire-and-forget: ошибка доставки логируется и не влияет на
// финансовую операцию.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event NotificationEvent, payload map[string]interface{}) error
}

type logNotifier struct {
	log logger.Logger
}

// NewLogNotifier возвращает Notifier, пишущий события в лог.
func NewLogNotifier(log logger.Logger) Notifier {
	return &logNotifier{log: log}
}

func (n *logNotifier) Notify(_ context.Context, userID uuid.UUID, event NotificationEvent, payload map[string]interface{}) error {
	n.log.Info("notification",
		logger.StringField("user_id", userID.String()),
		logger.StringField("event", string(event)),
		logger.AnyField("payload", payload),
	)
	return nil
}

// notify вызывает Notifier и глотает ошибку, оставляя след в логе.
func notify(ctx context.Context, log logger.Logger, n Notifier, userID uuid.UUID, event NotificationEvent, payload map[string]interface{}) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, userID, event, payload); err != nil {
		log.Warn("notification delivery failed",
			logger.StringField("user_id", userID.String()),
			logger.StringField("event", string(event)),
			logger.ErrorField("error", err),
		)
	}
}

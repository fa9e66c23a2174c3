package worker

import (
	"context"
	"log"
	"time"

	"geowatch/internal/broker"
	"geowatch/internal/models"
	"geowatch/internal/service"
	"geowatch/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeliveryStore records the outcome of SMS delivery attempts.
type DeliveryStore interface {
	UpdateSMSStatus(ctx context.Context, id uuid.UUID, status, messageID string, sentAt time.Time) error
}

// NotificationWorker consumes NotificationCreated events and drives the
// delivery channels. Delivery failures are recorded, never retried: the
// durable row is the source of truth and the user still sees it in-app.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        DeliveryStore
	realtime     service.RealtimeSink
	sms          service.SMSSink
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(
	consumer *broker.Consumer,
	store DeliveryStore,
	realtime service.RealtimeSink,
	sms service.SMSSink,
) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		store:    store,
		realtime: realtime,
		sms:      sms,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnNotificationCreated(w.handleNotificationCreated)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleNotificationCreated(ctx context.Context, event *models.NotificationCreatedEvent) error {
	if w.realtime != nil {
		if err := w.realtime.Push(ctx, event.UserID, event); err != nil {
			w.logger.Warn("Realtime push failed",
				zap.String("notification_id", event.NotificationID.String()),
				zap.Error(err))
		}
	}

	if w.sms != nil && event.PhoneNumber != "" {
		w.deliverSMS(ctx, event)
	}

	return nil
}

func (w *NotificationWorker) deliverSMS(ctx context.Context, event *models.NotificationCreatedEvent) {
	body := event.Title + ": " + event.Message
	messageID, err := w.sms.Send(ctx, event.PhoneNumber, body)
	if err != nil {
		w.logger.Error("SMS delivery failed",
			zap.String("notification_id", event.NotificationID.String()),
			zap.Error(err))
		util.SMSDeliveriesTotal.WithLabelValues(models.SMSStatusFailed).Inc()
		if err := w.store.UpdateSMSStatus(ctx, event.NotificationID, models.SMSStatusFailed, "", time.Now().UTC()); err != nil {
			w.logger.Error("Failed to record SMS failure",
				zap.String("notification_id", event.NotificationID.String()),
				zap.Error(err))
		}
		return
	}

	util.SMSDeliveriesTotal.WithLabelValues(models.SMSStatusSent).Inc()
	if err := w.store.UpdateSMSStatus(ctx, event.NotificationID, models.SMSStatusSent, messageID, time.Now().UTC()); err != nil {
		w.logger.Error("Failed to record SMS delivery",
			zap.String("notification_id", event.NotificationID.String()),
			zap.Error(err))
	}
}

// LogRealtimeSink is the default realtime channel: it only logs the push.
// A websocket hub implements service.RealtimeSink in deployments that
// carry live connections.
type LogRealtimeSink struct{}

func (LogRealtimeSink) Push(_ context.Context, userID uuid.UUID, event *models.NotificationCreatedEvent) error {
	util.GetLogger().Info("Realtime notification",
		zap.String("user_id", userID.String()),
		zap.String("notification_id", event.NotificationID.String()),
		zap.String("title", event.Title))
	return nil
}

// LogSMSSink is the default SMS channel used when no gateway is configured.
type LogSMSSink struct{}

func (LogSMSSink) Send(_ context.Context, phoneNumber, body string) (string, error) {
	util.GetLogger().Info("SMS notification",
		zap.String("phone_number", phoneNumber),
		zap.String("body", body))
	return uuid.New().String(), nil
}

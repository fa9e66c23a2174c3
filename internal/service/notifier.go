package service

import (
	"context"
	"fmt"
	"time"

	"geowatch/internal/broker"
	"geowatch/internal/models"
	"geowatch/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RealtimeSink pushes a notification to the owner's live channel.
type RealtimeSink interface {
	Push(ctx context.Context, userID uuid.UUID, event *models.NotificationCreatedEvent) error
}

// SMSSink sends a notification text to a phone number and returns the
// provider message id.
type SMSSink interface {
	Send(ctx context.Context, phoneNumber, body string) (string, error)
}

// NotifierStore is the storage surface the notifier needs.
type NotifierStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Notifier persists notifications and fans them out. The row is written
// first and is durable; channel delivery is best-effort and its failures
// never propagate to the caller.
type Notifier struct {
	store     NotifierStore
	publisher *broker.EventPublisher
	logger    *zap.Logger
}

// NewNotifier creates a new notifier
func NewNotifier(store NotifierStore, publisher *broker.EventPublisher) *Notifier {
	return &Notifier{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Notify creates the notification row, then hands it to the delivery
// pipeline via the broker.
func (n *Notifier) Notify(ctx context.Context, notification *models.Notification) (*models.Notification, error) {
	if err := n.store.CreateNotification(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	util.NotificationsCreatedTotal.WithLabelValues(notification.Type).Inc()

	var phone string
	if user, err := n.store.GetUserByID(ctx, notification.UserID); err == nil {
		phone = user.PhoneNumber
	} else {
		n.logger.Warn("Failed to resolve notification recipient",
			zap.String("user_id", notification.UserID.String()),
			zap.Error(err))
	}

	if n.publisher != nil {
		event := &models.NotificationCreatedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeNotificationCreated,
				Timestamp: time.Now(),
			},
			NotificationID: notification.ID,
			UserID:         notification.UserID,
			Title:          notification.Title,
			Message:        notification.Message,
			Type:           notification.Type,
			PhoneNumber:    phone,
		}
		if err := n.publisher.PublishNotificationCreated(ctx, event); err != nil {
			// Delivery is best-effort; the durable row already exists.
			n.logger.Error("Failed to publish NotificationCreated event",
				zap.String("notification_id", notification.ID.String()),
				zap.Error(err))
		}
	}

	return notification, nil
}

// EncroachmentDetected notifies an AOI owner about a persisted finding.
func (n *Notifier) EncroachmentDetected(ctx context.Context, aoi *models.AOI, d *models.EncroachmentDetection) (*models.Notification, error) {
	notification := &models.Notification{
		UserID: aoi.UserID,
		Title:  fmt.Sprintf("Encroachment Detected in %s", aoi.Name),
		Message: fmt.Sprintf(
			"We detected a %s severity encroachment in your AOI '%s'. Confidence: %.2f. Please review and take appropriate action.",
			d.Severity, aoi.Name, d.Confidence),
		Type:        models.NotificationTypeEncroachment,
		AOIID:       uuid.NullUUID{UUID: aoi.ID, Valid: true},
		DetectionID: uuid.NullUUID{UUID: d.ID, Valid: true},
	}
	return n.Notify(ctx, notification)
}

// PaymentSucceeded notifies the payer after a payment completes.
func (n *Notifier) PaymentSucceeded(ctx context.Context, payment *models.Payment) (*models.Notification, error) {
	notification := &models.Notification{
		UserID: payment.UserID,
		Title:  "Payment Successful",
		Message: fmt.Sprintf(
			"Your payment of %s %s has been processed successfully. Your AOIs are now being monitored.",
			payment.Amount.StringFixed(2), payment.Currency),
		Type:      models.NotificationTypePayment,
		PaymentID: uuid.NullUUID{UUID: payment.ID, Valid: true},
	}
	return n.Notify(ctx, notification)
}

// PaymentFailed notifies the payer after a payment fails.
func (n *Notifier) PaymentFailed(ctx context.Context, payment *models.Payment) (*models.Notification, error) {
	notification := &models.Notification{
		UserID: payment.UserID,
		Title:  "Payment Failed",
		Message: fmt.Sprintf(
			"Your payment of %s %s could not be processed. Please try again or contact support.",
			payment.Amount.StringFixed(2), payment.Currency),
		Type:      models.NotificationTypePayment,
		PaymentID: uuid.NullUUID{UUID: payment.ID, Valid: true},
	}
	return n.Notify(ctx, notification)
}

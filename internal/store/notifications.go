package store

import (
	"context"
	"fmt"
	"time"

	"geowatch/internal/apperr"
	"geowatch/internal/models"

	"github.com/google/uuid"
)

// CreateNotification persists a notification row
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.SMSStatus == "" {
		n.SMSStatus = models.SMSStatusPending
	}
	return s.db.QueryRowxContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, notification_type, sms_status, aoi_id, detection_id, payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		n.ID, n.UserID, n.Title, n.Message, n.Type, n.SMSStatus,
		n.AOIID, n.DetectionID, n.PaymentID).
		Scan(&n.CreatedAt)
}

// ListNotificationsByUser retrieves notifications for a user, newest first
func (s *Store) ListNotificationsByUser(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.db.SelectContext(ctx, &notifications,
		"SELECT * FROM notifications WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return notifications, err
}

// MarkNotificationRead flags a notification as read for its owner
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id uuid.UUID, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = $1
		WHERE id = $2 AND user_id = $3`, now, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// UpdateSMSStatus records the outcome of an SMS delivery attempt
func (s *Store) UpdateSMSStatus(ctx context.Context, id uuid.UUID, status, messageID string, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET sms_status = $1, sms_message_id = $2, sms_sent_at = $3
		WHERE id = $4`, status, messageID, sentAt, id)
	return err
}

// DeleteOldNotifications removes notifications older than the cutoff
func (s *Store) DeleteOldNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

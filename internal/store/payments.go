package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"geowatch/internal/apperr"
	"geowatch/internal/models"

	"github.com/google/uuid"
)

// CreatePayment creates a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return s.db.QueryRowxContext(ctx, `
		INSERT INTO payments (id, user_id, order_id, amount, currency, provider, provider_payment_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		payment.ID, payment.UserID, payment.OrderID, payment.Amount, payment.Currency,
		payment.Provider, payment.ProviderPaymentID, payment.Status).
		Scan(&payment.CreatedAt, &payment.UpdatedAt)
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByProviderRef retrieves a payment by its provider reference
func (s *Store) GetPaymentByProviderRef(ctx context.Context, provider models.Provider, ref string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE provider = $1 AND provider_payment_id = $2", provider, ref)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment with provider ref %s: %w", ref, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// SetPaymentProviderRef records the provider-side reference after initiation
func (s *Store) SetPaymentProviderRef(ctx context.Context, id uuid.UUID, ref string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET provider_payment_id = $1, updated_at = NOW() WHERE id = $2", ref, id)
	return err
}

// CompletePaymentIfPending moves a pending payment to completed. The status
// guard makes a webhook and a manual verify racing on the same payment
// resolve to exactly one transition.
func (s *Store) CompletePaymentIfPending(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, completed_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.PaymentStatusCompleted, now, id, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FailPaymentIfPending moves a pending payment to failed
func (s *Store) FailPaymentIfPending(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		models.PaymentStatusFailed, id, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListPaymentsByUser retrieves payments for a user, newest first
func (s *Store) ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return payments, err
}

// InsertWebhook stores a webhook delivery keyed by (provider, webhook_id).
// Returns created=false when the delivery was already recorded, which
// callers treat as an idempotent success.
func (s *Store) InsertWebhook(ctx context.Context, w *models.PaymentWebhook) (bool, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_webhooks (id, provider, webhook_id, event_type, processed, payload)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		ON CONFLICT (provider, webhook_id) DO NOTHING`,
		w.ID, w.Provider, w.WebhookID, w.EventType, w.Payload)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetWebhook retrieves a stored webhook delivery
func (s *Store) GetWebhook(ctx context.Context, provider models.Provider, webhookID string) (*models.PaymentWebhook, error) {
	var w models.PaymentWebhook
	err := s.db.GetContext(ctx, &w,
		"SELECT * FROM payment_webhooks WHERE provider = $1 AND webhook_id = $2",
		provider, webhookID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("webhook %s/%s: %w", provider, webhookID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// MarkWebhookProcessed flags the stored delivery once its domain transition
// has succeeded. An unprocessed row signals that re-delivery should retry.
func (s *Store) MarkWebhookProcessed(ctx context.Context, provider models.Provider, webhookID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payment_webhooks SET processed = TRUE WHERE provider = $1 AND webhook_id = $2",
		provider, webhookID)
	return err
}

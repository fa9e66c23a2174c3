package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"geowatch/internal/apperr"
	"geowatch/internal/models"
	"geowatch/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentStore is the storage surface the payment service needs.
type PaymentStore interface {
	GetOrderForUser(ctx context.Context, userID, id uuid.UUID) (*models.Order, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	SetPaymentProviderRef(ctx context.Context, id uuid.UUID, ref string) error
	GetPaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetPaymentByProviderRef(ctx context.Context, provider models.Provider, ref string) (*models.Payment, error)
	CompletePaymentIfPending(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	FailPaymentIfPending(ctx context.Context, id uuid.UUID) (bool, error)
	ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]models.Payment, error)
	InsertWebhook(ctx context.Context, w *models.PaymentWebhook) (bool, error)
	GetWebhook(ctx context.Context, provider models.Provider, webhookID string) (*models.PaymentWebhook, error)
	MarkWebhookProcessed(ctx context.Context, provider models.Provider, webhookID string) error
}

// WebhookCache is a fast-path duplicate check in front of the database
// unique index. Only processed deliveries are cached, so a hit is always
// safe to acknowledge; a miss is never wrong, only slower.
type WebhookCache interface {
	WebhookSeen(ctx context.Context, provider, webhookID string) (bool, error)
	MarkWebhookSeen(ctx context.Context, provider, webhookID string) error
}

// PaymentService owns the payment lifecycle: initiation through a provider
// binding, webhook ingestion with (provider, webhook_id) idempotency, and
// the manual verification path.
type PaymentService struct {
	store    PaymentStore
	registry ProviderRegistry
	orders   *OrderService
	notifier *Notifier
	cache    WebhookCache
	logger   *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store PaymentStore, registry ProviderRegistry, orders *OrderService, notifier *Notifier, cache WebhookCache) *PaymentService {
	return &PaymentService{
		store:    store,
		registry: registry,
		orders:   orders,
		notifier: notifier,
		cache:    cache,
		logger:   util.GetLogger(),
	}
}

func (ps *PaymentService) provider(p models.Provider) (PaymentProvider, error) {
	binding, ok := ps.registry[p]
	if !ok {
		return nil, fmt.Errorf("unknown payment provider %q: %w", p, apperr.ErrInvalidState)
	}
	return binding, nil
}

// CreatePayment opens a charge for a pending order owned by the caller.
// Amount and currency are copied from the order and never recomputed.
func (ps *PaymentService) CreatePayment(ctx context.Context, userID, orderID uuid.UUID, providerTag models.Provider) (*models.Payment, *InitiateResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreatePayment")
	defer span.End()

	binding, err := ps.provider(providerTag)
	if err != nil {
		return nil, nil, err
	}

	order, err := ps.store.GetOrderForUser(ctx, userID, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, nil, fmt.Errorf("order %s is %s, expected pending: %w",
			orderID, order.Status, apperr.ErrInvalidState)
	}

	payment := &models.Payment{
		UserID:   userID,
		OrderID:  orderID,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
		Provider: providerTag,
		Status:   models.PaymentStatusPending,
	}
	if err := ps.store.CreatePayment(ctx, payment); err != nil {
		return nil, nil, fmt.Errorf("failed to create payment: %w", err)
	}
	util.PaymentsInitiatedTotal.WithLabelValues(string(providerTag)).Inc()

	result, err := binding.Initiate(ctx, payment, order.BillingEmail)
	if err != nil {
		ps.logger.Error("Payment initiation failed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("provider", string(providerTag)),
			zap.Error(err))
		return nil, nil, err
	}

	payment.ProviderPaymentID = result.ProviderRef
	if err := ps.store.SetPaymentProviderRef(ctx, payment.ID, result.ProviderRef); err != nil {
		return nil, nil, fmt.Errorf("failed to record provider ref: %w", err)
	}

	ps.logger.Info("Payment initiated",
		zap.String("payment_id", payment.ID.String()),
		zap.String("provider", string(providerTag)),
		zap.String("provider_ref", result.ProviderRef))
	return payment, result, nil
}

// HandleWebhook ingests a signed provider webhook. Authenticity is checked
// before anything is persisted; duplicate deliveries are acknowledged
// without reprocessing; the stored row is flagged processed only after the
// domain transition succeeds, so a crash in between stays retriable.
func (ps *PaymentService) HandleWebhook(ctx context.Context, providerTag models.Provider, payload []byte, signatureHeader string) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	binding, err := ps.provider(providerTag)
	if err != nil {
		return err
	}

	if err := binding.VerifySignature(payload, signatureHeader); err != nil {
		util.WebhooksRejectedTotal.WithLabelValues(string(providerTag)).Inc()
		return err
	}

	event, err := binding.ParseWebhook(payload)
	if err != nil {
		return err
	}
	util.WebhooksReceivedTotal.WithLabelValues(string(providerTag)).Inc()

	if ps.cache != nil {
		if seen, err := ps.cache.WebhookSeen(ctx, string(providerTag), event.ID); err == nil && seen {
			util.WebhooksDuplicateTotal.WithLabelValues(string(providerTag)).Inc()
			ps.logger.Info("Duplicate webhook short-circuited",
				zap.String("provider", string(providerTag)),
				zap.String("webhook_id", event.ID))
			return nil
		}
	}

	created, err := ps.store.InsertWebhook(ctx, &models.PaymentWebhook{
		Provider:  providerTag,
		WebhookID: event.ID,
		EventType: event.Type,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to store webhook: %w", err)
	}
	if !created {
		stored, err := ps.store.GetWebhook(ctx, providerTag, event.ID)
		if err != nil {
			return err
		}
		if stored.Processed {
			util.WebhooksDuplicateTotal.WithLabelValues(string(providerTag)).Inc()
			ps.logger.Info("Webhook already processed",
				zap.String("provider", string(providerTag)),
				zap.String("webhook_id", event.ID))
			return nil
		}
		// An earlier delivery crashed between storing the row and finishing
		// the transition. Fall through and retry it.
		ps.logger.Warn("Retrying unprocessed webhook",
			zap.String("provider", string(providerTag)),
			zap.String("webhook_id", event.ID))
	}

	if err := ps.processWebhookEvent(ctx, providerTag, event); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// No payment matches the provider ref. Acknowledge so the
			// provider stops retrying; the stored row stays unprocessed
			// for reconciliation.
			ps.logger.Warn("Webhook references unknown payment",
				zap.String("provider", string(providerTag)),
				zap.String("webhook_id", event.ID),
				zap.String("provider_ref", event.ProviderRef))
			return nil
		}
		// Left unprocessed on purpose: a re-delivery retries the transition.
		return err
	}

	if err := ps.store.MarkWebhookProcessed(ctx, providerTag, event.ID); err != nil {
		return err
	}
	if ps.cache != nil {
		if err := ps.cache.MarkWebhookSeen(ctx, string(providerTag), event.ID); err != nil {
			ps.logger.Warn("Failed to cache webhook key",
				zap.String("webhook_id", event.ID), zap.Error(err))
		}
	}
	return nil
}

func (ps *PaymentService) processWebhookEvent(ctx context.Context, providerTag models.Provider, event *WebhookEvent) error {
	switch {
	case event.Succeeded:
		payment, err := ps.store.GetPaymentByProviderRef(ctx, providerTag, event.ProviderRef)
		if err != nil {
			return err
		}
		return ps.settle(ctx, payment)

	case event.Failed:
		payment, err := ps.store.GetPaymentByProviderRef(ctx, providerTag, event.ProviderRef)
		if err != nil {
			return err
		}
		failed, err := ps.store.FailPaymentIfPending(ctx, payment.ID)
		if err != nil {
			return err
		}
		if failed {
			util.PaymentsFailedTotal.WithLabelValues(string(providerTag)).Inc()
			if _, err := ps.notifier.PaymentFailed(ctx, payment); err != nil {
				ps.logger.Error("Failed to send payment-failed notification", zap.Error(err))
			}
		}
		return nil

	default:
		ps.logger.Info("Ignoring webhook event",
			zap.String("provider", string(providerTag)),
			zap.String("event_type", event.Type))
		return nil
	}
}

// settle completes the payment and drives the order to completed. Both
// transitions are guarded CAS updates, so racing webhook and manual-verify
// callers resolve to exactly one activation and one notification.
func (ps *PaymentService) settle(ctx context.Context, payment *models.Payment) error {
	transitioned, err := ps.store.CompletePaymentIfPending(ctx, payment.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to complete payment: %w", err)
	}
	if transitioned {
		util.PaymentsCompletedTotal.WithLabelValues(string(payment.Provider)).Inc()
		ps.logger.Info("Payment completed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("order_id", payment.OrderID.String()))
	}

	// Always push the order forward: a crash after the payment transition
	// but before order completion is healed by webhook re-delivery.
	_, orderTransitioned, err := ps.orders.CompleteOrder(ctx, payment.OrderID)
	if err != nil {
		return fmt.Errorf("failed to complete order %s: %w", payment.OrderID, err)
	}

	if orderTransitioned {
		if _, err := ps.notifier.PaymentSucceeded(ctx, payment); err != nil {
			ps.logger.Error("Failed to send payment-success notification", zap.Error(err))
		}
	}
	return nil
}

// VerifyPayment is the manual reconciliation path: it asks the provider for
// the charge status and applies the same settle semantics as a webhook.
func (ps *PaymentService) VerifyPayment(ctx context.Context, userID, paymentID uuid.UUID) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.VerifyPayment")
	defer span.End()

	payment, err := ps.store.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, fmt.Errorf("payment %s: %w", paymentID, apperr.ErrNotFound)
	}
	if payment.ProviderPaymentID == "" {
		return nil, fmt.Errorf("payment %s has no provider ref: %w", paymentID, apperr.ErrInvalidState)
	}

	binding, err := ps.provider(payment.Provider)
	if err != nil {
		return nil, err
	}

	verdict, err := binding.Verify(ctx, payment.ProviderPaymentID)
	if err != nil {
		return nil, err
	}

	switch verdict {
	case VerdictSucceeded:
		if err := ps.settle(ctx, payment); err != nil {
			return nil, err
		}
	case VerdictFailed:
		if failed, err := ps.store.FailPaymentIfPending(ctx, payment.ID); err != nil {
			return nil, err
		} else if failed {
			util.PaymentsFailedTotal.WithLabelValues(string(payment.Provider)).Inc()
			if _, err := ps.notifier.PaymentFailed(ctx, payment); err != nil {
				ps.logger.Error("Failed to send payment-failed notification", zap.Error(err))
			}
		}
	}

	return ps.store.GetPaymentByID(ctx, paymentID)
}

// ListPayments retrieves the caller's payments
func (ps *PaymentService) ListPayments(ctx context.Context, userID uuid.UUID) ([]models.Payment, error) {
	return ps.store.ListPaymentsByUser(ctx, userID)
}

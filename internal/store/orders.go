package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"geowatch/internal/apperr"
	"geowatch/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// IsUniqueViolation reports whether err is a Postgres unique-index violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// CreateOrderWithItems persists an order and all its items in one
// transaction. Either everything is written or nothing is.
func (s *Store) CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO orders (id, user_id, order_number, status, total_amount, currency,
			billing_email, billing_first_name, billing_last_name, billing_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		order.ID, order.UserID, order.OrderNumber, order.Status, order.TotalAmount,
		order.Currency, order.BillingEmail, order.BillingFirstName, order.BillingLastName,
		order.BillingPhone).
		Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range items {
		items[i].ID = uuid.New()
		items[i].OrderID = order.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, aoi_id, cadence, price)
			VALUES ($1, $2, $3, $4, $5)`,
			items[i].ID, items[i].OrderID, items[i].AOIID, items[i].Cadence, items[i].Price)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUser retrieves an order scoped to its owner
func (s *Store) GetOrderForUser(ctx context.Context, userID, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 AND user_id = $2", id, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrdersByUser retrieves orders for a user, newest first
func (s *Store) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// CompleteOrder marks an order completed and applies the paid-side effects
// to its AOIs in one transaction: per item, the AOI takes the item's cadence,
// becomes paid and moves to inactive; the owner's cart is drained. Calling it
// on an already-completed order is a no-op and returns transitioned=false.
func (s *Store) CompleteOrder(ctx context.Context, orderID uuid.UUID, now time.Time) (*models.Order, bool, []uuid.UUID, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, false, nil, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, false, nil, err
	}

	if order.Status == models.OrderStatusCompleted {
		return &order, false, nil, nil
	}
	if order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusFailed {
		return nil, false, nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, apperr.ErrInvalidState)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, completed_at = $2, updated_at = NOW() WHERE id = $3`,
		models.OrderStatusCompleted, now, orderID)
	if err != nil {
		return nil, false, nil, err
	}
	order.Status = models.OrderStatusCompleted
	order.CompletedAt = sql.NullTime{Time: now, Valid: true}

	var items []models.OrderItem
	if err := tx.SelectContext(ctx, &items, "SELECT * FROM order_items WHERE order_id = $1", orderID); err != nil {
		return nil, false, nil, err
	}

	aoiIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		_, err = tx.ExecContext(ctx, `
			UPDATE aois SET cadence = $1, is_paid = TRUE, status = $2, updated_at = NOW()
			WHERE id = $3`, item.Cadence, models.AOIStatusInactive, item.AOIID)
		if err != nil {
			return nil, false, nil, fmt.Errorf("failed to mark aoi paid: %w", err)
		}
		aoiIDs = append(aoiIDs, item.AOIID)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1)`, order.UserID)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to drain cart: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, nil, err
	}
	return &order, true, aoiIDs, nil
}

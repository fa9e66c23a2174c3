package store

import (
	"context"
	"database/sql"
	"fmt"

	"geowatch/internal/apperr"
	"geowatch/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GetOrCreateCart returns the user's cart, creating it on first use
func (s *Store) GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, `
		INSERT INTO carts (id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING *`, uuid.New(), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create cart: %w", err)
	}
	return &cart, nil
}

// UpsertCartItem inserts or refreshes the cart entry for an AOI. The
// (cart, aoi) unique index keeps at most one entry per AOI per cart.
func (s *Store) UpsertCartItem(ctx context.Context, cartID, aoiID uuid.UUID, cadence models.Cadence, price decimal.Decimal) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item, `
		INSERT INTO cart_items (id, cart_id, aoi_id, cadence, price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, aoi_id)
		DO UPDATE SET cadence = EXCLUDED.cadence, price = EXCLUDED.price, updated_at = NOW()
		RETURNING *`, uuid.New(), cartID, aoiID, cadence, price)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return &item, nil
}

// UpdateCartItem changes the cadence and price of an existing cart item
func (s *Store) UpdateCartItem(ctx context.Context, cartID, itemID uuid.UUID, cadence models.Cadence, price decimal.Decimal) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item, `
		UPDATE cart_items SET cadence = $1, price = $2, updated_at = NOW()
		WHERE id = $3 AND cart_id = $4
		RETURNING *`, cadence, price, itemID, cartID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cart item %s: %w", itemID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteCartItem removes an item from a cart
func (s *Store) DeleteCartItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = $1 AND cart_id = $2", itemID, cartID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("cart item %s: %w", itemID, apperr.ErrNotFound)
	}
	return nil
}

// ListCartItems retrieves all items in a cart
func (s *Store) ListCartItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY created_at", cartID)
	return items, err
}

// ClearCart deletes all items in a cart
func (s *Store) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID)
	return err
}

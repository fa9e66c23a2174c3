package service

import (
	"context"
	"fmt"

	"geowatch/config"
	"geowatch/internal/apperr"
	"geowatch/internal/models"
	"geowatch/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartStore is the storage surface the cart service needs.
type CartStore interface {
	GetAOIForUser(ctx context.Context, userID, id uuid.UUID) (*models.AOI, error)
	GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	UpsertCartItem(ctx context.Context, cartID, aoiID uuid.UUID, cadence models.Cadence, price decimal.Decimal) (*models.CartItem, error)
	UpdateCartItem(ctx context.Context, cartID, itemID uuid.UUID, cadence models.Cadence, price decimal.Decimal) (*models.CartItem, error)
	DeleteCartItem(ctx context.Context, cartID, itemID uuid.UUID) error
	ListCartItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error)
	ClearCart(ctx context.Context, cartID uuid.UUID) error
}

// CartService handles cart mutation. Prices are always recomputed from the
// pricing table on write, never taken from the caller.
type CartService struct {
	store   CartStore
	pricing config.Pricing
	logger  *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store CartStore, pricing config.Pricing) *CartService {
	return &CartService{
		store:   store,
		pricing: pricing,
		logger:  util.GetLogger(),
	}
}

// PriceFor resolves the unit price for a cadence from the pricing table
func (cs *CartService) PriceFor(cadence models.Cadence) (decimal.Decimal, error) {
	if !cadence.Valid() {
		return decimal.Zero, fmt.Errorf("unknown cadence %q: %w", cadence, apperr.ErrInvalidState)
	}
	price, ok := cs.pricing[string(cadence)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for cadence %q: %w", cadence, apperr.ErrInvalidState)
	}
	return price, nil
}

// AddToCart upserts an AOI into the owner's cart. The AOI must belong to
// the owner and still be purchasable (in_cart, unpaid).
func (cs *CartService) AddToCart(ctx context.Context, userID, aoiID uuid.UUID, cadence models.Cadence) (*models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddToCart")
	defer span.End()

	price, err := cs.PriceFor(cadence)
	if err != nil {
		return nil, err
	}

	aoi, err := cs.store.GetAOIForUser(ctx, userID, aoiID)
	if err != nil {
		return nil, err
	}
	if aoi.IsPaid || aoi.Status != models.AOIStatusInCart {
		return nil, fmt.Errorf("aoi %s is not purchasable: %w", aoiID, apperr.ErrInvalidState)
	}

	cart, err := cs.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	item, err := cs.store.UpsertCartItem(ctx, cart.ID, aoiID, cadence, price)
	if err != nil {
		return nil, fmt.Errorf("failed to add aoi to cart: %w", err)
	}

	cs.logger.Info("AOI added to cart",
		zap.String("aoi_id", aoiID.String()),
		zap.String("cadence", string(cadence)))
	return item, nil
}

// UpdateItem changes the cadence of a cart item, recomputing its price
func (cs *CartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, cadence models.Cadence) (*models.CartItem, error) {
	price, err := cs.PriceFor(cadence)
	if err != nil {
		return nil, err
	}

	cart, err := cs.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return cs.store.UpdateCartItem(ctx, cart.ID, itemID, cadence, price)
}

// RemoveItem deletes a cart item, scoped to the owner's cart
func (cs *CartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	cart, err := cs.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}
	return cs.store.DeleteCartItem(ctx, cart.ID, itemID)
}

// ListItems returns the owner's cart contents
func (cs *CartService) ListItems(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	cart, err := cs.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return cs.store.ListCartItems(ctx, cart.ID)
}

// Clear drains the owner's cart
func (cs *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	cart, err := cs.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}
	return cs.store.ClearCart(ctx, cart.ID)
}

package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"geowatch/config"
	"geowatch/internal/apperr"
	"geowatch/internal/broker"
	"geowatch/internal/models"
	"geowatch/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// orderNumberAttempts bounds regeneration on an order-number collision.
// Running out of attempts is treated as an invariant violation, not retried
// silently forever.
const orderNumberAttempts = 3

// OrderStore is the storage surface the order service needs.
type OrderStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	ListCartItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error)
	CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) error
	CompleteOrder(ctx context.Context, orderID uuid.UUID, now time.Time) (*models.Order, bool, []uuid.UUID, error)
	GetOrderForUser(ctx context.Context, userID, id uuid.UUID) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
}

// uniqueViolation lets the service recognize order-number collisions without
// importing the driver; the sqlx store wires store.IsUniqueViolation here.
type uniqueViolation func(error) bool

// OrderService turns carts into orders and applies payment side-effects.
type OrderService struct {
	store       OrderStore
	pricing     config.Pricing
	publisher   *broker.EventPublisher
	isCollision uniqueViolation
	logger      *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, pricing config.Pricing, publisher *broker.EventPublisher, isCollision func(error) bool) *OrderService {
	return &OrderService{
		store:       store,
		pricing:     pricing,
		publisher:   publisher,
		isCollision: isCollision,
		logger:      util.GetLogger(),
	}
}

// CreateOrderFromCart snapshots the owner's cart into a pending order. All
// items are priced at the checkout cadence from the pricing table; the order
// and its items are persisted as one atomic unit.
func (os *OrderService) CreateOrderFromCart(ctx context.Context, userID uuid.UUID, cadence models.Cadence, currency string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrderFromCart")
	defer span.End()

	if !cadence.Valid() {
		return nil, fmt.Errorf("unknown cadence %q: %w", cadence, apperr.ErrInvalidState)
	}
	unitPrice, ok := os.pricing[string(cadence)]
	if !ok {
		return nil, fmt.Errorf("no price for cadence %q: %w", cadence, apperr.ErrInvalidState)
	}

	cart, err := os.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	cartItems, err := os.store.ListCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	if len(cartItems) == 0 {
		return nil, apperr.ErrEmptyCart
	}

	user, err := os.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := unitPrice.Mul(decimal.NewFromInt(int64(len(cartItems))))
	items := make([]models.OrderItem, len(cartItems))
	for i, ci := range cartItems {
		items[i] = models.OrderItem{
			AOIID:   ci.AOIID,
			Cadence: cadence,
			Price:   unitPrice,
		}
	}

	var order *models.Order
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order = &models.Order{
			UserID:           userID,
			OrderNumber:      generateOrderNumber(),
			Status:           models.OrderStatusPending,
			TotalAmount:      total,
			Currency:         currency,
			BillingEmail:     user.Email,
			BillingFirstName: user.FirstName,
			BillingLastName:  user.LastName,
			BillingPhone:     user.PhoneNumber,
		}
		err = os.store.CreateOrderWithItems(ctx, order, items)
		if err == nil {
			break
		}
		if os.isCollision != nil && os.isCollision(err) {
			os.logger.Warn("Order number collision, regenerating",
				zap.String("order_number", order.OrderNumber),
				zap.Int("attempt", attempt+1))
			continue
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("order_number_collision").Inc()
		return nil, fmt.Errorf("order number collided %d times: %w", orderNumberAttempts, err)
	}

	util.OrdersCreatedTotal.Inc()
	os.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.Int("items", len(items)),
		zap.String("total", total.String()))
	return order, nil
}

// CompleteOrder is the sole trigger moving AOIs to paid. It is idempotent:
// repeating the call on a completed order returns it unchanged and fires no
// second round of side-effects.
func (os *OrderService) CompleteOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, bool, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CompleteOrder")
	defer span.End()

	order, transitioned, aoiIDs, err := os.store.CompleteOrder(ctx, orderID, time.Now().UTC())
	if err != nil {
		return nil, false, err
	}
	if !transitioned {
		os.logger.Info("Order already completed", zap.String("order_id", orderID.String()))
		return order, false, nil
	}

	util.OrdersCompletedTotal.Inc()
	os.logger.Info("Order completed",
		zap.String("order_id", order.ID.String()),
		zap.Int("aois_paid", len(aoiIDs)))

	if os.publisher != nil {
		event := &models.OrderCompletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderCompleted,
				Timestamp: time.Now(),
			},
			OrderID:     order.ID,
			UserID:      order.UserID,
			OrderNumber: order.OrderNumber,
			AOIIDs:      aoiIDs,
		}
		if err := os.publisher.PublishOrderCompleted(ctx, event); err != nil {
			os.logger.Error("Failed to publish OrderCompleted event", zap.Error(err))
		}
	}

	return order, true, nil
}

// GetOrder retrieves an order with its items, scoped to the owner
func (os *OrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, []models.OrderItem, error) {
	order, err := os.store.GetOrderForUser(ctx, userID, orderID)
	if err != nil {
		return nil, nil, err
	}
	items, err := os.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

// ListOrders retrieves the owner's orders
func (os *OrderService) ListOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	return os.store.ListOrdersByUser(ctx, userID)
}

// generateOrderNumber builds a human-readable order number with a random
// suffix as the distinguishing token. The unique index on orders remains
// the authority; collisions surface as insert errors.
func generateOrderNumber() string {
	ts := time.Now().Unix() % 100000000
	return fmt.Sprintf("AOI%08d%04d", ts, rand.Intn(10000))
}

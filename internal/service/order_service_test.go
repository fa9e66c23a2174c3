package service

import (
	"context"
	"testing"

	"geowatch/config"
	"geowatch/internal/apperr"
	"geowatch/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCheckout(t *testing.T, store *fakeStore, aoiCount int) (*models.User, []*models.AOI) {
	t.Helper()
	user := store.addUser(models.User{
		Email:       "buyer@example.com",
		FirstName:   "Ada",
		LastName:    "Obi",
		PhoneNumber: "+2348012345678",
	})

	cs := NewCartService(store, config.DefaultPricing())
	aois := make([]*models.AOI, aoiCount)
	for i := range aois {
		aois[i] = store.addAOI(models.AOI{UserID: user.ID, Name: "Farm"})
		_, err := cs.AddToCart(context.Background(), user.ID, aois[i].ID, models.CadenceDaily)
		require.NoError(t, err)
	}
	return user, aois
}

func TestCreateOrderFromCartEmptyCart(t *testing.T) {
	store := newFakeStore()
	user := store.addUser(models.User{Email: "buyer@example.com"})

	os := NewOrderService(store, config.DefaultPricing(), nil, isFakeCollision)

	_, err := os.CreateOrderFromCart(context.Background(), user.ID, models.CadenceMonthly, "USD")
	assert.ErrorIs(t, err, apperr.ErrEmptyCart)
}

func TestCreateOrderFromCartInvalidCadence(t *testing.T) {
	store := newFakeStore()
	user := store.addUser(models.User{Email: "buyer@example.com"})

	os := NewOrderService(store, config.DefaultPricing(), nil, isFakeCollision)

	_, err := os.CreateOrderFromCart(context.Background(), user.ID, models.Cadence("weekly"), "USD")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestCreateOrderFromCartSnapshot(t *testing.T) {
	store := newFakeStore()
	user, aois := seedCheckout(t, store, 3)

	os := NewOrderService(store, config.DefaultPricing(), nil, isFakeCollision)

	// Items were carted daily; checkout at monthly reprices every line.
	order, err := os.CreateOrderFromCart(context.Background(), user.ID, models.CadenceMonthly, "USD")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, user.Email, order.BillingEmail)
	assert.Equal(t, user.FirstName, order.BillingFirstName)
	assert.Equal(t, user.PhoneNumber, order.BillingPhone)
	assert.Regexp(t, `^AOI\d{12}$`, order.OrderNumber)

	items, err := store.GetOrderItems(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, items, len(aois))
	for _, item := range items {
		assert.Equal(t, models.CadenceMonthly, item.Cadence)
		assert.True(t, item.Price.Equal(decimal.NewFromInt(100)))
	}
}

func TestCreateOrderRetriesNumberCollision(t *testing.T) {
	store := newFakeStore()
	user, _ := seedCheckout(t, store, 1)
	store.createOrderErrs = []error{errDuplicateOrderNumber, errDuplicateOrderNumber}

	os := NewOrderService(store, config.DefaultPricing(), nil, isFakeCollision)

	order, err := os.CreateOrderFromCart(context.Background(), user.ID, models.CadenceDaily, "USD")
	require.NoError(t, err)
	assert.NotEmpty(t, order.OrderNumber)
}

func TestCreateOrderCollisionExhausted(t *testing.T) {
	store := newFakeStore()
	user, _ := seedCheckout(t, store, 1)
	store.createOrderErrs = []error{
		errDuplicateOrderNumber, errDuplicateOrderNumber, errDuplicateOrderNumber,
	}

	os := NewOrderService(store, config.DefaultPricing(), nil, isFakeCollision)

	_, err := os.CreateOrderFromCart(context.Background(), user.ID, models.CadenceDaily, "USD")
	assert.ErrorIs(t, err, errDuplicateOrderNumber)
}

func TestCompleteOrderMarksAOIsPaidAndDrainsCart(t *testing.T) {
	store := newFakeStore()
	user, aois := seedCheckout(t, store, 2)

	os := NewOrderService(store, config.DefaultPricing(), nil, isFakeCollision)
	ctx := context.Background()

	order, err := os.CreateOrderFromCart(ctx, user.ID, models.CadenceMonthly, "USD")
	require.NoError(t, err)

	completed, transitioned, err := os.CompleteOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, models.OrderStatusCompleted, completed.Status)
	assert.True(t, completed.CompletedAt.Valid)

	for _, a := range aois {
		got, err := store.GetAOIForUser(ctx, user.ID, a.ID)
		require.NoError(t, err)
		assert.True(t, got.IsPaid)
		assert.Equal(t, models.AOIStatusInactive, got.Status)
		assert.Equal(t, models.CadenceMonthly, got.Cadence)
	}

	cart, err := store.GetOrCreateCart(ctx, user.ID)
	require.NoError(t, err)
	items, err := store.ListCartItems(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCompleteOrderIdempotent(t *testing.T) {
	store := newFakeStore()
	user, _ := seedCheckout(t, store, 1)

	os := NewOrderService(store, config.DefaultPricing(), nil, isFakeCollision)
	ctx := context.Background()

	order, err := os.CreateOrderFromCart(ctx, user.ID, models.CadenceDaily, "USD")
	require.NoError(t, err)

	_, transitioned, err := os.CompleteOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, transitioned)

	again, transitioned, err := os.CompleteOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.Equal(t, models.OrderStatusCompleted, again.Status)
}

func TestCompleteOrderUnknown(t *testing.T) {
	os := NewOrderService(newFakeStore(), config.DefaultPricing(), nil, isFakeCollision)

	_, _, err := os.CompleteOrder(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGenerateOrderNumberShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n := generateOrderNumber()
		assert.Regexp(t, `^AOI\d{12}$`, n)
		seen[n] = true
	}
	// Random suffix should produce variety within a single second.
	assert.Greater(t, len(seen), 1)
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"geowatch/internal/apperr"
	"geowatch/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// errDuplicateOrderNumber stands in for the driver's unique violation.
var errDuplicateOrderNumber = errors.New("duplicate order number")

func isFakeCollision(err error) bool {
	return errors.Is(err, errDuplicateOrderNumber)
}

// fakeStore is an in-memory stand-in for the sqlx store, covering the
// storage surfaces the services consume. All methods are safe for
// concurrent use so races in the services surface under -race.
type fakeStore struct {
	mu sync.Mutex

	users         map[uuid.UUID]*models.User
	aois          map[uuid.UUID]*models.AOI
	carts         map[uuid.UUID]*models.Cart // keyed by user
	cartItems     map[uuid.UUID]*models.CartItem
	orders        map[uuid.UUID]*models.Order
	orderItems    map[uuid.UUID][]models.OrderItem
	orderNumbers  map[string]bool
	payments      map[uuid.UUID]*models.Payment
	webhooks      map[string]*models.PaymentWebhook
	notifications []*models.Notification

	// createOrderErrs is drained one error per CreateOrderWithItems call.
	createOrderErrs []error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        make(map[uuid.UUID]*models.User),
		aois:         make(map[uuid.UUID]*models.AOI),
		carts:        make(map[uuid.UUID]*models.Cart),
		cartItems:    make(map[uuid.UUID]*models.CartItem),
		orders:       make(map[uuid.UUID]*models.Order),
		orderItems:   make(map[uuid.UUID][]models.OrderItem),
		orderNumbers: make(map[string]bool),
		payments:     make(map[uuid.UUID]*models.Payment),
		webhooks:     make(map[string]*models.PaymentWebhook),
	}
}

func (f *fakeStore) addUser(u models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.users[u.ID] = &u
	return &u
}

func (f *fakeStore) addAOI(a models.AOI) *models.AOI {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.AOIStatusInCart
	}
	f.aois[a.ID] = &a
	return &a
}

func (f *fakeStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) CreateAOI(_ context.Context, aoi *models.AOI) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if aoi.ID == uuid.Nil {
		aoi.ID = uuid.New()
	}
	cp := *aoi
	f.aois[aoi.ID] = &cp
	return nil
}

func (f *fakeStore) GetAOIForUser(_ context.Context, userID, id uuid.UUID) (*models.AOI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.aois[id]
	if !ok || a.UserID != userID {
		return nil, fmt.Errorf("aoi %s: %w", id, apperr.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) ListAOIsByUser(_ context.Context, userID uuid.UUID) ([]models.AOI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AOI
	for _, a := range f.aois {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) ActivateAOI(_ context.Context, id uuid.UUID, start, end time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.aois[id]
	if !ok {
		return false, fmt.Errorf("aoi %s: %w", id, apperr.ErrNotFound)
	}
	if a.Status != models.AOIStatusInactive || !a.IsPaid {
		return false, nil
	}
	a.Status = models.AOIStatusActive
	a.StartDate = nullTime(start)
	a.EndDate = nullTime(end)
	return true, nil
}

func (f *fakeStore) GetDetectionForUser(_ context.Context, userID, id uuid.UUID) (*models.EncroachmentDetection, error) {
	return nil, fmt.Errorf("detection %s: %w", id, apperr.ErrNotFound)
}

func (f *fakeStore) ConfirmDetection(_ context.Context, id uuid.UUID, _ time.Time) (bool, error) {
	return false, fmt.Errorf("detection %s: %w", id, apperr.ErrNotFound)
}

func (f *fakeStore) ListDetectionsByAOI(_ context.Context, _ uuid.UUID) ([]models.EncroachmentDetection, error) {
	return nil, nil
}

func (f *fakeStore) GetOrCreateCart(_ context.Context, userID uuid.UUID) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.carts[userID]; ok {
		cp := *c
		return &cp, nil
	}
	c := &models.Cart{ID: uuid.New(), UserID: userID}
	f.carts[userID] = c
	cp := *c
	return &cp, nil
}

func (f *fakeStore) UpsertCartItem(_ context.Context, cartID, aoiID uuid.UUID, cadence models.Cadence, price decimal.Decimal) (*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.cartItems {
		if item.CartID == cartID && item.AOIID == aoiID {
			item.Cadence = cadence
			item.Price = price
			cp := *item
			return &cp, nil
		}
	}
	item := &models.CartItem{ID: uuid.New(), CartID: cartID, AOIID: aoiID, Cadence: cadence, Price: price}
	f.cartItems[item.ID] = item
	cp := *item
	return &cp, nil
}

func (f *fakeStore) UpdateCartItem(_ context.Context, cartID, itemID uuid.UUID, cadence models.Cadence, price decimal.Decimal) (*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.cartItems[itemID]
	if !ok || item.CartID != cartID {
		return nil, fmt.Errorf("cart item %s: %w", itemID, apperr.ErrNotFound)
	}
	item.Cadence = cadence
	item.Price = price
	cp := *item
	return &cp, nil
}

func (f *fakeStore) DeleteCartItem(_ context.Context, cartID, itemID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.cartItems[itemID]
	if !ok || item.CartID != cartID {
		return fmt.Errorf("cart item %s: %w", itemID, apperr.ErrNotFound)
	}
	delete(f.cartItems, itemID)
	return nil
}

func (f *fakeStore) ListCartItems(_ context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CartItem
	for _, item := range f.cartItems {
		if item.CartID == cartID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (f *fakeStore) ClearCart(_ context.Context, cartID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, item := range f.cartItems {
		if item.CartID == cartID {
			delete(f.cartItems, id)
		}
	}
	return nil
}

func (f *fakeStore) CreateOrderWithItems(_ context.Context, order *models.Order, items []models.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createOrderErrs) > 0 {
		err := f.createOrderErrs[0]
		f.createOrderErrs = f.createOrderErrs[1:]
		if err != nil {
			return err
		}
	}
	if f.orderNumbers[order.OrderNumber] {
		return errDuplicateOrderNumber
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	f.orderNumbers[order.OrderNumber] = true
	cp := *order
	f.orders[order.ID] = &cp
	stored := make([]models.OrderItem, len(items))
	for i, item := range items {
		item.ID = uuid.New()
		item.OrderID = order.ID
		stored[i] = item
	}
	f.orderItems[order.ID] = stored
	return nil
}

func (f *fakeStore) CompleteOrder(_ context.Context, orderID uuid.UUID, now time.Time) (*models.Order, bool, []uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return nil, false, nil, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
	}
	if order.Status == models.OrderStatusCompleted {
		cp := *order
		return &cp, false, nil, nil
	}
	if order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusFailed {
		return nil, false, nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, apperr.ErrInvalidState)
	}

	order.Status = models.OrderStatusCompleted
	order.CompletedAt = nullTime(now)

	var aoiIDs []uuid.UUID
	for _, item := range f.orderItems[orderID] {
		if a, ok := f.aois[item.AOIID]; ok {
			a.Cadence = item.Cadence
			a.IsPaid = true
			a.Status = models.AOIStatusInactive
		}
		aoiIDs = append(aoiIDs, item.AOIID)
	}
	for id, item := range f.cartItems {
		if c, ok := f.carts[order.UserID]; ok && item.CartID == c.ID {
			delete(f.cartItems, id)
		}
	}

	cp := *order
	return &cp, true, aoiIDs, nil
}

func (f *fakeStore) GetOrderForUser(_ context.Context, userID, id uuid.UUID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.UserID != userID {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	cp := *order
	return &cp, nil
}

func (f *fakeStore) GetOrderItems(_ context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderItem(nil), f.orderItems[orderID]...), nil
}

func (f *fakeStore) ListOrdersByUser(_ context.Context, userID uuid.UUID) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) CreatePayment(_ context.Context, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	cp := *payment
	f.payments[payment.ID] = &cp
	return nil
}

func (f *fakeStore) GetPaymentByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", id, apperr.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetPaymentByProviderRef(_ context.Context, provider models.Provider, ref string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.Provider == provider && p.ProviderPaymentID == ref {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("payment ref %s: %w", ref, apperr.ErrNotFound)
}

func (f *fakeStore) SetPaymentProviderRef(_ context.Context, id uuid.UUID, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return fmt.Errorf("payment %s: %w", id, apperr.ErrNotFound)
	}
	p.ProviderPaymentID = ref
	return nil
}

func (f *fakeStore) CompletePaymentIfPending(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return false, fmt.Errorf("payment %s: %w", id, apperr.ErrNotFound)
	}
	if p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = models.PaymentStatusCompleted
	p.CompletedAt = nullTime(now)
	return true, nil
}

func (f *fakeStore) FailPaymentIfPending(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return false, fmt.Errorf("payment %s: %w", id, apperr.ErrNotFound)
	}
	if p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = models.PaymentStatusFailed
	return true, nil
}

func (f *fakeStore) ListPaymentsByUser(_ context.Context, userID uuid.UUID) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payment
	for _, p := range f.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func webhookMapKey(provider models.Provider, webhookID string) string {
	return string(provider) + ":" + webhookID
}

func (f *fakeStore) InsertWebhook(_ context.Context, w *models.PaymentWebhook) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := webhookMapKey(w.Provider, w.WebhookID)
	if _, ok := f.webhooks[key]; ok {
		return false, nil
	}
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	cp := *w
	f.webhooks[key] = &cp
	return true, nil
}

func (f *fakeStore) GetWebhook(_ context.Context, provider models.Provider, webhookID string) (*models.PaymentWebhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.webhooks[webhookMapKey(provider, webhookID)]
	if !ok {
		return nil, fmt.Errorf("webhook %s: %w", webhookID, apperr.ErrNotFound)
	}
	cp := *w
	return &cp, nil
}

func (f *fakeStore) MarkWebhookProcessed(_ context.Context, provider models.Provider, webhookID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.webhooks[webhookMapKey(provider, webhookID)]; ok {
		w.Processed = true
	}
	return nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.SMSStatus == "" {
		n.SMSStatus = models.SMSStatusPending
	}
	cp := *n
	f.notifications = append(f.notifications, &cp)
	return nil
}

func (f *fakeStore) notificationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notifications)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}

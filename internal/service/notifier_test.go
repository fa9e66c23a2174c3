package service

import (
	"context"
	"testing"

	"geowatch/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyPersistsRow(t *testing.T) {
	store := newFakeStore()
	user := store.addUser(models.User{Email: "owner@example.com", PhoneNumber: "+2348012345678"})

	n := NewNotifier(store, nil)

	created, err := n.Notify(context.Background(), &models.Notification{
		UserID:  user.ID,
		Title:   "Test",
		Message: "Hello",
		Type:    models.NotificationTypeSystem,
	})
	require.NoError(t, err)
	assert.NotEqual(t, "", created.ID.String())
	assert.Equal(t, models.SMSStatusPending, created.SMSStatus)
	assert.Equal(t, 1, store.notificationCount())
}

func TestEncroachmentDetectedMessage(t *testing.T) {
	store := newFakeStore()
	user := store.addUser(models.User{Email: "owner@example.com"})
	aoi := store.addAOI(models.AOI{UserID: user.ID, Name: "North Field"})

	n := NewNotifier(store, nil)

	detection := &models.EncroachmentDetection{
		AOIID:      aoi.ID,
		Severity:   models.SeverityHigh,
		Confidence: 0.87,
	}
	notification, err := n.EncroachmentDetected(context.Background(), aoi, detection)
	require.NoError(t, err)

	assert.Equal(t, models.NotificationTypeEncroachment, notification.Type)
	assert.Contains(t, notification.Title, "North Field")
	assert.Contains(t, notification.Message, "high severity")
	assert.Contains(t, notification.Message, "0.87")
	assert.Equal(t, aoi.ID, notification.AOIID.UUID)
}

func TestPaymentNotificationsCarryAmount(t *testing.T) {
	store := newFakeStore()
	user := store.addUser(models.User{Email: "owner@example.com"})

	n := NewNotifier(store, nil)
	payment := &models.Payment{
		UserID:   user.ID,
		Amount:   decimal.RequireFromString("200.00"),
		Currency: "USD",
	}

	ok, err := n.PaymentSucceeded(context.Background(), payment)
	require.NoError(t, err)
	assert.Contains(t, ok.Message, "200.00 USD")
	assert.Equal(t, models.NotificationTypePayment, ok.Type)

	failed, err := n.PaymentFailed(context.Background(), payment)
	require.NoError(t, err)
	assert.Contains(t, failed.Message, "200.00 USD")
}

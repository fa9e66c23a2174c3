package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"geowatch/internal/models"
	"geowatch/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedDelivery struct {
	notificationID uuid.UUID
	status         string
	messageID      string
}

type fakeDeliveryStore struct {
	mu        sync.Mutex
	recorded  []recordedDelivery
	updateErr error
}

func (f *fakeDeliveryStore) UpdateSMSStatus(_ context.Context, id uuid.UUID, status, messageID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.recorded = append(f.recorded, recordedDelivery{id, status, messageID})
	return nil
}

type fakeRealtime struct {
	pushed  []*models.NotificationCreatedEvent
	pushErr error
}

func (f *fakeRealtime) Push(_ context.Context, _ uuid.UUID, event *models.NotificationCreatedEvent) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushed = append(f.pushed, event)
	return nil
}

type fakeSMS struct {
	sent    []string
	sendErr error
}

func (f *fakeSMS) Send(_ context.Context, phoneNumber, body string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, phoneNumber+"|"+body)
	return "msg_" + uuid.New().String()[:8], nil
}

func testEvent(phone string) *models.NotificationCreatedEvent {
	return &models.NotificationCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeNotificationCreated,
			Timestamp: time.Now(),
		},
		NotificationID: uuid.New(),
		UserID:         uuid.New(),
		Title:          "Encroachment alert: North Field",
		Message:        "A high severity encroachment was detected",
		Type:           "encroachment",
		PhoneNumber:    phone,
	}
}

func newTestWorker(store DeliveryStore, realtime *fakeRealtime, sms *fakeSMS) *NotificationWorker {
	return &NotificationWorker{
		store:    store,
		realtime: realtime,
		sms:      sms,
		logger:   util.GetLogger(),
	}
}

func TestDeliversToBothChannels(t *testing.T) {
	store := &fakeDeliveryStore{}
	realtime := &fakeRealtime{}
	sms := &fakeSMS{}
	w := newTestWorker(store, realtime, sms)

	event := testEvent("+2348012345678")
	err := w.handleNotificationCreated(context.Background(), event)
	require.NoError(t, err)

	require.Len(t, realtime.pushed, 1)
	assert.Equal(t, event.NotificationID, realtime.pushed[0].NotificationID)

	require.Len(t, sms.sent, 1)
	assert.Contains(t, sms.sent[0], "+2348012345678")
	assert.Contains(t, sms.sent[0], "Encroachment alert: North Field: A high severity encroachment was detected")

	require.Len(t, store.recorded, 1)
	assert.Equal(t, models.SMSStatusSent, store.recorded[0].status)
	assert.NotEmpty(t, store.recorded[0].messageID)
}

func TestSkipsSMSWithoutPhoneNumber(t *testing.T) {
	store := &fakeDeliveryStore{}
	sms := &fakeSMS{}
	w := newTestWorker(store, &fakeRealtime{}, sms)

	err := w.handleNotificationCreated(context.Background(), testEvent(""))
	require.NoError(t, err)

	assert.Empty(t, sms.sent)
	assert.Empty(t, store.recorded)
}

func TestRecordsFailedSMSDelivery(t *testing.T) {
	store := &fakeDeliveryStore{}
	sms := &fakeSMS{sendErr: errors.New("gateway unavailable")}
	w := newTestWorker(store, &fakeRealtime{}, sms)

	event := testEvent("+2348012345678")
	err := w.handleNotificationCreated(context.Background(), event)
	require.NoError(t, err)

	require.Len(t, store.recorded, 1)
	assert.Equal(t, models.SMSStatusFailed, store.recorded[0].status)
	assert.Empty(t, store.recorded[0].messageID)
	assert.Equal(t, event.NotificationID, store.recorded[0].notificationID)
}

func TestRealtimeFailureDoesNotBlockSMS(t *testing.T) {
	store := &fakeDeliveryStore{}
	realtime := &fakeRealtime{pushErr: errors.New("no live connection")}
	sms := &fakeSMS{}
	w := newTestWorker(store, realtime, sms)

	err := w.handleNotificationCreated(context.Background(), testEvent("+2348012345678"))
	require.NoError(t, err)

	require.Len(t, sms.sent, 1)
	require.Len(t, store.recorded, 1)
	assert.Equal(t, models.SMSStatusSent, store.recorded[0].status)
}

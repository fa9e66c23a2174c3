package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types published to the notification events topic
const (
	EventTypeNotificationCreated = "notification.created"
	EventTypeOrderCompleted      = "order.completed"
	EventTypeEncroachmentFound   = "encroachment.found"
)

// BaseEvent contains common event fields
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationCreatedEvent is published after a notification row is
// persisted. The delivery worker consumes it and drives the realtime and
// SMS channels.
type NotificationCreatedEvent struct {
	BaseEvent
	NotificationID uuid.UUID `json:"notification_id"`
	UserID         uuid.UUID `json:"user_id"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Type           string    `json:"type"`
	PhoneNumber    string    `json:"phone_number,omitempty"`
}

// OrderCompletedEvent is published when an order reaches completed and its
// AOIs are marked paid.
type OrderCompletedEvent struct {
	BaseEvent
	OrderID     uuid.UUID   `json:"order_id"`
	UserID      uuid.UUID   `json:"user_id"`
	OrderNumber string      `json:"order_number"`
	AOIIDs      []uuid.UUID `json:"aoi_ids"`
}

// EncroachmentFoundEvent is published for each persisted detection.
type EncroachmentFoundEvent struct {
	BaseEvent
	DetectionID uuid.UUID `json:"detection_id"`
	AOIID       uuid.UUID `json:"aoi_id"`
	UserID      uuid.UUID `json:"user_id"`
	Severity    string    `json:"severity"`
	Confidence  float64   `json:"confidence"`
}

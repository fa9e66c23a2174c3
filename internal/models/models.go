package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"github.com/shopspring/decimal"
)

// Cadence is the monitoring refresh period for an AOI. It governs both
// pricing and the scheduler's refresh window.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceMonthly Cadence = "monthly"
	CadenceYearly  Cadence = "yearly"
)

// Valid reports whether c is a known cadence.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceDaily, CadenceMonthly, CadenceYearly:
		return true
	}
	return false
}

// Period returns the subscription length purchased for one cadence cycle.
func (c Cadence) Period() time.Duration {
	switch c {
	case CadenceMonthly:
		return 30 * 24 * time.Hour
	case CadenceYearly:
		return 365 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// RefreshWindow returns the minimum gap between completed monitoring runs.
// Windows are shorter than the nominal period so scheduler jitter cannot
// starve a cycle.
func (c Cadence) RefreshWindow() time.Duration {
	switch c {
	case CadenceMonthly:
		return 29 * 24 * time.Hour
	case CadenceYearly:
		return 364 * 24 * time.Hour
	default:
		return 23 * time.Hour
	}
}

// AOI statuses
const (
	AOIStatusInCart   = "in_cart"
	AOIStatusInactive = "inactive"
	AOIStatusActive   = "active"
	AOIStatusExpired  = "expired"
)

// Polygon wraps orb.Polygon with EWKB scan/value support for PostGIS columns.
type Polygon struct {
	orb.Polygon
}

// Value implements driver.Valuer, encoding the polygon as EWKB with SRID 4326.
func (p Polygon) Value() (driver.Value, error) {
	return ewkb.Value(p.Polygon, 4326).Value()
}

// Scan implements sql.Scanner.
func (p *Polygon) Scan(src interface{}) error {
	var geom orb.Geometry
	if err := ewkb.Scanner(&geom).Scan(src); err != nil {
		return err
	}
	poly, ok := geom.(orb.Polygon)
	if !ok {
		return fmt.Errorf("unexpected geometry type %T, want polygon", geom)
	}
	p.Polygon = poly
	return nil
}

// MarshalJSON renders the polygon as nested coordinate rings.
func (p Polygon) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Polygon)
}

// UnmarshalJSON accepts nested coordinate rings.
func (p *Polygon) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &p.Polygon)
}

// AOI is a user-owned polygon purchased for periodic encroachment monitoring.
type AOI struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	UserID    uuid.UUID    `db:"user_id" json:"user_id"`
	Name      string       `db:"name" json:"name"`
	Geometry  Polygon      `db:"geometry" json:"geometry"`
	Cadence   Cadence      `db:"cadence" json:"cadence"`
	Status    string       `db:"status" json:"status"`
	IsPaid    bool         `db:"is_paid" json:"is_paid"`
	StartDate sql.NullTime `db:"start_date" json:"start_date"`
	EndDate   sql.NullTime `db:"end_date" json:"end_date"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// Cart is a user's shopping cart. One cart per user; checkout drains it,
// the cart row itself is never deleted.
type Cart struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem is one AOI in a cart. At most one entry per (cart, AOI); the
// price is always derived from the pricing table, never user-supplied.
type CartItem struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	CartID    uuid.UUID       `db:"cart_id" json:"cart_id"`
	AOIID     uuid.UUID       `db:"aoi_id" json:"aoi_id"`
	Cadence   Cadence         `db:"cadence" json:"cadence"`
	Price     decimal.Decimal `db:"price" json:"price"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusFailed     = "failed"
	OrderStatusCancelled  = "cancelled"
)

// Order is a priced snapshot of a cart at checkout time.
type Order struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	UserID           uuid.UUID       `db:"user_id" json:"user_id"`
	OrderNumber      string          `db:"order_number" json:"order_number"`
	Status           string          `db:"status" json:"status"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"total_amount"`
	Currency         string          `db:"currency" json:"currency"`
	BillingEmail     string          `db:"billing_email" json:"billing_email"`
	BillingFirstName string          `db:"billing_first_name" json:"billing_first_name"`
	BillingLastName  string          `db:"billing_last_name" json:"billing_last_name"`
	BillingPhone     string          `db:"billing_phone" json:"billing_phone"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt      sql.NullTime    `db:"completed_at" json:"completed_at"`
}

// OrderItem is one AOI line in an order. Unique per (order, AOI).
type OrderItem struct {
	ID      uuid.UUID       `db:"id" json:"id"`
	OrderID uuid.UUID       `db:"order_id" json:"order_id"`
	AOIID   uuid.UUID       `db:"aoi_id" json:"aoi_id"`
	Cadence Cadence         `db:"cadence" json:"cadence"`
	Price   decimal.Decimal `db:"price" json:"price"`
}

// Provider identifies a payment provider binding.
type Provider string

const (
	ProviderStripe   Provider = "stripe"
	ProviderPaystack Provider = "paystack"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusRefunded  = "refunded"
)

// Payment is one charge attempt against an order. Amount and currency are
// copied from the order at creation and never recomputed.
type Payment struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	UserID            uuid.UUID       `db:"user_id" json:"user_id"`
	OrderID           uuid.UUID       `db:"order_id" json:"order_id"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Currency          string          `db:"currency" json:"currency"`
	Provider          Provider        `db:"provider" json:"provider"`
	ProviderPaymentID string          `db:"provider_payment_id" json:"provider_payment_id,omitempty"`
	Status            string          `db:"status" json:"status"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt       sql.NullTime    `db:"completed_at" json:"completed_at"`
}

// AmountMinorUnits returns the amount in cents/kobo for provider APIs.
func (p *Payment) AmountMinorUnits() int64 {
	return p.Amount.Mul(decimal.NewFromInt(100)).IntPart()
}

// PaymentWebhook is a stored webhook delivery. (provider, webhook_id) is the
// idempotency key; a repeat delivery must be a no-op.
type PaymentWebhook struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Provider  Provider  `db:"provider" json:"provider"`
	WebhookID string    `db:"webhook_id" json:"webhook_id"`
	EventType string    `db:"event_type" json:"event_type"`
	Processed bool      `db:"processed" json:"processed"`
	Payload   []byte    `db:"payload" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Monitoring job statuses
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// MonitoringJob is one execution attempt evaluating recent imagery for an
// AOI. At most one job per AOI may be pending or running at any time.
type MonitoringJob struct {
	ID                    uuid.UUID    `db:"id" json:"id"`
	AOIID                 uuid.UUID    `db:"aoi_id" json:"aoi_id"`
	Status                string       `db:"status" json:"status"`
	StartedAt             time.Time    `db:"started_at" json:"started_at"`
	CompletedAt           sql.NullTime `db:"completed_at" json:"completed_at"`
	ImagesProcessed       int          `db:"images_processed" json:"images_processed"`
	EncroachmentsDetected int          `db:"encroachments_detected" json:"encroachments_detected"`
	ErrorMessage          string       `db:"error_message" json:"error_message,omitempty"`
}

// Detection severities
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// EncroachmentDetection is a persisted detector finding. Confirmation is a
// manual step, never set by detection itself.
type EncroachmentDetection struct {
	ID                uuid.UUID    `db:"id" json:"id"`
	AOIID             uuid.UUID    `db:"aoi_id" json:"aoi_id"`
	Severity          string       `db:"severity" json:"severity"`
	AffectedArea      Polygon      `db:"affected_area" json:"affected_area"`
	Confidence        float64      `db:"confidence" json:"confidence"`
	Description       string       `db:"description" json:"description"`
	SatelliteImageURL string       `db:"satellite_image_url" json:"satellite_image_url,omitempty"`
	DetectedAt        time.Time    `db:"detected_at" json:"detected_at"`
	IsConfirmed       bool         `db:"is_confirmed" json:"is_confirmed"`
	ConfirmedAt       sql.NullTime `db:"confirmed_at" json:"confirmed_at"`
}

// SatelliteImage is scene metadata used for imagery selection.
type SatelliteImage struct {
	ID              uuid.UUID `db:"id" json:"id"`
	SceneID         string    `db:"scene_id" json:"scene_id"`
	Satellite       string    `db:"satellite" json:"satellite"`
	AcquisitionDate time.Time `db:"acquisition_date" json:"acquisition_date"`
	CloudCoverage   float64   `db:"cloud_coverage" json:"cloud_coverage"`
	Geometry        Polygon   `db:"geometry" json:"geometry"`
	ImageURL        string    `db:"image_url" json:"image_url"`
	ThumbnailURL    string    `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Notification types
const (
	NotificationTypeEncroachment = "encroachment"
	NotificationTypePayment      = "payment"
	NotificationTypeSystem       = "system"
	NotificationTypeMonitoring   = "monitoring"
)

// SMS delivery statuses
const (
	SMSStatusPending   = "pending"
	SMSStatusSent      = "sent"
	SMSStatusDelivered = "delivered"
	SMSStatusFailed    = "failed"
)

// Notification is a durable per-user notification. Delivery-channel failures
// are recorded on the row, never rolled back.
type Notification struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	UserID       uuid.UUID     `db:"user_id" json:"user_id"`
	Title        string        `db:"title" json:"title"`
	Message      string        `db:"message" json:"message"`
	Type         string        `db:"notification_type" json:"notification_type"`
	IsRead       bool          `db:"is_read" json:"is_read"`
	ReadAt       sql.NullTime  `db:"read_at" json:"read_at"`
	SMSStatus    string        `db:"sms_status" json:"sms_status"`
	SMSSentAt    sql.NullTime  `db:"sms_sent_at" json:"sms_sent_at"`
	SMSMessageID string        `db:"sms_message_id" json:"sms_message_id,omitempty"`
	AOIID        uuid.NullUUID `db:"aoi_id" json:"aoi_id,omitempty"`
	DetectionID  uuid.NullUUID `db:"detection_id" json:"detection_id,omitempty"`
	PaymentID    uuid.NullUUID `db:"payment_id" json:"payment_id,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// User is the owner of carts, orders and AOIs.
type User struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	PhoneNumber string    `db:"phone_number" json:"phone_number,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

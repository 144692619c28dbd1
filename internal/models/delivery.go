package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shipment states
const (
	ShipmentStateDraft    = "draft"
	ShipmentStateReady    = "ready"
	ShipmentStateShipped  = "shipped"
	ShipmentStateCanceled = "canceled"
)

// Shipment is a parcel of an order with the shipping method used
type Shipment struct {
	ID             int64           `gorm:"primaryKey" json:"id"`
	OrderID        int64           `gorm:"index;not null" json:"order_id"`
	ShippingMethod string          `gorm:"type:varchar(64)" json:"shipping_method"` // carrier code, e.g. "dhl_paket"
	Amount         decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount"`
	State          string          `gorm:"type:varchar(20);index;default:draft" json:"state"`
	TrackingCode   string          `gorm:"index" json:"tracking_code,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Shipment model
func (Shipment) TableName() string { return "commerce_shipment" }

// IsCanceled reports whether the shipment no longer carries a charge
func (s *Shipment) IsCanceled() bool {
	return s.State == ShipmentStateCanceled
}

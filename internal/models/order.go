package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entity type tags used as the first part of every mapping key
const (
	EntityTypeUser      = "user"
	EntityTypeProfile   = "profile"
	EntityTypeOrder     = "commerce_order"
	EntityTypeOrderItem = "commerce_order_item"
)

// OrderState defines the commerce order workflow states
type OrderState string

const (
	OrderStateDraft     OrderState = "draft"     // Cart, never exported
	OrderStatePlaced    OrderState = "placed"    // Checkout completed
	OrderStateFulfilled OrderState = "fulfilled" // Shipped, awaiting payment capture
	OrderStateCompleted OrderState = "completed" // Paid and shipped
	OrderStateCanceled  OrderState = "canceled"
)

// Order is a placed commerce order
type Order struct {
	ID                int64               `gorm:"primaryKey" json:"id"`
	OrderNumber       string              `gorm:"uniqueIndex;not null" json:"order_number"`
	State             OrderState          `gorm:"type:varchar(20);not null;index" json:"state"`
	UserID            int64               `gorm:"index" json:"user_id"` // 0 = anonymous checkout
	Email             string              `json:"email"`
	BillingProfileID  *int64              `json:"billing_profile_id,omitempty"`
	ShippingProfileID *int64              `json:"shipping_profile_id,omitempty"`
	Store             string              `gorm:"type:varchar(50)" json:"store"` // sales channel code
	CurrencyCode      string              `gorm:"type:varchar(3);not null" json:"currency_code"`
	TotalPrice        decimal.Decimal     `gorm:"type:numeric(12,2)" json:"total_price"`
	Metadata          datatypes.JSON      `json:"metadata"`
	PlacedAt          *time.Time          `json:"placed_at,omitempty"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`

	User        *User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Items       []OrderItem       `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Adjustments []OrderAdjustment `gorm:"foreignKey:OrderID" json:"adjustments,omitempty"`
	Shipments   []Shipment        `gorm:"foreignKey:OrderID" json:"shipments,omitempty"`
}

// TableName specifies the table name for Order model
func (Order) TableName() string {
	return "commerce_order"
}

// BeforeCreate generates order number before creating
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.OrderNumber == "" {
		o.OrderNumber = generateOrderNumber("SO")
	}
	return nil
}

// generateOrderNumber creates a unique order number
func generateOrderNumber(prefix string) string {
	return prefix + time.Now().Format("20060102") + "-" + randomString(4)
}

// randomString generates a random string of given length
func randomString(length int) string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	now := time.Now().UnixNano()
	for i := 0; i < length; i++ {
		result[i] = charset[(now+int64(i))%int64(len(charset))]
	}
	return string(result)
}

// GetEntityID implements LocalEntity
func (o *Order) GetEntityID() int64 { return o.ID }

// GetEntityType implements LocalEntity
func (o *Order) GetEntityType() string { return EntityTypeOrder }

// IsPlaced returns true once checkout is done and the order is not canceled
func (o *Order) IsPlaced() bool {
	switch o.State {
	case OrderStatePlaced, OrderStateFulfilled, OrderStateCompleted:
		return true
	}
	return false
}

// IsCompleted returns true if the order is paid and shipped
func (o *Order) IsCompleted() bool {
	return o.State == OrderStateCompleted
}

// OrderItem is a product line of an order.
// Soft-deleted items are still loaded by the exporters so the remote line can be zeroed.
type OrderItem struct {
	ID         int64           `gorm:"primaryKey" json:"id"`
	OrderID    int64           `gorm:"index;not null" json:"order_id"`
	SKU        string          `gorm:"type:varchar(64);index" json:"sku"`
	Title      string          `json:"title"`
	Quantity   decimal.Decimal `gorm:"type:numeric(12,3)" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:numeric(12,2)" json:"unit_price"`
	TotalPrice decimal.Decimal `gorm:"type:numeric(12,2)" json:"total_price"`
	TaxType    string          `gorm:"type:varchar(64)" json:"tax_type"` // e.g. "eu_vat|de|standard"
	TaxRate    decimal.Decimal `gorm:"type:numeric(6,4)" json:"tax_rate"` // 0.19
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	DeletedAt  gorm.DeletedAt  `gorm:"index" json:"-"`

	Order *Order `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

// TableName specifies the table name for OrderItem model
func (OrderItem) TableName() string {
	return "commerce_order_item"
}

// GetEntityID implements LocalEntity
func (i *OrderItem) GetEntityID() int64 { return i.ID }

// GetEntityType implements LocalEntity
func (i *OrderItem) GetEntityType() string { return EntityTypeOrderItem }

// IsRemoved reports whether the item was taken off the order
func (i *OrderItem) IsRemoved() bool {
	return i.DeletedAt.Valid
}

// AdjustmentType classifies order-level price adjustments
type AdjustmentType string

const (
	AdjustmentPromotion AdjustmentType = "promotion"
	AdjustmentFee       AdjustmentType = "fee"
)

// OrderAdjustment is an order-level amount such as a promotion (negative amount)
type OrderAdjustment struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	OrderID   int64           `gorm:"index;not null" json:"order_id"`
	Type      AdjustmentType  `gorm:"type:varchar(20);not null" json:"type"`
	Label     string          `json:"label"`
	Amount    decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for OrderAdjustment model
func (OrderAdjustment) TableName() string {
	return "commerce_order_adjustment"
}

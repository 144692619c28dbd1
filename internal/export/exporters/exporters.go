// Package exporters holds the concrete export contracts for the commerce
// entities: customers, addresses, orders, order lines and invoices.
package exporters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/idmap"
	"github.com/xelth-com/odoobridge/internal/models"
	"github.com/xelth-com/odoobridge/internal/resolver"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
	"gorm.io/gorm"
)

// Variants
const (
	VariantDefault  = "default"
	VariantCompany  = "company"
	VariantShipping = "shipping"
	VariantDiscount = "discount"
)

// Contract keys
var (
	KeyUser         = idmap.NewKey(models.EntityTypeUser, "res.partner", VariantDefault)
	KeyUserCompany  = idmap.NewKey(models.EntityTypeUser, "res.partner", VariantCompany)
	KeyProfile      = idmap.NewKey(models.EntityTypeProfile, "res.partner", VariantDefault)
	KeyOrder        = idmap.NewKey(models.EntityTypeOrder, "sale.order", VariantDefault)
	KeyOrderItem    = idmap.NewKey(models.EntityTypeOrderItem, "sale.order.line", VariantDefault)
	KeyShippingLine = idmap.NewKey(models.EntityTypeOrder, "sale.order.line", VariantShipping)
	KeyDiscountLine = idmap.NewKey(models.EntityTypeOrder, "sale.order.line", VariantDiscount)
	KeyInvoice      = idmap.NewKey(models.EntityTypeOrder, "account.invoice", VariantDefault)
)

const (
	odooDateTime = "2006-01-02 15:04:05"
	odooDate     = "2006-01-02"

	defaultDiscountSKU = "DISCOUNT"
)

// Deps are the collaborators every contract is built with
type Deps struct {
	DB        *gorm.DB
	Store     *idmap.Store
	Resolvers *resolver.Resolvers
	Log       *logrus.Logger

	// Client is used by contracts that read remote data while projecting
	Client odoo.RemoteClient

	// DiscountSKU is the default_code of the product used for promotion lines
	DiscountSKU string
}

// All builds every contract
func All(d Deps) []export.Exporter {
	if d.DiscountSKU == "" {
		d.DiscountSKU = defaultDiscountSKU
	}
	lw := lineWriter{store: d.Store, log: d.Log}
	return []export.Exporter{
		&UserExporter{db: d.DB, res: d.Resolvers},
		&CompanyExporter{db: d.DB},
		&ProfileExporter{db: d.DB, res: d.Resolvers},
		&OrderExporter{db: d.DB, res: d.Resolvers},
		&OrderItemExporter{db: d.DB, res: d.Resolvers, lineWriter: lw},
		&ShippingLineExporter{db: d.DB, res: d.Resolvers, lineWriter: lw},
		&DiscountLineExporter{db: d.DB, res: d.Resolvers, lineWriter: lw, sku: d.DiscountSKU},
		&InvoiceExporter{db: d.DB, client: d.Client},
	}
}

// Register adds every contract to reg
func Register(reg *export.Registry, d Deps) error {
	for _, e := range All(d) {
		if err := reg.Register(e); err != nil {
			return err
		}
	}
	return nil
}

// loadOrder reads an order with its items (removed ones included),
// adjustments and shipments
func loadOrder(ctx context.Context, db *gorm.DB, id int64) (*models.Order, error) {
	var order models.Order
	err := db.WithContext(ctx).
		Preload("User").
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped().Order("id") }).
		Preload("Adjustments", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped().Order("id") }).
		Preload("Shipments", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s %d not found", models.EntityTypeOrder, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", id, err)
	}
	return &order, nil
}

func odooTime(t *time.Time) interface{} {
	if t == nil {
		return false
	}
	return t.UTC().Format(odooDateTime)
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// orNone turns a zero id into Odoo's false
func orNone(id int64) interface{} {
	if id == 0 {
		return false
	}
	return id
}

package exporters

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/models"
	"github.com/xelth-com/odoobridge/internal/resolver"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
	"gorm.io/gorm"
)

// Lines never disappear from Odoo: a removed item or a cancelled charge is
// zeroed and relabelled instead of unlinked.

// OrderItemExporter exports a product line
type OrderItemExporter struct {
	lineWriter
	db  *gorm.DB
	res *resolver.Resolvers
}

func (e *OrderItemExporter) Key() export.Key { return KeyOrderItem }

func (e *OrderItemExporter) Load(ctx context.Context, localID int64) (models.LocalEntity, error) {
	var item models.OrderItem
	err := e.db.WithContext(ctx).Unscoped().Preload("Order").First(&item, localID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s %d not found", models.EntityTypeOrderItem, localID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order item %d: %w", localID, err)
	}
	return &item, nil
}

func (e *OrderItemExporter) ShouldSync(entity models.LocalEntity) bool {
	item := entity.(*models.OrderItem)
	return item.Order != nil && item.Order.IsPlaced()
}

func (e *OrderItemExporter) ShouldDelete(models.LocalEntity) bool { return false }

func (e *OrderItemExporter) RecreateDeleted(models.LocalEntity) bool { return false }

func (e *OrderItemExporter) OrderID(entity models.LocalEntity) int64 {
	return entity.(*models.OrderItem).OrderID
}

func (e *OrderItemExporter) Dependencies(ctx context.Context, entity models.LocalEntity) ([]export.Dependency, error) {
	return []export.Dependency{{Key: KeyOrder, LocalID: e.OrderID(entity), Required: true}}, nil
}

func (e *OrderItemExporter) Fields(ctx context.Context, entity models.LocalEntity, p export.Projection) (map[string]interface{}, error) {
	item := entity.(*models.OrderItem)

	productID, err := e.res.Product.ProductID(ctx, item.SKU)
	if err != nil {
		return nil, err
	}
	taxID, err := e.res.Tax.TaxID(ctx, item.TaxRate)
	if err != nil {
		return nil, err
	}
	taxes := odoo.ReplaceIDs()
	if taxID != 0 {
		taxes = odoo.ReplaceIDs(taxID)
	}

	name, qty, price := item.Title, item.Quantity, item.UnitPrice
	if item.IsRemoved() {
		name, qty, price = "[removed] "+item.Title, decimal.Zero, decimal.Zero
	}

	values := map[string]interface{}{
		"product_id":      productID,
		"name":            name,
		"product_uom_qty": qty.InexactFloat64(),
		"price_unit":      money(price),
		"tax_id":          taxes,
	}
	if p.IsCreate() {
		values["order_id"] = p.Dep(KeyOrder, item.OrderID)
	}
	return values, nil
}

func (e *OrderItemExporter) RemoteWrite(ctx context.Context, client odoo.RemoteClient, entity models.LocalEntity, remoteID int64, values map[string]interface{}) error {
	return e.write(ctx, client, KeyOrderItem, entity.GetEntityID(), e.OrderID(entity), remoteID, values)
}

// ShippingLineExporter exports the order's shipping charge as one delivery line
type ShippingLineExporter struct {
	lineWriter
	db  *gorm.DB
	res *resolver.Resolvers
}

func (e *ShippingLineExporter) Key() export.Key { return KeyShippingLine }

func (e *ShippingLineExporter) Load(ctx context.Context, localID int64) (models.LocalEntity, error) {
	return loadOrder(ctx, e.db, localID)
}

func (e *ShippingLineExporter) ShouldSync(entity models.LocalEntity) bool {
	o := entity.(*models.Order)
	return o.IsPlaced() && len(o.Shipments) > 0
}

func (e *ShippingLineExporter) ShouldDelete(models.LocalEntity) bool { return false }

func (e *ShippingLineExporter) RecreateDeleted(models.LocalEntity) bool { return false }

func (e *ShippingLineExporter) OrderID(entity models.LocalEntity) int64 {
	return entity.GetEntityID()
}

func (e *ShippingLineExporter) Dependencies(ctx context.Context, entity models.LocalEntity) ([]export.Dependency, error) {
	return []export.Dependency{{Key: KeyOrder, LocalID: entity.GetEntityID(), Required: true}}, nil
}

func (e *ShippingLineExporter) Fields(ctx context.Context, entity models.LocalEntity, p export.Projection) (map[string]interface{}, error) {
	o := entity.(*models.Order)

	carrier, err := e.res.Carrier.Lookup(ctx, o.Shipments[0].ShippingMethod)
	if err != nil {
		return nil, err
	}

	amount := decimal.Zero
	active := 0
	for i := range o.Shipments {
		if o.Shipments[i].IsCanceled() {
			continue
		}
		amount = amount.Add(o.Shipments[i].Amount)
		active++
	}

	values := map[string]interface{}{
		"product_id":      carrier.ProductID,
		"name":            "Shipping: " + carrier.Name,
		"product_uom_qty": 1.0,
		"price_unit":      money(amount),
		"is_delivery":     true,
	}
	if active == 0 {
		values["name"] = "Shipping (canceled): " + carrier.Name
		values["product_uom_qty"] = 0.0
		values["price_unit"] = 0.0
	}
	if p.IsCreate() {
		values["order_id"] = p.Dep(KeyOrder, o.ID)
	}
	return values, nil
}

func (e *ShippingLineExporter) RemoteWrite(ctx context.Context, client odoo.RemoteClient, entity models.LocalEntity, remoteID int64, values map[string]interface{}) error {
	return e.write(ctx, client, KeyShippingLine, entity.GetEntityID(), e.OrderID(entity), remoteID, values)
}

// DiscountLineExporter exports the sum of the order's promotions as one
// negative line
type DiscountLineExporter struct {
	lineWriter
	db  *gorm.DB
	res *resolver.Resolvers
	sku string
}

func (e *DiscountLineExporter) Key() export.Key { return KeyDiscountLine }

func (e *DiscountLineExporter) Load(ctx context.Context, localID int64) (models.LocalEntity, error) {
	return loadOrder(ctx, e.db, localID)
}

// ShouldSync is true once the order ever carried a promotion, removed ones
// included, so a dropped promotion still zeroes its remote line
func (e *DiscountLineExporter) ShouldSync(entity models.LocalEntity) bool {
	o := entity.(*models.Order)
	if !o.IsPlaced() {
		return false
	}
	for _, adj := range o.Adjustments {
		if adj.Type == models.AdjustmentPromotion {
			return true
		}
	}
	return false
}

func (e *DiscountLineExporter) ShouldDelete(models.LocalEntity) bool { return false }

func (e *DiscountLineExporter) RecreateDeleted(models.LocalEntity) bool { return false }

func (e *DiscountLineExporter) OrderID(entity models.LocalEntity) int64 {
	return entity.GetEntityID()
}

func (e *DiscountLineExporter) Dependencies(ctx context.Context, entity models.LocalEntity) ([]export.Dependency, error) {
	return []export.Dependency{{Key: KeyOrder, LocalID: entity.GetEntityID(), Required: true}}, nil
}

func (e *DiscountLineExporter) Fields(ctx context.Context, entity models.LocalEntity, p export.Projection) (map[string]interface{}, error) {
	o := entity.(*models.Order)

	productID, err := e.res.Product.ProductID(ctx, e.sku)
	if err != nil {
		return nil, err
	}

	amount := decimal.Zero
	var labels []string
	for _, adj := range o.Adjustments {
		if adj.Type != models.AdjustmentPromotion || adj.DeletedAt.Valid {
			continue
		}
		amount = amount.Add(adj.Amount)
		labels = append(labels, adj.Label)
	}

	values := map[string]interface{}{
		"product_id":      productID,
		"name":            discountName(labels),
		"product_uom_qty": 1.0,
		"price_unit":      money(amount.Abs().Neg()),
		"tax_id":          odoo.ReplaceIDs(),
	}
	if len(labels) == 0 {
		values["name"] = "Discount (removed)"
		values["product_uom_qty"] = 0.0
		values["price_unit"] = 0.0
	}
	if p.IsCreate() {
		values["order_id"] = p.Dep(KeyOrder, o.ID)
	}
	return values, nil
}

func (e *DiscountLineExporter) RemoteWrite(ctx context.Context, client odoo.RemoteClient, entity models.LocalEntity, remoteID int64, values map[string]interface{}) error {
	return e.write(ctx, client, KeyDiscountLine, entity.GetEntityID(), e.OrderID(entity), remoteID, values)
}

func discountName(labels []string) string {
	name := "Discount"
	for i, l := range labels {
		if i == 0 {
			name += ": " + l
		} else {
			name += ", " + l
		}
	}
	return name
}

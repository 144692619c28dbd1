package exporters

import (
	"context"

	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/models"
	"github.com/xelth-com/odoobridge/internal/resolver"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
	"gorm.io/gorm"
)

// OrderExporter exports a placed order header as a confirmed sale.order.
// Lines are separate contracts so each keeps its own mapping.
type OrderExporter struct {
	db  *gorm.DB
	res *resolver.Resolvers
}

func (e *OrderExporter) Key() export.Key { return KeyOrder }

func (e *OrderExporter) Load(ctx context.Context, localID int64) (models.LocalEntity, error) {
	return loadOrder(ctx, e.db, localID)
}

func (e *OrderExporter) ShouldSync(entity models.LocalEntity) bool {
	return entity.(*models.Order).IsPlaced()
}

func (e *OrderExporter) ShouldDelete(models.LocalEntity) bool { return false }

func (e *OrderExporter) RecreateDeleted(models.LocalEntity) bool { return false }

// Dependencies: the customer first, then the billing and shipping contacts.
// Guests, and customers not yet eligible as partners, fall back to the
// billing contact.
func (e *OrderExporter) Dependencies(ctx context.Context, entity models.LocalEntity) ([]export.Dependency, error) {
	o := entity.(*models.Order)
	var deps []export.Dependency
	if o.UserID != models.AnonymousUserID {
		deps = append(deps, export.Dependency{Key: KeyUser, LocalID: o.UserID})
	}
	if o.BillingProfileID != nil {
		deps = append(deps, export.Dependency{Key: KeyProfile, LocalID: *o.BillingProfileID})
	}
	if o.ShippingProfileID != nil {
		deps = append(deps, export.Dependency{Key: KeyProfile, LocalID: *o.ShippingProfileID})
	}
	return deps, nil
}

func (e *OrderExporter) Fields(ctx context.Context, entity models.LocalEntity, p export.Projection) (map[string]interface{}, error) {
	o := entity.(*models.Order)

	var billing, shipping int64
	if o.BillingProfileID != nil {
		billing = p.Dep(KeyProfile, *o.BillingProfileID)
	}
	if o.ShippingProfileID != nil {
		shipping = p.Dep(KeyProfile, *o.ShippingProfileID)
	}

	partner := p.Dep(KeyUser, o.UserID)
	if partner == 0 {
		partner = billing
	}
	if partner == 0 {
		return nil, export.Logicf(KeyOrder, o.ID, "order has neither a customer nor a billing partner")
	}
	if billing == 0 {
		billing = partner
	}
	if shipping == 0 {
		shipping = billing
	}

	values := map[string]interface{}{
		"partner_invoice_id":  billing,
		"partner_shipping_id": shipping,
		"client_order_ref":    o.OrderNumber,
	}
	if !p.IsCreate() {
		// a confirmed order keeps its partner, pricelist and date
		return values, nil
	}

	pricelist, err := e.res.Currency.PricelistID(ctx, o.CurrencyCode)
	if err != nil {
		return nil, err
	}
	team, err := e.res.Channel.TeamID(ctx, o.Store)
	if err != nil {
		return nil, err
	}

	values["partner_id"] = partner
	values["pricelist_id"] = pricelist
	values["date_order"] = odooTime(o.PlacedAt)
	values["origin"] = o.OrderNumber
	if team != 0 {
		values["team_id"] = team
	}
	return values, nil
}

// AfterCreate confirms the new quotation into a sale order
func (e *OrderExporter) AfterCreate(ctx context.Context, client odoo.RemoteClient, entity models.LocalEntity, remoteID int64) error {
	_, err := client.Call(ctx, "sale.order", "action_confirm", []int64{remoteID})
	return err
}

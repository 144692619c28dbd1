package exporters

import (
	"context"

	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/models"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
	"gorm.io/gorm"
)

// InvoiceExporter exports the customer invoice of a completed order. The
// invoice is built from the remote order lines, so every line contract is a
// dependency and is exported first.
type InvoiceExporter struct {
	db     *gorm.DB
	client odoo.RemoteClient
}

func (e *InvoiceExporter) Key() export.Key { return KeyInvoice }

func (e *InvoiceExporter) Load(ctx context.Context, localID int64) (models.LocalEntity, error) {
	return loadOrder(ctx, e.db, localID)
}

func (e *InvoiceExporter) ShouldSync(entity models.LocalEntity) bool {
	o := entity.(*models.Order)
	return o.IsCompleted() && !o.TotalPrice.IsZero()
}

func (e *InvoiceExporter) ShouldDelete(models.LocalEntity) bool { return false }

// RecreateDeleted lets reconciliation replace a cancelled invoice
func (e *InvoiceExporter) RecreateDeleted(models.LocalEntity) bool { return true }

func (e *InvoiceExporter) OrderID(entity models.LocalEntity) int64 {
	return entity.GetEntityID()
}

// Dependencies: the order, every item in id order, then the shipping and
// discount lines. Lines whose contract excludes them resolve to no id.
func (e *InvoiceExporter) Dependencies(ctx context.Context, entity models.LocalEntity) ([]export.Dependency, error) {
	o := entity.(*models.Order)
	deps := []export.Dependency{{Key: KeyOrder, LocalID: o.ID, Required: true}}
	for _, item := range o.Items {
		deps = append(deps, export.Dependency{Key: KeyOrderItem, LocalID: item.ID, Required: true})
	}
	deps = append(deps,
		export.Dependency{Key: KeyShippingLine, LocalID: o.ID},
		export.Dependency{Key: KeyDiscountLine, LocalID: o.ID},
	)
	return deps, nil
}

func (e *InvoiceExporter) Fields(ctx context.Context, entity models.LocalEntity, p export.Projection) (map[string]interface{}, error) {
	o := entity.(*models.Order)
	values := map[string]interface{}{
		"name": o.OrderNumber,
	}
	if !p.IsCreate() {
		return values, nil
	}

	client := e.client
	orderID := p.Dep(KeyOrder, o.ID)
	orders, err := client.Read(ctx, "sale.order", []int64{orderID}, []string{"name", "partner_invoice_id", "currency_id"})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, export.Logicf(KeyInvoice, o.ID, "sale.order %d does not exist", orderID)
	}
	order := orders[0]
	partnerID := order.Many2one("partner_invoice_id")

	partners, err := client.Read(ctx, "res.partner", []int64{partnerID}, []string{"property_account_receivable_id"})
	if err != nil {
		return nil, err
	}
	if len(partners) == 0 {
		return nil, export.Logicf(KeyInvoice, o.ID, "invoice partner %d does not exist", partnerID)
	}

	lines, err := e.invoiceLines(ctx, client, o, p)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, export.Logicf(KeyInvoice, o.ID, "order has no invoiceable lines")
	}

	values["type"] = "out_invoice"
	values["partner_id"] = partnerID
	values["account_id"] = partners[0].Many2one("property_account_receivable_id")
	values["origin"] = o.OrderNumber
	if name := order.String("name"); name != "" {
		values["origin"] = name
	}
	if currencyID := order.Many2one("currency_id"); currencyID != 0 {
		values["currency_id"] = currencyID
	}
	if o.CompletedAt != nil {
		values["date_invoice"] = o.CompletedAt.UTC().Format(odooDate)
	}
	values["invoice_line_ids"] = lines
	return values, nil
}

// invoiceLines copies the remote sale lines into invoice line commands,
// skipping zeroed lines
func (e *InvoiceExporter) invoiceLines(ctx context.Context, client odoo.RemoteClient, o *models.Order, p export.Projection) ([]interface{}, error) {
	var lineIDs []int64
	for _, item := range o.Items {
		if id := p.Dep(KeyOrderItem, item.ID); id != 0 {
			lineIDs = append(lineIDs, id)
		}
	}
	for _, key := range []export.Key{KeyShippingLine, KeyDiscountLine} {
		if id := p.Dep(key, o.ID); id != 0 {
			lineIDs = append(lineIDs, id)
		}
	}

	saleLines, err := client.Read(ctx, "sale.order.line", lineIDs,
		[]string{"name", "product_id", "product_uom_qty", "price_unit", "tax_id"})
	if err != nil {
		return nil, err
	}

	accounts := make(map[int64]int64)
	var lines []interface{}
	for _, line := range saleLines {
		qty := line.Float("product_uom_qty")
		if qty == 0 {
			continue
		}
		productID := line.Many2one("product_id")
		account, ok := accounts[productID]
		if !ok {
			account, err = incomeAccount(ctx, client, productID)
			if err != nil {
				return nil, err
			}
			if account == 0 {
				return nil, export.Logicf(KeyInvoice, o.ID, "product %d has no income account", productID)
			}
			accounts[productID] = account
		}
		lines = append(lines, odoo.CreateLine(map[string]interface{}{
			"name":                 line.String("name"),
			"product_id":           productID,
			"quantity":             qty,
			"price_unit":           line.Float("price_unit"),
			"account_id":           account,
			"invoice_line_tax_ids": odoo.ReplaceIDs(line.IDs("tax_id")...),
			"sale_line_ids":        odoo.ReplaceIDs(line.ID()),
		}))
	}
	return lines, nil
}

// incomeAccount returns the product's income account, falling back to its
// category's
func incomeAccount(ctx context.Context, client odoo.RemoteClient, productID int64) (int64, error) {
	products, err := client.Read(ctx, "product.product", []int64{productID},
		[]string{"property_account_income_id", "categ_id"})
	if err != nil || len(products) == 0 {
		return 0, err
	}
	if id := products[0].Many2one("property_account_income_id"); id != 0 {
		return id, nil
	}
	categID := products[0].Many2one("categ_id")
	if categID == 0 {
		return 0, nil
	}
	categs, err := client.Read(ctx, "product.category", []int64{categID},
		[]string{"property_account_income_categ_id"})
	if err != nil || len(categs) == 0 {
		return 0, err
	}
	return categs[0].Many2one("property_account_income_categ_id"), nil
}

// AfterCreate validates the draft invoice
func (e *InvoiceExporter) AfterCreate(ctx context.Context, client odoo.RemoteClient, entity models.LocalEntity, remoteID int64) error {
	_, err := client.Call(ctx, "account.invoice", "action_invoice_open", []int64{remoteID})
	return err
}

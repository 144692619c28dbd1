package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/xelth-com/odoobridge/internal/services/odoo"
	"golang.org/x/text/currency"
)

// Currency resolves ISO 4217 codes to res.currency and product.pricelist ids
type Currency struct {
	client     odoo.RemoteClient
	currencies cache[string, int64]
	pricelists cache[string, int64]
}

// NewCurrency creates a Currency resolver
func NewCurrency(client odoo.RemoteClient) *Currency {
	return &Currency{client: client}
}

// CurrencyID returns the res.currency id for an ISO code
func (c *Currency) CurrencyID(ctx context.Context, code string) (int64, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return 0, fmt.Errorf("invalid currency code %q: %w", code, err)
	}
	iso := unit.String()
	if id, ok := c.currencies.get(iso); ok {
		return id, nil
	}

	// inactive currencies are still valid targets for historical orders
	id, err := firstID(ctx, c.client, "res.currency",
		odoo.NewDomain(odoo.Cond("name", "=", iso), odoo.Cond("active", "in", []interface{}{true, false})), iso)
	if err != nil {
		return 0, err
	}
	c.currencies.put(iso, id)
	return id, nil
}

// PricelistID returns the first pricelist selling in the given currency
func (c *Currency) PricelistID(ctx context.Context, code string) (int64, error) {
	currencyID, err := c.CurrencyID(ctx, code)
	if err != nil {
		return 0, err
	}
	key := strings.ToUpper(code)
	if id, ok := c.pricelists.get(key); ok {
		return id, nil
	}

	id, err := firstID(ctx, c.client, "product.pricelist",
		odoo.NewDomain(odoo.Cond("currency_id", "=", currencyID)), "for "+key)
	if err != nil {
		return 0, err
	}
	c.pricelists.put(key, id)
	return id, nil
}

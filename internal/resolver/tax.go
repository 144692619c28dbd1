package resolver

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
)

// Tax resolves a sale tax rate to an account.tax id
type Tax struct {
	client odoo.RemoteClient
	taxes  cache[string, int64]
}

// NewTax creates a Tax resolver
func NewTax(client odoo.RemoteClient) *Tax {
	return &Tax{client: client}
}

// TaxID returns the percent sale tax matching rate (0.19 = 19%).
// A zero rate means untaxed and resolves to 0 without a lookup.
func (t *Tax) TaxID(ctx context.Context, rate decimal.Decimal) (int64, error) {
	if rate.IsZero() {
		return 0, nil
	}
	percent := rate.Mul(decimal.NewFromInt(100)).Round(4)
	key := percent.String()
	if id, ok := t.taxes.get(key); ok {
		return id, nil
	}

	amount, _ := percent.Float64()
	id, err := firstID(ctx, t.client, "account.tax", odoo.NewDomain(
		odoo.Cond("type_tax_use", "=", "sale"),
		odoo.Cond("amount_type", "=", "percent"),
		odoo.Cond("amount", "=", amount),
	), key+"%")
	if err != nil {
		return 0, err
	}
	t.taxes.put(key, id)
	return id, nil
}

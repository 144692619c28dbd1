package resolver

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/odoobridge/internal/services/odoo/odootest"
)

func seeded() *odootest.Fake {
	f := odootest.New()
	f.Seed("res.currency", 1, map[string]interface{}{"name": "EUR", "active": true})
	f.Seed("res.currency", 2, map[string]interface{}{"name": "CHF", "active": false})
	f.Seed("product.pricelist", 5, map[string]interface{}{"name": "Public EUR", "currency_id": []interface{}{int64(1), "EUR"}})
	f.Seed("account.tax", 20, map[string]interface{}{"type_tax_use": "sale", "amount_type": "percent", "amount": 19.0})
	f.Seed("account.tax", 21, map[string]interface{}{"type_tax_use": "purchase", "amount_type": "percent", "amount": 19.0})
	f.Seed("account.tax", 22, map[string]interface{}{"type_tax_use": "sale", "amount_type": "percent", "amount": 7.0})
	f.Seed("delivery.carrier", 3, map[string]interface{}{"name": "dhl_paket", "product_id": []interface{}{int64(90), "DHL"}})
	f.Seed("delivery.carrier", 4, map[string]interface{}{"name": "pickup", "product_id": false})
	f.Seed("res.country", 57, map[string]interface{}{"code": "DE"})
	f.Seed("res.country.state", 1201, map[string]interface{}{"country_id": []interface{}{int64(57), "Germany"}, "code": "BY"})
	f.Seed("crm.team", 8, map[string]interface{}{"name": "webshop-de"})
	f.Seed("product.product", 300, map[string]interface{}{"default_code": "SKU-1", "active": true})
	return f
}

func TestCurrency(t *testing.T) {
	ctx := context.Background()
	f := seeded()
	r := NewCurrency(f)

	id, err := r.CurrencyID(ctx, "eur")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	inactive, err := r.CurrencyID(ctx, "CHF")
	require.NoError(t, err)
	assert.Equal(t, int64(2), inactive)

	_, err = r.CurrencyID(ctx, "XX1")
	assert.Error(t, err)

	_, err = r.CurrencyID(ctx, "USD")
	assert.ErrorIs(t, err, ErrNotFound)

	pricelist, err := r.PricelistID(ctx, "EUR")
	require.NoError(t, err)
	assert.Equal(t, int64(5), pricelist)

	// cached: a second round does not search again
	f.ResetCalls()
	_, err = r.PricelistID(ctx, "EUR")
	require.NoError(t, err)
	assert.Empty(t, f.Calls())
}

func TestTax(t *testing.T) {
	ctx := context.Background()
	r := NewTax(seeded())

	id, err := r.TaxID(ctx, decimal.RequireFromString("0.19"))
	require.NoError(t, err)
	assert.Equal(t, int64(20), id)

	reduced, err := r.TaxID(ctx, decimal.RequireFromString("0.07"))
	require.NoError(t, err)
	assert.Equal(t, int64(22), reduced)

	none, err := r.TaxID(ctx, decimal.Zero)
	require.NoError(t, err)
	assert.Zero(t, none)

	_, err = r.TaxID(ctx, decimal.RequireFromString("0.25"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCarrier(t *testing.T) {
	ctx := context.Background()
	r := NewCarrier(seeded())

	info, err := r.Lookup(ctx, "dhl_paket")
	require.NoError(t, err)
	assert.Equal(t, CarrierInfo{ID: 3, Name: "dhl_paket", ProductID: 90}, info)

	_, err = r.Lookup(ctx, "pickup")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Lookup(ctx, "pigeon")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddress(t *testing.T) {
	ctx := context.Background()
	r := NewAddress(seeded())

	country, err := r.CountryID(ctx, "de")
	require.NoError(t, err)
	assert.Equal(t, int64(57), country)

	_, err = r.CountryID(ctx, "not-a-country")
	assert.Error(t, err)

	state, err := r.StateID(ctx, country, "by")
	require.NoError(t, err)
	assert.Equal(t, int64(1201), state)

	missing, err := r.StateID(ctx, country, "ZZ")
	require.NoError(t, err)
	assert.Zero(t, missing)

	assert.Equal(t, "+4930123456", r.Phone("030 123456", "DE"))
	assert.Equal(t, "not a phone", r.Phone(" not a phone ", "DE"))
	assert.Equal(t, "", r.Phone("", "DE"))
}

func TestSalesChannelAndProduct(t *testing.T) {
	ctx := context.Background()
	f := seeded()
	all := New(f)

	team, err := all.Channel.TeamID(ctx, "webshop-de")
	require.NoError(t, err)
	assert.Equal(t, int64(8), team)

	unknown, err := all.Channel.TeamID(ctx, "marketplace")
	require.NoError(t, err)
	assert.Zero(t, unknown)

	product, err := all.Product.ProductID(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), product)

	_, err = all.Product.ProductID(ctx, "SKU-404")
	assert.ErrorIs(t, err, ErrNotFound)

	all.Reset()
	f.ResetCalls()
	_, err = all.Product.ProductID(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Len(t, f.Calls(), 1)
}

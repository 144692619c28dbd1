// Package resolver maps local reference values (currency codes, tax rates,
// carrier codes, countries, store codes, SKUs) to Odoo record ids.
// Lookups are cached for the life of the resolver.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xelth-com/odoobridge/internal/services/odoo"
)

// ErrNotFound is returned when Odoo has no record for a required reference
var ErrNotFound = errors.New("reference not found in odoo")

// Resolvers bundles every auxiliary lookup used by the exporters
type Resolvers struct {
	Currency *Currency
	Tax      *Tax
	Carrier  *Carrier
	Address  *Address
	Channel  *SalesChannel
	Product  *Product
}

// New builds all resolvers on one client
func New(client odoo.RemoteClient) *Resolvers {
	return &Resolvers{
		Currency: NewCurrency(client),
		Tax:      NewTax(client),
		Carrier:  NewCarrier(client),
		Address:  NewAddress(client),
		Channel:  NewSalesChannel(client),
		Product:  NewProduct(client),
	}
}

// Reset drops every cached lookup
func (r *Resolvers) Reset() {
	r.Currency.currencies.reset()
	r.Currency.pricelists.reset()
	r.Tax.taxes.reset()
	r.Carrier.carriers.reset()
	r.Address.countries.reset()
	r.Address.states.reset()
	r.Channel.teams.reset()
	r.Product.products.reset()
}

type cache[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]V
}

func (c *cache[K, V]) get(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[k]
	return v, ok
}

func (c *cache[K, V]) put(k K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[K]V)
	}
	c.m[k] = v
}

func (c *cache[K, V]) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = nil
}

// firstID searches model and returns the lowest matching id, or ErrNotFound
func firstID(ctx context.Context, client odoo.RemoteClient, model string, domain odoo.Domain, what string) (int64, error) {
	ids, err := client.Search(ctx, model, domain, odoo.WithLimit(1), odoo.WithOrder("id asc"))
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: %s %s", ErrNotFound, model, what)
	}
	return ids[0], nil
}

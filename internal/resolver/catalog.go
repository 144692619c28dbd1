package resolver

import (
	"context"
	"strings"

	"github.com/xelth-com/odoobridge/internal/services/odoo"
)

// SalesChannel resolves a store code to a crm.team
type SalesChannel struct {
	client odoo.RemoteClient
	teams  cache[string, int64]
}

// NewSalesChannel creates a SalesChannel resolver
func NewSalesChannel(client odoo.RemoteClient) *SalesChannel {
	return &SalesChannel{client: client}
}

// TeamID returns the sales team named like the store; 0 leaves Odoo's default team
func (s *SalesChannel) TeamID(ctx context.Context, store string) (int64, error) {
	store = strings.TrimSpace(store)
	if store == "" {
		return 0, nil
	}
	if id, ok := s.teams.get(store); ok {
		return id, nil
	}

	ids, err := s.client.Search(ctx, "crm.team", odoo.NewDomain(odoo.Cond("name", "=", store)), odoo.WithLimit(1))
	if err != nil {
		return 0, err
	}
	var id int64
	if len(ids) > 0 {
		id = ids[0]
	}
	s.teams.put(store, id)
	return id, nil
}

// Product resolves a SKU to a product.product via default_code
type Product struct {
	client   odoo.RemoteClient
	products cache[string, int64]
}

// NewProduct creates a Product resolver
func NewProduct(client odoo.RemoteClient) *Product {
	return &Product{client: client}
}

// ProductID returns the product variant with the given internal reference
func (p *Product) ProductID(ctx context.Context, sku string) (int64, error) {
	if id, ok := p.products.get(sku); ok {
		return id, nil
	}

	id, err := firstID(ctx, p.client, "product.product", odoo.NewDomain(
		odoo.Cond("default_code", "=", sku),
		odoo.Cond("active", "in", []interface{}{true, false}),
	), sku)
	if err != nil {
		return 0, err
	}
	p.products.put(sku, id)
	return id, nil
}

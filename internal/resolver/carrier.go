package resolver

import (
	"context"
	"fmt"

	"github.com/xelth-com/odoobridge/internal/models"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
)

type carrierRecord struct {
	ID        int64             `json:"id"`
	Name      models.OdooString `json:"name"`
	ProductID models.Many2one   `json:"product_id"`
}

// CarrierInfo is the part of delivery.carrier the shipping line needs
type CarrierInfo struct {
	ID        int64
	Name      string
	ProductID int64
}

// Carrier resolves a shipping method code to a delivery.carrier
type Carrier struct {
	client   odoo.RemoteClient
	carriers cache[string, CarrierInfo]
}

// NewCarrier creates a Carrier resolver
func NewCarrier(client odoo.RemoteClient) *Carrier {
	return &Carrier{client: client}
}

// Lookup returns the carrier named like the shipping method
func (c *Carrier) Lookup(ctx context.Context, method string) (CarrierInfo, error) {
	if info, ok := c.carriers.get(method); ok {
		return info, nil
	}

	records, err := c.client.SearchRead(ctx, "delivery.carrier",
		odoo.NewDomain(odoo.Cond("name", "=", method)),
		[]string{"id", "name", "product_id"},
		odoo.WithLimit(1))
	if err != nil {
		return CarrierInfo{}, err
	}
	if len(records) == 0 {
		return CarrierInfo{}, fmt.Errorf("%w: delivery.carrier %s", ErrNotFound, method)
	}

	var decoded []carrierRecord
	if err := odoo.Decode(records[:1], &decoded); err != nil {
		return CarrierInfo{}, err
	}
	rec := decoded[0]
	info := CarrierInfo{ID: rec.ID, Name: rec.Name.String(), ProductID: rec.ProductID.ID}
	if info.ProductID == 0 {
		return CarrierInfo{}, fmt.Errorf("%w: delivery.carrier %s has no product", ErrNotFound, method)
	}
	c.carriers.put(method, info)
	return info, nil
}

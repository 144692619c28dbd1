package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
	"golang.org/x/text/language"
)

type stateKey struct {
	countryID int64
	code      string
}

// Address resolves countries and states and normalizes phone numbers
type Address struct {
	client    odoo.RemoteClient
	countries cache[string, int64]
	states    cache[stateKey, int64]
}

// NewAddress creates an Address resolver
func NewAddress(client odoo.RemoteClient) *Address {
	return &Address{client: client}
}

// CountryID returns the res.country id for an ISO 3166 alpha-2 code
func (a *Address) CountryID(ctx context.Context, code string) (int64, error) {
	region, err := language.ParseRegion(strings.TrimSpace(code))
	if err != nil || !region.IsCountry() {
		return 0, fmt.Errorf("invalid country code %q", code)
	}
	iso := region.String()
	if id, ok := a.countries.get(iso); ok {
		return id, nil
	}

	id, err := firstID(ctx, a.client, "res.country", odoo.NewDomain(odoo.Cond("code", "=", iso)), iso)
	if err != nil {
		return 0, err
	}
	a.countries.put(iso, id)
	return id, nil
}

// StateID returns the res.country.state id, or 0 when the country has no such state
func (a *Address) StateID(ctx context.Context, countryID int64, code string) (int64, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || countryID == 0 {
		return 0, nil
	}
	key := stateKey{countryID: countryID, code: code}
	if id, ok := a.states.get(key); ok {
		return id, nil
	}

	ids, err := a.client.Search(ctx, "res.country.state", odoo.NewDomain(
		odoo.Cond("country_id", "=", countryID),
		odoo.Cond("code", "=", code),
	), odoo.WithLimit(1))
	if err != nil {
		return 0, err
	}
	var id int64
	if len(ids) > 0 {
		id = ids[0]
	}
	a.states.put(key, id)
	return id, nil
}

// Phone formats a number as E.164 using the country as default region.
// Numbers libphonenumber cannot validate are passed through trimmed.
func (a *Address) Phone(raw, countryCode string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	p, err := libphonenumber.Parse(raw, strings.ToUpper(countryCode))
	if err != nil || !libphonenumber.IsValidNumber(p) {
		return raw
	}
	return libphonenumber.Format(p, libphonenumber.E164)
}

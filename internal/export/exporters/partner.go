package exporters

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/models"
	"github.com/xelth-com/odoobridge/internal/resolver"
	"gorm.io/gorm"
)

// duplicateMarker matches addresses rewritten when accounts were merged,
// e.g. jane+duplicate2@example.com
var duplicateMarker = regexp.MustCompile(`(?i)\+duplicate\d*@`)

// userSnapshot is a user plus the facts its eligibility depends on
type userSnapshot struct {
	*models.User
	CompletedOrders int64
}

func loadUser(ctx context.Context, db *gorm.DB, id int64) (*userSnapshot, error) {
	var user models.User
	err := db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s %d not found", models.EntityTypeUser, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}

	var completed int64
	err = db.WithContext(ctx).Model(&models.Order{}).
		Where("user_id = ? AND state = ?", id, models.OrderStateCompleted).
		Count(&completed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count orders of user %d: %w", id, err)
	}
	return &userSnapshot{User: &user, CompletedOrders: completed}, nil
}

// customerEligible is shared by both partner variants of a user
func customerEligible(u *userSnapshot) bool {
	return !u.IsAnonymous() && !duplicateMarker.MatchString(u.Email) && u.CompletedOrders > 0
}

// UserExporter exports a customer's personal contact as res.partner/default.
// A business customer's contact is attached to the company partner.
type UserExporter struct {
	db  *gorm.DB
	res *resolver.Resolvers
}

func (e *UserExporter) Key() export.Key { return KeyUser }

func (e *UserExporter) Load(ctx context.Context, localID int64) (models.LocalEntity, error) {
	return loadUser(ctx, e.db, localID)
}

func (e *UserExporter) ShouldSync(entity models.LocalEntity) bool {
	return customerEligible(entity.(*userSnapshot))
}

func (e *UserExporter) ShouldDelete(models.LocalEntity) bool { return false }

func (e *UserExporter) RecreateDeleted(models.LocalEntity) bool { return true }

func (e *UserExporter) Dependencies(ctx context.Context, entity models.LocalEntity) ([]export.Dependency, error) {
	u := entity.(*userSnapshot)
	return []export.Dependency{{Key: KeyUserCompany, LocalID: u.ID}}, nil
}

func (e *UserExporter) Fields(ctx context.Context, entity models.LocalEntity, p export.Projection) (map[string]interface{}, error) {
	u := entity.(*userSnapshot)
	return map[string]interface{}{
		"name":       u.Name,
		"email":      u.Email,
		"phone":      e.res.Address.Phone(u.Phone, ""),
		"ref":        fmt.Sprintf("U%d", u.ID),
		"customer":   true,
		"is_company": false,
		"active":     u.Status != models.UserStatusBlocked,
		"parent_id":  orNone(p.Dep(KeyUserCompany, u.ID)),
	}, nil
}

// CompanyExporter exports a business customer's company as res.partner/company
type CompanyExporter struct {
	db *gorm.DB
}

func (e *CompanyExporter) Key() export.Key { return KeyUserCompany }

func (e *CompanyExporter) Load(ctx context.Context, localID int64) (models.LocalEntity, error) {
	return loadUser(ctx, e.db, localID)
}

func (e *CompanyExporter) ShouldSync(entity models.LocalEntity) bool {
	u := entity.(*userSnapshot)
	return customerEligible(u) && u.HasCompany()
}

func (e *CompanyExporter) ShouldDelete(models.LocalEntity) bool { return false }

func (e *CompanyExporter) RecreateDeleted(models.LocalEntity) bool { return true }

func (e *CompanyExporter) Fields(ctx context.Context, entity models.LocalEntity, p export.Projection) (map[string]interface{}, error) {
	u := entity.(*userSnapshot)
	values := map[string]interface{}{
		"name":       u.CompanyName,
		"email":      u.Email,
		"ref":        fmt.Sprintf("C%d", u.ID),
		"customer":   true,
		"is_company": true,
	}
	if u.VatNumber != "" {
		values["vat"] = u.VatNumber
	}
	return values, nil
}

// ProfileExporter exports an address book entry as an invoice or delivery
// contact below the customer's partner
type ProfileExporter struct {
	db  *gorm.DB
	res *resolver.Resolvers
}

func (e *ProfileExporter) Key() export.Key { return KeyProfile }

func (e *ProfileExporter) Load(ctx context.Context, localID int64) (models.LocalEntity, error) {
	var profile models.Profile
	err := e.db.WithContext(ctx).First(&profile, localID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s %d not found", models.EntityTypeProfile, localID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %d: %w", localID, err)
	}
	return &profile, nil
}

func (e *ProfileExporter) ShouldSync(entity models.LocalEntity) bool {
	return entity.(*models.Profile).HasAddress()
}

func (e *ProfileExporter) ShouldDelete(models.LocalEntity) bool { return false }

func (e *ProfileExporter) RecreateDeleted(models.LocalEntity) bool { return true }

func (e *ProfileExporter) Dependencies(ctx context.Context, entity models.LocalEntity) ([]export.Dependency, error) {
	p := entity.(*models.Profile)
	if p.UserID == models.AnonymousUserID {
		return nil, nil
	}
	return []export.Dependency{{Key: KeyUser, LocalID: p.UserID}}, nil
}

func (e *ProfileExporter) Fields(ctx context.Context, entity models.LocalEntity, proj export.Projection) (map[string]interface{}, error) {
	p := entity.(*models.Profile)

	countryID, err := e.res.Address.CountryID(ctx, p.CountryCode)
	if err != nil {
		return nil, err
	}
	stateID, err := e.res.Address.StateID(ctx, countryID, p.AdministrativeArea)
	if err != nil {
		return nil, err
	}

	contactType := "invoice"
	if p.Type == models.ProfileTypeShipping {
		contactType = "delivery"
	}

	name := p.FullName()
	if name == "" {
		name = p.Organization
	}

	return map[string]interface{}{
		"type":       contactType,
		"name":       name,
		"street":     p.AddressLine1,
		"street2":    p.AddressLine2,
		"zip":        p.PostalCode,
		"city":       p.Locality,
		"country_id": countryID,
		"state_id":   orNone(stateID),
		"phone":      e.res.Address.Phone(p.Phone, p.CountryCode),
		"ref":        fmt.Sprintf("P%d", p.ID),
		"active":     p.Active,
		"parent_id":  orNone(proj.Dep(KeyUser, p.UserID)),
	}, nil
}

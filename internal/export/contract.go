// Package export decides what gets synced to Odoo and performs the
// idempotent create-or-update calls, keeping the id mapping current.
package export

import (
	"context"

	"github.com/xelth-com/odoobridge/internal/idmap"
	"github.com/xelth-com/odoobridge/internal/models"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
)

// Key is the (entity type, remote model, export variant) triple naming one contract
type Key = idmap.Key

// Exporter is the export contract for one Key. Implementations are stateless
// apart from the collaborators they were constructed with.
type Exporter interface {
	Key() Key

	// Load returns a fresh snapshot of the local entity
	Load(ctx context.Context, localID int64) (models.LocalEntity, error)

	// ShouldSync is the eligibility predicate
	ShouldSync(entity models.LocalEntity) bool

	// ShouldDelete asks for the remote object to be unlinked
	ShouldDelete(entity models.LocalEntity) bool

	// RecreateDeleted allows re-creating an entity whose mapping is a tombstone
	RecreateDeleted(entity models.LocalEntity) bool

	// Fields projects the entity onto the remote object's fields. It must be
	// deterministic for a given snapshot and projection.
	Fields(ctx context.Context, entity models.LocalEntity, p Projection) (map[string]interface{}, error)
}

// Dependency is another export that must exist before this one is projected
type Dependency struct {
	Key      Key
	LocalID  int64
	Required bool
}

// DependencyDeclarer is implemented by contracts that reference other remote
// objects. Dependencies are exported in the returned order.
type DependencyDeclarer interface {
	Dependencies(ctx context.Context, entity models.LocalEntity) ([]Dependency, error)
}

// RemoteWriter replaces the plain write call for an existing remote object
type RemoteWriter interface {
	RemoteWrite(ctx context.Context, client odoo.RemoteClient, entity models.LocalEntity, remoteID int64, values map[string]interface{}) error
}

// AfterCreater runs remote follow-ups once a new object exists and is mapped,
// e.g. confirming a sale order
type AfterCreater interface {
	AfterCreate(ctx context.Context, client odoo.RemoteClient, entity models.LocalEntity, remoteID int64) error
}

// OrderIDer is implemented by the order-line family; it names the local
// order owning the entity
type OrderIDer interface {
	OrderID(entity models.LocalEntity) int64
}

// Projection carries what the orchestrator knows when fields are computed
type Projection struct {
	// RemoteID is the existing remote id, 0 when the object is about to be created
	RemoteID int64
	// Deps holds the remote id of every declared dependency; 0 means excluded
	Deps map[Key]map[int64]int64
}

// Dep returns the remote id of a resolved dependency, 0 if absent or excluded
func (p Projection) Dep(key Key, localID int64) int64 {
	return p.Deps[key][localID]
}

// IsCreate reports whether the projection is for a new remote object
func (p Projection) IsCreate() bool {
	return p.RemoteID == 0
}

func (p *Projection) setDep(key Key, localID, remoteID int64) {
	if p.Deps == nil {
		p.Deps = make(map[Key]map[int64]int64)
	}
	if p.Deps[key] == nil {
		p.Deps[key] = make(map[int64]int64)
	}
	p.Deps[key][localID] = remoteID
}

package export

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/xelth-com/odoobridge/internal/database/dbtest"
	"github.com/xelth-com/odoobridge/internal/idmap"
	"github.com/xelth-com/odoobridge/internal/models"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
	"github.com/xelth-com/odoobridge/internal/services/odoo/odootest"
	"gorm.io/gorm"
)

// widget is a minimal local entity for contract tests
type widget struct {
	ID       int64
	Name     string
	Excluded bool
	Deleted  bool
}

func (w *widget) GetEntityID() int64    { return w.ID }
func (w *widget) GetEntityType() string { return "widget" }

// stubExporter is a configurable contract backed by an in-memory table
type stubExporter struct {
	key      Key
	mu       sync.Mutex
	items    map[int64]*widget
	recreate bool
	deps     func(w *widget) []Dependency
	onFields func(w *widget, p Projection)
	after    func(ctx context.Context, client odoo.RemoteClient, remoteID int64) error
}

func newStub(model string) *stubExporter {
	return &stubExporter{
		key:   idmap.NewKey("widget", model, "default"),
		items: make(map[int64]*widget),
	}
}

func (s *stubExporter) put(w *widget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[w.ID] = w
}

func (s *stubExporter) Key() Key { return s.key }

func (s *stubExporter) Load(ctx context.Context, localID int64) (models.LocalEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.items[localID]
	if !ok {
		return nil, fmt.Errorf("widget %d not found", localID)
	}
	cp := *w
	return &cp, nil
}

func (s *stubExporter) ShouldSync(e models.LocalEntity) bool      { return !e.(*widget).Excluded }
func (s *stubExporter) ShouldDelete(e models.LocalEntity) bool    { return e.(*widget).Deleted }
func (s *stubExporter) RecreateDeleted(e models.LocalEntity) bool { return s.recreate }

func (s *stubExporter) Fields(ctx context.Context, e models.LocalEntity, p Projection) (map[string]interface{}, error) {
	w := e.(*widget)
	if s.onFields != nil {
		s.onFields(w, p)
	}
	values := map[string]interface{}{"name": w.Name}
	for key, ids := range p.Deps {
		for localID, remoteID := range ids {
			values[fmt.Sprintf("%s_%d", key.RemoteModel, localID)] = remoteID
		}
	}
	return values, nil
}

// dependentStub adds declared dependencies and an after-create hook
type dependentStub struct {
	*stubExporter
}

func (d dependentStub) Dependencies(ctx context.Context, e models.LocalEntity) ([]Dependency, error) {
	if d.deps == nil {
		return nil, nil
	}
	return d.deps(e.(*widget)), nil
}

func (d dependentStub) AfterCreate(ctx context.Context, client odoo.RemoteClient, e models.LocalEntity, remoteID int64) error {
	if d.after == nil {
		return nil
	}
	return d.after(ctx, client, remoteID)
}

type harness struct {
	fake  *odootest.Fake
	db    *gorm.DB
	store *idmap.Store
	reg   *Registry
	orch  *Orchestrator
	logs  *logtest.Hook
}

func newHarness(t *testing.T, exporters ...Exporter) *harness {
	log := logrus.New()
	log.SetOutput(io.Discard)
	logs := logtest.NewLocal(log)

	db := dbtest.New(t)
	fake := odootest.New()
	store := idmap.NewStore(db, log)
	reg := NewRegistry()
	reg.MustRegister(exporters...)

	return &harness{
		fake:  fake,
		db:    db,
		store: store,
		reg:   reg,
		orch:  NewOrchestrator(fake, store, reg, db, log, WithBatchSize(2)),
		logs:  logs,
	}
}

func (h *harness) events() *[]Event {
	var (
		mu     sync.Mutex
		events []Event
	)
	h.orch.Subscribe(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	return &events
}

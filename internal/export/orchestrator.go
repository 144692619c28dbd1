package export

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/odoobridge/internal/idmap"
	"github.com/xelth-com/odoobridge/internal/lock"
	"github.com/xelth-com/odoobridge/internal/models"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
	"gorm.io/gorm"
)

const defaultBatchSize = 100

// Orchestrator runs exports: it resolves the contract, exports dependencies
// first, performs create-or-write against Odoo and keeps the mapping current.
type Orchestrator struct {
	client    odoo.RemoteClient
	store     *idmap.Store
	registry  *Registry
	locker    lock.Locker
	db        *gorm.DB
	log       *logrus.Logger
	batchSize int

	mu        sync.RWMutex
	listeners []Listener
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLocker replaces the in-process export lock, e.g. with lock.Redis
func WithLocker(l lock.Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// WithBatchSize sets how many queue rows SyncAndFlush reads per round
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// NewOrchestrator creates an Orchestrator. db holds the queue and run history.
func NewOrchestrator(client odoo.RemoteClient, store *idmap.Store, registry *Registry, db *gorm.DB, log *logrus.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:    client,
		store:     store,
		registry:  registry,
		locker:    lock.NewLocal(),
		db:        db,
		log:       log,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry returns the contract registry
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Store returns the mapping store
func (o *Orchestrator) Store() *idmap.Store { return o.store }

// Result is the outcome of one export; Action is empty when nothing was sent
type Result struct {
	RemoteID int64
	Action   EventType
}

// Export syncs one local entity and returns its remote id.
//
// With onlyIfDependency an entity that is already SYNCED is returned as is
// without a write. An entity whose mapping is a tombstone and whose contract
// refuses re-creation yields (0, nil). A SyncExcludedError is returned when
// the contract rejects the entity.
func (o *Orchestrator) Export(ctx context.Context, key Key, localID int64, onlyIfDependency bool) (int64, error) {
	res, err := o.export(ctx, key, localID, onlyIfDependency)
	return res.RemoteID, err
}

// EnsureDependency exports a dependency unless it is already synced.
// An excluded dependency is not an error; it yields remote id 0.
func (o *Orchestrator) EnsureDependency(ctx context.Context, key Key, localID int64) (int64, error) {
	remoteID, err := o.Export(ctx, key, localID, true)
	if errors.Is(err, ErrSyncExcluded) {
		return 0, nil
	}
	return remoteID, err
}

func (o *Orchestrator) export(ctx context.Context, key Key, localID int64, onlyIfDependency bool) (Result, error) {
	res, err := o.run(ctx, key, localID, onlyIfDependency)
	if err != nil && !errors.Is(err, ErrSyncExcluded) {
		o.log.WithFields(logFields(key, localID)).WithField("kind", Kind(err)).Warnf("export failed: %v", err)
		if recErr := o.store.RecordError(ctx, key, localID, err.Error()); recErr != nil {
			o.log.WithFields(logFields(key, localID)).Warnf("failed to record export error: %v", recErr)
		}
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, key Key, localID int64, onlyIfDependency bool) (Result, error) {
	exporter, err := o.registry.Get(key)
	if err != nil {
		return Result{}, &GenericError{Key: key, LocalID: localID, Msg: "resolve exporter", Err: err}
	}
	logger := o.log.WithFields(logFields(key, localID))

	entity, err := exporter.Load(ctx, localID)
	if err != nil {
		return Result{}, classify(key, localID, "load entity", err)
	}

	if !exporter.ShouldSync(entity) {
		if err := o.store.SetSyncStatus(ctx, key, map[int64]int64{localID: 0}, models.SyncStatusSyncExcluded); err != nil {
			return Result{}, classify(key, localID, "mark excluded", err)
		}
		o.emit(EventExclude, key, localID, 0)
		logger.Debug("excluded from sync")
		return Result{Action: EventExclude}, &SyncExcludedError{Key: key, LocalID: localID}
	}

	if exporter.ShouldDelete(entity) {
		return o.delete(ctx, exporter, localID)
	}

	mapping, err := o.store.Get(ctx, key, localID)
	if err != nil {
		return Result{}, classify(key, localID, "read mapping", err)
	}
	if onlyIfDependency && mapping != nil && mapping.Status == models.SyncStatusSynced && mapping.HasRemote() {
		return Result{RemoteID: *mapping.RemoteID}, nil
	}
	if mapping != nil && mapping.Status == models.SyncStatusDeleted && !exporter.RecreateDeleted(entity) {
		logger.Info("mapping is a tombstone, not re-creating")
		return Result{}, nil
	}

	proj, err := o.resolveDependencies(ctx, exporter, entity, localID)
	if err != nil {
		return Result{}, err
	}

	release, err := o.locker.Acquire(ctx, lockName(key, localID))
	if err != nil {
		return Result{}, classify(key, localID, "acquire export lock", err)
	}
	defer release()

	// another worker may have created the object while dependencies were exported
	mapping, err = o.store.Get(ctx, key, localID)
	if err != nil {
		return Result{}, classify(key, localID, "read mapping", err)
	}
	proj.RemoteID = liveRemoteID(mapping)

	values, err := exporter.Fields(ctx, entity, proj)
	if err != nil {
		return Result{}, classify(key, localID, "project fields", err)
	}

	if proj.RemoteID != 0 {
		if err := o.write(ctx, exporter, entity, proj.RemoteID, values); err != nil {
			return Result{}, err
		}
		if err := o.store.SetSyncStatus(ctx, key, map[int64]int64{localID: proj.RemoteID}, models.SyncStatusSynced); err != nil {
			return Result{}, classify(key, localID, "persist mapping", err)
		}
		o.emit(EventWrite, key, localID, proj.RemoteID)
		logger.WithField("remote_id", proj.RemoteID).Debug("written")
		return Result{RemoteID: proj.RemoteID, Action: EventWrite}, nil
	}

	remoteID, err := o.client.Create(ctx, key.RemoteModel, values)
	if err != nil {
		return Result{}, &ServerError{Key: key, LocalID: localID, Op: "create", Err: err}
	}
	if err := o.store.SetSyncStatus(ctx, key, map[int64]int64{localID: remoteID}, models.SyncStatusSynced); err != nil {
		logger.WithField("remote_id", remoteID).Errorf("❌ remote object created but mapping not saved: %v", err)
		return Result{}, classify(key, localID, fmt.Sprintf("persist mapping of new remote %d", remoteID), err)
	}
	o.emit(EventCreate, key, localID, remoteID)
	logger.WithField("remote_id", remoteID).Info("created")

	res := Result{RemoteID: remoteID, Action: EventCreate}
	if hook, ok := exporter.(AfterCreater); ok {
		if err := hook.AfterCreate(ctx, o.client, entity, remoteID); err != nil {
			return res, classify(key, localID, "after create", err)
		}
	}
	return res, nil
}

func (o *Orchestrator) write(ctx context.Context, exporter Exporter, entity models.LocalEntity, remoteID int64, values map[string]interface{}) error {
	key := exporter.Key()
	localID := entity.GetEntityID()

	var err error
	if w, ok := exporter.(RemoteWriter); ok {
		err = w.RemoteWrite(ctx, o.client, entity, remoteID, values)
	} else {
		err = o.client.Write(ctx, key.RemoteModel, []int64{remoteID}, values)
	}
	if err == nil {
		return nil
	}

	err = classify(key, localID, "write", err)
	var serverErr *ServerError
	if errors.As(err, &serverErr) && serverErr.RemoteID == 0 && serverErr.Key == key {
		serverErr.RemoteID = remoteID
	}
	return err
}

func (o *Orchestrator) delete(ctx context.Context, exporter Exporter, localID int64) (Result, error) {
	key := exporter.Key()

	release, err := o.locker.Acquire(ctx, lockName(key, localID))
	if err != nil {
		return Result{}, classify(key, localID, "acquire export lock", err)
	}
	defer release()

	mapping, err := o.store.Get(ctx, key, localID)
	if err != nil {
		return Result{}, classify(key, localID, "read mapping", err)
	}
	remoteID := liveRemoteID(mapping)
	if remoteID == 0 {
		return Result{}, nil
	}

	if err := o.client.Unlink(ctx, key.RemoteModel, []int64{remoteID}); err != nil {
		return Result{}, &ServerError{Key: key, LocalID: localID, RemoteID: remoteID, Op: "unlink", Err: err}
	}
	if err := o.store.SetSyncStatus(ctx, key, map[int64]int64{localID: remoteID}, models.SyncStatusDeleted); err != nil {
		return Result{}, classify(key, localID, "persist tombstone", err)
	}
	o.emit(EventDelete, key, localID, remoteID)
	o.log.WithFields(logFields(key, localID)).WithField("remote_id", remoteID).Info("unlinked")
	return Result{Action: EventDelete}, nil
}

// resolveDependencies exports declared dependencies in order and collects their remote ids
func (o *Orchestrator) resolveDependencies(ctx context.Context, exporter Exporter, entity models.LocalEntity, localID int64) (Projection, error) {
	var proj Projection
	declarer, ok := exporter.(DependencyDeclarer)
	if !ok {
		return proj, nil
	}
	key := exporter.Key()

	deps, err := declarer.Dependencies(ctx, entity)
	if err != nil {
		return proj, classify(key, localID, "declare dependencies", err)
	}
	for _, dep := range deps {
		remoteID, err := o.EnsureDependency(ctx, dep.Key, dep.LocalID)
		if err != nil {
			return proj, err
		}
		if remoteID == 0 && dep.Required {
			return proj, Logicf(key, localID, "required dependency %s local %d has no remote id", dep.Key, dep.LocalID)
		}
		proj.setDep(dep.Key, dep.LocalID, remoteID)
	}
	return proj, nil
}

// liveRemoteID is the id to write to, 0 when a new object has to be created
func liveRemoteID(m *models.OdooIDMap) int64 {
	if m == nil || m.Status == models.SyncStatusDeleted || !m.HasRemote() {
		return 0
	}
	return *m.RemoteID
}

func lockName(key Key, localID int64) string {
	return fmt.Sprintf("export:%s:%d", key, localID)
}

func logFields(key Key, localID int64) logrus.Fields {
	return logrus.Fields{
		"entity_type":  key.EntityType,
		"remote_model": key.RemoteModel,
		"variant":      key.Variant,
		"local_id":     localID,
	}
}

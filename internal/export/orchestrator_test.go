package export

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/odoobridge/internal/idmap"
	"github.com/xelth-com/odoobridge/internal/models"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
	"github.com/xelth-com/odoobridge/internal/services/odoo/odootest"
)

func TestExport_CreateThenWrite(t *testing.T) {
	ctx := context.Background()
	stub := newStub("x.widget")
	stub.put(&widget{ID: 1, Name: "first"})
	h := newHarness(t, stub)
	events := h.events()

	id1, err := h.orch.Export(ctx, stub.key, 1, false)
	require.NoError(t, err)
	id2, err := h.orch.Export(ctx, stub.key, 1, false)
	require.NoError(t, err)
	id3, err := h.orch.Export(ctx, stub.key, 1, false)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, id1, id3)
	assert.Equal(t, 1, h.fake.CountOps("create", "x.widget"))
	assert.Equal(t, 2, h.fake.CountOps("write", "x.widget"))

	require.Len(t, *events, 3)
	assert.Equal(t, EventCreate, (*events)[0].Type)
	assert.Equal(t, EventWrite, (*events)[1].Type)

	ids, err := h.store.GetIDMap(ctx, stub.key, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, id1, ids[1])
}

func TestExport_ConcurrentCallsCreateOnce(t *testing.T) {
	ctx := context.Background()
	stub := newStub("x.widget")
	stub.put(&widget{ID: 1, Name: "contended"})
	h := newHarness(t, stub)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.orch.Export(ctx, stub.key, 1, false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.fake.CountOps("create", "x.widget"))
	assert.Equal(t, 5, h.fake.CountOps("write", "x.widget"))
}

func TestExport_SyncExcluded(t *testing.T) {
	ctx := context.Background()
	stub := newStub("x.widget")
	stub.put(&widget{ID: 1, Excluded: true})
	h := newHarness(t, stub)
	events := h.events()

	_, err := h.orch.Export(ctx, stub.key, 1, false)
	require.ErrorIs(t, err, ErrSyncExcluded)

	var excluded *SyncExcludedError
	require.True(t, errors.As(err, &excluded))
	assert.Equal(t, int64(1), excluded.LocalID)
	assert.Empty(t, h.fake.Calls())

	row, err := h.store.Get(ctx, stub.key, 1)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSyncExcluded, row.Status)
	require.Len(t, *events, 1)
	assert.Equal(t, EventExclude, (*events)[0].Type)

	remoteID, err := h.orch.EnsureDependency(ctx, stub.key, 1)
	require.NoError(t, err)
	assert.Zero(t, remoteID)
}

func TestExport_OnlyIfDependencySkipsWrite(t *testing.T) {
	ctx := context.Background()
	stub := newStub("x.widget")
	stub.put(&widget{ID: 1, Name: "dep"})
	h := newHarness(t, stub)

	id, err := h.orch.EnsureDependency(ctx, stub.key, 1)
	require.NoError(t, err)
	again, err := h.orch.EnsureDependency(ctx, stub.key, 1)
	require.NoError(t, err)

	assert.Equal(t, id, again)
	assert.Equal(t, 1, h.fake.CountOps("create", "x.widget"))
	assert.Equal(t, 0, h.fake.CountOps("write", "x.widget"))
}

func TestExport_DependenciesBeforeProjection(t *testing.T) {
	ctx := context.Background()
	order := newStub("sale.order")
	line := newStub("sale.order.line")
	invoice := newStub("account.invoice")
	order.put(&widget{ID: 10, Name: "order"})
	line.put(&widget{ID: 11, Name: "line a"})
	line.put(&widget{ID: 12, Name: "line b"})
	invoice.put(&widget{ID: 10, Name: "invoice"})

	invoice.deps = func(w *widget) []Dependency {
		return []Dependency{
			{Key: order.key, LocalID: 10, Required: true},
			{Key: line.key, LocalID: 11, Required: true},
			{Key: line.key, LocalID: 12, Required: true},
		}
	}

	h := newHarness(t, order, line, dependentStub{invoice})

	var (
		callsAtProjection []string
		projected         Projection
	)
	invoice.onFields = func(w *widget, p Projection) {
		callsAtProjection = h.fake.CallStrings()
		projected = p
	}

	_, err := h.orch.Export(ctx, invoice.key, 10, false)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"create sale.order",
		"create sale.order.line",
		"create sale.order.line",
	}, callsAtProjection)
	assert.NotZero(t, projected.Dep(order.key, 10))
	assert.NotZero(t, projected.Dep(line.key, 11))
	assert.NotZero(t, projected.Dep(line.key, 12))
	assert.True(t, projected.IsCreate())

	calls := h.fake.CallStrings()
	assert.Equal(t, "create account.invoice", calls[len(calls)-1])

	// dependency ids point at the created lines
	lineA, _ := h.fake.Get("sale.order.line", projected.Dep(line.key, 11))
	assert.Equal(t, "line a", lineA["name"])
}

func TestExport_RequiredDependencyExcluded(t *testing.T) {
	ctx := context.Background()
	parent := newStub("res.partner")
	child := newStub("sale.order")
	parent.put(&widget{ID: 1, Excluded: true})
	child.put(&widget{ID: 2, Name: "order"})
	child.deps = func(w *widget) []Dependency {
		return []Dependency{{Key: parent.key, LocalID: 1, Required: true}}
	}
	h := newHarness(t, parent, dependentStub{child})

	_, err := h.orch.Export(ctx, child.key, 2, false)
	require.ErrorIs(t, err, ErrGeneric)
	assert.Equal(t, 0, h.fake.CountOps("create", "sale.order"))

	row, err := h.store.Get(ctx, child.key, 2)
	require.NoError(t, err)
	require.NotNil(t, row.LastError)
	assert.Contains(t, *row.LastError, "required dependency")
}

func TestExport_OptionalDependencyExcluded(t *testing.T) {
	ctx := context.Background()
	profile := newStub("res.partner")
	order := newStub("sale.order")
	profile.put(&widget{ID: 1, Excluded: true})
	order.put(&widget{ID: 2, Name: "order"})
	order.deps = func(w *widget) []Dependency {
		return []Dependency{{Key: profile.key, LocalID: 1}}
	}
	h := newHarness(t, profile, dependentStub{order})

	remoteID, err := h.orch.Export(ctx, order.key, 2, false)
	require.NoError(t, err)

	rec, ok := h.fake.Get("sale.order", remoteID)
	require.True(t, ok)
	assert.Equal(t, int64(0), rec["res.partner_1"])
}

func TestExport_DeleteAndTombstone(t *testing.T) {
	ctx := context.Background()
	stub := newStub("x.widget")
	stub.put(&widget{ID: 1, Name: "doomed"})
	h := newHarness(t, stub)
	events := h.events()

	remoteID, err := h.orch.Export(ctx, stub.key, 1, false)
	require.NoError(t, err)

	stub.put(&widget{ID: 1, Name: "doomed", Deleted: true})
	gone, err := h.orch.Export(ctx, stub.key, 1, false)
	require.NoError(t, err)
	assert.Zero(t, gone)
	assert.Equal(t, 1, h.fake.CountOps("unlink", "x.widget"))
	_, exists := h.fake.Get("x.widget", remoteID)
	assert.False(t, exists)

	row, err := h.store.Get(ctx, stub.key, 1)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusDeleted, row.Status)
	assert.Equal(t, remoteID, *row.PreviousRemoteID)
	assert.Equal(t, EventDelete, (*events)[len(*events)-1].Type)

	// deleted again: nothing left to unlink
	_, err = h.orch.Export(ctx, stub.key, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, h.fake.CountOps("unlink", "x.widget"))

	// undeleted locally, but the contract does not recreate tombstones
	stub.put(&widget{ID: 1, Name: "back"})
	id, err := h.orch.Export(ctx, stub.key, 1, false)
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Equal(t, 1, h.fake.CountOps("create", "x.widget"))
}

func TestExport_RecreateDeleted(t *testing.T) {
	ctx := context.Background()
	stub := newStub("x.widget")
	stub.recreate = true
	stub.put(&widget{ID: 1, Name: "phoenix"})
	h := newHarness(t, stub)

	first, err := h.orch.Export(ctx, stub.key, 1, false)
	require.NoError(t, err)
	stub.put(&widget{ID: 1, Deleted: true})
	_, err = h.orch.Export(ctx, stub.key, 1, false)
	require.NoError(t, err)

	stub.put(&widget{ID: 1, Name: "phoenix"})
	second, err := h.orch.Export(ctx, stub.key, 1, false)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, h.fake.CountOps("create", "x.widget"))
}

func TestExport_DeleteWithoutRemoteIsNoop(t *testing.T) {
	stub := newStub("x.widget")
	stub.put(&widget{ID: 1, Deleted: true})
	h := newHarness(t, stub)

	id, err := h.orch.Export(context.Background(), stub.key, 1, false)
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Empty(t, h.fake.Calls())
}

func TestExport_ServerErrorOnCreate(t *testing.T) {
	ctx := context.Background()
	stub := newStub("x.widget")
	stub.put(&widget{ID: 1, Name: "unlucky"})
	h := newHarness(t, stub)
	h.fake.OnCreate = func(model string, values map[string]interface{}) error {
		return odoo.Fault("ValidationError: name too unlucky")
	}

	_, err := h.orch.Export(ctx, stub.key, 1, false)
	require.ErrorIs(t, err, ErrServer)

	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, "create", serverErr.Op)
	assert.Equal(t, int64(1), serverErr.LocalID)
	assert.Contains(t, err.Error(), "name too unlucky")

	ids, err := h.store.GetIDMap(ctx, stub.key, []int64{1})
	require.NoError(t, err)
	assert.Empty(t, ids)

	// retry after the remote side recovered
	h.fake.OnCreate = nil
	id, err := h.orch.Export(ctx, stub.key, 1, false)
	require.NoError(t, err)
	assert.NotZero(t, id)
}

func TestExport_AfterCreateFailureKeepsMapping(t *testing.T) {
	ctx := context.Background()
	stub := newStub("sale.order")
	stub.put(&widget{ID: 1, Name: "order"})
	stub.after = func(ctx context.Context, client odoo.RemoteClient, remoteID int64) error {
		_, err := client.Call(ctx, "sale.order", "action_confirm", []int64{remoteID})
		return err
	}
	h := newHarness(t, dependentStub{stub})
	h.fake.Handle("sale.order", "action_confirm", func(f *odootest.Fake, ids []int64, args []interface{}) (interface{}, error) {
		return nil, odoo.Fault("UserError: no pricelist")
	})

	_, err := h.orch.Export(ctx, stub.key, 1, false)
	require.ErrorIs(t, err, ErrServer)

	ids, err := h.store.GetIDMap(ctx, stub.key, []int64{1})
	require.NoError(t, err)
	require.Contains(t, ids, int64(1))

	_, err = h.orch.Export(ctx, stub.key, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, h.fake.CountOps("create", "sale.order"))
	assert.Equal(t, 1, h.fake.CountOps("write", "sale.order"))
}

func TestExport_UnknownExporter(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Export(context.Background(), idmap.NewKey("nope", "x", "default"), 1, false)
	assert.ErrorIs(t, err, ErrUnknownExporter)
	assert.ErrorIs(t, err, ErrGeneric)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newStub("x.widget")))
	assert.Error(t, reg.Register(newStub("x.widget")))
	assert.Len(t, reg.Keys(), 1)
}

package exporters

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/idmap"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
)

// Odoo's sale.order state for a locked order
const orderStateLocked = "done"

// lineWriter writes sale.order.line records. Odoo refuses line writes on a
// locked order; then the order is unlocked, the write retried and the order
// locked again whatever the retry's outcome.
type lineWriter struct {
	store *idmap.Store
	log   *logrus.Logger
}

func (w lineWriter) write(ctx context.Context, client odoo.RemoteClient, key export.Key, localID, orderLocalID, lineID int64, values map[string]interface{}) error {
	err := client.Write(ctx, key.RemoteModel, []int64{lineID}, values)
	if err == nil || !odoo.IsLockedOrderFault(err) {
		return err
	}

	ids, err := w.store.GetIDMap(ctx, KeyOrder, []int64{orderLocalID})
	if err != nil {
		return err
	}
	orderID, ok := ids[orderLocalID]
	if !ok {
		return export.Logicf(key, localID, "locked-order fault but order %d is not mapped", orderLocalID)
	}

	orders, err := client.Read(ctx, "sale.order", []int64{orderID}, []string{"state"})
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return export.Logicf(key, localID, "locked-order fault but sale.order %d does not exist", orderID)
	}
	if state := orders[0].String("state"); state != orderStateLocked {
		return export.Logicf(key, localID, "locked-order fault but sale.order %d is in state %q", orderID, state)
	}

	return w.unlocked(ctx, client, orderID, func() error {
		return client.Write(ctx, key.RemoteModel, []int64{lineID}, values)
	})
}

// unlocked runs fn between action_unlock and action_done on the order
func (w lineWriter) unlocked(ctx context.Context, client odoo.RemoteClient, orderID int64, fn func() error) (err error) {
	logger := w.log.WithField("order_id", orderID)

	if _, err := client.Call(ctx, "sale.order", "action_unlock", []int64{orderID}); err != nil {
		return err
	}
	logger.Info("🔓 Unlocked order for line write")

	defer func() {
		// re-lock even if ctx was cancelled during the write
		if _, lockErr := client.Call(context.WithoutCancel(ctx), "sale.order", "action_done", []int64{orderID}); lockErr != nil {
			logger.Errorf("❌ Failed to re-lock order: %v", lockErr)
			err = errors.Join(err, lockErr)
			return
		}
		logger.Info("🔒 Order locked again")
	}()

	return fn()
}

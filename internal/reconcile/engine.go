// Package reconcile audits remote sale orders against their invoices and
// journal entries and repairs missing or wrong invoices through the export
// orchestrator.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/export/exporters"
	"github.com/xelth-com/odoobridge/internal/idmap"
	"github.com/xelth-com/odoobridge/internal/models"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
	"gorm.io/gorm"
)

// Odoo states and statuses the decision depends on
const (
	orderStateCancel   = "cancel"
	invoiceStateDraft  = "draft"
	invoiceStateCancel = "cancel"

	lineInvoiced         = "invoiced"
	lineNothingToInvoice = "no"
)

var (
	orderFields    = []string{"name", "state", "amount_total", "invoice_ids", "order_line"}
	invoiceFields  = []string{"state", "amount_total", "account_id", "move_id", "payment_ids", "payment_move_line_ids"}
	moveLineFields = []string{"move_id", "account_id", "debit"}
)

// RemoteOrder is the sale.order snapshot a decision is made on
type RemoteOrder struct {
	ID          int64
	Name        string
	State       string
	AmountTotal decimal.Decimal
	InvoiceIDs  []int64
	LineIDs     []int64
}

// RemoteInvoice is an account.invoice snapshot
type RemoteInvoice struct {
	ID                 int64
	State              string
	AmountTotal        decimal.Decimal
	AccountID          int64 // receivable account
	MoveID             int64
	PaymentIDs         []int64
	PaymentMoveLineIDs []int64
}

// Cancellable reports whether no payment touches the invoice
func (i *RemoteInvoice) Cancellable() bool {
	return len(i.PaymentIDs) == 0 && len(i.PaymentMoveLineIDs) == 0
}

// JournalEntry is the account.move behind a validated invoice
type JournalEntry struct {
	ID      int64
	LineIDs []int64
}

// MoveLine is one account.move.line of a journal entry
type MoveLine struct {
	ID        int64
	MoveID    int64
	AccountID int64
	Debit     decimal.Decimal
}

// Engine decides, per remote order, whether its invoice has to be created,
// left alone or cancelled and recreated
type Engine struct {
	client odoo.RemoteClient
	orch   *export.Orchestrator
	store  *idmap.Store
	db     *gorm.DB
	log    *logrus.Logger
}

// NewEngine creates a reconciliation engine exporting invoices through orch
func NewEngine(client odoo.RemoteClient, orch *export.Orchestrator, db *gorm.DB, log *logrus.Logger) *Engine {
	return &Engine{
		client: client,
		orch:   orch,
		store:  orch.Store(),
		db:     db,
		log:    log,
	}
}

// Batch holds the remote data of one reconciliation pass. It is rebuilt by
// every PreloadOrders call and must not outlive the pass.
type Batch struct {
	e *Engine

	orders     map[int64]*RemoteOrder
	invoices   map[int64]*RemoteInvoice
	moves      map[int64]*JournalEntry
	moveLines  map[int64]*MoveLine
	lineStatus map[int64]string
	// sale.order ids outside the batch, by name of a batch order
	duplicates map[string][]int64
}

// PreloadOrders reads the orders and everything the decision needs, one read
// per model
func (e *Engine) PreloadOrders(ctx context.Context, orderIDs []int64) (*Batch, error) {
	b := &Batch{
		e:          e,
		orders:     make(map[int64]*RemoteOrder, len(orderIDs)),
		invoices:   make(map[int64]*RemoteInvoice),
		moves:      make(map[int64]*JournalEntry),
		moveLines:  make(map[int64]*MoveLine),
		lineStatus: make(map[int64]string),
		duplicates: make(map[string][]int64),
	}
	if len(orderIDs) == 0 {
		return b, nil
	}

	records, err := e.client.Read(ctx, "sale.order", orderIDs, orderFields)
	if err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	var names []interface{}
	var lineIDs, invoiceIDs []int64
	for _, rec := range records {
		o := &RemoteOrder{
			ID:          rec.ID(),
			Name:        rec.String("name"),
			State:       rec.String("state"),
			AmountTotal: amount(rec, "amount_total"),
			InvoiceIDs:  rec.IDs("invoice_ids"),
			LineIDs:     rec.IDs("order_line"),
		}
		b.orders[o.ID] = o
		names = append(names, o.Name)
		lineIDs = append(lineIDs, o.LineIDs...)
		invoiceIDs = append(invoiceIDs, o.InvoiceIDs...)
	}

	if err := b.loadDuplicates(ctx, names, orderIDs); err != nil {
		return nil, err
	}
	if err := b.loadLineStatus(ctx, lineIDs); err != nil {
		return nil, err
	}
	if err := b.loadInvoices(ctx, invoiceIDs); err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"orders":   len(b.orders),
		"invoices": len(b.invoices),
		"moves":    len(b.moves),
	}).Debug("preloaded reconciliation batch")
	return b, nil
}

// loadDuplicates only looks outside the batch; two batch members sharing a
// name are not detected
func (b *Batch) loadDuplicates(ctx context.Context, names []interface{}, batchIDs []int64) error {
	if len(names) == 0 {
		return nil
	}
	exclude := make([]interface{}, 0, len(batchIDs))
	for _, id := range batchIDs {
		exclude = append(exclude, id)
	}
	others, err := b.e.client.SearchRead(ctx, "sale.order", odoo.NewDomain(
		odoo.Cond("name", "in", names),
		odoo.Cond("id", "not in", exclude),
	), []string{"name"})
	if err != nil {
		return fmt.Errorf("failed to search duplicate orders: %w", err)
	}
	for _, rec := range others {
		name := rec.String("name")
		b.duplicates[name] = append(b.duplicates[name], rec.ID())
	}
	return nil
}

func (b *Batch) loadLineStatus(ctx context.Context, lineIDs []int64) error {
	if len(lineIDs) == 0 {
		return nil
	}
	lines, err := b.e.client.Read(ctx, "sale.order.line", lineIDs, []string{"invoice_status"})
	if err != nil {
		return fmt.Errorf("failed to read order lines: %w", err)
	}
	for _, rec := range lines {
		b.lineStatus[rec.ID()] = rec.String("invoice_status")
	}
	return nil
}

func (b *Batch) loadInvoices(ctx context.Context, invoiceIDs []int64) error {
	if len(invoiceIDs) == 0 {
		return nil
	}
	records, err := b.e.client.Read(ctx, "account.invoice", invoiceIDs, invoiceFields)
	if err != nil {
		return fmt.Errorf("failed to read invoices: %w", err)
	}
	var moveIDs []int64
	for _, rec := range records {
		inv := &RemoteInvoice{
			ID:                 rec.ID(),
			State:              rec.String("state"),
			AmountTotal:        amount(rec, "amount_total"),
			AccountID:          rec.Many2one("account_id"),
			MoveID:             rec.Many2one("move_id"),
			PaymentIDs:         rec.IDs("payment_ids"),
			PaymentMoveLineIDs: rec.IDs("payment_move_line_ids"),
		}
		b.invoices[inv.ID] = inv
		if inv.MoveID != 0 {
			moveIDs = append(moveIDs, inv.MoveID)
		}
	}
	if len(moveIDs) == 0 {
		return nil
	}

	moves, err := b.e.client.Read(ctx, "account.move", moveIDs, []string{"line_ids"})
	if err != nil {
		return fmt.Errorf("failed to read journal entries: %w", err)
	}
	var lineIDs []int64
	for _, rec := range moves {
		m := &JournalEntry{ID: rec.ID(), LineIDs: rec.IDs("line_ids")}
		b.moves[m.ID] = m
		lineIDs = append(lineIDs, m.LineIDs...)
	}
	if len(lineIDs) == 0 {
		return nil
	}

	lines, err := b.e.client.Read(ctx, "account.move.line", lineIDs, moveLineFields)
	if err != nil {
		return fmt.Errorf("failed to read journal items: %w", err)
	}
	for _, rec := range lines {
		b.moveLines[rec.ID()] = &MoveLine{
			ID:        rec.ID(),
			MoveID:    rec.Many2one("move_id"),
			AccountID: rec.Many2one("account_id"),
			Debit:     amount(rec, "debit"),
		}
	}
	return nil
}

// Order returns the preloaded order, nil when Odoo did not return it
func (b *Batch) Order(orderID int64) *RemoteOrder {
	return b.orders[orderID]
}

// AssertSingleOrder fails when another remote order outside the batch
// carries the same name
func (b *Batch) AssertSingleOrder(orderID int64) error {
	order, ok := b.orders[orderID]
	if !ok {
		return newError(KindOrderNotExists, orderID, "not found in odoo")
	}
	if others := b.duplicates[order.Name]; len(others) > 0 {
		return newError(KindDuplicateOrder, orderID, "name %q is also used by sale.order %v", order.Name, others)
	}
	return nil
}

// CheckAndFixInvoice brings the order's invoice in line and reports whether
// an invoice was created
func (b *Batch) CheckAndFixInvoice(ctx context.Context, orderID int64) (bool, error) {
	if err := b.AssertSingleOrder(orderID); err != nil {
		return false, err
	}
	order := b.orders[orderID]
	logger := b.e.log.WithFields(logrus.Fields{"order_id": orderID, "order": order.Name})

	invoices := b.activeInvoices(order)
	switch len(invoices) {
	case 0:
		if order.State == orderStateCancel || order.AmountTotal.IsZero() {
			return false, nil
		}
		localID, ready, err := b.invoiceTarget(ctx, order, false)
		if err != nil {
			return false, err
		}
		if !ready {
			logger.WithField("local_id", localID).Debug("Order has no invoice, local order is not invoiceable yet")
			return false, nil
		}
		logger.Info("🧾 Order has no invoice, creating one")
		if err := b.recreate(ctx, order, localID); err != nil {
			return false, err
		}
		return true, nil

	case 1:
		inv := invoices[0]
		reason, err := b.invoiceProblem(order, inv)
		if err != nil {
			return false, err
		}
		if reason == "" {
			return false, nil
		}
		if !inv.Cancellable() {
			return false, newError(KindInvoiceMayNotBeCancelled, orderID, "invoice %d: %s, but payments are registered", inv.ID, reason)
		}
		localID, ready, err := b.invoiceTarget(ctx, order, true)
		if err != nil {
			return false, err
		}
		if !ready {
			logger.WithFields(logrus.Fields{"invoice_id": inv.ID, "local_id": localID}).
				Warnf("Invoice is wrong (%s), left in place until the local order is invoiceable", reason)
			return false, nil
		}
		logger.WithField("invoice_id", inv.ID).Warnf("♻️ Invoice is wrong (%s), replacing it", reason)
		if err := b.cancel(ctx, order, inv); err != nil {
			return false, err
		}
		if err := b.recreate(ctx, order, localID); err != nil {
			return false, err
		}
		return true, nil
	}

	ids := make([]int64, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID)
	}
	return false, newError(KindMultipleInvoices, orderID, "invoices %v", ids)
}

// activeInvoices are the loaded invoices of the order that are not cancelled
func (b *Batch) activeInvoices(order *RemoteOrder) []*RemoteInvoice {
	var out []*RemoteInvoice
	for _, id := range order.InvoiceIDs {
		inv, ok := b.invoices[id]
		if !ok || inv.State == invoiceStateCancel {
			continue
		}
		out = append(out, inv)
	}
	return out
}

// invoiceProblem returns why the invoice is not correct, "" when it is
func (b *Batch) invoiceProblem(order *RemoteOrder, inv *RemoteInvoice) (string, error) {
	if inv.State == invoiceStateDraft {
		return "not validated", nil
	}
	if !inv.AmountTotal.Equal(order.AmountTotal) {
		return fmt.Sprintf("total %s differs from order total %s", inv.AmountTotal, order.AmountTotal), nil
	}

	move, ok := b.moves[inv.MoveID]
	if inv.MoveID == 0 || !ok {
		return "", newError(KindAccountMoveNotExists, order.ID, "invoice %d has no journal entry", inv.ID)
	}
	debit, found := decimal.Zero, false
	for _, id := range move.LineIDs {
		line, ok := b.moveLines[id]
		if !ok || line.AccountID != inv.AccountID || !line.Debit.IsPositive() {
			continue
		}
		debit = debit.Add(line.Debit)
		found = true
	}
	if !found {
		return "", newError(KindAccountMoveLineNotExists, order.ID, "journal entry %d has no receivable debit line", move.ID)
	}
	if !debit.Equal(inv.AmountTotal) {
		return fmt.Sprintf("receivable debit %s differs from invoice total %s", debit, inv.AmountTotal), nil
	}

	var open []string
	for _, id := range order.LineIDs {
		switch status := b.lineStatus[id]; status {
		case lineInvoiced, lineNothingToInvoice:
		default:
			open = append(open, fmt.Sprintf("%d=%s", id, status))
		}
	}
	if len(open) > 0 {
		return "lines not invoiced: " + strings.Join(open, ", "), nil
	}
	return "", nil
}

// cancel removes the invoice from Odoo and tombstones its mapping. Every
// step completes before a new invoice is attempted, so an interrupted repair
// is seen as a missing invoice on the next pass.
func (b *Batch) cancel(ctx context.Context, order *RemoteOrder, inv *RemoteInvoice) error {
	client := b.e.client
	ids := []int64{inv.ID}

	if _, err := client.Call(ctx, "account.invoice", "action_cancel", ids); err != nil {
		return fmt.Errorf("failed to cancel invoice %d: %w", inv.ID, err)
	}
	// a cancelled invoice keeps its number and cannot be deleted until it is cleared
	if err := client.Write(ctx, "account.invoice", ids, map[string]interface{}{"move_name": false}); err != nil {
		return fmt.Errorf("failed to clear number of invoice %d: %w", inv.ID, err)
	}
	if err := client.Unlink(ctx, "account.invoice", ids); err != nil {
		return fmt.Errorf("failed to delete invoice %d: %w", inv.ID, err)
	}

	key := exporters.KeyInvoice
	mapped, err := b.e.store.FindMappedEntities(ctx, key.RemoteModel, ids)
	if err != nil {
		return err
	}
	if localID, ok := mapped[inv.ID][key.EntityType][key.Variant]; ok {
		if err := b.e.store.SetSyncStatus(ctx, key, map[int64]int64{localID: inv.ID}, models.SyncStatusDeleted); err != nil {
			return err
		}
	}

	order.InvoiceIDs = without(order.InvoiceIDs, inv.ID)
	delete(b.invoices, inv.ID)
	b.e.log.WithFields(logrus.Fields{"order_id": order.ID, "invoice_id": inv.ID}).Info("🗑️ Invoice cancelled and deleted")
	return nil
}

// invoiceTarget finds the local order behind the remote one and asks the
// invoice contract whether it would export it now. Nothing is changed in
// Odoo when the answer is no. replacing means the current invoice mapping
// is about to be tombstoned.
func (b *Batch) invoiceTarget(ctx context.Context, order *RemoteOrder, replacing bool) (int64, bool, error) {
	store := b.e.store
	mapped, err := store.FindMappedEntities(ctx, exporters.KeyOrder.RemoteModel, []int64{order.ID})
	if err != nil {
		return 0, false, err
	}
	localID, ok := mapped[order.ID][exporters.KeyOrder.EntityType][exporters.KeyOrder.Variant]
	if !ok {
		return 0, false, newError(KindOrderNotExists, order.ID, "no local order is mapped to it")
	}

	contract, err := b.e.orch.Registry().Get(exporters.KeyInvoice)
	if err != nil {
		return localID, false, err
	}
	entity, err := contract.Load(ctx, localID)
	if err != nil {
		return localID, false, newError(KindOrderNotExists, order.ID, "local order %d: %v", localID, err)
	}
	if !contract.ShouldSync(entity) {
		return localID, false, nil
	}

	current, err := store.Get(ctx, exporters.KeyInvoice, localID)
	if err != nil {
		return localID, false, err
	}
	recreating := current != nil && (current.HasRemote() || current.Status == models.SyncStatusDeleted)
	if (replacing || recreating) && !contract.RecreateDeleted(entity) {
		return localID, false, nil
	}
	return localID, true, nil
}

// recreate exports the invoice of localID, the order mapped to the remote order
func (b *Batch) recreate(ctx context.Context, order *RemoteOrder, localID int64) error {
	store := b.e.store

	// a mapping to an invoice Odoo no longer lists as active would be written to
	current, err := store.Get(ctx, exporters.KeyInvoice, localID)
	if err != nil {
		return err
	}
	if current != nil && current.Status == models.SyncStatusSynced && current.HasRemote() && !b.isActiveInvoice(order, *current.RemoteID) {
		stale := *current.RemoteID
		if err := store.SetSyncStatus(ctx, exporters.KeyInvoice, map[int64]int64{localID: stale}, models.SyncStatusDeleted); err != nil {
			return err
		}
	}

	invoiceID, err := b.e.orch.Export(ctx, exporters.KeyInvoice, localID, false)
	if err != nil {
		return err
	}
	if invoiceID == 0 {
		return export.Logicf(exporters.KeyInvoice, localID, "export of sale.order %d produced no invoice", order.ID)
	}

	order.InvoiceIDs = append(order.InvoiceIDs, invoiceID)
	b.invoices[invoiceID] = &RemoteInvoice{ID: invoiceID, AmountTotal: order.AmountTotal}
	return nil
}

func (b *Batch) isActiveInvoice(order *RemoteOrder, invoiceID int64) bool {
	for _, inv := range b.activeInvoices(order) {
		if inv.ID == invoiceID {
			return true
		}
	}
	return false
}

// RecentOrderIDs returns confirmed or cancelled orders changed since the given time
func (e *Engine) RecentOrderIDs(ctx context.Context, since time.Time) ([]int64, error) {
	return e.client.Search(ctx, "sale.order", odoo.NewDomain(
		odoo.Cond("write_date", ">=", since.UTC().Format("2006-01-02 15:04:05")),
		odoo.Cond("state", "in", []interface{}{"sale", "done", orderStateCancel}),
	), odoo.WithOrder("id asc"))
}

// amount reads a monetary field rounded to cents
func amount(rec odoo.Record, field string) decimal.Decimal {
	return decimal.NewFromFloat(rec.Float(field)).Round(2)
}

func without(ids []int64, id int64) []int64 {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

package odoo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kolo/xmlrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAccessors(t *testing.T) {
	rec := Record{
		"id":         int64(12),
		"name":       "S00012",
		"note":       false,
		"amount":     42.5,
		"qty":        3,
		"partner_id": []interface{}{int64(7), "Jane Doe"},
		"team_id":    false,
		"tax_id":     []interface{}{int64(20), int64(21)},
	}

	assert.Equal(t, int64(12), rec.ID())
	assert.Equal(t, "S00012", rec.String("name"))
	assert.Equal(t, "", rec.String("note"))
	assert.Equal(t, 42.5, rec.Float("amount"))
	assert.Equal(t, 3.0, rec.Float("qty"))
	assert.Equal(t, int64(3), rec.Int64("qty"))
	assert.Equal(t, int64(0), rec.Int64("note"))
	assert.Equal(t, int64(7), rec.Many2one("partner_id"))
	assert.Equal(t, int64(0), rec.Many2one("team_id"))
	assert.Equal(t, []int64{20, 21}, rec.IDs("tax_id"))
	assert.Nil(t, rec.IDs("missing"))
}

func TestDecode(t *testing.T) {
	type product struct {
		ID          int64  `json:"id"`
		DefaultCode string `json:"default_code"`
	}
	var out []product
	require.NoError(t, Decode([]Record{{"id": 1, "default_code": "SKU-1"}}, &out))
	assert.Equal(t, []product{{ID: 1, DefaultCode: "SKU-1"}}, out)
}

func TestX2ManyCommands(t *testing.T) {
	assert.Equal(t, []interface{}{[]interface{}{6, 0, []interface{}{int64(3), int64(4)}}}, ReplaceIDs(3, 4))
	assert.Equal(t, []interface{}{[]interface{}{6, 0, []interface{}{}}}, ReplaceIDs())

	line := CreateLine(map[string]interface{}{"name": "x"})
	assert.Equal(t, []interface{}{0, 0, map[string]interface{}{"name": "x"}}, line)
}

func TestDomainBuilders(t *testing.T) {
	d := NewDomain(Cond("state", "in", []string{"sale", "done"}), Cond("id", "not in", []int64{1}))
	assert.Len(t, d, 2)

	or := Or(Cond("a", "=", 1), Cond("b", "=", 2), Cond("c", "=", 3))
	assert.Equal(t, Domain{OpOr, OpOr, Cond("a", "=", 1), Cond("b", "=", 2), Cond("c", "=", 3)}, or)

	var empty Domain
	assert.Equal(t, []interface{}{}, empty.args())
}

func TestSearchOptions(t *testing.T) {
	assert.Nil(t, searchOptions(nil).kwargs())

	opts := []SearchOption{WithLimit(10), WithOffset(20), WithOrder("id asc")}
	assert.Equal(t, map[string]interface{}{"limit": 10, "offset": 20, "order": "id asc"}, searchOptions(opts).kwargs())
	assert.Equal(t, 10, Limit(opts...))
	assert.Equal(t, 20, Offset(opts...))
}

func TestFaultHelpers(t *testing.T) {
	fault := Fault("ValidationError: missing partner")
	wrapped := &RPCError{Model: "sale.order", Method: "create", Err: fault}

	assert.True(t, IsRemote(fault))
	assert.True(t, IsRemote(wrapped))
	assert.True(t, IsRemote(fmt.Errorf("export: %w", wrapped)))
	assert.True(t, IsRemote(&xmlrpc.FaultError{String: "x"}))
	assert.False(t, IsRemote(errors.New("record not found")))

	assert.Equal(t, "ValidationError: missing partner", FaultString(wrapped))
	assert.Equal(t, "plain", FaultString(errors.New("plain")))
	assert.Equal(t, "", FaultString(nil))
}

func TestLockedOrderFault(t *testing.T) {
	err := &RPCError{Model: "sale.order.line", Method: "write", Err: LockedOrderFault("product_uom_qty", "price_unit")}
	assert.True(t, IsLockedOrderFault(err))
	assert.False(t, IsLockedOrderFault(Fault("Access denied")))
	assert.False(t, IsLockedOrderFault(nil))
}

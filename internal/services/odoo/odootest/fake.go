// Package odootest provides an in-memory Odoo used by tests.
package odootest

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/xelth-com/odoobridge/internal/services/odoo"
)

// Call is one entry of the fake's call log
type Call struct {
	Op     string // search, read, search_read, count, create, write, unlink, call
	Model  string
	Method string // for Op == "call"
	IDs    []int64
	Values map[string]interface{}
}

// String renders the call as "op model[ids]" for readable assertions
func (c Call) String() string {
	op := c.Op
	if c.Op == "call" {
		op = c.Method
	}
	if len(c.IDs) == 0 {
		return fmt.Sprintf("%s %s", op, c.Model)
	}
	return fmt.Sprintf("%s %s%v", op, c.Model, c.IDs)
}

// MethodHandler implements a remote-side procedure for Call
type MethodHandler func(f *Fake, ids []int64, args []interface{}) (interface{}, error)

// Fake is an in-memory implementation of odoo.RemoteClient
type Fake struct {
	mu      sync.Mutex
	records map[string]map[int64]odoo.Record
	nextID  map[string]int64
	calls   []Call

	// OnWrite, when set, runs before a write is applied; a non-nil error aborts it
	OnWrite func(model string, ids []int64, values map[string]interface{}) error
	// OnCreate, when set, runs before a create is applied
	OnCreate func(model string, values map[string]interface{}) error
	methods  map[string]MethodHandler
}

var _ odoo.RemoteClient = (*Fake)(nil)

// New creates an empty fake
func New() *Fake {
	return &Fake{
		records: make(map[string]map[int64]odoo.Record),
		nextID:  make(map[string]int64),
		methods: make(map[string]MethodHandler),
	}
}

// Seed inserts a record with a fixed id without logging a call
func (f *Fake) Seed(model string, id int64, values map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := odoo.Record{"id": id}
	for k, v := range values {
		rec[k] = v
	}
	f.table(model)[id] = rec
	if id >= f.nextID[model] {
		f.nextID[model] = id + 1
	}
}

// Get returns a copy of a stored record
func (f *Fake) Get(model string, id int64) (odoo.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.table(model)[id]
	if !ok {
		return nil, false
	}
	return copyRecord(rec, nil), true
}

// Handle registers a remote method implementation
func (f *Fake) Handle(model, method string, h MethodHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods[model+"."+method] = h
}

// Calls returns a copy of the call log
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallStrings returns the call log rendered with Call.String
func (f *Fake) CallStrings() []string {
	calls := f.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.String())
	}
	return out
}

// CountOps counts logged calls with the given op (or method name) on model
func (f *Fake) CountOps(op, model string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Model != model {
			continue
		}
		if c.Op == op || (c.Op == "call" && c.Method == op) {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log, keeping the data
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Fake) table(model string) map[int64]odoo.Record {
	t, ok := f.records[model]
	if !ok {
		t = make(map[int64]odoo.Record)
		f.records[model] = t
		if f.nextID[model] == 0 {
			f.nextID[model] = 1
		}
	}
	return t
}

func (f *Fake) log(c Call) {
	f.calls = append(f.calls, c)
}

// Search implements odoo.RemoteClient
func (f *Fake) Search(ctx context.Context, model string, domain odoo.Domain, opts ...odoo.SearchOption) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(Call{Op: "search", Model: model})
	return f.match(model, domain, opts), nil
}

// Read implements odoo.RemoteClient
func (f *Fake) Read(ctx context.Context, model string, ids []int64, fields []string) ([]odoo.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(Call{Op: "read", Model: model, IDs: append([]int64(nil), ids...)})
	t := f.table(model)
	out := make([]odoo.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := t[id]; ok {
			out = append(out, copyRecord(rec, fields))
		}
	}
	return out, nil
}

// SearchRead implements odoo.RemoteClient
func (f *Fake) SearchRead(ctx context.Context, model string, domain odoo.Domain, fields []string, opts ...odoo.SearchOption) ([]odoo.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(Call{Op: "search_read", Model: model})
	t := f.table(model)
	ids := f.match(model, domain, opts)
	out := make([]odoo.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyRecord(t[id], fields))
	}
	return out, nil
}

// Count implements odoo.RemoteClient
func (f *Fake) Count(ctx context.Context, model string, domain odoo.Domain) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(Call{Op: "count", Model: model})
	return int64(len(f.match(model, domain, nil))), nil
}

// Create implements odoo.RemoteClient
func (f *Fake) Create(ctx context.Context, model string, values map[string]interface{}) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(Call{Op: "create", Model: model, Values: values})
	if f.OnCreate != nil {
		if err := f.OnCreate(model, values); err != nil {
			return 0, err
		}
	}
	t := f.table(model)
	id := f.nextID[model]
	f.nextID[model] = id + 1
	rec := odoo.Record{"id": id}
	for k, v := range values {
		rec[k] = applyCommands(v)
	}
	t[id] = rec
	return id, nil
}

// Write implements odoo.RemoteClient
func (f *Fake) Write(ctx context.Context, model string, ids []int64, values map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(Call{Op: "write", Model: model, IDs: append([]int64(nil), ids...), Values: values})
	if f.OnWrite != nil {
		if err := f.OnWrite(model, ids, values); err != nil {
			return err
		}
	}
	t := f.table(model)
	for _, id := range ids {
		rec, ok := t[id]
		if !ok {
			return missing(model, id)
		}
		for k, v := range values {
			rec[k] = applyCommands(v)
		}
	}
	return nil
}

// applyCommands resolves a (6, 0, ids) x2many command list to the id list
// a read would return; other values are stored as given
func applyCommands(v interface{}) interface{} {
	cmds, ok := v.([]interface{})
	if !ok || len(cmds) != 1 {
		return v
	}
	cmd, ok := cmds[0].([]interface{})
	if !ok || len(cmd) != 3 {
		return v
	}
	if op, _ := asInt64(cmd[0]); op != 6 {
		return v
	}
	ids, ok := cmd[2].([]interface{})
	if !ok {
		return v
	}
	return append([]interface{}{}, ids...)
}

// Unlink implements odoo.RemoteClient
func (f *Fake) Unlink(ctx context.Context, model string, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(Call{Op: "unlink", Model: model, IDs: append([]int64(nil), ids...)})
	t := f.table(model)
	for _, id := range ids {
		if _, ok := t[id]; !ok {
			return missing(model, id)
		}
	}
	for _, id := range ids {
		delete(t, id)
	}
	return nil
}

// Call implements odoo.RemoteClient; the first arg is taken as the record ids
func (f *Fake) Call(ctx context.Context, model, method string, args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	ids := argIDs(args)
	f.log(Call{Op: "call", Model: model, Method: method, IDs: ids})
	h, ok := f.methods[model+"."+method]
	f.mu.Unlock()
	if !ok {
		return true, nil
	}
	var rest []interface{}
	if len(args) > 1 {
		rest = args[1:]
	}
	return h(f, ids, rest)
}

// Set writes values onto a stored record without logging; for use inside handlers
func (f *Fake) Set(model string, id int64, values map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.table(model)[id]; ok {
		for k, v := range values {
			rec[k] = v
		}
	}
}

func missing(model string, id int64) error {
	return odoo.Fault(fmt.Sprintf("Record does not exist or has been deleted. (Record: %s(%d,))", model, id))
}

func argIDs(args []interface{}) []int64 {
	if len(args) == 0 {
		return nil
	}
	switch v := args[0].(type) {
	case []int64:
		return append([]int64(nil), v...)
	case int64:
		return []int64{v}
	case []interface{}:
		var ids []int64
		for _, x := range v {
			if id, ok := asInt64(x); ok {
				ids = append(ids, id)
			}
		}
		return ids
	}
	return nil
}

func (f *Fake) match(model string, domain odoo.Domain, opts []odoo.SearchOption) []int64 {
	t := f.table(model)
	ids := make([]int64, 0, len(t))
	for id, rec := range t {
		if evalDomain(rec, domain) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if off := odoo.Offset(opts...); off > 0 {
		if off >= len(ids) {
			return nil
		}
		ids = ids[off:]
	}
	if lim := odoo.Limit(opts...); lim > 0 && lim < len(ids) {
		ids = ids[:lim]
	}
	return ids
}

// evalDomain evaluates a Polish-notation domain; bare sequences are ANDed
func evalDomain(rec odoo.Record, domain odoo.Domain) bool {
	terms := []interface{}(domain)
	result := true
	for len(terms) > 0 {
		var ok bool
		ok, terms = evalTerm(rec, terms)
		result = result && ok
	}
	return result
}

func evalTerm(rec odoo.Record, terms []interface{}) (bool, []interface{}) {
	switch t := terms[0].(type) {
	case string:
		switch t {
		case odoo.OpOr, odoo.OpAnd:
			left, rest := evalTerm(rec, terms[1:])
			right, rest := evalTerm(rec, rest)
			if t == odoo.OpOr {
				return left || right, rest
			}
			return left && right, rest
		case odoo.OpNot:
			v, rest := evalTerm(rec, terms[1:])
			return !v, rest
		}
		return true, terms[1:]
	case []interface{}:
		return evalCond(rec, t), terms[1:]
	}
	return true, terms[1:]
}

func evalCond(rec odoo.Record, cond []interface{}) bool {
	if len(cond) != 3 {
		return true
	}
	field, _ := cond[0].(string)
	op, _ := cond[1].(string)
	value := cond[2]
	actual := rec[field]
	if list, ok := actual.([]interface{}); ok && len(list) == 2 {
		// many2one stored as [id, name]
		actual = list[0]
	}

	switch strings.ToLower(op) {
	case "=":
		return equal(actual, value)
	case "!=":
		return !equal(actual, value)
	case "in":
		return contains(value, actual)
	case "not in":
		return !contains(value, actual)
	case ">", ">=", "<", "<=":
		return compare(actual, value, op)
	case "ilike", "like", "=like", "=ilike":
		a, _ := actual.(string)
		v, _ := value.(string)
		return strings.Contains(strings.ToLower(a), strings.ToLower(strings.Trim(v, "%")))
	}
	return false
}

func equal(a, b interface{}) bool {
	if ai, ok := asInt64(a); ok {
		if bi, ok := asInt64(b); ok {
			return ai == bi
		}
	}
	// unset fields read as false
	if a == nil {
		if bb, ok := b.(bool); ok && !bb {
			return true
		}
	}
	if b == nil {
		if ab, ok := a.(bool); ok && !ab {
			return true
		}
	}
	return reflect.DeepEqual(a, b)
}

func contains(list, v interface{}) bool {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if equal(rv.Index(i).Interface(), v) {
			return true
		}
	}
	return false
}

func compare(a, b interface{}, op string) bool {
	if as, ok := a.(string); ok {
		bs, _ := b.(string)
		switch op {
		case ">":
			return as > bs
		case ">=":
			return as >= bs
		case "<":
			return as < bs
		}
		return as <= bs
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return false
	}
	switch op {
	case ">":
		return af > bf
	case ">=":
		return af >= bf
	case "<":
		return af < bf
	}
	return af <= bf
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	if f, ok := v.(float64); ok {
		return f, true
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func copyRecord(rec odoo.Record, fields []string) odoo.Record {
	out := odoo.Record{"id": rec["id"]}
	if len(fields) == 0 {
		for k, v := range rec {
			out[k] = v
		}
		return out
	}
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		} else {
			out[f] = false
		}
	}
	return out
}

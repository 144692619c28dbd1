package odoo

// Domain is an Odoo search filter in Polish notation: a flat list of
// [field, operator, value] conditions and the prefix operators "|", "&", "!".
type Domain []interface{}

// Prefix operators
const (
	OpOr  = "|"
	OpAnd = "&"
	OpNot = "!"
)

// Cond builds a single [field, operator, value] condition
func Cond(field, operator string, value interface{}) []interface{} {
	return []interface{}{field, operator, value}
}

// NewDomain builds a domain from conditions and operators in order
func NewDomain(terms ...interface{}) Domain {
	d := make(Domain, 0, len(terms))
	return append(d, terms...)
}

// Or combines two or more conditions with the prefix "|" operator
func Or(conds ...[]interface{}) Domain {
	d := Domain{}
	for i := 1; i < len(conds); i++ {
		d = append(d, OpOr)
	}
	for _, c := range conds {
		d = append(d, c)
	}
	return d
}

// args returns the domain ready for the wire; nil becomes an empty list
func (d Domain) args() []interface{} {
	if d == nil {
		return []interface{}{}
	}
	return []interface{}(d)
}

// SearchOption tunes search / search_read paging and ordering
type SearchOption func(*searchOpts)

type searchOpts struct {
	offset int
	limit  int
	order  string
}

// WithOffset skips the first n matches
func WithOffset(n int) SearchOption { return func(o *searchOpts) { o.offset = n } }

// WithLimit caps the number of matches
func WithLimit(n int) SearchOption { return func(o *searchOpts) { o.limit = n } }

// WithOrder sets the sort clause, e.g. "id asc"
func WithOrder(order string) SearchOption { return func(o *searchOpts) { o.order = order } }

func searchOptions(opts []SearchOption) searchOpts {
	var o searchOpts
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o searchOpts) kwargs() map[string]interface{} {
	if o.offset == 0 && o.limit == 0 && o.order == "" {
		return nil
	}
	kw := map[string]interface{}{}
	if o.offset > 0 {
		kw["offset"] = o.offset
	}
	if o.limit > 0 {
		kw["limit"] = o.limit
	}
	if o.order != "" {
		kw["order"] = o.order
	}
	return kw
}

// Limit returns the configured limit, 0 when unbounded
func Limit(opts ...SearchOption) int {
	return searchOptions(opts).limit
}

// Offset returns the configured offset
func Offset(opts ...SearchOption) int {
	return searchOptions(opts).offset
}

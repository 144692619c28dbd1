package odoo

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"
)

// RemoteClient is the object-model RPC surface the bridge depends on.
// Client implements it over XML-RPC; tests use odootest.Fake.
type RemoteClient interface {
	Search(ctx context.Context, model string, domain Domain, opts ...SearchOption) ([]int64, error)
	Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error)
	SearchRead(ctx context.Context, model string, domain Domain, fields []string, opts ...SearchOption) ([]Record, error)
	Count(ctx context.Context, model string, domain Domain) (int64, error)
	Create(ctx context.Context, model string, values map[string]interface{}) (int64, error)
	Write(ctx context.Context, model string, ids []int64, values map[string]interface{}) error
	Unlink(ctx context.Context, model string, ids []int64) error
	Call(ctx context.Context, model, method string, args ...interface{}) (interface{}, error)
}

// Client represents an Odoo XML-RPC client
type Client struct {
	URL       string
	Database  string
	Username  string
	Password  string
	CommonURL string
	ObjectURL string
	Transport http.RoundTripper

	mu  sync.Mutex
	uid int
}

var _ RemoteClient = (*Client)(nil)

// NewClient creates a new Odoo client
func NewClient(url, db, username, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		URL:       url,
		Database:  db,
		Username:  username,
		Password:  password,
		CommonURL: fmt.Sprintf("%s/xmlrpc/2/common", url),
		ObjectURL: fmt.Sprintf("%s/xmlrpc/2/object", url),
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Authenticate authenticates with Odoo and returns the user ID
func (c *Client) Authenticate(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	client, err := xmlrpc.NewClient(c.CommonURL, c.Transport)
	if err != nil {
		return 0, fmt.Errorf("failed to create XML-RPC client: %w", err)
	}
	defer client.Close()

	args := []interface{}{c.Database, c.Username, c.Password, make([]interface{}, 0)}
	var uid interface{}
	if err := client.Call("authenticate", args, &uid); err != nil {
		return 0, &RPCError{Model: "common", Method: "authenticate", Err: err}
	}

	// Odoo answers false instead of a fault on bad credentials
	id, ok := toInt64(uid)
	if !ok || id == 0 {
		return 0, &RPCError{Model: "common", Method: "authenticate", Err: fmt.Errorf("invalid credentials for %s", c.Username)}
	}

	c.mu.Lock()
	c.uid = int(id)
	c.mu.Unlock()
	return int(id), nil
}

// execute runs execute_kw against the object endpoint, authenticating lazily
func (c *Client) execute(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}, result interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	uid := c.uid
	c.mu.Unlock()
	if uid == 0 {
		var err error
		if uid, err = c.Authenticate(ctx); err != nil {
			return err
		}
	}

	client, err := xmlrpc.NewClient(c.ObjectURL, c.Transport)
	if err != nil {
		return fmt.Errorf("failed to create XML-RPC client: %w", err)
	}
	defer client.Close()

	params := []interface{}{
		c.Database,
		uid,
		c.Password,
		model,
		method,
		args,
	}
	if kwargs != nil {
		params = append(params, kwargs)
	}

	if err := client.Call("execute_kw", params, result); err != nil {
		return &RPCError{Model: model, Method: method, Err: err}
	}
	return nil
}

// Search performs a generic search operation and returns IDs
func (c *Client) Search(ctx context.Context, model string, domain Domain, opts ...SearchOption) ([]int64, error) {
	var ids []int64
	if err := c.execute(ctx, model, "search", []interface{}{domain.args()}, searchOptions(opts).kwargs(), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Read reads records by IDs
func (c *Client) Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var kwargs map[string]interface{}
	if len(fields) > 0 {
		kwargs = map[string]interface{}{"fields": fields}
	}

	var raw []map[string]interface{}
	if err := c.execute(ctx, model, "read", []interface{}{ids}, kwargs, &raw); err != nil {
		return nil, err
	}
	return toRecords(raw), nil
}

// SearchRead performs a generic search_read operation
func (c *Client) SearchRead(ctx context.Context, model string, domain Domain, fields []string, opts ...SearchOption) ([]Record, error) {
	kwargs := searchOptions(opts).kwargs()
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}

	var raw []map[string]interface{}
	if err := c.execute(ctx, model, "search_read", []interface{}{domain.args()}, kwargs, &raw); err != nil {
		return nil, err
	}
	return toRecords(raw), nil
}

// Count returns the number of records matching domain
func (c *Client) Count(ctx context.Context, model string, domain Domain) (int64, error) {
	var n int64
	if err := c.execute(ctx, model, "search_count", []interface{}{domain.args()}, nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Create creates a new record
func (c *Client) Create(ctx context.Context, model string, values map[string]interface{}) (int64, error) {
	var id int64
	if err := c.execute(ctx, model, "create", []interface{}{values}, nil, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// Write updates existing record(s)
func (c *Client) Write(ctx context.Context, model string, ids []int64, values map[string]interface{}) error {
	var success bool
	if err := c.execute(ctx, model, "write", []interface{}{ids, values}, nil, &success); err != nil {
		return err
	}
	if !success {
		return &RPCError{Model: model, Method: "write", Err: errFalseResult}
	}
	return nil
}

// Unlink deletes record(s)
func (c *Client) Unlink(ctx context.Context, model string, ids []int64) error {
	var success bool
	if err := c.execute(ctx, model, "unlink", []interface{}{ids}, nil, &success); err != nil {
		return err
	}
	if !success {
		return &RPCError{Model: model, Method: "unlink", Err: errFalseResult}
	}
	return nil
}

// Call calls a public method on an Odoo model, e.g. action_confirm with the record ids as first arg
func (c *Client) Call(ctx context.Context, model, method string, args ...interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}
	var result interface{}
	if err := c.execute(ctx, model, method, args, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func toRecords(raw []map[string]interface{}) []Record {
	records := make([]Record, 0, len(raw))
	for _, r := range raw {
		records = append(records, Record(r))
	}
	return records
}

package export

import (
	"errors"
	"fmt"

	"github.com/xelth-com/odoobridge/internal/services/odoo"
)

var (
	// ErrSyncExcluded marks an entity deliberately not exported
	ErrSyncExcluded = errors.New("sync excluded")
	// ErrServer marks a failed remote call
	ErrServer = errors.New("odoo server error")
	// ErrGeneric marks a local precondition failure
	ErrGeneric = errors.New("export logic error")
	// ErrUnknownExporter is returned for a triple nobody registered
	ErrUnknownExporter = errors.New("no exporter registered")
)

// Error kinds reported in ItemError.Kind
const (
	KindSyncExcluded = "sync_excluded"
	KindServer       = "server_error"
	KindGeneric      = "generic"
)

// SyncExcludedError is returned when ShouldSync rejects the entity.
// Callers resolving dependencies treat it as "no remote id".
type SyncExcludedError struct {
	Key     Key
	LocalID int64
}

func (e *SyncExcludedError) Error() string {
	return fmt.Sprintf("%s local %d is excluded from sync", e.Key, e.LocalID)
}

// Is matches ErrSyncExcluded
func (e *SyncExcludedError) Is(target error) bool { return target == ErrSyncExcluded }

// ServerError wraps a remote fault with the identity of the entity being exported.
// No local state was changed before the failing call, so the export can be retried.
type ServerError struct {
	Key      Key
	LocalID  int64
	RemoteID int64
	Op       string
	Err      error
}

func (e *ServerError) Error() string {
	if e.RemoteID != 0 {
		return fmt.Sprintf("%s local %d (remote %d): %s failed: %s", e.Key, e.LocalID, e.RemoteID, e.Op, odoo.FaultString(e.Err))
	}
	return fmt.Sprintf("%s local %d: %s failed: %s", e.Key, e.LocalID, e.Op, odoo.FaultString(e.Err))
}

func (e *ServerError) Unwrap() error { return e.Err }

// Is matches ErrServer
func (e *ServerError) Is(target error) bool { return target == ErrServer }

// GenericError is a local precondition failure: missing data, missing
// dependency or a broken invariant. Retrying will not help without a data fix.
type GenericError struct {
	Key     Key
	LocalID int64
	Msg     string
	Err     error
}

func (e *GenericError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s local %d: %s: %v", e.Key, e.LocalID, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s local %d: %s", e.Key, e.LocalID, e.Msg)
}

func (e *GenericError) Unwrap() error { return e.Err }

// Is matches ErrGeneric
func (e *GenericError) Is(target error) bool { return target == ErrGeneric }

// Logicf builds a GenericError
func Logicf(key Key, localID int64, format string, args ...interface{}) error {
	return &GenericError{Key: key, LocalID: localID, Msg: fmt.Sprintf(format, args...)}
}

// Kind classifies an error for reports
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrSyncExcluded):
		return KindSyncExcluded
	case errors.Is(err, ErrServer):
		return KindServer
	}
	return KindGeneric
}

// classify keeps typed errors and turns anything else into a ServerError or GenericError
func classify(key Key, localID int64, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSyncExcluded) || errors.Is(err, ErrServer) || errors.Is(err, ErrGeneric) {
		return err
	}
	if odoo.IsRemote(err) {
		return &ServerError{Key: key, LocalID: localID, Op: op, Err: err}
	}
	return &GenericError{Key: key, LocalID: localID, Msg: op, Err: err}
}

// ItemError is one failed item of a batch run
type ItemError struct {
	EntityType    string `json:"entity_type,omitempty"`
	RemoteModel   string `json:"remote_model,omitempty"`
	Variant       string `json:"export_variant,omitempty"`
	LocalID       int64  `json:"local_id,omitempty"`
	RemoteOrderID int64  `json:"remote_order_id,omitempty"`
	Kind          string `json:"kind"`
	Message       string `json:"message"`
}

// NewItemError builds the report record of a failed export
func NewItemError(key Key, localID int64, err error) ItemError {
	return ItemError{
		EntityType:  key.EntityType,
		RemoteModel: key.RemoteModel,
		Variant:     key.Variant,
		LocalID:     localID,
		Kind:        Kind(err),
		Message:     err.Error(),
	}
}
